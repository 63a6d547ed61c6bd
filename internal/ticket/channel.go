package ticket

import (
	"regexp"
	"strings"
)

var (
	ticketWords = regexp.MustCompile(`(?i)ticket|support|help|claim|order|issue`)
	digitRun    = regexp.MustCompile(`\d+`)
	onlyDigits  = regexp.MustCompile(`^\d+$`)
)

type Channel struct {
	ID         string
	Name       string
	ParentID   string
	ParentName string
}

// Detector decides which guild channels are tickets.
type Detector struct {
	CategoryID string
	NamePrefix string
}

// IsTicket accepts channels under a configured ticket category (ours or an
// external ticket bot's), channels whose category or name looks like a
// ticket, and purely numeric channel names.
func (d Detector) IsTicket(ch Channel, externalCategoryID string) bool {
	if ch.ParentID != "" && (ch.ParentID == d.CategoryID || ch.ParentID == externalCategoryID) {
		return true
	}
	if ch.ParentName != "" && ticketWords.MatchString(ch.ParentName) {
		return true
	}
	name := strings.ToLower(ch.Name)
	if d.NamePrefix != "" && strings.HasPrefix(name, strings.ToLower(d.NamePrefix)) {
		return true
	}
	return ticketWords.MatchString(name) || onlyDigits.MatchString(name)
}

// IdentityFor maps a channel to its ticket id: "ticket-<number>" when the
// name carries a number, else the lowercased name, else the channel id.
func IdentityFor(ch Channel) string {
	name := strings.ToLower(strings.TrimSpace(ch.Name))
	if n := digitRun.FindString(name); n != "" {
		return "ticket-" + n
	}
	if name != "" {
		return name
	}
	return ch.ID
}
