package responder

import (
	"regexp"
	"strings"
)

// Vars are the values available to response templates.
type Vars struct {
	AuthorID     string
	AuthorName   string
	TicketUserID string
	TicketName   string
	ChannelID    string
	ServerName   string
	ServerID     string
	Input        string
	// Data holds collected ticket fields such as user_item or partner.
	Data map[string]string
}

var (
	placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)
	legacyUserPattern  = regexp.MustCompile(`(?i)<@User>`)
)

// Format substitutes {name} and {name?upper|lower} placeholders. Keys are
// case-insensitive; anything unknown is left as written.
func Format(template string, v Vars) string {
	if template == "" {
		return template
	}
	values := v.table()
	out := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.ToLower(match[1 : len(match)-1])
		modifier := ""
		if idx := strings.LastIndexByte(key, '?'); idx >= 0 {
			key, modifier = key[:idx], key[idx+1:]
		}
		value, ok := values[key]
		if !ok {
			return match
		}
		switch modifier {
		case "":
			return value
		case "upper":
			return strings.ToUpper(value)
		case "lower":
			return strings.ToLower(value)
		default:
			return match
		}
	})
	if v.AuthorID != "" {
		out = legacyUserPattern.ReplaceAllLiteralString(out, mention(v.AuthorID))
	}
	return out
}

func (v Vars) table() map[string]string {
	author := mention(v.AuthorID)
	owner := author
	if v.TicketUserID != "" {
		owner = mention(v.TicketUserID)
	}
	values := map[string]string{
		"author":         author,
		"author.name":    v.AuthorName,
		"author.id":      v.AuthorID,
		"user":           author,
		"ticket.user":    owner,
		"ticket.id":      v.TicketName,
		"ticket.channel": channel(v.ChannelID),
		"server.name":    orDefault(v.ServerName, "Server"),
		"server.id":      orDefault(v.ServerID, "0"),
		"input":          v.Input,
	}
	for key, value := range tradeDefaults {
		values[key] = value
	}
	for key, value := range v.Data {
		key = strings.ToLower(key)
		if value == "" || reserved(key) {
			continue
		}
		values[key] = value
	}
	values["item"] = values["user_item"]
	values["qty"] = values["user_qty"]
	return values
}

var tradeDefaults = map[string]string{
	"user_item":    "item",
	"partner_item": "item",
	"user_qty":     "1",
	"partner_qty":  "1",
	"partner":      "partner",
	"tip":          "none",
}

// reserved keys describe the message itself and cannot be shadowed by
// collected data.
func reserved(key string) bool {
	switch key {
	case "author", "user", "input", "item", "qty":
		return true
	}
	return strings.HasPrefix(key, "author.") || strings.HasPrefix(key, "ticket.") || strings.HasPrefix(key, "server.")
}

func mention(id string) string {
	if id == "" {
		return ""
	}
	return "<@" + id + ">"
}

func channel(id string) string {
	if id == "" {
		return ""
	}
	return "<#" + id + ">"
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
