package responder

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"supreme-bot/internal/storage"
)

// Normalize folds case, strips accents and collapses whitespace so that
// "  Pricing " and "pricíng" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// Match finds the best trained entry for input. Exact matches win over
// substring matches in either direction; ties go to the most used entry,
// then the oldest id.
func Match(corpus []storage.Training, input string) (storage.Training, bool) {
	needle := Normalize(input)
	if needle == "" {
		return storage.Training{}, false
	}

	var exact, partial []storage.Training
	for _, entry := range corpus {
		trigger := Normalize(entry.Query)
		if trigger == "" {
			continue
		}
		switch {
		case trigger == needle:
			exact = append(exact, entry)
		case strings.Contains(needle, trigger), strings.Contains(trigger, needle):
			partial = append(partial, entry)
		}
	}

	for _, candidates := range [][]storage.Training{exact, partial} {
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].UsageCount != candidates[j].UsageCount {
				return candidates[i].UsageCount > candidates[j].UsageCount
			}
			return candidates[i].ID < candidates[j].ID
		})
		return candidates[0], true
	}
	return storage.Training{}, false
}
