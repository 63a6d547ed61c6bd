package flow

import (
	"regexp"
	"strings"
)

const (
	ExtractText       = "text"
	ExtractQuantity   = "quantity"
	ExtractItem       = "item"
	ExtractTradeItems = "trade_items"
	ExtractMention    = "mention"
)

// Extractor turns a validated answer into collected data fields.
type Extractor func(input, field string) map[string]string

type Extractors map[string]Extractor

func DefaultExtractors() Extractors {
	return Extractors{
		ExtractText:       extractText,
		ExtractQuantity:   extractQuantity,
		ExtractItem:       extractItem,
		ExtractTradeItems: extractTradeItems,
		ExtractMention:    extractMention,
	}
}

var (
	firstNumber  = regexp.MustCompile(`\d+`)
	mentionID    = regexp.MustCompile(`<@!?(\d+)>`)
	snowflake    = regexp.MustCompile(`^\d{15,20}$`)
	splitFor     = regexp.MustCompile(`(?i)\s+for\s+`)
	splitAnd     = regexp.MustCompile(`(?i)\s+and\s+`)
	givingPhrase = regexp.MustCompile(`(?i)\b(i am giving|i'm giving|im giving|i give|they are giving|they're giving|they give|he is giving|he's giving|he gives|she is giving|she's giving|she gives|my partner gives|partner gives)\b:?`)
)

func single(field, value string) map[string]string {
	if field == "" || value == "" {
		return nil
	}
	return map[string]string{field: value}
}

func extractText(input, field string) map[string]string {
	return single(field, strings.TrimSpace(input))
}

func extractQuantity(input, field string) map[string]string {
	if n := firstNumber.FindString(input); n != "" {
		return single(field, n)
	}
	return single(field, strings.TrimSpace(input))
}

func extractItem(input, field string) map[string]string {
	return single(field, cleanItem(input))
}

// extractTradeItems reads "X for Y" or "X and Y" into user_item and partner_item.
func extractTradeItems(input, _ string) map[string]string {
	text := strings.TrimSpace(input)
	var parts []string
	switch {
	case splitFor.MatchString(text):
		parts = splitFor.Split(text, 2)
	case splitAnd.MatchString(text):
		parts = splitAnd.Split(text, 2)
	default:
		parts = []string{text}
	}

	out := make(map[string]string, 2)
	if item := cleanItem(parts[0]); item != "" {
		out["user_item"] = item
	}
	if len(parts) == 2 {
		if item := cleanItem(parts[1]); item != "" {
			out["partner_item"] = item
		}
	}
	return out
}

func extractMention(input, field string) map[string]string {
	text := strings.TrimSpace(input)
	if m := mentionID.FindStringSubmatch(text); m != nil {
		return single(field, "<@"+m[1]+">")
	}
	if snowflake.MatchString(text) {
		return single(field, "<@"+text+">")
	}
	return single(field, text)
}

func cleanItem(value string) string {
	return strings.Join(strings.Fields(givingPhrase.ReplaceAllString(value, "")), " ")
}
