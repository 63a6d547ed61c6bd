package application

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"supreme-bot/internal/chat"
	"supreme-bot/internal/flow"
)

// Component ids shared with the bot's interaction router.
const (
	ButtonOpen    = "start_mm_app_initial"
	ButtonConfirm = "confirm_start_mm_app"
	ButtonStop    = "stop_mm_app"
	SelectPrefix  = "mm_app_select_"
	AcceptPrefix  = "mm_app_accept_"
	DenyPrefix    = "mm_app_deny_"
)

const footer = "Supreme BOT"

func SelectID(index int) string {
	return SelectPrefix + strconv.Itoa(index)
}

// ParseSelectID extracts the step index from a select menu id.
func ParseSelectID(id string) (int, bool) {
	raw, ok := strings.CutPrefix(id, SelectPrefix)
	if !ok {
		return 0, false
	}
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// ParseReviewID returns the applicant id and decision encoded in a review button id.
func ParseReviewID(id string) (applicant string, accepted bool, ok bool) {
	if rest, found := strings.CutPrefix(id, AcceptPrefix); found && rest != "" {
		return rest, true, true
	}
	if rest, found := strings.CutPrefix(id, DenyPrefix); found && rest != "" {
		return rest, false, true
	}
	return "", false, false
}

func stopButton() chat.Button {
	return chat.Button{ID: ButtonStop, Label: "Close Application", Style: chat.StyleDanger}
}

func (s *Service) introMessage() chat.Message {
	text := s.cfg.Intro
	if strings.Contains(text, "%d") {
		text = fmt.Sprintf(text, s.engine.Definition().Len())
	}
	return chat.Message{
		Title:  "Supreme MM - " + s.cfg.Title,
		Text:   text,
		Color:  chat.ColorInfo,
		Footer: footer,
		Buttons: []chat.Button{
			{ID: ButtonConfirm, Label: "Start Application", Style: chat.StyleSuccess},
			stopButton(),
		},
	}
}

// PanelMessage is the public card that lets members open an application.
func PanelMessage(title string) chat.Message {
	return chat.Message{
		Title:   title,
		Text:    "Click the button below to apply. The application runs in your DMs.",
		Color:   chat.ColorInfo,
		Footer:  footer,
		Buttons: []chat.Button{{ID: ButtonOpen, Label: "Apply", Style: chat.StylePrimary}},
	}
}

func promptMessage(p *flow.Prompt, skipWord string) chat.Message {
	var b strings.Builder
	b.WriteString("**" + p.Text + "**\n\n")
	if p.Kind == flow.KindChoice {
		b.WriteString("*Select an option from the menu below*")
	} else if p.Placeholder != "" {
		b.WriteString("*" + p.Placeholder + "*")
	}
	if !p.Required {
		fmt.Fprintf(&b, "\n\n*(Optional - type \"%s\" to skip)*", skipWord)
	}

	msg := chat.Message{
		Title:   fmt.Sprintf("Question %d of %d", p.Index+1, p.Total),
		Text:    strings.TrimSpace(b.String()),
		Color:   chat.ColorInfo,
		Footer:  fmt.Sprintf("Progress: %d/%d", p.Index+1, p.Total),
		Buttons: []chat.Button{stopButton()},
	}
	if p.Kind == flow.KindChoice {
		options := make([]chat.Option, 0, len(p.Choices))
		for _, c := range p.Choices {
			options = append(options, chat.Option{Label: c.Label, Value: c.Value, Description: c.Description})
		}
		msg.Select = &chat.Select{ID: SelectID(p.Index), Placeholder: "Choose an option", Options: options}
	}
	return msg
}

func warningMessage(reason error) chat.Message {
	text := "Please try again."
	switch {
	case errors.Is(reason, flow.ErrChoiceRequired):
		text = "Please use the selection menu provided to answer this question."
	case errors.Is(reason, flow.ErrAnswerRequired):
		text = "This question is required. Please provide an answer."
	case errors.Is(reason, flow.ErrPatternMismatch):
		text = "That answer doesn't look right for this question. Please try again."
	case errors.Is(reason, flow.ErrStaleInput):
		text = "That menu belongs to an earlier question. Please answer the latest one."
	case errors.Is(reason, flow.ErrUnknownChoice):
		text = "That option is not available. Please pick one from the menu."
	}
	return chat.Message{Text: "⚠️ " + text, Color: chat.ColorWarning}
}

func reviewMessage(c *flow.Completion) chat.Message {
	fields := make([]chat.Field, 0, len(c.Answers))
	for _, a := range c.Answers {
		value := "`N/A`"
		if a.Value != "" && a.Value != flow.NotApplicable {
			value = "```\n" + a.Value + "\n```"
		}
		fields = append(fields, chat.Field{Name: a.Prompt, Value: value})
	}
	return chat.Message{
		Title: "New MM Application",
		Text: fmt.Sprintf("**Applicant:** <@%s> (%s)\n**Submitted:** %s",
			c.Identity, c.Identity, c.CompletedAt.Format("Monday, January 2, 2006 3:04 PM")),
		Color:  0x00AAFF,
		Fields: fields,
		Buttons: []chat.Button{
			{ID: AcceptPrefix + c.Identity, Label: "Accept", Style: chat.StyleSuccess},
			{ID: DenyPrefix + c.Identity, Label: "Deny", Style: chat.StyleDanger},
		},
	}
}
