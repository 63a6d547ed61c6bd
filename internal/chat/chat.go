// Package chat is the outbound port between the flows and the chat platform.
package chat

import (
	"context"
	"errors"
	"fmt"
)

// Platform error codes the flows react to.
const (
	CodeUnknownChannel = 10003
	CodeUnknownMessage = 10008
	CodeCannotDMUser   = 50007
)

type ButtonStyle int

const (
	StylePrimary ButtonStyle = iota + 1
	StyleSecondary
	StyleSuccess
	StyleDanger
)

type Button struct {
	ID    string
	Label string
	Style ButtonStyle
}

type Option struct {
	Label       string
	Value       string
	Description string
}

type Select struct {
	ID          string
	Placeholder string
	Options     []Option
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is rendered as plain content plus an optional card.
type Message struct {
	Content string
	Title   string
	Text    string
	Color   int
	Fields  []Field
	Footer  string
	Buttons []Button
	Select  *Select
	// Silent suppresses mention notifications for replies.
	Silent bool
}

func (m Message) HasCard() bool {
	return m.Title != "" || m.Text != "" || len(m.Fields) > 0
}

type Sent struct {
	ChannelID string
	MessageID string
}

type SendError struct {
	Op      string
	Code    int
	Wrapped error
}

func (e *SendError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: code %d: %v", e.Op, e.Code, e.Wrapped)
	}
	return fmt.Sprintf("%s: code %d", e.Op, e.Code)
}

func (e *SendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Wrapped
}

// IsCode reports whether err carries the given platform code.
func IsCode(err error, code int) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se != nil && se.Code == code
	}
	return false
}

type Messenger interface {
	SendDirect(ctx context.Context, userID string, msg Message) (Sent, error)
	Send(ctx context.Context, channelID string, msg Message) (Sent, error)
	Reply(ctx context.Context, channelID, messageID string, msg Message) (Sent, error)
	Edit(ctx context.Context, channelID, messageID string, msg Message) (Sent, error)
	EditDirect(ctx context.Context, userID, messageID string, msg Message) (Sent, error)
	DeleteChannel(ctx context.Context, channelID string) error
}

// Colors used by the flows.
const (
	ColorInfo    = 0x5865F2
	ColorSuccess = 0x57F287
	ColorWarning = 0xFEE75C
	ColorDanger  = 0xED4245
)
