// Package chattest provides an in-memory chat.Messenger for tests.
package chattest

import (
	"context"
	"strconv"
	"sync"

	"supreme-bot/internal/chat"
)

const (
	OpSendDirect    = "send_direct"
	OpSend          = "send"
	OpReply         = "reply"
	OpEdit          = "edit"
	OpDeleteChannel = "delete_channel"
)

type Call struct {
	Op        string
	Target    string
	MessageID string
	ReplyTo   string
	Message   chat.Message
}

type Fake struct {
	mu       sync.Mutex
	Calls    []Call
	FailNext map[string]error
	nextID   int
}

var _ chat.Messenger = (*Fake)(nil)

func (f *Fake) SendDirect(ctx context.Context, userID string, msg chat.Message) (chat.Sent, error) {
	return f.send(ctx, OpSendDirect, "dm-"+userID, "", msg)
}

func (f *Fake) Send(ctx context.Context, channelID string, msg chat.Message) (chat.Sent, error) {
	return f.send(ctx, OpSend, channelID, "", msg)
}

func (f *Fake) Reply(ctx context.Context, channelID, messageID string, msg chat.Message) (chat.Sent, error) {
	return f.send(ctx, OpReply, channelID, messageID, msg)
}

func (f *Fake) Edit(ctx context.Context, channelID, messageID string, msg chat.Message) (chat.Sent, error) {
	if err := f.maybeFail(ctx, OpEdit); err != nil {
		return chat.Sent{}, err
	}
	f.record(Call{Op: OpEdit, Target: channelID, MessageID: messageID, Message: msg})
	return chat.Sent{ChannelID: channelID, MessageID: messageID}, nil
}

func (f *Fake) EditDirect(ctx context.Context, userID, messageID string, msg chat.Message) (chat.Sent, error) {
	return f.Edit(ctx, "dm-"+userID, messageID, msg)
}

func (f *Fake) DeleteChannel(ctx context.Context, channelID string) error {
	if err := f.maybeFail(ctx, OpDeleteChannel); err != nil {
		return err
	}
	f.record(Call{Op: OpDeleteChannel, Target: channelID})
	return nil
}

// Fail makes the next call for op return err. Errors that are not already a
// *chat.SendError are wrapped in one with code 0.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNext == nil {
		f.FailNext = make(map[string]error)
	}
	f.FailNext[op] = err
}

// CannotDM scripts the platform refusing a direct message.
func CannotDM() *chat.SendError {
	return &chat.SendError{Op: OpSendDirect, Code: chat.CodeCannotDMUser}
}

func (f *Fake) LastCall(op string) *Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Calls) - 1; i >= 0; i-- {
		if f.Calls[i].Op == op {
			c := f.Calls[i]
			return &c
		}
	}
	return nil
}

// CallsFor returns every recorded call for op in order.
func (f *Fake) CallsFor(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
}

func (f *Fake) send(ctx context.Context, op, target, replyTo string, msg chat.Message) (chat.Sent, error) {
	if err := f.maybeFail(ctx, op); err != nil {
		return chat.Sent{}, err
	}
	id := f.nextMessageID()
	f.record(Call{Op: op, Target: target, MessageID: id, ReplyTo: replyTo, Message: msg})
	return chat.Sent{ChannelID: target, MessageID: id}, nil
}

func (f *Fake) nextMessageID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func (f *Fake) record(call Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

func (f *Fake) maybeFail(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return &chat.SendError{Op: op, Wrapped: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	err, ok := f.FailNext[op]
	if !ok {
		return nil
	}
	delete(f.FailNext, op)
	if se, ok := err.(*chat.SendError); ok {
		return se
	}
	return &chat.SendError{Op: op, Wrapped: err}
}
