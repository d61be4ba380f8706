// Package transporttest provides an in-memory transport.Transport for tests.
package transporttest

import (
	"context"
	"io"
	"sync"

	"mediarelay/internal/transport"
)

// Call records one transport invocation.
type Call struct {
	Op        string
	ChatID    int64
	MessageID int
	ReplyTo   int
	Text      string
	File      transport.File
	// Body holds the bytes read from File.Reader.
	Body   []byte
	Button transport.Button
	Alert  bool
}

// Recorder records every call and hands out increasing message IDs.
// Hooks may be set to inject failures; they run before the call is recorded.
type Recorder struct {
	mu     sync.Mutex
	nextID int
	calls  []Call

	OnSendFile func(f transport.File, caption string) error
	OnEdit     func(ref transport.MessageRef, text string) error
	OnSendText func(text string) error
}

var _ transport.Transport = (*Recorder)(nil)

// New returns an empty recorder.
func New() *Recorder {
	return &Recorder{nextID: 100}
}

func (r *Recorder) record(c Call) transport.MessageRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.MessageID == 0 && c.Op != "delete" && c.Op != "edit" && c.Op != "answer" {
		r.nextID++
		c.MessageID = r.nextID
	}
	r.calls = append(r.calls, c)
	return transport.MessageRef{ChatID: c.ChatID, MessageID: c.MessageID}
}

func (r *Recorder) SendStatus(_ context.Context, chatID int64, replyTo int, text string) (transport.MessageRef, error) {
	return r.record(Call{Op: "status", ChatID: chatID, ReplyTo: replyTo, Text: text}), nil
}

func (r *Recorder) EditStatus(_ context.Context, ref transport.MessageRef, text string) error {
	if r.OnEdit != nil {
		if err := r.OnEdit(ref, text); err != nil {
			return err
		}
	}
	r.record(Call{Op: "edit", ChatID: ref.ChatID, MessageID: ref.MessageID, Text: text})
	return nil
}

func (r *Recorder) SendFile(_ context.Context, chatID int64, replyTo int, f transport.File, caption string, progress transport.ProgressFunc) (transport.MessageRef, error) {
	if r.OnSendFile != nil {
		if err := r.OnSendFile(f, caption); err != nil {
			return transport.MessageRef{}, err
		}
	}
	var body []byte
	if f.Reader != nil {
		b, err := io.ReadAll(f.Reader)
		if err != nil {
			return transport.MessageRef{}, err
		}
		body = b
		if progress != nil {
			progress(int64(len(b)), f.Size)
		}
	}
	return r.record(Call{Op: "file", ChatID: chatID, ReplyTo: replyTo, Text: caption, File: f, Body: body}), nil
}

func (r *Recorder) SendText(_ context.Context, chatID int64, replyTo int, text string) (transport.MessageRef, error) {
	if r.OnSendText != nil {
		if err := r.OnSendText(text); err != nil {
			return transport.MessageRef{}, err
		}
	}
	return r.record(Call{Op: "text", ChatID: chatID, ReplyTo: replyTo, Text: text}), nil
}

func (r *Recorder) SendButton(_ context.Context, chatID int64, replyTo int, text string, b transport.Button) (transport.MessageRef, error) {
	return r.record(Call{Op: "button", ChatID: chatID, ReplyTo: replyTo, Text: text, Button: b}), nil
}

func (r *Recorder) DeleteMessage(_ context.Context, ref transport.MessageRef) error {
	r.record(Call{Op: "delete", ChatID: ref.ChatID, MessageID: ref.MessageID})
	return nil
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID, text string, alert bool) error {
	r.record(Call{Op: "answer", Text: text, Alert: alert, Button: transport.Button{Data: callbackID}})
	return nil
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Ops returns the calls filtered to op.
func (r *Recorder) Ops(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}
