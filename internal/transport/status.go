package transport

import (
	"context"
	"sync"
)

// Status is the single status message of one request. It skips edits that
// would not change the text and guarantees one terminal report.
type Status struct {
	t       Transport
	chatID  int64
	replyTo int

	mu       sync.Mutex
	ref      MessageRef
	last     string
	finished bool
}

// NewStatus binds a status to a conversation. Nothing is sent until Set.
func NewStatus(t Transport, chatID int64, replyTo int) *Status {
	return &Status{t: t, chatID: chatID, replyTo: replyTo}
}

// Set sends the status message on first use and edits it afterwards.
func (s *Status) Set(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	return s.setLocked(ctx, text)
}

func (s *Status) setLocked(ctx context.Context, text string) error {
	if s.ref.IsZero() {
		ref, err := s.t.SendStatus(ctx, s.chatID, s.replyTo, text)
		if err != nil {
			return err
		}
		s.ref = ref
		s.last = text
		return nil
	}
	if text == s.last {
		return nil
	}
	if err := s.t.EditStatus(ctx, s.ref, text); err != nil {
		return err
	}
	s.last = text
	return nil
}

// Finish reports the terminal text: an edit of the status message when it
// exists, otherwise a new reply. Later calls to Set, Finish or Delete are ignored.
func (s *Status) Finish(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	s.finished = true
	if !s.ref.IsZero() {
		if text == s.last {
			return nil
		}
		if err := s.t.EditStatus(ctx, s.ref, text); err == nil {
			s.last = text
			return nil
		}
	}
	ref, err := s.t.SendText(ctx, s.chatID, s.replyTo, text)
	if err != nil {
		return err
	}
	s.ref = ref
	s.last = text
	return nil
}

// Delete removes the status message and counts as the terminal report.
func (s *Status) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	s.finished = true
	if s.ref.IsZero() {
		return nil
	}
	return s.t.DeleteMessage(ctx, s.ref)
}

// Ref returns the status message, zero before the first Set.
func (s *Status) Ref() MessageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref
}

// Text returns the last text shown.
func (s *Status) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
