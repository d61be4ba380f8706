package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxIdleLimiters bounds the per-chat map before idle entries are dropped.
const maxIdleLimiters = 1024

// Paced spaces out sends and edits within each chat so a carousel does not
// trip the chat service's per-chat flood limit. Chats are paced independently;
// deletes and callback answers are not paced.
type Paced struct {
	Transport
	every time.Duration

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

// NewPaced wraps t so that calls to one chat are at least every apart.
// Zero or negative disables pacing.
func NewPaced(t Transport, every time.Duration) *Paced {
	return &Paced{Transport: t, every: every, limiters: map[int64]*rate.Limiter{}}
}

func (p *Paced) limiter(chatID int64) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[chatID]; ok {
		return l
	}
	if len(p.limiters) >= maxIdleLimiters {
		p.dropIdle()
	}
	l := rate.NewLimiter(rate.Every(p.every), 1)
	p.limiters[chatID] = l
	return l
}

// dropIdle forgets limiters with a full bucket; a fresh one behaves the same.
func (p *Paced) dropIdle() {
	now := time.Now()
	for id, l := range p.limiters {
		if l.TokensAt(now) >= 1 {
			delete(p.limiters, id)
		}
	}
}

func (p *Paced) wait(ctx context.Context, chatID int64) error {
	if p.every <= 0 {
		return nil
	}
	return p.limiter(chatID).Wait(ctx)
}

func (p *Paced) SendStatus(ctx context.Context, chatID int64, replyTo int, text string) (MessageRef, error) {
	if err := p.wait(ctx, chatID); err != nil {
		return MessageRef{}, err
	}
	return p.Transport.SendStatus(ctx, chatID, replyTo, text)
}

func (p *Paced) EditStatus(ctx context.Context, ref MessageRef, text string) error {
	if err := p.wait(ctx, ref.ChatID); err != nil {
		return err
	}
	return p.Transport.EditStatus(ctx, ref, text)
}

func (p *Paced) SendFile(ctx context.Context, chatID int64, replyTo int, f File, caption string, progress ProgressFunc) (MessageRef, error) {
	if err := p.wait(ctx, chatID); err != nil {
		return MessageRef{}, err
	}
	return p.Transport.SendFile(ctx, chatID, replyTo, f, caption, progress)
}

func (p *Paced) SendText(ctx context.Context, chatID int64, replyTo int, text string) (MessageRef, error) {
	if err := p.wait(ctx, chatID); err != nil {
		return MessageRef{}, err
	}
	return p.Transport.SendText(ctx, chatID, replyTo, text)
}

func (p *Paced) SendButton(ctx context.Context, chatID int64, replyTo int, text string, b Button) (MessageRef, error) {
	if err := p.wait(ctx, chatID); err != nil {
		return MessageRef{}, err
	}
	return p.Transport.SendButton(ctx, chatID, replyTo, text, b)
}
