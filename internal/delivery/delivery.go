// Package delivery moves a resolved rendition into the chat. Each Strategy is
// one way of getting the bytes there; the Coordinator tries them in order.
package delivery

import (
	"context"
	"fmt"

	"mediarelay/internal/media"
	"mediarelay/internal/progress"
	"mediarelay/internal/transport"
)

// Strategy names.
const (
	NameDirect     = "direct"
	NameConversion = "conversion"
	NameReupload   = "reupload"
)

// Attempt is what a strategy needs to deliver one rendition.
type Attempt struct {
	Request   media.FetchRequest
	Rendition media.Rendition
	// Caption is already formatted; empty for every item but the first.
	Caption string
	// Progress may be nil.
	Progress *progress.Sink
}

// Strategy delivers one rendition. Deliver returns a populated Outcome on
// success and a classified error otherwise.
type Strategy interface {
	Name() string
	// Accepts reports whether the strategy applies to r at all. A strategy
	// that does not accept is skipped silently.
	Accepts(r media.Rendition) bool
	Deliver(ctx context.Context, a Attempt) (media.Outcome, error)
}

// Ordered picks strategies from available in the given order.
func Ordered(order []string, available ...Strategy) ([]Strategy, error) {
	byName := make(map[string]Strategy, len(available))
	for _, s := range available {
		byName[s.Name()] = s
	}
	out := make([]Strategy, 0, len(order))
	for _, name := range order {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown delivery strategy %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}

func sendFile(ctx context.Context, t transport.Transport, a Attempt, f transport.File, progress transport.ProgressFunc) (transport.MessageRef, error) {
	return t.SendFile(ctx, a.Request.ChatID, a.Request.ReplyTo, f, a.Caption, progress)
}

func remoteFile(r media.Rendition, url string) transport.File {
	return transport.File{
		Kind:     r.Kind,
		URL:      url,
		Size:     r.Size,
		Duration: r.Duration,
		Width:    r.Width,
		Height:   r.Height,
	}
}
