package delivery

import (
	"context"
	"time"

	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
)

// Advanced is emitted when the coordinator gives up on one strategy and moves
// to the next one that accepts the rendition.
type Advanced struct {
	From  string
	To    string
	Cause error
	Index int
}

// Observer receives coordinator events.
type Observer interface {
	Advanced(ev Advanced)
	// Attempted is called once per strategy run with its error (nil on success).
	Attempted(strategy string, elapsed time.Duration, err error)
}

// Coordinator runs strategies in order for one rendition.
//
// Transient, Unretryable and Internal failures advance to the next strategy.
// NotFound, AuthRequired and Unsupported end the chain: the content itself is
// unavailable. When every strategy failed, the last error is returned.
type Coordinator struct {
	strategies []Strategy
	observers  []Observer
	log        *logger.Logger
}

func NewCoordinator(strategies []Strategy, log *logger.Logger, observers ...Observer) *Coordinator {
	return &Coordinator{
		strategies: strategies,
		observers:  observers,
		log:        log.WithComponent("delivery"),
	}
}

// Strategies returns the configured order.
func (c *Coordinator) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Deliver drives a.Rendition through the strategy chain. The returned outcome
// is populated on failure too.
func (c *Coordinator) Deliver(ctx context.Context, a Attempt) (media.Outcome, error) {
	log := c.log.FromContext(ctx).With("index", a.Rendition.Index)

	var (
		last error
		from string
	)
	for _, s := range c.strategies {
		if !s.Accepts(a.Rendition) {
			continue
		}
		if from != "" {
			c.advanced(Advanced{From: from, To: s.Name(), Cause: last, Index: a.Rendition.Index})
			log.Info("falling back", "from", from, "to", s.Name(), "code", errors.GetCode(last))
		}

		start := time.Now()
		out, err := s.Deliver(ctx, a)
		c.attempted(s.Name(), time.Since(start), err)
		if err == nil {
			out.Status = media.StatusDelivered
			out.Strategy = s.Name()
			out.Index = a.Rendition.Index
			return out, nil
		}

		log.Info("strategy failed", "strategy", s.Name(), "code", errors.GetCode(err), "error", err.Error())
		last, from = err, s.Name()
		if errors.IsTerminal(err) || ctx.Err() != nil {
			break
		}
	}

	if last == nil {
		last = errors.Unretryable("no delivery strategy accepts this item").
			WithField("kind", string(a.Rendition.Kind)).
			WithField("provider", string(a.Rendition.Provider))
	}
	return media.Outcome{
		Status:   media.StatusFailed,
		Kind:     string(errors.GetCode(last)),
		Strategy: from,
		Index:    a.Rendition.Index,
	}, last
}

func (c *Coordinator) advanced(ev Advanced) {
	for _, o := range c.observers {
		o.Advanced(ev)
	}
}

func (c *Coordinator) attempted(strategy string, elapsed time.Duration, err error) {
	for _, o := range c.observers {
		o.Attempted(strategy, elapsed, err)
	}
}
