package processor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"mediarelay/internal/delivery"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/progress"
	"mediarelay/internal/transport"
)

// Panic carries a panic raised inside a delivery goroutine over to the
// worker goroutine, together with the stack where it happened.
type Panic struct {
	Value any
	Stack []byte
}

func (p *Panic) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Sent summarizes the delivery of a rendition list.
type Sent struct {
	Outcomes []media.Outcome
	// Last is the newest delivered media message.
	Last transport.MessageRef
	// Err is the error of the last failed item.
	Err error
}

type DeliveryAdapter struct {
	deliverer   Deliverer
	botUsername string
	interval    time.Duration
	now         func() time.Time
	log         *logger.Logger
}

func NewDeliveryAdapter(d Deliverer, botUsername string, interval time.Duration, now func() time.Time, log *logger.Logger) *DeliveryAdapter {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &DeliveryAdapter{
		deliverer:   d,
		botUsername: botUsername,
		interval:    interval,
		now:         now,
		log:         log,
	}
}

// DeliverAll sends the list in index order. A failed item does not stop the
// rest; an item without a locator is recorded as skipped. The caption rides
// on the first item that is delivered.
func (a *DeliveryAdapter) DeliverAll(ctx context.Context, status *transport.Status, req media.FetchRequest, list media.RenditionList) Sent {
	log := a.log.FromContext(ctx)
	caption := FormatCaption(list.Caption(), a.botUsername)
	captioned := false

	sent := Sent{Outcomes: make([]media.Outcome, 0, len(list))}
	for _, rd := range list {
		if rd.Locator == "" {
			log.Info("item skipped", "index", rd.Index, "kind", string(rd.Kind))
			sent.Outcomes = append(sent.Outcomes, media.Outcome{
				Status: media.StatusSkipped,
				Kind:   string(errors.CodeUnsupported),
				Index:  rd.Index,
			})
			continue
		}

		att := delivery.Attempt{Request: req, Rendition: rd, Progress: progress.NewSink()}
		if !captioned {
			att.Caption = caption
		}

		out, err := a.run(ctx, status, att)
		sent.Outcomes = append(sent.Outcomes, out)
		if err != nil {
			log.Info("item not delivered",
				"index", rd.Index,
				"code", string(errors.GetCode(err)),
				"strategy", out.Strategy,
			)
			sent.Err = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		captioned = true
		sent.Last = transport.MessageRef{ChatID: req.ChatID, MessageID: out.MessageID}
		log.Debug("item delivered", "index", rd.Index, "strategy", out.Strategy, "bytes", out.Bytes)
	}
	return sent
}

// run delivers one attempt on its own goroutine while this goroutine drains
// the progress sink into throttled status edits.
func (a *DeliveryAdapter) run(ctx context.Context, status *transport.Status, att delivery.Attempt) (media.Outcome, error) {
	var (
		out      media.Outcome
		err      error
		panicked *Panic
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				panicked = &Panic{Value: r, Stack: debug.Stack()}
			}
		}()
		out, err = a.deliverer.Deliver(ctx, att)
	}()

	throttle := progress.NewThrottle(a.interval, a.now)
	progress.Drain(done, att.Progress, throttle, func(u progress.Update) {
		if serr := status.Set(ctx, u.Text()); serr != nil {
			a.log.FromContext(ctx).Debug("progress edit failed", "error", serr.Error())
		}
	})

	if panicked != nil {
		panic(panicked)
	}
	return out, err
}
