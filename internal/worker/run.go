package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mediarelay/internal/admission"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/worker/processor"
	"mediarelay/internal/worker/queue"
)

// ErrBusy matches (errors.Is) the error Submit returns while the principal
// still has a request in flight.
var ErrBusy = errors.New(errors.CodeBusy, "request already in flight")

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int64 `json:"active"`
	Queued    int64 `json:"queued"`
	Processed int64 `json:"processed"`
	Panics    int64 `json:"panics"`
}

// Pool admits requests into the queue and runs W workers over it. Each
// worker processes one request at a time.
type Pool struct {
	queue      queue.Queue
	admission  admission.Table
	processor  Processor
	workers    int
	popTimeout time.Duration
	now        func() time.Time
	log        *logger.Logger

	active    atomic.Int64
	processed atomic.Int64
	panics    atomic.Int64
}

func New(d Deps) *Pool {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	workers := d.Workers
	if workers <= 0 {
		workers = 3
	}
	popTimeout := d.PopTimeout
	if popTimeout <= 0 {
		popTimeout = 30 * time.Second
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Pool{
		queue:      d.Queue,
		admission:  d.Admission,
		processor:  d.Processor,
		workers:    workers,
		popTimeout: popTimeout,
		now:        now,
		log:        log.WithComponent("worker"),
	}
}

// Submit admits req and returns its ID without waiting for processing.
func (p *Pool) Submit(ctx context.Context, req media.FetchRequest) (string, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.AdmittedAt = p.now()

	if p.admission != nil {
		ok, err := p.admission.Acquire(ctx, req.Principal, req.ID)
		if err != nil {
			return "", errors.WrapWithCode(err, errors.CodeTransient, "worker.submit", "admission check failed")
		}
		if !ok {
			return "", errors.Busy(req.Principal)
		}
	}

	if err := p.queue.Push(ctx, media.Slot{Request: req}); err != nil {
		p.release(req)
		return "", errors.WrapWithCode(err, errors.CodeTransient, "worker.submit", "enqueue failed")
	}

	p.log.FromContext(ctx).Info("request admitted",
		"fetch_id", req.ID,
		"principal", req.Principal,
		"audio_only", req.Options.AudioOnly,
	)
	return req.ID, nil
}

// Run starts the workers and blocks until ctx ends and every worker has
// finished its current request.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("starting workers", "count", p.workers)

	var wg sync.WaitGroup
	for i := 1; i <= p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()

	p.log.Info("workers stopped")
	return nil
}

func (p *Pool) loop(ctx context.Context, id int) {
	log := p.log.WithFields(map[string]any{"worker": id})

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker context canceled, stopping")
			return
		default:
		}

		// Bounded wait so an idle worker re-checks ctx.
		popCtx, cancel := context.WithTimeout(ctx, p.popTimeout)
		slot, err := p.queue.Pop(popCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				log.Debug("worker stopping due to context cancellation")
				return
			}
			if errors.Is(err, queue.ErrClosed) {
				log.Info("queue closed, stopping")
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}

			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		p.handle(ctx, log, slot.Request)
	}
}

// handle processes one request. A panic is contained here: it is logged with
// its stack and the worker moves on to the next slot.
func (p *Pool) handle(ctx context.Context, log *logger.Logger, req media.FetchRequest) {
	reqLog := log.WithFetchID(req.ID).WithPrincipal(req.Principal)
	start := p.now()
	p.active.Add(1)

	defer func() {
		p.active.Add(-1)
		p.processed.Add(1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			stack := debug.Stack()
			if pe, ok := r.(*processor.Panic); ok {
				r, stack = pe.Value, pe.Stack
			}
			reqLog.Error("request panicked",
				"panic", fmt.Sprint(r),
				"stack", string(stack),
				"duration_ms", p.now().Sub(start).Milliseconds(),
			)
		}
		p.release(req)
	}()

	reqLog.Info("processing request", "queued_ms", start.Sub(req.AdmittedAt).Milliseconds())

	res := p.processor.Process(ctx, req)
	if res.Err != nil {
		reqLog.Info("request failed",
			"code", string(errors.GetCode(res.Err)),
			"delivered", res.Count(media.StatusDelivered),
			"duration_ms", p.now().Sub(start).Milliseconds(),
		)
		return
	}
	reqLog.Info("request completed",
		"delivered", res.Count(media.StatusDelivered),
		"failed", res.Count(media.StatusFailed),
		"skipped", res.Count(media.StatusSkipped),
		"bytes", res.Bytes(),
		"duration_ms", p.now().Sub(start).Milliseconds(),
	)
}

func (p *Pool) release(req media.FetchRequest) {
	if p.admission == nil {
		return
	}
	// The request context may already be canceled during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.admission.Release(ctx, req.Principal, req.ID); err != nil {
		p.log.Warn("admission release failed", "fetch_id", req.ID, "error", err.Error())
	}
}

// Stats reports the pool counters and queue depth.
func (p *Pool) Stats(ctx context.Context) (Stats, error) {
	queued, err := p.queue.Len(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Workers:   p.workers,
		Active:    p.active.Load(),
		Queued:    queued,
		Processed: p.processed.Load(),
		Panics:    p.panics.Load(),
	}, nil
}
