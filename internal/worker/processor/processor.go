package processor

import (
	"context"
	"time"

	"mediarelay/internal/delivery"
	"mediarelay/internal/descriptions"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/scratch"
	"mediarelay/internal/transport"
)

const statusFetching = "⏳ Fetching media info..."

// Resolver turns a source URL into renditions.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string, opts media.Options) (media.RenditionList, error)
}

// Deliverer sends one rendition through the strategy chain.
type Deliverer interface {
	Deliver(ctx context.Context, a delivery.Attempt) (media.Outcome, error)
}

// Recorder receives the result of every processed request.
type Recorder interface {
	Record(ctx context.Context, req media.FetchRequest, res media.Result) error
}

type Deps struct {
	Resolver  Resolver
	Deliverer Deliverer
	Transport transport.Transport
	// Descriptions is optional; nil disables the description button.
	Descriptions descriptions.Store
	// Scratch is optional; nil disables the leftover sweep after a request.
	Scratch          *scratch.Dir
	Recorders        []Recorder
	BotUsername      string
	ProgressInterval time.Duration
	Now              func() time.Time
	Log              *logger.Logger
}

type Processor struct {
	transport transport.Transport
	recorders []Recorder
	now       func() time.Time
	log       *logger.Logger

	inputHandler    *InputHandler
	deliveryAdapter *DeliveryAdapter
	outputHandler   *OutputHandler
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	now := d.Now
	if now == nil {
		now = time.Now
	}

	return &Processor{
		transport:       d.Transport,
		recorders:       d.Recorders,
		now:             now,
		log:             log,
		inputHandler:    NewInputHandler(d.Resolver),
		deliveryAdapter: NewDeliveryAdapter(d.Deliverer, d.BotUsername, d.ProgressInterval, now, log),
		outputHandler:   NewOutputHandler(d.Transport, d.Descriptions, log),
		cleanup:         NewCleanup(d.Scratch, log),
	}
}

// Process runs one request to its terminal outcome. The requester always gets
// exactly one terminal report, the request's scratch files are removed and the
// result is recorded, also when a strategy panics. The panic is re-raised
// after that so the worker loop can contain it.
func (p *Processor) Process(ctx context.Context, req media.FetchRequest) (res media.Result) {
	ctx = logger.ContextWithFetchID(ctx, req.ID)
	ctx = logger.ContextWithPrincipal(ctx, req.Principal)
	log := p.log.FromContext(ctx)

	start := p.now()
	provider := media.DetectProvider(req.SourceURL)
	status := transport.NewStatus(p.transport, req.ChatID, req.ReplyTo)
	res.RequestID = req.ID

	defer func() {
		r := recover()
		if r != nil {
			res.Err = errors.Internal("request processing panicked")
			p.outputHandler.Fail(ctx, status, res.Err, provider)
		}
		p.cleanup.Request(req.ID)
		res.Duration = p.now().Sub(start)
		p.record(ctx, req, res)
		if r != nil {
			panic(r)
		}
	}()

	// 1. Acknowledge
	if err := status.Set(ctx, statusFetching); err != nil {
		log.Warn("status send failed", "error", err.Error())
	}

	// 2. Resolve renditions
	list, err := p.inputHandler.Resolve(ctx, req)
	if err != nil {
		res.Err = err
		p.fail(ctx, status, err, provider)
		return res
	}
	log.Debug("renditions resolved", "count", len(list), "provider", string(provider))

	// 3. Deliver every item in order
	if err := status.Set(ctx, foundText(len(list))); err != nil {
		log.Warn("status edit failed", "error", err.Error())
	}
	sent := p.deliveryAdapter.DeliverAll(ctx, status, req, list)
	res.Outcomes = sent.Outcomes

	// 4. Terminal report and description offer
	if res.Delivered() {
		p.outputHandler.Finish(ctx, status, req, list, sent)
		return res
	}
	res.Err = sent.Err
	if res.Err == nil {
		res.Err = errors.NotFound(req.SourceURL)
	}
	p.fail(ctx, status, res.Err, provider)
	return res
}

func (p *Processor) fail(ctx context.Context, status *transport.Status, cause error, provider media.Provider) {
	log := p.log.FromContext(ctx)

	var perr *errors.Error
	if errors.As(cause, &perr) {
		log.Info("request failed",
			"code", string(perr.Code),
			"op", perr.Op,
			"message", perr.Message,
		)
	} else {
		log.Info("request failed", "error", cause.Error())
	}

	p.outputHandler.Fail(ctx, status, cause, provider)
}

func (p *Processor) record(ctx context.Context, req media.FetchRequest, res media.Result) {
	for _, r := range p.recorders {
		if err := r.Record(ctx, req, res); err != nil {
			p.log.FromContext(ctx).Warn("recording result failed", "error", err.Error())
		}
	}
}
