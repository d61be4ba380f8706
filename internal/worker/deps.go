package worker

import (
	"context"
	"time"

	"mediarelay/internal/admission"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/worker/queue"
)

// Processor runs one request to its terminal outcome.
type Processor interface {
	Process(ctx context.Context, req media.FetchRequest) media.Result
}

type Deps struct {
	Queue queue.Queue
	// Admission is optional; nil disables the one-request-per-principal rule.
	Admission admission.Table
	Processor Processor
	// Workers defaults to 3.
	Workers int
	// PopTimeout bounds one idle wait on the queue. Defaults to 30s.
	PopTimeout time.Duration
	Now        func() time.Time
	Log        *logger.Logger
}
