package handlers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"mediarelay/internal/journal"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/scratch"
	"mediarelay/internal/worker"
)

// PoolStats reports the worker pool state.
type PoolStats interface {
	Stats(ctx context.Context) (worker.Stats, error)
}

// JournalStats aggregates recorded outcomes.
type JournalStats interface {
	Stats(ctx context.Context, since time.Time) (journal.Stats, error)
}

// Submitter admits a fetch request.
type Submitter interface {
	Submit(ctx context.Context, req media.FetchRequest) (string, error)
}

// Deps lists the collaborators. Pool, RDB, Journal and Submitter are optional.
type Deps struct {
	Pool      *pgxpool.Pool
	RDB       *redis.Client
	Scratch   *scratch.Dir
	Workers   PoolStats
	Journal   JournalStats
	Submitter Submitter
	Version   string
	Log       *logger.Logger
}

type Handler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	scratch   *scratch.Dir
	workers   PoolStats
	journal   JournalStats
	submitter Submitter
	version   string
	log       *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		pool:      d.Pool,
		rdb:       d.RDB,
		scratch:   d.Scratch,
		workers:   d.Workers,
		journal:   d.Journal,
		submitter: d.Submitter,
		version:   d.Version,
		log:       log.WithComponent("httpapi"),
	}
}
