package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mediarelay/internal/admission"
	"mediarelay/internal/conversion"
	"mediarelay/internal/credentials"
	"mediarelay/internal/delivery"
	"mediarelay/internal/descriptions"
	"mediarelay/internal/httpclient"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/resolver"
	"mediarelay/internal/resolver/extract"
	"mediarelay/internal/scratch"
	"mediarelay/internal/transport"
	"mediarelay/internal/worker/queue"
)

// staleScratch is the age past which a scratch file is treated as left over
// from a crashed run.
const staleScratch = time.Hour

func openScratch(ctx context.Context, log *logger.Logger) (*scratch.Dir, error) {
	dir, err := scratch.New(cfg.Scratch.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "scratch.open", cfg.Scratch.Dir)
	}
	if n, err := dir.Sweep(ctx, staleScratch); err != nil {
		log.Warn("scratch sweep failed", "dir", dir.Root(), "error", err.Error())
	} else if n > 0 {
		log.Info("removed stale scratch files", "dir", dir.Root(), "count", n)
	}
	return dir, nil
}

func newResolver(dir *scratch.Dir, log *logger.Logger) *resolver.Resolver {
	chain := extract.Chain{extract.NewYtDLP(cfg.Resolver.Binary, cfg.Resolver.Retries)}
	if cfg.Resolver.OpenGraph {
		chain = append(chain, extract.NewOpenGraph(httpclient.New(cfg.Resolver.Timeout)))
	}

	vault := credentials.NewVault(dir, cfg.Credentials, log)
	if ps := vault.Providers(); len(ps) > 0 {
		log.Info("credentials loaded", "providers", ps)
	}

	return resolver.New(chain, vault, resolver.Config{
		Timeout:   cfg.Resolver.Timeout,
		MaxItems:  cfg.Resolver.MaxItems,
		UserAgent: cfg.Resolver.UserAgent,
	}, log)
}

// pace spaces calls to one chat by delivery.send_interval; zero disables pacing.
func pace(t transport.Transport) transport.Transport {
	if cfg.Delivery.SendInterval <= 0 {
		return t
	}
	return transport.NewPaced(t, cfg.Delivery.SendInterval)
}

func newCoordinator(t transport.Transport, dir *scratch.Dir, log *logger.Logger, observers ...delivery.Observer) (*delivery.Coordinator, error) {
	providers := make([]media.Provider, 0, len(cfg.Delivery.ReuploadProviders))
	for _, p := range cfg.Delivery.ReuploadProviders {
		providers = append(providers, media.Provider(strings.ToLower(p)))
	}

	strategies, err := delivery.Ordered(cfg.Delivery.Order,
		delivery.NewDirect(t),
		delivery.NewConversion(conversion.NewHTTPClient(cfg.Conversion.Timeout), cfg.Conversion.Endpoints, cfg.Conversion.Quality, t, log),
		delivery.NewReupload(delivery.ReuploadConfig{
			MaxSize:         cfg.Delivery.MaxSize.Int64(),
			MemoryThreshold: cfg.Delivery.MemoryThreshold.Int64(),
			Timeout:         cfg.Delivery.TransferTimeout,
			Providers:       providers,
			UserAgent:       cfg.Resolver.UserAgent,
		}, httpclient.New(0), dir, t, log),
	)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "delivery.order", "invalid strategy order")
	}
	return delivery.NewCoordinator(strategies, log, observers...), nil
}

func connectRedis(ctx context.Context, log *logger.Logger) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	log.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.WrapWithCode(err, errors.CodeTransient, "redis.connect", "ping failed")
	}
	log.Info("Redis connected")
	return rdb, nil
}

// newQueue picks the queue backend. The admission table follows it: a shared
// Redis queue needs a shared in-flight table.
func newQueue(rdb *redis.Client) (queue.Queue, admission.Table) {
	var table admission.Table
	if cfg.Worker.Queue == "redis" {
		if cfg.Admission.Enabled {
			table = admission.NewRedisTable(rdb, cfg.Admission.TTL)
		}
		return queue.NewRedisQueue(rdb, cfg.Worker.QueueName), table
	}
	if cfg.Admission.Enabled {
		table = admission.NewMemoryTable(cfg.Admission.TTL, nil)
	}
	return queue.NewMemoryQueue(), table
}

func newDescriptions(rdb *redis.Client) descriptions.Store {
	if cfg.Descriptions.Backend == "redis" {
		return descriptions.NewRedisStore(rdb, cfg.Descriptions.TTL)
	}
	return descriptions.NewMemoryStore(cfg.Descriptions.TTL, nil)
}

func newHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
