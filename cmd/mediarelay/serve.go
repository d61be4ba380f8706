package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mediarelay/internal/bot"
	"mediarelay/internal/httpapi"
	"mediarelay/internal/httpapi/handlers"
	"mediarelay/internal/journal"
	"mediarelay/internal/metrics"
	"mediarelay/internal/pkg/shutdown"
	"mediarelay/internal/transport/telegram"
	"mediarelay/internal/worker"
	"mediarelay/internal/worker/processor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the worker pool and the admin HTTP server",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func serveRun(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireTelegram(); err != nil {
		return err
	}

	log := newLogger(os.Stdout)
	log.Info("starting mediarelay", "version", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownMgr := shutdown.NewManager(log, 2*cfg.Delivery.TransferTimeout)

	// Scratch
	dir, err := openScratch(ctx, log)
	if err != nil {
		return err
	}
	shutdownMgr.Register("scratch", func(ctx context.Context) error {
		n, err := dir.Sweep(ctx, 0)
		log.Info("scratch swept", "removed", n)
		return err
	})

	// Redis
	rdb, err := connectRedis(ctx, log)
	if err != nil {
		return err
	}
	if rdb != nil {
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
	}

	// Journal
	var jr *journal.Journal
	if cfg.Postgres.URL != "" {
		log.Info("connecting to PostgreSQL")
		jr, err = journal.Open(ctx, cfg.Postgres.URL, log)
		if err != nil {
			return err
		}
		shutdownMgr.RegisterSimple("postgres", jr.Close)
		log.Info("PostgreSQL connected")
	}

	// Telegram
	tg, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		SendTimeout: cfg.Telegram.SendTimeout,
	}, log)
	if err != nil {
		return err
	}
	t := pace(tg)

	// Pipeline
	m := metrics.New()
	coordinator, err := newCoordinator(t, dir, log, m)
	if err != nil {
		return err
	}
	log.Info("delivery strategies", "order", coordinator.Strategies())

	store := newDescriptions(rdb)
	recorders := []processor.Recorder{m}
	if jr != nil {
		recorders = append(recorders, jr)
	}
	proc := processor.New(processor.Deps{
		Resolver:         newResolver(dir, log),
		Deliverer:        coordinator,
		Transport:        t,
		Descriptions:     store,
		Scratch:          dir,
		Recorders:        recorders,
		BotUsername:      cfg.Telegram.BotUsername,
		ProgressInterval: cfg.Progress.Interval,
		Log:              log,
	})

	q, table := newQueue(rdb)
	pool := worker.New(worker.Deps{
		Queue:     q,
		Admission: table,
		Processor: proc,
		Workers:   cfg.Worker.Count,
		Log:       log,
	})
	registerGauges(m, pool)

	// Workers run on their own context so a shutdown lets in-flight requests
	// finish; closing the queue stops them between requests.
	workCtx, stopWork := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		_ = pool.Run(workCtx)
	}()
	shutdownMgr.Register("workers", func(ctx context.Context) error {
		defer stopWork()
		if err := q.Close(); err != nil {
			log.Warn("queue close failed", "error", err.Error())
		}
		select {
		case <-poolDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	submitter := m.WrapSubmitter(pool)

	// Admin HTTP
	if cfg.HTTP.Addr != "" {
		hd := handlers.Deps{
			RDB:       rdb,
			Scratch:   dir,
			Workers:   pool,
			Submitter: submitter,
			Version:   Version,
		}
		if jr != nil {
			hd.Pool = jr.Pool()
			hd.Journal = jr
		}
		server := newHTTPServer(httpapi.NewRouter(httpapi.Deps{
			Handlers: hd,
			Metrics:  m.Handler(),
			Log:      log,
		}))
		shutdownMgr.Register("http-server", func(ctx context.Context) error {
			log.Info("shutting down HTTP server")
			return server.Shutdown(ctx)
		})
		go func() {
			log.Info("HTTP server listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.LogError(ctx, "HTTP server failed", err)
				cancel()
			}
		}()
	}

	// Bot
	handler := bot.New(bot.Deps{
		Submitter:    submitter,
		Transport:    t,
		Descriptions: store,
		MaxItems:     cfg.Resolver.MaxItems,
		Log:          log,
	})
	botCtx, stopBot := context.WithCancel(ctx)
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if err := tg.Run(botCtx, handler); err != nil {
			log.LogError(ctx, "bot stopped", err)
			cancel()
		}
	}()
	shutdownMgr.Register("bot", func(ctx context.Context) error {
		stopBot()
		select {
		case <-botDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	return shutdownMgr.WaitWithContext(ctx)
}

func registerGauges(m *metrics.Metrics, pool *worker.Pool) {
	stats := func() worker.Stats {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s, _ := pool.Stats(ctx)
		return s
	}
	m.Gauge("queue_depth", "Requests waiting for a worker.", func() float64 {
		return float64(stats().Queued)
	})
	m.Gauge("workers_active", "Workers currently processing a request.", func() float64 {
		return float64(stats().Active)
	})
}
