package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/briefer/config"
	"github.com/mohammad-safakhou/briefer/internal/jobs"
	"github.com/mohammad-safakhou/briefer/internal/kb"
	"github.com/mohammad-safakhou/briefer/internal/research"
	"github.com/mohammad-safakhou/briefer/internal/store"
	"github.com/mohammad-safakhou/briefer/internal/watch"
	"github.com/mohammad-safakhou/briefer/provider"
)

// RunWatcher runs only the watch scheduler loop: it finds due watches and
// executes them through the same pipeline as the API, without serving HTTP.
func RunWatcher(cfg *config.Config) error {
	logger := log.New(log.Writer(), "[WATCHER] ", log.LstdFlags)
	ctx := context.Background()

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
	}

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	toolset := BuildToolset(cfg, llm, logger)

	tracker := jobs.NewTracker(st, rdb, log.New(log.Writer(), "[JOBS] ", log.LstdFlags))
	orch := research.NewOrchestrator(cfg, llm, toolset, research.NewStoreCheckpointManager(st), tracker,
		log.New(log.Writer(), "[ORCH] ", log.LstdFlags))
	runner := &Runner{
		Orch:    orch,
		Tracker: tracker,
		Store:   st,
		KB:      kb.New(cfg.Tools.KBEndpoint, cfg.Tools.KBAPIKey, 30*time.Second, logger),
		Logger:  logger,
	}

	checker := watch.NewChecker(st, rdb, cfg.Watch.CheckInterval, func(runCtx context.Context, w store.WatchRecord) {
		job, err := tracker.Create(runCtx, w.UserID, w.Query, "", research.Depth(w.Depth))
		if err != nil {
			logger.Printf("watch %s: create job: %v", w.ID, err)
			return
		}
		runner.Execute(job.ID, research.Request{JobID: job.ID, Query: job.Query, Depth: job.Depth})
	}, logger)
	checker.Start()
	logger.Printf("watch scheduler running, interval %s", cfg.Watch.Normalize().CheckInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	checker.Stop()
	tracker.MarkInterrupted(ctx)
	return nil
}
