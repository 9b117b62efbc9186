// Package watch re-runs standing research queries on cron schedules.
package watch

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/briefer/internal/store"
)

// Runner submits one due watch as a research job. The checker records the
// run time regardless of the job's eventual outcome.
type Runner func(ctx context.Context, w store.WatchRecord)

// Checker polls the watch table and fires due watches. One checker per
// process; a Redis lock keeps replicas from double-firing.
type Checker struct {
	Store    *store.Store
	Rdb      *redis.Client
	Interval time.Duration
	Run      Runner
	Logger   *log.Logger

	stop chan struct{}
}

func NewChecker(st *store.Store, rdb *redis.Client, interval time.Duration, run Runner, logger *log.Logger) *Checker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[WATCH] ", log.LstdFlags)
	}
	return &Checker{Store: st, Rdb: rdb, Interval: interval, Run: run, Logger: logger, stop: make(chan struct{})}
}

func (c *Checker) Start() {
	ticker := time.NewTicker(c.Interval)
	go func() {
		for {
			select {
			case <-c.stop:
				ticker.Stop()
				return
			case <-ticker.C:
				c.tick(context.Background())
			}
		}
	}()
}

func (c *Checker) Stop() { close(c.stop) }

func (c *Checker) tick(ctx context.Context) {
	watches, err := c.Store.ListAllWatches(ctx)
	if err != nil {
		c.Logger.Printf("list watches: %v", err)
		return
	}
	now := time.Now()
	for _, w := range watches {
		if !isDue(w.ScheduleCron, w.LastRunAt, now) {
			continue
		}
		if c.Rdb != nil {
			lockKey := "watch:lock:" + w.ID
			ok, _ := c.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if !ok {
				continue
			}
		}
		if err := c.Store.SetWatchLastRun(ctx, w.ID, now); err != nil {
			c.Logger.Printf("watch %s: record last run: %v", w.ID, err)
			continue
		}
		c.Logger.Printf("watch %s due, submitting %q", w.ID, w.Query)
		go c.Run(ctx, w)
	}
}

// isDue reports whether a watch should fire now. Supports "@daily",
// "@hourly" and 5-field cron expressions; an unparseable spec degrades to
// @daily.
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	switch cronSpec {
	case "@daily":
		return last == nil || now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		return last == nil || now.Sub(*last) >= time.Hour
	}
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return last == nil || now.Sub(*last) >= 24*time.Hour
	}
	if last == nil {
		return true
	}
	next := expr.Next(*last)
	return !next.After(now)
}
