package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/briefer/config"
	"github.com/mohammad-safakhou/briefer/internal/jobs"
	"github.com/mohammad-safakhou/briefer/internal/kb"
	"github.com/mohammad-safakhou/briefer/internal/research"
	"github.com/mohammad-safakhou/briefer/internal/store"
	"github.com/mohammad-safakhou/briefer/internal/telemetry"
	"github.com/mohammad-safakhou/briefer/internal/watch"
	"github.com/mohammad-safakhou/briefer/provider"
	"github.com/mohammad-safakhou/briefer/tools/news"
	"github.com/mohammad-safakhou/briefer/tools/webfetch"
	"github.com/mohammad-safakhou/briefer/tools/websearch"
)

const defaultSocialModel = "grok-2-latest"

// Run wires the whole service and blocks until shutdown.
func Run(cfg *config.Config) error {
	e := newEcho()

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	logger := log.New(log.Writer(), "[SERVER] ", log.LstdFlags)
	ctx := context.Background()

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("", dsn, "up", 0); err != nil {
		logger.Printf("migrate: %v", err)
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

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
	}
	var costs *telemetry.CostTracker
	if cfg.Telemetry.CostTracking {
		costs = telemetry.NewCostTracker()
	}

	tracker := jobs.NewTracker(st, rdb, log.New(log.Writer(), "[JOBS] ", log.LstdFlags))
	if interrupted, err := st.ListInterruptedJobs(ctx); err == nil {
		for _, rec := range interrupted {
			tracker.Adopt(rec)
		}
	} else {
		logger.Printf("listing interrupted jobs: %v", err)
	}

	checkpoints := research.NewStoreCheckpointManager(st)
	orch := research.NewOrchestrator(cfg, llm, toolset, checkpoints, tracker,
		log.New(log.Writer(), "[ORCH] ", log.LstdFlags))

	kbClient := kb.New(cfg.Tools.KBEndpoint, cfg.Tools.KBAPIKey, 30*time.Second, logger)
	runner := &Runner{
		Orch:    orch,
		Tracker: tracker,
		Store:   st,
		KB:      kbClient,
		Metrics: metrics,
		Costs:   costs,
		Logger:  logger,
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	protected := api.Group("")
	protected.Use(AuthMiddleware(auth.Secret))
	jh := &JobsHandler{Tracker: tracker, Store: st, Runner: runner}
	jh.Register(protected)
	wh := &WatchesHandler{Store: st}
	wh.Register(protected)

	var checker *watch.Checker
	if cfg.Watch.Enabled {
		checker = watch.NewChecker(st, rdb, cfg.Watch.CheckInterval, func(runCtx context.Context, w store.WatchRecord) {
			job, err := tracker.Create(runCtx, w.UserID, w.Query, "", research.Depth(w.Depth))
			if err != nil {
				logger.Printf("watch %s: create job: %v", w.ID, err)
				return
			}
			runner.Execute(job.ID, research.Request{
				JobID: job.ID,
				Query: job.Query,
				Depth: job.Depth,
			})
		}, log.New(log.Writer(), "[WATCH] ", log.LstdFlags))
		checker.Start()
	}

	addr := cfg.Server.Address
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Printf("received %v, shutting down", sig)
	}

	if checker != nil {
		checker.Stop()
	}
	tracker.MarkInterrupted(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// BuildToolset assembles researcher capabilities from config. Missing keys
// simply disable a capability.
func BuildToolset(cfg *config.Config, llm provider.Provider, logger *log.Logger) research.Toolset {
	rcfg := cfg.Research.Normalize()
	ts := research.Toolset{
		Fetch:        webfetch.NewFetcher(cfg.Tools.FetchTimeout, cfg.Tools.FetchMaxChars, "briefer/1.0"),
		MaxFetchURLs: cfg.Tools.FetchMaxURLs,
		Retries:      rcfg.ToolRetries,
		Backoff:      rcfg.ToolBackoff,
	}

	search, err := websearch.New(cfg.Tools.BraveAPIKey, cfg.Tools.SerperAPIKey, cfg.Tools.SearchTimeout)
	if err != nil {
		logger.Printf("web search disabled: %v", err)
	} else {
		ts.Search = search
	}

	if cfg.Tools.NewsAPIKey != "" {
		n := news.New(cfg.Tools.NewsAPIKey, cfg.Tools.SearchTimeout)
		ts.News = &n
	}

	if cfg.Tools.SocialAPIKey != "" && cfg.Tools.SocialBaseURL != "" {
		social, err := provider.NewProvider(config.LLMConfig{
			Provider: "openai",
			APIKey:   cfg.Tools.SocialAPIKey,
			BaseURL:  cfg.Tools.SocialBaseURL,
			Timeout:  cfg.LLM.Timeout,
			Retries:  cfg.LLM.Retries,
		})
		if err != nil {
			logger.Printf("social search disabled: %v", err)
		} else {
			ts.Social = social
			ts.SocialModel = defaultSocialModel
		}
	}

	ts.Reason = llm
	ts.ReasonModel = cfg.LLM.Routing.Model("analysis")
	return ts
}
