package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/curio/app/api"
	"github.com/lysyi3m/curio/app/cfg"
	"github.com/lysyi3m/curio/app/crawl"
	"github.com/lysyi3m/curio/app/database"
	"github.com/lysyi3m/curio/app/enrich"
	"github.com/lysyi3m/curio/app/feed"
	"github.com/lysyi3m/curio/app/ingest"
	"github.com/lysyi3m/curio/app/logging"
	"github.com/lysyi3m/curio/app/metrics"
	"github.com/lysyi3m/curio/app/ratelimit"
	"github.com/lysyi3m/curio/app/scraper"
	"github.com/lysyi3m/curio/app/search"
	"github.com/lysyi3m/curio/app/sources"
	"github.com/lysyi3m/curio/app/tasks"
	"github.com/lysyi3m/curio/app/websearch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logger, err := logging.Setup(appCfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(appCfg); err != nil {
		slog.Error("Curio stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Curio", "version", appCfg.Version, "dispatch_mode", appCfg.DispatchMode)

	ctx := context.Background()

	slog.Info("Connecting to database", "host", appCfg.DBHost, "name", appCfg.DBName)
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	db, err := database.NewConnection(connectCtx, appCfg.DSN())
	cancel()
	if err != nil {
		return err
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	slog.Info("Database migrations applied", "version", version, "dirty", dirty)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	aiQueue := ratelimit.New(ratelimit.AIConfig, m)
	defer aiQueue.Close()
	marketplaceQueue := ratelimit.New(ratelimit.MarketplaceConfig, m)
	defer marketplaceQueue.Close()

	itemRepo := database.NewItemRepository(db)
	crawlRepo := database.NewCrawlRepository(db)

	gemini, err := enrich.New(ctx, nil, enrich.Config{
		APIKey:         appCfg.GeminiAPIKey,
		BaseURL:        appCfg.GeminiBaseURL,
		VisionModel:    appCfg.VisionModel,
		EmbeddingModel: appCfg.EmbeddingModel,
		Dimensions:     appCfg.EmbeddingDimensions,
		UserAgent:      appCfg.UserAgent,
	})
	if err != nil {
		return err
	}
	if !gemini.Configured() {
		slog.Warn("GEMINI_API_KEY not set: ingestion will fail to embed items and search runs keyword-only")
	}

	vendorClient := &http.Client{Timeout: 30 * time.Second}
	registry := scraper.NewDefaultRegistry(vendorClient, marketplaceQueue, appCfg.UserAgent, appCfg.EtsyAPIKey)
	processor := ingest.NewProcessor(itemRepo, gemini, aiQueue, appCfg.CrawlerUserID, m)

	configCache := sources.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Warn("Failed to load crawl source definitions", "dir", appCfg.SourcesDir, "error", err)
	}
	slog.Info("Crawl source definitions loaded", "count", configCache.GetConfigCount())

	scheduler := tasks.NewScheduler(configCache, crawlRepo, appCfg.WorkerCount, appCfg.CrawlSchedule, m)

	var dispatcher crawl.Dispatcher = scheduler
	var httpDispatcher *crawl.HTTPDispatcher
	if appCfg.DispatchMode == cfg.DispatchHTTP {
		httpDispatcher = crawl.NewHTTPDispatcher(nil, appCfg.BaseUrl, appCfg.APIAccessKey)
		dispatcher = httpDispatcher
	}

	worker := crawl.NewWorker(crawlRepo, registry, processor, dispatcher, m)
	orchestrator := crawl.NewOrchestrator(crawlRepo, dispatcher)
	scheduler.Bind(orchestrator, worker, processor)

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "schedule", appCfg.CrawlSchedule)
	if err := scheduler.Start(); err != nil {
		scheduler.Stop()
		return err
	}
	defer scheduler.Stop()

	webCache := newWebCache(ctx, appCfg)
	images, err := websearch.NewImageSearch(ctx, appCfg.GoogleCSEKey, appCfg.GoogleCSECX, "")
	if err != nil {
		slog.Warn("Image search disabled", "error", err)
	}
	web := websearch.New(gemini, images, webCache, websearch.Options{
		Model:      appCfg.SearchModel,
		RetryDelay: appCfg.RateLimitRetry,
	}, m)
	engine := search.NewEngine(itemRepo, gemini, aiQueue, web, scheduler, m)

	handler := api.NewHandler(api.Deps{
		Items:       itemRepo,
		Crawl:       crawlRepo,
		Ingester:    processor,
		Pages:       worker,
		Triggerer:   orchestrator,
		Searcher:    engine,
		Vendors:     registry,
		ConfigCache: configCache,
		Channel: feed.Channel{
			Title:    "Curio",
			BaseURL:  appCfg.BaseUrl,
			SelfPath: "/feeds/catalog.xml",
			Version:  appCfg.Version,
		},
		Gatherer: reg,
	})
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	if httpDispatcher != nil {
		httpDispatcher.Wait()
	}
	if closer, ok := webCache.(*websearch.RedisCache); ok {
		_ = closer.Close()
	}

	slog.Info("Curio shutdown complete")
	return runErr
}

// newWebCache prefers Redis when configured and falls back to process memory.
func newWebCache(ctx context.Context, appCfg *cfg.Cfg) websearch.Cache {
	if appCfg.RedisAddr != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		redisCache, err := websearch.NewRedisCache(connectCtx, appCfg.RedisAddr, appCfg.WebCacheTTL)
		if err == nil {
			return redisCache
		}
		slog.Warn("Redis unavailable, using in-memory web search cache", "addr", appCfg.RedisAddr, "error", err)
	}
	return websearch.NewMemoryCache(appCfg.WebCacheTTL, appCfg.WebCacheSize)
}
