package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transitcat/internal/analyzer"
	"transitcat/internal/cache"
	"transitcat/internal/config"
	"transitcat/internal/handler"
	"transitcat/internal/hub"
	"transitcat/internal/ingestor"
	"transitcat/internal/middleware"
	"transitcat/internal/query"
	"transitcat/internal/store"
	"transitcat/pkg/textcmd"
)

const usage = `usage: transitcat [batch|serve]

  batch  read base and stat requests from stdin, answer on stdout (default)
  serve  load INPUT_FILE or GTFS_PATH/GTFS_URL and serve the HTTP API
`

func main() {
	mode := "batch"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch mode {
	case "batch":
		// stdout carries the answers
		logger := newLogger(os.Stderr, cfg.LogLevel)
		if err := runBatch(os.Stdin, os.Stdout, logger); err != nil {
			logger.Error("batch failed", "error", err)
			os.Exit(1)
		}
	case "serve":
		logger := newLogger(os.Stdout, cfg.LogLevel)
		if err := runServer(cfg, logger); err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func runBatch(in io.Reader, out io.Writer, logger *slog.Logger) error {
	reader := bufio.NewReader(in)

	catalogue := store.NewCatalogue()
	ing := ingestor.New(catalogue, logger)
	if _, err := ing.LoadText(reader); err != nil {
		return fmt.Errorf("read base requests: %w", err)
	}

	requests, err := textcmd.ReadBlock(reader)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("read stat requests: %w", err)
		}
		if len(requests) > 0 {
			logger.Warn("stat requests truncated", "read", len(requests), "error", err)
		}
	}

	w := bufio.NewWriter(out)
	printer := query.NewPrinter(catalogue, analyzer.New(catalogue))
	if err := printer.Run(w, requests); err != nil {
		return err
	}
	return w.Flush()
}

func runServer(cfg *config.Config, logger *slog.Logger) error {
	if !cfg.HasDataSource() {
		return errors.New("serve mode needs INPUT_FILE, GTFS_PATH or GTFS_URL")
	}

	logger.Info("starting transitcat server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"input_file", cfg.InputFile,
		"gtfs_source", cfg.GTFSSource,
		"redis_enabled", cfg.RedisEnabled,
		"allow_updates", cfg.AllowUpdates,
	)

	catalogue := store.NewCatalogue()
	an := analyzer.New(catalogue)
	ing := ingestor.New(catalogue, logger)
	wsHub := hub.NewHub(an, logger)

	var (
		redisCache *cache.RedisCache
		busCache   handler.BusInfoCache
	)
	if cfg.RedisEnabled {
		rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", "error", err)
		} else {
			redisCache = rc
			busCache = rc
			defer redisCache.Close()
		}
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	limiter.OnLimit(handler.ServerStats.IncRateLimitBlocked)
	defer limiter.Stop()

	router := handler.NewRouter(handler.Handlers{
		HTTP: handler.NewHTTPHandler(catalogue, an, ing, busCache, handler.Options{
			CacheTTL:     cfg.CacheTTL,
			AllowUpdates: cfg.AllowUpdates,
		}, logger),
		WS:     handler.NewWSHandler(wsHub, query.NewPrinter(catalogue, an), logger),
		Health: handler.NewHealthHandler(ing, catalogue),
		Stats:  handler.NewStatsHandler(catalogue, limiter),
	}, limiter, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var warmer *cache.CacheWarmer
	if redisCache != nil && cfg.CacheWarmOnStart {
		warmer = cache.NewCacheWarmer(redisCache, catalogue, an, cfg.CacheTTL, logger)
	}

	ing.OnApply(func(fingerprint string, _ ingestor.ApplyResult) {
		stats := catalogue.GetStats()
		wsHub.Publish(hub.Update{
			Fingerprint: fingerprint,
			StopsCount:  stats.StopsCount,
			BusesCount:  stats.BusesCount,
		})

		if warmer != nil {
			go func() {
				if err := warmer.WarmAll(ctx, fingerprint); err != nil {
					logger.Error("cache warming failed", "error", err)
				}
			}()
		}
	})

	go wsHub.Run(ctx)

	errCh := make(chan error, 2)

	go func() {
		if err := loadCatalogue(ctx, cfg, ing, logger); err != nil {
			errCh <- fmt.Errorf("load catalogue: %w", err)
		}
	}()

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

func loadCatalogue(ctx context.Context, cfg *config.Config, ing *ingestor.Ingestor, logger *slog.Logger) error {
	start := time.Now()

	if cfg.GTFSSource != "" {
		_, err := ing.LoadGTFS(ctx, cfg.GTFSSource)
		return err
	}

	f, err := os.Open(cfg.InputFile)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	result, err := ing.LoadText(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("load %s: %w", cfg.InputFile, err)
	}

	logger.Info("input file loaded",
		"path", cfg.InputFile,
		"stops", result.StopsAdded,
		"buses", result.BusesAdded,
		"skipped", result.SkippedRequests,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
