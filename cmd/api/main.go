package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ugurrates/threat-intel-web/internal/adapter/controller/http/handlers"
	"github.com/ugurrates/threat-intel-web/internal/adapter/controller/http/middleware"
	"github.com/ugurrates/threat-intel-web/internal/adapter/external/intel"
	"github.com/ugurrates/threat-intel-web/internal/adapter/repository/clickhouse"
	"github.com/ugurrates/threat-intel-web/internal/config"
	"github.com/ugurrates/threat-intel-web/internal/metrics"
	"github.com/ugurrates/threat-intel-web/internal/usecase/analysis"
	"github.com/ugurrates/threat-intel-web/internal/usecase/ratelimit"
	"github.com/ugurrates/threat-intel-web/internal/usecase/reports"
	"github.com/ugurrates/threat-intel-web/internal/usecase/resultcache"
	"github.com/ugurrates/threat-intel-web/internal/usecase/rules"
	"github.com/ugurrates/threat-intel-web/internal/usecase/scoring"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := config.SetupLogger(cfg)
	logger.Info("Starting threat-intel API",
		"env", cfg.App.Env,
		"port", cfg.App.Port,
	)

	// Storage. Without ClickHouse everything still works, backed by
	// memory only: cache and quotas then reset on restart.
	var (
		conn       *clickhouse.Connection
		cacheStore resultcache.Store = resultcache.NewMemoryStore()
		quotaRepo  ratelimit.Repository
	)
	if cfg.ClickHouse.Enabled {
		conn, err = clickhouse.NewConnection(&cfg.ClickHouse, logger)
		if err != nil {
			logger.Error("Failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := clickhouse.InitSchema(initCtx, conn); err != nil {
			cancel()
			logger.Error("Failed to initialize schema", "error", err)
			os.Exit(1)
		}
		cancel()

		cacheStore = clickhouse.NewCacheRepository(conn)
		quotaRepo = clickhouse.NewQuotaRepository(conn)
	} else {
		logger.Warn("ClickHouse disabled, cache and quotas are memory-only")
		quotaRepo = newMemoryQuotaRepo()
	}

	// Intelligence providers
	providers := []intel.Provider{
		intel.NewAbuseIPDBClient(intel.AbuseIPDBConfig{
			APIKey:  cfg.Providers.AbuseIPDBKey,
			Timeout: cfg.Analysis.PerSourceTimeout,
		}),
		intel.NewVirusTotalClient(intel.VirusTotalConfig{
			APIKey:  cfg.Providers.VirusTotalKey,
			Timeout: cfg.Analysis.PerSourceTimeout,
		}),
		intel.NewOTXClient(intel.OTXConfig{
			APIKey:  cfg.Providers.AlienVaultKey,
			Timeout: cfg.Analysis.PerSourceTimeout,
		}),
		intel.NewUSOMClient(intel.USOMConfig{
			Timeout: cfg.Analysis.PerSourceTimeout,
		}),
		intel.NewThreatFoxClient(intel.ThreatFoxConfig{
			AuthKey: cfg.Providers.ThreatFoxKey,
			Timeout: cfg.Analysis.PerSourceTimeout,
		}),
		intel.NewURLHausClient(intel.URLHausConfig{
			Timeout: cfg.Analysis.PerSourceTimeout,
		}),
		intel.NewShodanInternetDBClient(intel.ShodanInternetDBConfig{
			Timeout:  cfg.Analysis.PerSourceTimeout,
			CacheTTL: cfg.Analysis.ShodanCacheTTL,
		}),
	}

	aggregator := intel.NewAggregator(providers, intel.AggregatorConfig{
		PerSourceTimeout: cfg.Analysis.PerSourceTimeout,
		Logger:           logger,
	})
	logger.Info("Intelligence sources ready", "configured", aggregator.ConfiguredSources())

	// Core pipeline
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	scoringCfg := scoring.DefaultConfig()
	engine := scoring.NewEngine(scoringCfg)
	generator := rules.NewGenerator()
	cache := resultcache.New(cacheStore, resultcache.Config{
		TTL:    cfg.Analysis.CacheTTL,
		Logger: logger,
	})
	limiter := ratelimit.NewService(quotaRepo, ratelimit.Limits{
		PerIdentityDaily: cfg.Quota.PerIPDaily,
		GlobalDaily:      cfg.Quota.GlobalDaily,
		GlobalMonthly:    cfg.Quota.GlobalMonthly,
	}, logger)

	svc := analysis.NewService(aggregator, engine, generator, cache, limiter, analysis.Config{
		Timeout: cfg.Analysis.GlobalTimeout,
		Metrics: m,
		Logger:  logger,
	})

	pdfGenerator := reports.NewPDFGenerator()

	// Periodic quota table maintenance
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Cleanup(cleanupCtx)
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.SecurityHeaders)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Burst protection in front of the quota layer
	r.Use(httprate.LimitByIP(30, time.Minute))

	var pinger handlers.Pinger
	if conn != nil {
		pinger = conn
	}

	// Routes
	r.Get("/", handlers.Info(limiter.Limits(), cache.TTL(), aggregator.ConfiguredSources()))
	r.Get("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", handlers.Analyze(svc))
		r.Get("/health", handlers.HealthCheck(cfg, pinger))
		r.Get("/stats", handlers.Stats(cache, limiter))
		r.Get("/providers", handlers.Providers(aggregator, scoringCfg))
		r.Get("/report/{ioc}", handlers.Report(svc, pdfGenerator))
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
