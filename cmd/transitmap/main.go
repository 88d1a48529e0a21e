package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"transitmap/internal/cache"
	"transitmap/internal/config"
	"transitmap/internal/enrich"
	"transitmap/internal/handler"
	"transitmap/internal/hub"
	"transitmap/internal/ingestor"
	"transitmap/internal/middleware"
	"transitmap/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting transitmap server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"manifest", cfg.ManifestPath,
	)

	manifest, err := config.LoadManifest(cfg.ManifestPath)
	if err != nil {
		logger.Error("failed to load feed manifest", "error", err)
		os.Exit(1)
	}

	feedStore := store.New()
	wsHub := hub.NewHub(logger)

	var redisCache *cache.RedisCache
	var warmer *cache.Warmer
	if cfg.RedisEnabled {
		redisCache, err = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", "error", err)
			redisCache = nil
		} else {
			warmer = cache.NewWarmer(redisCache, feedStore, cfg.CacheTTL, logger)
		}
	}

	enricher := buildEnricher(manifest, redisCache, cfg, logger)

	ing := ingestor.New(manifest, feedStore, cfg.FeedUpdateInterval, logger)

	mapHandler := handler.NewMapHandler(feedStore, redisCache, enricher, cfg.ClusterCellSizePx, logger)
	wsHandler := handler.NewWSHandler(wsHub, feedStore, cfg.ClusterCellSizePx, logger)
	healthHandler := handler.NewHealthHandler(ing, feedStore)

	ing.SetOnUpdate(func(ctx context.Context) {
		if warmer != nil && cfg.CacheWarmOnStart {
			warmer.WarmAll(ctx)
		}
		wsHandler.PushAll()
	})

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/routes", mapHandler.ListRoutes)
	mux.HandleFunc("GET /v1/routes/names", mapHandler.ListRouteNames)
	mux.HandleFunc("GET /v1/routes/{name}", mapHandler.GetRoute)
	mux.HandleFunc("GET /v1/routes/{name}/shape", mapHandler.GetRouteShape)
	mux.HandleFunc("GET /v1/routes/{name}/geometry", mapHandler.GetRouteGeometry)
	mux.HandleFunc("GET /v1/routes/{name}/stops", mapHandler.GetRouteStops)

	mux.HandleFunc("GET /v1/stops", mapHandler.ListStops)
	mux.HandleFunc("GET /v1/stops/{id}", mapHandler.GetStop)
	mux.HandleFunc("GET /v1/stops/{id}/routes", mapHandler.GetStopRoutes)

	mux.HandleFunc("GET /v1/clusters", mapHandler.GetClusters)
	mux.HandleFunc("GET /v1/clusters/fit", mapHandler.FitCluster)

	mux.HandleFunc("GET /v1/sync", mapHandler.GetSync)
	mux.HandleFunc("GET /v1/export/geojson", mapHandler.ExportGeoJSON)
	mux.HandleFunc("GET /v1/stats", mapHandler.GetStats)

	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)

	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimitPerWindow,
		cfg.RateLimitWindow,
		cfg.RateLimitWhitelist,
		[]string{"/healthz", "/readyz", "/v1/ws"},
		logger,
	)

	var root http.Handler = mux
	root = handler.GzipMiddleware(root)
	root = handler.CORSMiddleware(root)
	root = rateLimiter.Middleware(root)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go wsHub.Run(ctx)
	go rateLimiter.Run(ctx)
	go ing.Start(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if redisCache != nil {
		redisCache.Close()
	}

	logger.Info("shutdown complete")
}

// buildEnricher wires the optional geometry services. With no endpoints
// configured the enricher stays nil and every route renders its
// approximate polyline.
func buildEnricher(manifest *config.Manifest, redisCache *cache.RedisCache, cfg *config.Config, logger *slog.Logger) *enrich.Enricher {
	var relations *enrich.RelationClient
	if manifest.Relations.BaseURL != "" {
		relations = enrich.NewRelationClient(manifest.Relations.BaseURL)
	}

	var router *enrich.RouterClient
	if manifest.Router.BaseURL != "" {
		router = enrich.NewRouterClient(manifest.Router.BaseURL)
	}

	if relations == nil && router == nil {
		return nil
	}

	var sidecar enrich.Sidecar
	if manifest.Sidecar != "" {
		loaded, err := enrich.LoadSidecar(manifest.Sidecar)
		if err != nil {
			logger.Warn("failed to load sidecar mapping, relation lookups disabled", "path", manifest.Sidecar, "error", err)
		} else {
			logger.Info("sidecar mapping loaded", "path", manifest.Sidecar, "entries", len(loaded))
			sidecar = loaded
		}
	}

	return enrich.New(relations, router, sidecar, redisCache, cfg.CacheTTL, logger)
}
