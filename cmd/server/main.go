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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/skintrack/tracker/internal/cache"
	"github.com/skintrack/tracker/internal/config"
	"github.com/skintrack/tracker/internal/fx"
	"github.com/skintrack/tracker/internal/guard"
	"github.com/skintrack/tracker/internal/market"
	"github.com/skintrack/tracker/internal/metrics"
	"github.com/skintrack/tracker/internal/portfolio"
	"github.com/skintrack/tracker/internal/refresher"
	"github.com/skintrack/tracker/internal/store"
	"github.com/skintrack/tracker/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store and caches ---
	var st store.Store
	var kv cache.Cache = cache.NewMemory()
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// Redis backs the shared cache, and the read-through store cache when
	// PostgreSQL is the source of truth.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		kv = cache.NewRedis(rdb, "skintrack:")
		if cfg.DatabaseURL != "" {
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
		}
		slog.Info("Redis cache enabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- External clients ---
	rates := fx.NewClient(cfg.FX.BaseURL, nil, kv, cfg.FX.TTL)
	steam := market.NewClient(market.Config{
		BaseURL:      cfg.Steam.BaseURL,
		RequestDelay: cfg.Steam.RequestDelay,
		TopTTL:       cfg.Steam.TopTTL,
	}, kv)

	// --- Holding limits ---
	limiter := guard.NewLimiter(cfg.Limits.MaxPerItem, cfg.Limits.MaxPerWeapon)

	// --- WebSocket hub ---
	wsHub := tracker.NewWSHub()
	go wsHub.Run(ctx)

	// --- Services ---
	portfolioSvc := portfolio.NewService(st, rates)
	trackerSvc := tracker.NewService(st, limiter, portfolioSvc, steam, wsHub)

	// --- Price refresher ---
	var prices *refresher.Runner
	if !cfg.Refresh.Disabled {
		prices = refresher.New(ctx, st, steam, wsHub)
		if err := prices.Start(cfg.Refresh.Schedule); err != nil {
			slog.Error("invalid refresh schedule", "schedule", cfg.Refresh.Schedule, "err", err)
			os.Exit(1)
		}
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for the dashboard.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"skintrack"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	// The timeout stays off /ws so upgraded connections are not cut.
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time ledger and price updates.
		r.Get("/ws", wsHub.HandleWS)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			trackerSvc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("skintrack listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down skintrack...")
	if prices != nil {
		prices.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("skintrack stopped")
}
