package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayush/referral-rewards/backend/internal/api"
	"github.com/ayush/referral-rewards/backend/internal/auth"
	"github.com/ayush/referral-rewards/backend/internal/backend"
	"github.com/ayush/referral-rewards/backend/internal/config"
	"github.com/ayush/referral-rewards/backend/internal/ipinfo"
	"github.com/ayush/referral-rewards/backend/internal/jobs"
	"github.com/ayush/referral-rewards/backend/internal/logging"
	"github.com/ayush/referral-rewards/backend/internal/middleware"
	"github.com/ayush/referral-rewards/backend/internal/store"
)

// service is a backend that serves both data and auth.
type service interface {
	backend.Client
	backend.Authenticator
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	// ── Backend ──────────────────────────────────────────────
	var svc service
	switch cfg.Backend {
	case config.BackendPostgres:
		pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres connect: %v", err)
		}
		defer pgPool.Close()
		pg := backend.NewPostgresClient(pgPool)
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("postgres migrate: %v", err)
		}
		svc = pg
	default:
		rest, err := backend.NewRESTClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, &http.Client{Timeout: 15 * time.Second})
		if err != nil {
			log.Fatalf("backend client: %v", err)
		}
		svc = rest
	}
	logger.Info("backend ready", "kind", cfg.Backend)

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connect: %v", err)
	}
	defer rdb.Close()
	sessions := auth.NewSessionStore(rdb)

	// ── Avatar storage ───────────────────────────────────────
	var avatars api.AvatarStore
	if cfg.StorageEnabled() {
		as, err := store.NewAvatarStore(
			ctx, cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey,
			cfg.StorageBucket, cfg.StoragePublicURL, cfg.StorageUseSSL,
		)
		if err != nil {
			log.Fatalf("storage connect: %v", err)
		}
		avatars = as
	} else {
		logger.Warn("avatar storage not configured, uploads disabled")
	}

	// ── Store ────────────────────────────────────────────────
	resolver := ipinfo.NewResolver(cfg.IPLookupURL, &http.Client{Timeout: 5 * time.Second}, logger)
	rewards := store.New(svc, resolver, logger)

	// ── Maintenance ──────────────────────────────────────────
	// The hosted project prunes its own bookkeeping.
	if cfg.Backend == config.BackendPostgres {
		sched, err := jobs.StartPruner(rewards, jobs.DefaultOptions, logger)
		if err != nil {
			log.Fatalf("scheduler: %v", err)
		}
		defer sched.Shutdown()
	}

	// ── Handlers ─────────────────────────────────────────────
	authHandler := auth.NewHandler(svc, rewards, sessions, logger)
	apiHandler := api.NewHandler(rewards, avatars, logger)

	// ── Router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth routes (public)
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.With(middleware.RequireAuth(sessions)).Get("/me", authHandler.Me)
	})

	// Invite codes are checked before sign-up.
	r.Get("/api/invites/{code}", apiHandler.ValidateInvite)

	// Rewards routes (protected)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessions))
		r.Get("/profile", apiHandler.GetProfile)
		r.Patch("/profile", apiHandler.UpdateProfile)
		r.Put("/profile/avatar", apiHandler.UploadAvatar)
		r.Get("/points", apiHandler.GetPoints)
		r.Get("/withdrawals", apiHandler.ListWithdrawals)
		r.Post("/withdrawals", apiHandler.CreateWithdrawal)
		r.Get("/invites", apiHandler.ListInvites)
		r.Post("/invites", apiHandler.CreateInvite)
		r.Post("/events", apiHandler.TrackEvent)
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("backend listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}
