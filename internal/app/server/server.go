package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrpay/internal/domain/audit"
	"hrpay/internal/domain/loans"
	"hrpay/internal/domain/notifications"
	"hrpay/internal/domain/workers"
	"hrpay/internal/platform/config"
	cryptoutil "hrpay/internal/platform/crypto"
	"hrpay/internal/platform/db"
	"hrpay/internal/platform/email"
	"hrpay/internal/platform/jobs"
	"hrpay/internal/platform/metrics"
	adminhandler "hrpay/internal/transport/http/handlers/admin"
	loanshandler "hrpay/internal/transport/http/handlers/loans"
	notificationshandler "hrpay/internal/transport/http/handlers/notifications"
	workershandler "hrpay/internal/transport/http/handlers/workers"
	"hrpay/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Jobs    *jobs.Service
	Metrics *metrics.Collector
	Router  http.Handler
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, "migrations"); err != nil {
			pool.Close()
			return nil, err
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, err
		}
	}

	app := &App{
		Config:  cfg,
		DB:      pool,
		Jobs:    jobs.New(pool, cfg),
		Metrics: metrics.New(),
	}
	app.Router = app.buildRouter()
	return app, nil
}

func (a *App) buildRouter() http.Handler {
	cfg := a.Config

	cryptoSvc, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		log.Fatalf("encryption key invalid: %v", err)
	}

	workerStore := workers.NewStore(a.DB, cryptoSvc)
	auditSvc := audit.New(a.DB)
	notifySvc := notifications.New(notifications.NewStore(a.DB), email.New(cfg))
	notifySvc.DefaultFrom = cfg.EmailFrom
	loanSvc := loans.NewService(loans.NewStore(a.DB), workerStore)
	idemStore := middleware.NewIdempotencyStore(a.DB)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	if cfg.MetricsEnabled {
		router.Use(middleware.Metrics(a.Metrics))
	}
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		loansHandler := loanshandler.NewHandler(loanSvc, workerStore, auditSvc, notifySvc, idemStore, workerStore, cfg.StatementDir)
		loansHandler.RegisterRoutes(r)

		workersHandler := workershandler.NewHandler(workerStore, auditSvc, workerStore)
		workersHandler.RegisterRoutes(r)

		notificationsHandler := notificationshandler.NewHandler(notifySvc)
		notificationsHandler.RegisterRoutes(r)

		adminHandler := adminhandler.NewHandler(auditSvc, a.Jobs, a.Metrics, workerStore)
		adminHandler.RegisterRoutes(r)
	})

	return router
}

func Run() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	ctx := context.Background()
	app, err := New(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.DB.Close()

	app.Jobs.Start(ctx)

	log.Printf("hrpay server listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, app.Router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
