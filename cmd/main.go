package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kkkkikiki/referral/internal/auth"
	"github.com/kkkkikiki/referral/internal/config"
	"github.com/kkkkikiki/referral/internal/database"
	"github.com/kkkkikiki/referral/internal/events"
	"github.com/kkkkikiki/referral/internal/repository"
	"github.com/kkkkikiki/referral/internal/rpc"
	"github.com/kkkkikiki/referral/internal/scheduler"
	"github.com/kkkkikiki/referral/internal/server"
	"github.com/kkkkikiki/referral/internal/service"
	"github.com/kkkkikiki/referral/internal/store"
	"github.com/kkkkikiki/referral/internal/store/memstore"
)

const devJWTSecret = "referral-dev-secret"

func main() {
	ctx := context.Background()

	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.App.SlogLevel()}))
	slog.SetDefault(logger)

	logger.Info("starting referral service", "environment", cfg.App.Environment, "store", cfg.App.Store)

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	publisher, closePublisher := openPublisher(cfg, logger)
	defer closePublisher()

	opts := service.OptionsFromConfig(cfg)
	opts.Logger = logger
	opts.Publisher = publisher
	svc, err := service.New(st, opts)
	if err != nil {
		logger.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		logger.Warn("AUTH_JWT_SECRET not set, using the development secret")
		secret = devJWTSecret
	}

	router := server.NewRouter(svc, st, rpc.HandlerConfig{
		Verifier:      auth.NewVerifier(secret, cfg.Auth.Issuer),
		Logger:        logger,
		VerifyLimiter: rpc.NewCallerLimiter(cfg.Referral.VerifyRate, cfg.Referral.VerifyBurst),
	}, cfg.Server.CORSOrigins)

	sched := scheduler.New(svc, logger)
	if err := sched.Start(cfg.Referral.ExpirySweepSchedule); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Create server with configuration optimized for high concurrency
	srv := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		ErrorLog:       slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(router, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("expiry sweep still running at shutdown")
	}

	logger.Info("server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.App.Store == "memory" {
		logger.Warn("using the in-memory store, data is lost on exit")
		st := memstore.New()
		return st, func() { st.Close() }, nil
	}

	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("database schema applied")
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database connections", "error", err)
		}
	}
	return repository.NewPostgres(db.Postgres), closeFn, nil
}

func openPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, func()) {
	if cfg.Events.AMQPURL == "" {
		logger.Info("EVENTS_AMQP_URL not set, events are logged only")
		return events.NewLogPublisher(logger), func() {}
	}

	producer, err := events.NewProducer(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
	if err != nil {
		// Settlement must not depend on broker availability.
		logger.Error("failed to connect to RabbitMQ, falling back to log publisher", "error", err)
		return events.NewLogPublisher(logger), func() {}
	}
	return producer, producer.Close
}
