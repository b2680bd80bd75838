package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/erazemk/karat/internal/api"
	"github.com/erazemk/karat/internal/config"
	"github.com/erazemk/karat/internal/db"
	"github.com/erazemk/karat/internal/imaging"
	"github.com/erazemk/karat/internal/ledger"
	"github.com/erazemk/karat/internal/metrics"
	"github.com/erazemk/karat/internal/store"
)

func runServe(args []string) error {
	cfg, err := loadConfig("serve", args, func(fs *flag.FlagSet, cfg *config.Config) {
		fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "listen address")
	})
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN, db.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		return err
	}
	defer database.Close()

	// Idempotent.
	if err := db.EnsureSchema(database); err != nil {
		log.Error("failed to ensure database schema", zap.Error(err))
		return err
	}
	log.Info("database ready", zap.String("driver", cfg.Database.Driver))

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		// Generated and persisted on first run.
		jwtSecret, err = store.GetJWTSecret(context.Background(), database)
		if err != nil {
			log.Error("failed to get JWT secret", zap.Error(err))
			return err
		}
	}

	m := metrics.New()
	recorder := ledger.New(database,
		ledger.WithLogger(log.Named("ledger")),
		ledger.WithMetrics(m),
		ledger.WithTimeout(cfg.Ledger.Timeout),
	)

	handler := api.NewRouter(api.RouterConfig{
		DB:          database,
		JWTSecret:   jwtSecret,
		Logger:      log.Named("http"),
		Metrics:     m,
		Recorder:    recorder,
		CORSOrigins: cfg.Server.CORSOrigins,
		Images: imaging.Options{
			MaxDimension: cfg.Images.MaxDimension,
			MaxBytes:     cfg.Images.MaxBytes,
		},
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", zap.String("addr", cfg.Server.Addr), zap.String("env", cfg.Env))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
			return err
		}
	}

	log.Info("server stopped, closing database")
	return nil
}

