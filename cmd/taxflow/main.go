// Package main запускает HTTP-сервер сервиса taxflow.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/taxflow/internal/config"
	"github.com/mmeshcher/taxflow/internal/handler"
	"github.com/mmeshcher/taxflow/internal/logger"
	"github.com/mmeshcher/taxflow/internal/metrics"
	"github.com/mmeshcher/taxflow/internal/middleware"
	"github.com/mmeshcher/taxflow/internal/repository"
	"github.com/mmeshcher/taxflow/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()

	if err != nil {
		log.Error("application terminated with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

// run поднимает хранилище и HTTP-сервер и блокируется до отмены ctx.
// Хранилище закрывается при любом исходе.
func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	sugar := log.Sugar()

	repo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("storage initialization: %w", err)
	}

	m := metrics.New()
	svc := service.NewService(repo, log, m)
	defer func() {
		if err := svc.Close(); err != nil {
			sugar.Errorw("close storage", "error", err)
		}
	}()

	if err := svc.SeedUsers(ctx, cfg.SeedPassword); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT_SECRET is not set, tokens will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret, cfg.TokenTTL)
	h := handler.NewHandler(svc, log, authMiddleware, m)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting taxflow server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Остановка сервера по сигналу или ошибке в другой горутине
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

// openRepository выбирает PostgreSQL при заданном DATABASE_URI, иначе файл bbolt.
func openRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (service.Repository, error) {
	if cfg.DatabaseURI != "" {
		log.Info("using postgres storage")
		return repository.NewPostgresRepository(ctx, cfg.DatabaseURI)
	}
	log.Info("using bbolt storage", zap.String("path", cfg.StoragePath))
	return repository.NewBoltRepository(cfg.StoragePath)
}
