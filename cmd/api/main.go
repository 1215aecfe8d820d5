package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cms-service/internal/bootstrap"
	"cms-service/internal/infrastructure/config"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	logger := bootstrap.ProvideLogger()
	cfg := bootstrap.ProvideConfig()
	addr := ":" + cfg.Port

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.BuildAPI(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("bootstrap api", zap.Error(err))
	}
	defer app.Cleanup()

	// with in-memory backends there is no separate worker process to keep URLs fresh
	if cfg.DatabaseURL == "" {
		go bootstrap.ProvideWorker(app.Media, logger, cfg).Start(ctx)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: app.Handler,
	}

	go func() {
		logger.Info("server started", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, shCancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer shCancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}
