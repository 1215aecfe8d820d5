package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cms-service/internal/bootstrap"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	log := bootstrap.ProvideLogger()
	cfg := bootstrap.ProvideConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	w, cleanup, err := bootstrap.BuildWorker(ctx, cfg, log)
	if err != nil {
		log.Fatal("init worker", zap.Error(err))
	}
	defer cleanup()
	w.Start(ctx)
}
