package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"

	"shortstack/internal/bootstrap"
	"shortstack/internal/config"
)

func main() {
	// A local .env is a convenience for development; absence is normal.
	_ = godotenv.Load()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "shortstack",
		Level: hclog.LevelFromString(os.Getenv("SHORTSTACK_LOG_LEVEL")),
	})

	app, err := bootstrap.New(config.Load(), logger)
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
