package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/openbid/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logrus.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	log := logrus.NewEntry(logger)

	a, err := newApp(cfg, log)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
