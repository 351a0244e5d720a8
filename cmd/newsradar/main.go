package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"NewsRadar/internal/app"
	"NewsRadar/internal/config"
	"NewsRadar/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single ingestion pass and exit")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if *once {
		err = application.RunOnce(ctx)
	} else {
		err = application.Run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
