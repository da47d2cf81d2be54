package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/internal/server"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/config"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/logging"
	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/persist"
)

func main() {
	bootLogger := logging.New(logging.LevelInfo)

	cfg, err := config.Load(bootLogger, "config")
	if err != nil {
		bootLogger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	db, err := persist.Open(cfg.Storage.Dir, cfg.Storage.InMemory, logger)
	if err != nil {
		logger.Error("Failed to open datastore", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	store := persist.NewBadgerStore(db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := server.NewApp(logger, ctx, cfg, store)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
