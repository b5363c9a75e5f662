package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	"voiceagent-platform/internal/config"
	"voiceagent-platform/internal/db/migrate"
	"voiceagent-platform/pkg/logger"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)

	if err := migrate.Run(cfg.PostgresURL(), *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("schema already current")
			return
		}
		log.Error("migrate failed", "direction", *direction, "err", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "direction", *direction)
}
