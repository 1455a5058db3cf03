package main

import (
	"log/slog"
	"os"

	"github.com/tphakala/birdsearch-go/cmd"
	"github.com/tphakala/birdsearch-go/internal/conf"
	"github.com/tphakala/birdsearch-go/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		logging.Init(slog.LevelInfo)
		logging.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		logging.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
