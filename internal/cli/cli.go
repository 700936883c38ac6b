// Package cli wires the calibration pipeline to the command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"photocal/internal/config"
	"photocal/internal/logging"
	"photocal/internal/pipeline"
	"photocal/internal/storage"
)

// Root wires CLI commands to the pipeline.
type Root struct {
	cfg        *config.Config
	log        *slog.Logger
	store      *storage.Store
	calibrator *pipeline.Calibrator
}

// NewRoot constructs the CLI root state.
func NewRoot(cfg *config.Config, log *slog.Logger, store *storage.Store) *Root {
	return &Root{
		cfg:        cfg,
		log:        log,
		store:      store,
		calibrator: pipeline.New(cfg, log),
	}
}

func newRunID() string {
	return fmt.Sprintf("run-%d", time.Now().UnixNano())
}

// Execute loads config, opens the store and runs the root command.
func Execute() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	log, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		return 1
	}

	store, err := storage.New(cfg.Paths.DatabasePath)
	if err != nil {
		log.Error("failed to open store", "path", cfg.Paths.DatabasePath, "error", err)
		return 1
	}
	defer store.Close()

	root := NewRoot(cfg, log, store)
	if err := NewRootCmd(root).Execute(); err != nil {
		return 1
	}
	return 0
}
