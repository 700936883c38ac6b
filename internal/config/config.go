package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

const (
	defaultConfigPath = "~/.config/photocal/config.json"
	defaultParallel   = 4
)

// Config holds user-editable settings for the calibration toolkit.
type Config struct {
	Processing Processing   `json:"processing"`
	Logging    Logging      `json:"logging"`
	Paths      Paths        `json:"paths"`
	Matching   Matching     `json:"matching"`
	Register   Registration `json:"registration"`
	Solver     Solver       `json:"solver"`
}

// Processing captures execution preferences.
type Processing struct {
	ParallelJobs int    `json:"parallel_jobs"`
	TempDir      string `json:"temp_dir"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	FileOutput bool   `json:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir"`     // Directory for log files
	MaxSize    int    `json:"max_size"`    // Max size in MB before rotation
	MaxBackups int    `json:"max_backups"` // Number of backup files to keep
	MaxAge     int    `json:"max_age"`     // Days to keep log files
}

// Paths configures default input/output locations.
type Paths struct {
	DefaultInput  string `json:"default_input"`
	DefaultOutput string `json:"default_output"`
	DatabasePath  string `json:"database_path"`
}

// Matching controls the crossmatch between comparison and reference
// catalogs.
type Matching struct {
	// Radius is the maximum pair separation for pixel catalogs, in pixels.
	Radius float64 `json:"radius"`
	// RadiusArcsec is the maximum pair separation for angular catalogs.
	// It is converted to degrees before matching.
	RadiusArcsec float64 `json:"radius_arcsec"`
	// Backend selects the nearest-neighbor index: auto, brute or kdtree.
	Backend string `json:"backend"`
}

// Registration carries the frame-registration tuning that used to live in
// process-wide globals.
type Registration struct {
	// PixelTol is the residual tolerance accepted by the registration step.
	PixelTol float64 `json:"pixel_tol"`
	// NumNearestNeighbors bounds the candidate set per source.
	NumNearestNeighbors int `json:"num_nearest_neighbors"`
	// MinMatchesFraction is the matched fraction of reference sources below
	// which a frame is flagged as poorly registered.
	MinMatchesFraction float64 `json:"min_matches_fraction"`
}

// Solver tunes the zero-point least-squares solve.
type Solver struct {
	// WeightZeroPoint keeps instrumental magnitudes near zero for
	// conditioning; it cancels in the fit.
	WeightZeroPoint float64 `json:"weight_zeropoint"`
	// RCond is the relative singular value cutoff of the pseudo-inverse.
	RCond float64 `json:"rcond"`
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	cfg := Default()

	configPath := os.Getenv("PHOTOCAL_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Processing: Processing{
			ParallelJobs: defaultParallel,
			TempDir:      os.TempDir(),
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
		},
		Paths: Paths{
			DefaultInput:  ".",
			DefaultOutput: "./output",
			DatabasePath:  filepath.Join(os.TempDir(), "photocal.db"),
		},
		Matching: Matching{
			Radius:       2.0,
			RadiusArcsec: 1.5,
			Backend:      "auto",
		},
		Register: Registration{
			PixelTol:            0.3,
			NumNearestNeighbors: 5,
			MinMatchesFraction:  0.6,
		},
		Solver: Solver{
			WeightZeroPoint: 20.0,
			RCond:           1e-12,
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
