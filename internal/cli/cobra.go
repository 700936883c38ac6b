package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"photocal/internal/catalog"
	"photocal/internal/logging"
	"photocal/internal/simulate"
	"photocal/internal/storage"
)

// Version is stamped at build time.
var Version = "dev"

// NewRootCmd creates the root Cobra command.
func NewRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "photocal",
		Short: "Photocal cross-calibrates photometric source catalogs",
		Long: `Photocal matches detected sources across frames of the same field and
solves for per-frame photometric zero-points and per-source mean magnitudes.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newCalibrateCmd(root))
	rootCmd.AddCommand(newSimulateCmd(root))
	rootCmd.AddCommand(newRunsCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newCalibrateCmd(root *Root) *cobra.Command {
	var (
		radius  float64
		backend string
		noStore bool
	)

	cmd := &cobra.Command{
		Use:   "calibrate <reference.csv> <frame.csv> [frame.csv...]",
		Short: "Solve per-frame zero-points against a reference catalog",
		Long: `Load a reference catalog and one or more comparison catalogs, crossmatch
each frame against the reference and solve the photometric zero-point system.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if radius > 0 {
				root.cfg.Matching.Radius = radius
				root.cfg.Matching.RadiusArcsec = radius
			}
			if backend != "" {
				root.cfg.Matching.Backend = backend
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ref, kind, err := catalog.ReadCSV(args[0])
			if err != nil {
				return err
			}
			comps := make([]*catalog.Catalog, 0, len(args)-1)
			for _, path := range args[1:] {
				c, k, err := catalog.ReadCSV(path)
				if err != nil {
					return err
				}
				if k != kind {
					return fmt.Errorf("catalog %s mixes coordinate systems with the reference", path)
				}
				comps = append(comps, c)
			}

			runID := newRunID()
			start := time.Now()
			logging.LogRunStart(root.log, runID, ref.Name, len(comps), root.calibrator.Radius(kind))

			if !noStore {
				_ = root.store.RecordRunStart(storage.RunRecord{
					ID:         runID,
					Reference:  ref.Name,
					FrameCount: len(comps) + 1,
					Radius:     root.calibrator.Radius(kind),
				})
			}

			res, err := root.calibrator.Calibrate(ctx, ref, comps, kind)
			if err != nil {
				if !noStore {
					_ = root.store.RecordRunResult(runID, "failed", 0, 0, err.Error(), nil)
				}
				logging.LogRunError(root.log, runID, time.Since(start), err)
				return err
			}

			sol := res.Solution
			zps := make([]storage.FrameZeroPoint, len(sol.ZeroPoints))
			for i := range sol.ZeroPoints {
				zp := storage.FrameZeroPoint{RunID: runID, FrameIndex: i, ZeroPoint: sol.ZeroPoints[i]}
				if i == 0 {
					zp.Catalog = ref.Name
					zp.Matched = len(sol.SourceIDs)
				} else {
					zp.Catalog = res.Frames[i-1].Catalog.Name
					zp.Matched = res.Frames[i-1].Mapping.Matched()
				}
				zps[i] = zp
			}
			if !noStore {
				_ = root.store.RecordRunResult(runID, "completed", len(sol.SourceIDs), sol.ResidualRMS, "", zps)
			}

			logging.LogRunComplete(root.log, runID, time.Since(start), map[string]any{
				"qualifying_sources": len(sol.SourceIDs),
				"residual_rms":       sol.ResidualRMS,
			})

			printZeroPoints(zps, sol.Degenerate)
			return nil
		},
	}

	cmd.Flags().Float64Var(&radius, "radius", 0, "Matching radius override (pixels, or arcsec for RA/Dec catalogs)")
	cmd.Flags().StringVar(&backend, "backend", "", "Nearest-neighbor backend: auto, brute or kdtree")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Skip persisting the run to the database")

	return cmd
}

func printZeroPoints(zps []storage.FrameZeroPoint, degenerate bool) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Frame", "Catalog", "Matched", "Zero-Point"})
	for _, zp := range zps {
		table.Append([]string{
			strconv.Itoa(zp.FrameIndex),
			zp.Catalog,
			strconv.Itoa(zp.Matched),
			strconv.FormatFloat(zp.ZeroPoint, 'f', 4, 64),
		})
	}
	table.Render()
	if degenerate {
		fmt.Println("no source was detected in every frame; zero-points are the neutral fallback")
	}
}

func newSimulateCmd(root *Root) *cobra.Command {
	params := simulate.Defaults()
	var frames int
	var offsetStep float64

	cmd := &cobra.Command{
		Use:   "simulate <output_dir>",
		Short: "Generate synthetic catalogs with known zero-point offsets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := args[0]
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}

			if frames > 0 {
				params.Offsets = make([]float64, frames)
				for i := range params.Offsets {
					params.Offsets[i] = offsetStep * float64(i+1)
				}
			}

			ref, comps, err := simulate.Field(params)
			if err != nil {
				return err
			}

			refPath := filepath.Join(outDir, "reference.csv")
			if err := catalog.WriteCSV(refPath, ref); err != nil {
				return err
			}
			for _, c := range comps {
				if err := catalog.WriteCSV(filepath.Join(outDir, c.Name+".csv"), c); err != nil {
					return err
				}
			}

			root.log.Info("synthetic field written",
				"dir", outDir,
				"sources", params.Sources,
				"frames", len(comps),
				"offsets", params.Offsets,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&params.Sources, "sources", params.Sources, "Number of stars in the field")
	cmd.Flags().Float64Var(&params.Size, "size", params.Size, "Field side length in pixels")
	cmd.Flags().Float64Var(&params.Jitter, "jitter", params.Jitter, "Per-frame positional scatter sigma in pixels")
	cmd.Flags().Float64Var(&params.FluxNoise, "flux-noise", params.FluxNoise, "Fractional gaussian flux scatter")
	cmd.Flags().Float64Var(&params.DropFraction, "drop", params.DropFraction, "Chance a star goes undetected in a frame")
	cmd.Flags().Int64Var(&params.Seed, "seed", params.Seed, "Random seed")
	cmd.Flags().IntVar(&frames, "frames", 0, "Number of comparison frames (overrides default offsets)")
	cmd.Flags().Float64Var(&offsetStep, "offset-step", 0.1, "Zero-point offset added per frame, in magnitudes")

	return cmd
}

func newRunsCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run_id]",
		Short: "List recent calibration runs or show one run's zero-points",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				zps, err := root.store.RunZeroPoints(args[0])
				if err != nil {
					return err
				}
				if len(zps) == 0 {
					return fmt.Errorf("no zero-points recorded for run %s", args[0])
				}
				printZeroPoints(zps, false)
				return nil
			}

			recs, err := root.store.RecentRuns(limit)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Status", "Reference", "Frames", "Matched", "RMS", "Created"})
			for _, rec := range recs {
				table.Append([]string{
					rec.ID,
					rec.Status,
					rec.Reference,
					strconv.Itoa(rec.FrameCount),
					strconv.Itoa(rec.MatchedSources),
					strconv.FormatFloat(rec.ResidualRMS, 'f', 4, 64),
					rec.CreatedAt.Format(time.RFC3339),
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(root.cfg)
		},
	}
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the photocal version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("photocal %s\n", Version)
		},
	}
}

// signalContext is a test seam for commands that run until interrupted.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
