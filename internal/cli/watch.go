package cli

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"photocal/internal/catalog"
)

// settleDelay gives the writer time to finish a catalog file before the
// watcher picks it up.
const settleDelay = 500 * time.Millisecond

func newWatchCmd(root *Root) *cobra.Command {
	var refPath string

	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Calibrate new catalog files as they arrive",
		Long: `Watch a directory for incoming catalog CSV files and solve each new frame
against a fixed reference catalog as soon as it lands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			ref, kind, err := catalog.ReadCSV(refPath)
			if err != nil {
				return err
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			if err := watcher.Add(args[0]); err != nil {
				return err
			}
			root.log.Info("watching for catalogs", "dir", args[0], "reference", ref.Name)

			for {
				select {
				case <-ctx.Done():
					root.log.Info("watch stopped")
					return nil
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					root.log.Error("watch error", "error", err)
				case ev, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
						continue
					}
					if !strings.EqualFold(filepath.Ext(ev.Name), ".csv") {
						continue
					}
					if filepath.Clean(ev.Name) == filepath.Clean(refPath) {
						continue
					}
					time.Sleep(settleDelay)
					root.calibrateIncoming(ctx, ref, kind, ev.Name)
				}
			}
		},
	}

	cmd.Flags().StringVar(&refPath, "reference", "", "Reference catalog CSV (required)")
	_ = cmd.MarkFlagRequired("reference")

	return cmd
}

// calibrateIncoming solves a single incoming frame against the reference.
// Failures are logged, not fatal: the watch keeps running.
func (r *Root) calibrateIncoming(ctx context.Context, ref *catalog.Catalog, kind catalog.Kind, path string) {
	comp, k, err := catalog.ReadCSV(path)
	if err != nil {
		r.log.Error("skipping catalog", "path", path, "error", err)
		return
	}
	if k != kind {
		r.log.Error("skipping catalog with mismatched coordinate system", "path", path)
		return
	}

	res, err := r.calibrator.Calibrate(ctx, ref, []*catalog.Catalog{comp}, kind)
	if err != nil {
		r.log.Error("calibration failed", "path", path, "error", err)
		return
	}
	sol := res.Solution
	if sol.Degenerate {
		r.log.Warn("no common sources with reference", "path", path)
		return
	}
	r.log.Info("frame calibrated",
		"path", path,
		"matched", res.Frames[0].Mapping.Matched(),
		"zero_point", sol.ZeroPoints[1],
		"reference_zero_point", sol.ZeroPoints[0],
	)
}
