// Package pipeline orchestrates the per-frame crossmatch fan-out and the
// zero-point solve for one calibration run.
package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"photocal/internal/catalog"
	"photocal/internal/config"
	"photocal/internal/match"
	"photocal/internal/photometry"
)

// Calibrator runs crossmatching and zero-point estimation over a set of
// frames sharing one reference catalog.
type Calibrator struct {
	cfg *config.Config
	log *slog.Logger
}

// New creates a Calibrator.
func New(cfg *config.Config, log *slog.Logger) *Calibrator {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Calibrator{cfg: cfg, log: log}
}

// Result bundles one run's matched frames and solution.
type Result struct {
	Frames   []photometry.Frame
	Solution *photometry.Solution
}

// Radius returns the matching radius in canonical catalog units.
func (c *Calibrator) Radius(kind catalog.Kind) float64 {
	if kind == catalog.Angular {
		return c.cfg.Matching.RadiusArcsec / catalog.ArcsecPerDegree
	}
	return c.cfg.Matching.Radius
}

// Calibrate matches every comparison catalog against the reference and
// solves for per-frame zero-points. Frames are independent during the
// matching stage, so they are split into contiguous chunks and matched
// concurrently; results are reattached in frame order before the solve,
// which runs single-threaded.
func (c *Calibrator) Calibrate(ctx context.Context, ref *catalog.Catalog, comps []*catalog.Catalog, kind catalog.Kind) (*Result, error) {
	mcfg := match.Config{
		Radius:  c.Radius(kind),
		Backend: c.cfg.Matching.Backend,
	}

	// Angular catalogs project onto one tangent plane at the reference
	// field center. A per-catalog center would shift shared sky positions
	// apart whenever the source sets differ.
	if kind == catalog.Angular {
		ra0, dec0 := catalog.FieldCenter(ref)
		ref = catalog.ProjectTangent(ref, ra0, dec0)
		projected := make([]*catalog.Catalog, len(comps))
		for i, comp := range comps {
			projected[i] = catalog.ProjectTangent(comp, ra0, dec0)
		}
		comps = projected
	}

	frames := make([]photometry.Frame, len(comps))

	idx := make([]int, len(comps))
	for i := range idx {
		idx[i] = i
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, chunk := range Chunks(idx, c.cfg.Processing.ParallelJobs) {
		chunk := chunk
		g.Go(func() error {
			for _, i := range chunk {
				if err := ctx.Err(); err != nil {
					return err
				}
				frames[i] = photometry.Frame{
					Catalog: comps[i],
					Mapping: match.Match(ref, comps[i], mcfg),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, f := range frames {
		matched := f.Mapping.Matched()
		c.log.Debug("frame matched",
			"frame", f.Catalog.Name,
			"matched", matched,
			"reference_sources", ref.Len(),
		)
		if ref.Len() > 0 {
			frac := float64(matched) / float64(ref.Len())
			if frac < c.cfg.Register.MinMatchesFraction {
				c.log.Warn("low match fraction, frame may be poorly registered",
					"frame", f.Catalog.Name,
					"fraction", frac,
					"threshold", c.cfg.Register.MinMatchesFraction,
				)
			}
		}
	}

	sol, err := photometry.Solve(ref, frames, photometry.Config{
		WeightZeroPoint: c.cfg.Solver.WeightZeroPoint,
		RCond:           c.cfg.Solver.RCond,
	})
	if err != nil {
		return nil, err
	}
	for _, w := range sol.Warnings {
		c.log.Warn("solver warning", "warning", w)
	}
	if sol.Degenerate {
		c.log.Warn("no source detected in every frame, returning neutral zero-points")
	}

	return &Result{Frames: frames, Solution: sol}, nil
}
