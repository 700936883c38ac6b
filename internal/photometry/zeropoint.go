package photometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"photocal/internal/catalog"
	"photocal/internal/match"
)

// Frame pairs a comparison catalog with its mapping onto the reference.
type Frame struct {
	Catalog *catalog.Catalog
	Mapping match.Mapping
}

// Config tunes the solver. The zero value is not useful; use Defaults.
type Config struct {
	// WeightZeroPoint is the constant added to instrumental magnitudes.
	WeightZeroPoint float64
	// RCond is the relative singular value cutoff for the pseudo-inverse.
	RCond float64
}

// Defaults returns the documented solver defaults.
func Defaults() Config {
	return Config{WeightZeroPoint: DefaultWeightZeroPoint, RCond: 1e-12}
}

// Solution holds one solve's output. Zero-points are indexed by frame with
// the reference at position 0; mean magnitudes are aligned with SourceIDs.
type Solution struct {
	ZeroPoints []float64
	MeanMags   []float64
	// SourceIDs are the reference identities of the qualifying sources,
	// in reference catalog order.
	SourceIDs []int
	// ResidualRMS is the root mean square of the fit residuals.
	ResidualRMS float64
	// Rank is the numerical rank of the design matrix. The system carries
	// one exact degree of gauge freedom, so a healthy solve reports
	// frames + sources - 1.
	Rank int
	// Warnings records conditioning concerns. They never abort a solve.
	Warnings []string
	// Degenerate is set when no source was detected in every frame and the
	// neutral fallback (unit zero-points, no magnitudes) was returned.
	Degenerate bool
}

// ValidationError reports inconsistent solver input, detected before any
// system is built.
type ValidationError struct {
	Frame  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Frame != "" {
		return fmt.Sprintf("frame %q: %s", e.Frame, e.Reason)
	}
	return e.Reason
}

// Solve estimates one zero-point per frame and one mean magnitude per
// qualifying source by sparse block least squares. Only reference sources
// matched in every single frame contribute; partial-coverage sources are
// silently excluded.
//
// The system is rank-deficient by exactly one (a constant can move between
// zero-points and magnitudes), so the gauge is pinned by taking the
// minimum-norm solution of an SVD pseudo-inverse. Results are reproducible
// for a fixed input.
func Solve(ref *catalog.Catalog, frames []Frame, cfg Config) (*Solution, error) {
	if ref == nil {
		return nil, &ValidationError{Reason: "nil reference catalog"}
	}
	for _, f := range frames {
		if f.Catalog == nil {
			return nil, &ValidationError{Reason: "nil comparison catalog"}
		}
		if len(f.Mapping.RefIDs) != f.Catalog.Len() {
			return nil, &ValidationError{
				Frame:  f.Catalog.Name,
				Reason: fmt.Sprintf("mapping covers %d sources, catalog has %d", len(f.Mapping.RefIDs), f.Catalog.Len()),
			}
		}
	}

	p := len(frames) + 1 // reference counts as frame 0

	// A source qualifies only when every frame detected it.
	byRef := make([]map[int]int, len(frames))
	for i, f := range frames {
		byRef[i] = f.Mapping.ByRef()
	}
	var ids []int
	var refFlux []float64
	for _, s := range ref.Sources {
		inAll := true
		for i := range frames {
			if _, ok := byRef[i][s.ID]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			ids = append(ids, s.ID)
			refFlux = append(refFlux, s.Flux)
		}
	}

	q := len(ids)
	if q == 0 {
		zps := make([]float64, p)
		for i := range zps {
			zps[i] = 1
		}
		return &Solution{ZeroPoints: zps, Degenerate: true}, nil
	}

	// One row per (frame, source) observation, frame-major:
	// zp[frame] + mag[source] = instrumental magnitude.
	rows, cols := p*q, p+q
	a := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	for k := 0; k < q; k++ {
		a.Set(k, 0, 1)
		a.Set(k, p+k, 1)
		b[k] = InstrumentalMagnitude(refFlux[k], cfg.WeightZeroPoint)
	}
	for i, f := range frames {
		j := i + 1
		for k, id := range ids {
			r := j*q + k
			a.Set(r, j, 1)
			a.Set(r, p+k, 1)
			b[r] = InstrumentalMagnitude(f.Catalog.Sources[byRef[i][id]].Flux, cfg.WeightZeroPoint)
		}
	}

	x, rank, err := solveMinNorm(a, b, cfg.RCond)
	if err != nil {
		return nil, err
	}

	sol := &Solution{
		ZeroPoints: x[:p],
		MeanMags:   x[p:],
		SourceIDs:  ids,
		Rank:       rank,
	}
	if rank < cols-1 {
		sol.Warnings = append(sol.Warnings,
			fmt.Sprintf("design matrix rank %d below expected %d: system is ill-conditioned", rank, cols-1))
	}

	var ss float64
	for r := 0; r < rows; r++ {
		res := b[r]
		for c := 0; c < cols; c++ {
			res -= a.At(r, c) * x[c]
		}
		ss += res * res
	}
	sol.ResidualRMS = math.Sqrt(ss / float64(rows))
	return sol, nil
}

// solveMinNorm returns the minimum-norm least-squares solution of a*x = b
// through a thin SVD, zeroing singular values below rcond times the
// largest. This is what pins the one-dimensional gauge freedom.
func solveMinNorm(a *mat.Dense, b []float64, rcond float64) ([]float64, int, error) {
	rows, cols := a.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, 0, fmt.Errorf("svd of %dx%d design matrix failed to converge", rows, cols)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	tol := rcond * s[0]
	x := make([]float64, cols)
	rank := 0
	for k := range s {
		if s[k] <= tol {
			continue
		}
		rank++
		var dot float64
		for i := 0; i < rows; i++ {
			dot += u.At(i, k) * b[i]
		}
		c := dot / s[k]
		for j := 0; j < cols; j++ {
			x[j] += c * v.At(j, k)
		}
	}
	return x, rank, nil
}
