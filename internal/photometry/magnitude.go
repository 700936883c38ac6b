// Package photometry estimates per-frame photometric zero-points from
// cross-matched source catalogs (Ofek-style transparency estimation).
package photometry

import "math"

// DefaultWeightZeroPoint is an arbitrary additive constant that keeps
// instrumental magnitudes near zero for numerical conditioning. It cancels
// in the least-squares fit.
const DefaultWeightZeroPoint = 20.0

// InstrumentalMagnitude converts a flux to an uncalibrated magnitude,
// -2.5*log10(flux) + weightZP.
func InstrumentalMagnitude(flux, weightZP float64) float64 {
	return -2.5*math.Log10(flux) + weightZP
}
