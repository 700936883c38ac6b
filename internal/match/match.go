// Package match finds source correspondences between two catalogs of the
// same field using a mutual nearest-neighbor criterion.
package match

import (
	"photocal/internal/catalog"
)

// Unmatched is the sentinel reference identity for a comparison source
// without an accepted counterpart.
const Unmatched = -1

// Nearest-neighbor backend names.
const (
	BackendAuto   = "auto"
	BackendBrute  = "brute"
	BackendKDTree = "kdtree"
)

// Config carries the matcher tuning that used to live in process-wide
// globals. The zero value is not useful; use Defaults.
type Config struct {
	// Radius is the maximum allowed separation, in the same units as the
	// catalog positions (pixels, or projected degrees).
	Radius float64
	// Backend selects the nearest-neighbor index: auto, brute or kdtree.
	Backend string
}

// Defaults returns the documented matcher defaults: a 2 pixel radius and
// automatic backend selection.
func Defaults() Config {
	return Config{Radius: 2.0, Backend: BackendAuto}
}

// Mapping maps each comparison source, in catalog order, to the identity
// of its mutual nearest reference source, or Unmatched. A mapping is built
// once per comparison catalog and never mutated.
type Mapping struct {
	// RefIDs[i] is the reference identity matched to comparison source i.
	RefIDs []int
}

// Matched counts accepted pairs.
func (m Mapping) Matched() int {
	n := 0
	for _, id := range m.RefIDs {
		if id != Unmatched {
			n++
		}
	}
	return n
}

// ByRef inverts the mapping: reference identity to comparison position.
func (m Mapping) ByRef() map[int]int {
	out := make(map[int]int, len(m.RefIDs))
	for i, id := range m.RefIDs {
		if id != Unmatched {
			out[id] = i
		}
	}
	return out
}

// Match pairs comparison sources with reference sources. A pair (r, c) is
// accepted only when each side is the other's nearest neighbor and both
// separations are within cfg.Radius. Everything else is Unmatched; an
// unmatched source is a normal outcome, not an error.
//
// Ties in separation resolve to whichever candidate the index returns
// first. For continuous coordinates exact ties have measure zero.
func Match(ref, comp *catalog.Catalog, cfg Config) Mapping {
	m := Mapping{RefIDs: make([]int, comp.Len())}
	for i := range m.RefIDs {
		m.RefIDs[i] = Unmatched
	}
	if ref.Len() == 0 || comp.Len() == 0 {
		return m
	}

	refIdx := buildIndex(positions(ref), cfg.Backend)
	compIdx := buildIndex(positions(comp), cfg.Backend)
	radiusSq := cfg.Radius * cfg.Radius

	// Nearest comparison source of every reference source, queried once.
	nearestComp := make([]int, ref.Len())
	nearestCompSq := make([]float64, ref.Len())
	for j, s := range ref.Sources {
		nearestComp[j], nearestCompSq[j], _ = compIdx.nearest(s.X, s.Y)
	}

	for i, s := range comp.Sources {
		j, dSq, ok := refIdx.nearest(s.X, s.Y)
		if !ok || dSq > radiusSq {
			continue
		}
		// Both directions must be within radius, and the reference source
		// must point straight back. A reference source whose two-way
		// neighbor disagrees is dropped even when both separations are
		// independently within radius.
		if nearestCompSq[j] > radiusSq || nearestComp[j] != i {
			continue
		}
		m.RefIDs[i] = ref.Sources[j].ID
	}
	return m
}

func positions(c *catalog.Catalog) []point {
	pts := make([]point, c.Len())
	for i, s := range c.Sources {
		pts[i] = point{x: s.X, y: s.Y}
	}
	return pts
}
