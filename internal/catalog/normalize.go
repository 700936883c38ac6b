package catalog

import (
	"math"
	"strings"
)

// Columns is a column-name keyed table of per-source values, the shape
// delivered by external source-detection tools.
type Columns map[string][]float64

// Kind reports which positional system a column set carries.
type Kind int

const (
	// Pixel catalogs carry x/y positions in pixels.
	Pixel Kind = iota
	// Angular catalogs carry RA/Dec positions in degrees.
	Angular
)

// ArcsecPerDegree converts matching radii given in arcseconds.
const ArcsecPerDegree = 3600.0

// FromColumns normalizes a raw column table into a canonical catalog.
// Field-name fallback (RA/Dec vs ra/dec vs x/y) is resolved here, once,
// so every later stage works on a single representation.
//
// Angular positions stay in raw degrees. Projection onto a tangent plane
// happens later, through ProjectTangent, once a field center shared by
// every catalog of the run is known.
func FromColumns(name string, cols Columns) (*Catalog, Kind, error) {
	flux, ok := lookup(cols, "flux")
	if !ok {
		return nil, Pixel, &ValidationError{Catalog: name, Field: "flux", Reason: "required column missing"}
	}

	kind := Pixel
	xs, okX := lookup(cols, "x")
	ys, okY := lookup(cols, "y")
	if !okX || !okY {
		xs, okX = lookup(cols, "ra")
		ys, okY = lookup(cols, "dec")
		kind = Angular
	}
	if !okX || !okY {
		return nil, Pixel, &ValidationError{Catalog: name, Field: "position", Reason: "need x/y or RA/Dec columns"}
	}
	if len(xs) != len(ys) || len(xs) != len(flux) {
		return nil, Pixel, &ValidationError{Catalog: name, Reason: "column lengths differ"}
	}

	ids, hasIDs := lookup(cols, "id")
	if hasIDs && len(ids) != len(flux) {
		return nil, Pixel, &ValidationError{Catalog: name, Field: "id", Reason: "column lengths differ"}
	}

	sources := make([]Source, len(flux))
	for i := range sources {
		sources[i] = Source{ID: -1, X: xs[i], Y: ys[i], Flux: flux[i]}
		if hasIDs {
			sources[i].ID = int(ids[i])
		}
	}

	c, err := New(name, sources)
	if err != nil {
		return nil, kind, err
	}
	return c, kind, nil
}

func lookup(cols Columns, key string) ([]float64, bool) {
	for k, v := range cols {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// FieldCenter returns the mean position of a catalog. For an angular
// catalog this is the tangent point every catalog of the same field must
// share; the reference catalog supplies it.
func FieldCenter(c *Catalog) (ra0, dec0 float64) {
	if c.Len() == 0 {
		return 0, 0
	}
	var sumRA, sumDec float64
	for _, s := range c.Sources {
		sumRA += s.X
		sumDec += s.Y
	}
	n := float64(c.Len())
	return sumRA / n, sumDec / n
}

// ProjectTangent projects an angular catalog onto the tangent plane at
// (ra0, dec0): X = ΔRA·cos(dec0), Y = ΔDec, both in degrees, with ΔRA
// wrapped into [-180, 180). Catalogs of one field must be projected
// against one shared center or identical sky positions end up at
// different canonical coordinates.
func ProjectTangent(c *Catalog, ra0, dec0 float64) *Catalog {
	out := &Catalog{Name: c.Name, Sources: make([]Source, c.Len())}
	cosDec := math.Cos(dec0 * math.Pi / 180)
	for i, s := range c.Sources {
		dra := math.Mod(s.X-ra0+540, 360) - 180
		out.Sources[i] = Source{ID: s.ID, X: dra * cosDec, Y: s.Y - dec0, Flux: s.Flux}
	}
	return out
}
