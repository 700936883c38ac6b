package catalog

import (
	"fmt"
	"math"
)

// Source is a detected point in one frame. Positions are in the catalog's
// coordinate system: pixels, or raw RA/Dec degrees for angular catalogs
// until ProjectTangent maps them onto the field's tangent plane. Sources
// are immutable once ingested.
type Source struct {
	ID   int
	X    float64
	Y    float64
	Flux float64
}

// Catalog is an ordered sequence of sources belonging to one frame.
// IDs are unique within a catalog.
type Catalog struct {
	Name    string
	Sources []Source
}

// Len returns the number of sources.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Sources)
}

// ByID returns the source with the given identity.
func (c *Catalog) ByID(id int) (Source, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// ValidationError reports a malformed catalog before any computation runs.
type ValidationError struct {
	Catalog string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("catalog %q: field %q: %s", e.Catalog, e.Field, e.Reason)
	}
	return fmt.Sprintf("catalog %q: %s", e.Catalog, e.Reason)
}

// New builds a catalog from ready-made sources, assigning sequential
// identities to any source carrying a negative ID.
func New(name string, sources []Source) (*Catalog, error) {
	c := &Catalog{Name: name, Sources: make([]Source, len(sources))}
	copy(c.Sources, sources)

	// Explicit identities register first so synthetics never collide with
	// an explicit ID appearing later in the sequence.
	seen := make(map[int]bool, len(sources))
	for _, s := range c.Sources {
		if s.ID < 0 {
			continue
		}
		if seen[s.ID] {
			return nil, &ValidationError{Catalog: name, Field: "id", Reason: fmt.Sprintf("duplicate identity %d", s.ID)}
		}
		seen[s.ID] = true
	}

	next := 0
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.ID < 0 {
			for seen[next] {
				next++
			}
			s.ID = next
			seen[next] = true
		}
		if err := validateSource(name, *s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func validateSource(name string, s Source) error {
	if math.IsNaN(s.X) || math.IsNaN(s.Y) || math.IsInf(s.X, 0) || math.IsInf(s.Y, 0) {
		return &ValidationError{Catalog: name, Field: "position", Reason: fmt.Sprintf("source %d has non-finite position", s.ID)}
	}
	if !(s.Flux > 0) || math.IsInf(s.Flux, 0) {
		return &ValidationError{Catalog: name, Field: "flux", Reason: fmt.Sprintf("source %d has non-positive flux %g", s.ID, s.Flux)}
	}
	return nil
}
