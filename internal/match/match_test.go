package match

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photocal/internal/catalog"
)

func mustCatalog(t *testing.T, name string, sources []catalog.Source) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(name, sources)
	require.NoError(t, err)
	return c
}

func TestMatchScenarioTwoReferenceOneComparison(t *testing.T) {
	ref := mustCatalog(t, "ref", []catalog.Source{
		{ID: 0, X: 10, Y: 10, Flux: 100},
		{ID: 1, X: 50, Y: 50, Flux: 50},
	})
	comp := mustCatalog(t, "comp", []catalog.Source{
		{ID: 0, X: 10.2, Y: 10.1, Flux: 110},
	})

	m := Match(ref, comp, Config{Radius: 1.0, Backend: BackendBrute})

	require.Len(t, m.RefIDs, 1)
	assert.Equal(t, 0, m.RefIDs[0], "comparison source should pair with reference source at (10,10)")
	assert.Equal(t, 1, m.Matched())
}

func TestMatchDisjointCatalogsAllUnmatched(t *testing.T) {
	ref := mustCatalog(t, "ref", []catalog.Source{
		{ID: 0, X: 0, Y: 0, Flux: 1},
		{ID: 1, X: 100, Y: 100, Flux: 1},
	})
	comp := mustCatalog(t, "comp", []catalog.Source{
		{ID: 0, X: 500, Y: 500, Flux: 1},
		{ID: 1, X: 600, Y: 600, Flux: 1},
	})

	m := Match(ref, comp, Config{Radius: 2.0, Backend: BackendBrute})

	for _, id := range m.RefIDs {
		assert.Equal(t, Unmatched, id)
	}
	assert.Equal(t, 0, m.Matched())
}

func TestMatchSelfIsIdentityRegardlessOfOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var sources []catalog.Source
	for i := 0; i < 50; i++ {
		sources = append(sources, catalog.Source{
			ID:   i,
			X:    rng.Float64() * 1000,
			Y:    rng.Float64() * 1000,
			Flux: 1 + rng.Float64()*100,
		})
	}
	ref := mustCatalog(t, "ref", sources)

	shuffled := make([]catalog.Source, len(sources))
	copy(shuffled, sources)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	comp := mustCatalog(t, "comp", shuffled)

	for _, backend := range []string{BackendBrute, BackendKDTree} {
		m := Match(ref, comp, Config{Radius: 0.5, Backend: backend})
		for i, id := range m.RefIDs {
			assert.Equal(t, comp.Sources[i].ID, id, "backend %s: every source must map to itself", backend)
		}
	}
}

func TestMatchEmptyCatalogs(t *testing.T) {
	ref := mustCatalog(t, "ref", nil)
	comp := mustCatalog(t, "comp", []catalog.Source{{ID: 0, X: 1, Y: 1, Flux: 1}})

	m := Match(ref, comp, Defaults())
	require.Len(t, m.RefIDs, 1)
	assert.Equal(t, Unmatched, m.RefIDs[0])

	m = Match(comp, ref, Defaults())
	assert.Empty(t, m.RefIDs)
}

func TestMatchDropsOneWayDisagreement(t *testing.T) {
	// c1 is within radius of r and r is its nearest reference, but r's
	// nearest comparison is c2. The strict mutual policy drops c1 even
	// though both of its separations are within radius.
	ref := mustCatalog(t, "ref", []catalog.Source{
		{ID: 0, X: 0, Y: 0, Flux: 1},
	})
	comp := mustCatalog(t, "comp", []catalog.Source{
		{ID: 0, X: 0.5, Y: 0, Flux: 1},
		{ID: 1, X: 0.4, Y: 0, Flux: 1},
	})

	m := Match(ref, comp, Config{Radius: 1.0, Backend: BackendBrute})

	assert.Equal(t, Unmatched, m.RefIDs[0])
	assert.Equal(t, 0, m.RefIDs[1])
}

func TestMatchMutualConsistencyInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	mk := func(name string, n int) *catalog.Catalog {
		var sources []catalog.Source
		for i := 0; i < n; i++ {
			sources = append(sources, catalog.Source{
				ID:   i,
				X:    rng.Float64() * 200,
				Y:    rng.Float64() * 200,
				Flux: 1 + rng.Float64(),
			})
		}
		return mustCatalog(t, name, sources)
	}
	ref := mk("ref", 120)
	comp := mk("comp", 140)
	const radius = 5.0

	m := Match(ref, comp, Config{Radius: radius, Backend: BackendKDTree})

	dist := func(a, b catalog.Source) float64 {
		return math.Hypot(a.X-b.X, a.Y-b.Y)
	}
	for ci, rid := range m.RefIDs {
		if rid == Unmatched {
			continue
		}
		c := comp.Sources[ci]
		r, ok := ref.ByID(rid)
		require.True(t, ok)

		d := dist(c, r)
		assert.LessOrEqual(t, d, radius)
		for _, other := range ref.Sources {
			assert.GreaterOrEqual(t, dist(c, other), d, "r must be c's nearest reference")
		}
		for _, other := range comp.Sources {
			assert.GreaterOrEqual(t, dist(r, other), d, "c must be r's nearest comparison")
		}
	}
}

func TestBackendsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	mk := func(name string, n int) *catalog.Catalog {
		var sources []catalog.Source
		for i := 0; i < n; i++ {
			sources = append(sources, catalog.Source{
				ID:   i,
				X:    rng.Float64() * 300,
				Y:    rng.Float64() * 300,
				Flux: 1 + rng.Float64(),
			})
		}
		return mustCatalog(t, name, sources)
	}
	ref := mk("ref", 200)
	comp := mk("comp", 180)

	brute := Match(ref, comp, Config{Radius: 4.0, Backend: BackendBrute})
	kd := Match(ref, comp, Config{Radius: 4.0, Backend: BackendKDTree})

	assert.Equal(t, brute.RefIDs, kd.RefIDs)
}
