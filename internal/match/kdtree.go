package match

import (
	"gonum.org/v1/gonum/spatial/kdtree"
)

// kdIndex wraps gonum's k-d tree for O(log n) nearest queries on larger
// catalogs.
type kdIndex struct {
	tree *kdtree.Tree
	n    int
}

func newKDIndex(points []point) *kdIndex {
	ps := make(kdPoints, len(points))
	for i, p := range points {
		ps[i] = kdPoint{x: p.x, y: p.y, pos: i}
	}
	return &kdIndex{tree: kdtree.New(ps, false), n: len(points)}
}

func (k *kdIndex) nearest(x, y float64) (int, float64, bool) {
	if k.n == 0 {
		return 0, 0, false
	}
	got, distSq := k.tree.Nearest(kdPoint{x: x, y: y, pos: -1})
	if got == nil {
		return 0, 0, false
	}
	return got.(kdPoint).pos, distSq, true
}

// kdPoint carries the original catalog position alongside the coordinates.
// Distance follows gonum's squared-Euclidean convention.
type kdPoint struct {
	x, y float64
	pos  int
}

func (p kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdPoint)
	switch d {
	case 0:
		return p.x - q.x
	default:
		return p.y - q.y
	}
}

func (p kdPoint) Dims() int { return 2 }

func (p kdPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(kdPoint)
	return sqDist(p.x, p.y, q.x, q.y)
}

type kdPoints []kdPoint

func (p kdPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p kdPoints) Len() int                              { return len(p) }
func (p kdPoints) Pivot(d kdtree.Dim) int                { return kdPlane{Dim: d, kdPoints: p}.Pivot() }
func (p kdPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// kdPlane projects kdPoints onto one splitting dimension for pivoting.
type kdPlane struct {
	kdtree.Dim
	kdPoints
}

func (p kdPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.kdPoints[i].x < p.kdPoints[j].x
	default:
		return p.kdPoints[i].y < p.kdPoints[j].y
	}
}

func (p kdPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.kdPoints = p.kdPoints[start:end]
	return p
}

func (p kdPlane) Swap(i, j int) {
	p.kdPoints[i], p.kdPoints[j] = p.kdPoints[j], p.kdPoints[i]
}
