package match

// point is a position in canonical catalog coordinates.
type point struct {
	x, y float64
}

// index answers nearest-neighbor queries over a fixed set of points.
type index interface {
	// nearest returns the position of the closest point to (x, y) and the
	// squared distance to it. ok is false when the index is empty.
	nearest(x, y float64) (i int, distSq float64, ok bool)
}

// kdTreeThreshold is the catalog size at which the auto backend switches
// from brute force to the k-d tree.
const kdTreeThreshold = 64

func buildIndex(points []point, backend string) index {
	switch backend {
	case BackendBrute:
		return bruteIndex(points)
	case BackendKDTree:
		return newKDIndex(points)
	default:
		if len(points) < kdTreeThreshold {
			return bruteIndex(points)
		}
		return newKDIndex(points)
	}
}

// bruteIndex scans all points per query. For the catalog sizes coming out
// of a single frame this is often faster than tree construction.
type bruteIndex []point

func (b bruteIndex) nearest(x, y float64) (int, float64, bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	best := 0
	bestSq := sqDist(b[0].x, b[0].y, x, y)
	for i := 1; i < len(b); i++ {
		if d := sqDist(b[i].x, b[i].y, x, y); d < bestSq {
			best, bestSq = i, d
		}
	}
	return best, bestSq, true
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx := ax - bx
	dy := ay - by
	return dx*dx + dy*dy
}
