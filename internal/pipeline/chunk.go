package pipeline

// Chunks splits seq into n roughly equal contiguous sub-slices for data
// parallel dispatch. Order is preserved: concatenating the chunks in order
// restores seq. Sizes differ by at most one element.
func Chunks[T any](seq []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	avg := float64(len(seq)) / float64(n)
	var out [][]T
	last := 0.0
	for last < float64(len(seq)) {
		lo, hi := int(last), int(last+avg)
		if hi > len(seq) {
			hi = len(seq)
		}
		out = append(out, seq[lo:hi])
		last += avg
	}
	return out
}
