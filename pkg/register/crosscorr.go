package register

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/tile-stitcher/pkg/emath"
)

// minOverlap is the smallest overlap, in samples, a candidate shift
// must leave for its cross correlation to count.
func minOverlap(a, b *emath.FloatGrid) int {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	if m := n / 100; m > 16 {
		return m
	}
	return 16
}

// crossCorrelation places b's origin at `shift` in a, and returns the
// Pearson correlation of the overlapping samples and how many there were.
func crossCorrelation(a, b *emath.FloatGrid, shift []int) (float64, int) {
	n := a.NumDims()
	lo := make([]int, n)
	hi := make([]int, n)
	count := 1
	for d := 0; d < n; d++ {
		lo[d] = max(0, shift[d])
		hi[d] = min(a.Dim(d), b.Dim(d)+shift[d])
		if hi[d] <= lo[d] {
			return 0, 0
		}
		count *= hi[d] - lo[d]
	}

	va := make([]float64, 0, count)
	vb := make([]float64, 0, count)
	pa := append([]int(nil), lo...)
	pb := make([]int, n)
	for {
		for d := range pa {
			pb[d] = pa[d] - shift[d]
		}
		va = append(va, a.At(pa))
		vb = append(vb, b.At(pb))

		// odometer step through the overlap box
		d := 0
		for ; d < n; d++ {
			pa[d]++
			if pa[d] < hi[d] {
				break
			}
			pa[d] = lo[d]
		}
		if d == n {
			break
		}
	}

	r := stat.Correlation(va, vb, nil)
	if math.IsNaN(r) {
		return 0, count // flat overlap, nothing to correlate
	}
	return r, count
}
