package register

import (
	"math/cmplx"

	"github.com/pkg/errors"

	"github.com/abworrall/tile-stitcher/pkg/emath"
	"github.com/abworrall/tile-stitcher/pkg/fourier"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

// A Result is the registration of plane b against plane a: b's origin
// lies at Shift in a's frame.
type Result struct {
	Shift            []float64
	Correlation      float64 // Pearson R over the overlap, in (0,1]
	PhaseCorrelation float64 // Height of the winning peak in the surface
}

// PhaseCorrelate registers b against a. Up to numPeaks peaks of the
// phase correlation surface are verified by cross correlation over the
// overlap they imply, and the best one wins.
func PhaseCorrelate(a, b *emath.FloatGrid, numPeaks int, subpixel bool) (Result, error) {
	res, _, err := phaseCorrelate(a, b, numPeaks, subpixel)
	return res, err
}

func phaseCorrelate(a, b *emath.FloatGrid, numPeaks int, subpixel bool) (Result, emath.FloatGrid, error) {
	if a.NumDims() != b.NumDims() {
		return Result{}, emath.FloatGrid{}, errors.Wrapf(tiles.ErrRegistration, "planes have %d and %d dimensions", a.NumDims(), b.NumDims())
	}
	if numPeaks < 1 {
		numPeaks = 1
	}

	surface := correlationSurface(a, b)
	peaks := findPeaks(&surface, numPeaks)

	bestR, bestMatched := -2.0, 0
	var best *peak
	var bestShift []int

	for i := range peaks {
		p := &peaks[i]
		for _, shift := range wrapAlternatives(p.pos, surface.Dims()) {
			r, n := crossCorrelation(a, b, shift)
			if n < minOverlap(a, b) {
				continue
			}
			if r > bestR {
				bestR, bestMatched, best, bestShift = r, n, p, shift
			}
		}
	}

	if best == nil {
		return Result{}, surface, errors.Wrapf(tiles.ErrRegistration, "none of %d peaks gives a usable overlap", len(peaks))
	}
	if bestR <= 0 {
		return Result{}, surface, errors.Wrapf(tiles.ErrRegistration, "best peak %v has R=%.3f over %d px", bestShift, bestR, bestMatched)
	}

	res := Result{
		Shift:            make([]float64, len(bestShift)),
		Correlation:      bestR,
		PhaseCorrelation: best.value,
	}
	var offset []float64
	if subpixel {
		offset = subpixelOffset(&surface, best.pos)
	}
	for d, s := range bestShift {
		res.Shift[d] = float64(s)
		if offset != nil {
			res.Shift[d] += offset[d]
		}
	}
	return res, surface, nil
}

// correlationSurface computes the inverse transform of the normalized
// cross power spectrum of the two (mean subtracted, zero padded) planes.
// A peak at p means b's origin sits at p (modulo the surface size) in a.
func correlationSurface(a, b *emath.FloatGrid) emath.FloatGrid {
	dims := make([]int, a.NumDims())
	for d := range dims {
		n := a.Dim(d)
		if b.Dim(d) > n {
			n = b.Dim(d)
		}
		dims[d] = fourier.FastSize(n)
	}

	fa := fourier.FromReal(zeroMean(a), dims)
	fb := fourier.FromReal(zeroMean(b), dims)
	fa.Forward()
	fb.Forward()

	for i := range fa.Values {
		c := fa.Values[i] * cmplx.Conj(fb.Values[i])
		if m := cmplx.Abs(c); m > 1e-10 {
			fa.Values[i] = c / complex(m, 0)
		} else {
			fa.Values[i] = 0
		}
	}

	fa.Inverse()
	return fa.Real()
}

func zeroMean(g *emath.FloatGrid) *emath.FloatGrid {
	out := g.Copy()
	mean := g.Mean()
	vals := out.Values()
	for i := range vals {
		vals[i] -= mean
	}
	return out
}

// wrapAlternatives returns every signed shift that a surface position
// can stand for: per axis, p or p-size.
func wrapAlternatives(pos, dims []int) [][]int {
	out := [][]int{}
	for combo := 0; combo < 1<<len(pos); combo++ {
		shift := make([]int, len(pos))
		for d := range pos {
			shift[d] = pos[d]
			if combo&(1<<d) != 0 {
				shift[d] -= dims[d]
			}
		}
		out = append(out, shift)
	}
	return out
}
