package register

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/abworrall/tile-stitcher/pkg/emath"
)

type peak struct {
	pos   []int
	index int
	value float64
}

// findPeaks returns up to k local maxima of the surface, highest first.
// The surface is periodic, so neighbourhoods wrap around the edges.
func findPeaks(surface *emath.FloatGrid, k int) []peak {
	dims := surface.Dims()
	offsets := neighbourOffsets(len(dims))
	vals := surface.Values()

	peaks := []peak{}
	pos := make([]int, len(dims))
	npos := make([]int, len(dims))

	for i, v := range vals {
		surface.Position(i, pos)
		isMax := true
		for _, off := range offsets {
			for d := range pos {
				npos[d] = (pos[d] + off[d] + dims[d]) % dims[d]
			}
			if surface.At(npos) > v {
				isMax = false
				break
			}
		}
		if isMax {
			peaks = append(peaks, peak{pos: append([]int(nil), pos...), index: i, value: v})
		}
	}

	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].value > peaks[j].value })
	if len(peaks) > k {
		peaks = peaks[:k]
	}
	return peaks
}

// neighbourOffsets lists the 3^n-1 offsets to a sample's neighbours.
func neighbourOffsets(n int) [][]int {
	out := [][]int{}
	total := 1
	for d := 0; d < n; d++ {
		total *= 3
	}
	for i := 0; i < total; i++ {
		off := make([]int, n)
		zero := true
		for d, rem := 0, i; d < n; d++ {
			off[d] = rem%3 - 1
			rem /= 3
			if off[d] != 0 {
				zero = false
			}
		}
		if !zero {
			out = append(out, off)
		}
	}
	return out
}

// subpixelOffset fits a quadratic to the 3^n neighbourhood of `pos` and
// returns the offset of its extremum, clamped to one sample per axis.
// Axes where a neighbour would fall outside the surface are left at 0.
func subpixelOffset(surface *emath.FloatGrid, pos []int) []float64 {
	n := len(pos)
	offset := make([]float64, n)

	axes := []int{}
	for d := 0; d < n; d++ {
		if pos[d]-1 >= 0 && pos[d]+1 < surface.Dim(d) {
			axes = append(axes, d)
		}
	}
	if len(axes) == 0 {
		return offset
	}

	at := func(delta map[int]int) float64 {
		p := append([]int(nil), pos...)
		for d, v := range delta {
			p[d] += v
		}
		return surface.At(p)
	}

	m := len(axes)
	center := surface.At(pos)
	g := mat.NewVecDense(m, nil)
	h := mat.NewDense(m, m, nil)
	for i, di := range axes {
		plus, minus := at(map[int]int{di: 1}), at(map[int]int{di: -1})
		g.SetVec(i, -(plus-minus)/2)
		h.Set(i, i, plus-2*center+minus)

		for j := i + 1; j < m; j++ {
			dj := axes[j]
			hij := (at(map[int]int{di: 1, dj: 1}) - at(map[int]int{di: 1, dj: -1}) -
				at(map[int]int{di: -1, dj: 1}) + at(map[int]int{di: -1, dj: -1})) / 4
			h.Set(i, j, hij)
			h.Set(j, i, hij)
		}
	}

	var x mat.VecDense
	if err := x.SolveVec(h, g); err != nil {
		return offset // singular, stay on the integer peak
	}
	for i, d := range axes {
		offset[d] = emath.Clamp(x.AtVec(i), -1, 1)
	}
	return offset
}
