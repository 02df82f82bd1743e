// Package fourier computes discrete Fourier transforms of 2D and 3D
// complex grids. The default build uses gonum's FFTPACK port; build
// with `-tags fftw` to use the FFTW3 C library instead.
package fourier

import (
	"github.com/abworrall/tile-stitcher/pkg/emath"
)

// A ComplexGrid holds complex samples with x varying fastest, the same
// layout as emath.FloatGrid.
type ComplexGrid struct {
	dims    []int
	strides []int
	Values  []complex128
}

func NewComplexGrid(dims ...int) ComplexGrid {
	c := ComplexGrid{dims: append([]int(nil), dims...), strides: make([]int, len(dims))}
	n := 1
	for d := range dims {
		c.strides[d] = n
		n *= dims[d]
	}
	c.Values = make([]complex128, n)
	return c
}

// FromReal copies `g` into the low corner of a zero-filled grid of size `dims`.
func FromReal(g *emath.FloatGrid, dims []int) ComplexGrid {
	c := NewComplexGrid(dims...)
	pos := make([]int, g.NumDims())
	for i, v := range g.Values() {
		g.Position(i, pos)
		c.Values[c.Index(pos)] = complex(v, 0)
	}
	return c
}

func (c *ComplexGrid) Dims() []int { return append([]int(nil), c.dims...) }

func (c *ComplexGrid) Index(pos []int) int {
	idx := 0
	for d, p := range pos {
		idx += p * c.strides[d]
	}
	return idx
}

// Real returns the real parts as a FloatGrid.
func (c *ComplexGrid) Real() emath.FloatGrid {
	values := make([]float64, len(c.Values))
	for i, v := range c.Values {
		values[i] = real(v)
	}
	return emath.NewFloatGridFrom(c.dims, values)
}

// Forward replaces the grid with its DFT.
func (c *ComplexGrid) Forward() {
	transform(c, false)
}

// Inverse replaces the grid with its inverse DFT, scaled by 1/N so that
// Inverse undoes Forward.
func (c *ComplexGrid) Inverse() {
	transform(c, true)
	scale := complex(1/float64(len(c.Values)), 0)
	for i := range c.Values {
		c.Values[i] *= scale
	}
}

// FastSize returns the smallest n' >= n whose only prime factors are 2, 3
// and 5; transforms of those lengths avoid the slow generic radix.
func FastSize(n int) int {
	if n < 1 {
		return 1
	}
	for ; ; n++ {
		m := n
		for _, p := range []int{2, 3, 5} {
			for m%p == 0 {
				m /= p
			}
		}
		if m == 1 {
			return n
		}
	}
}
