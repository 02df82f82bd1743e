package emath

import(
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
	"golang.org/x/exp/constraints"
)

// A FloatGrid is a dense grid of float samples, in 2 or 3 dimensions,
// stored with x varying fastest.
type FloatGrid struct {
	dims    []int
	strides []int
	values  []float64
}

func NewFloatGrid(dims ...int) FloatGrid {
	return NewFloatGridFrom(dims, make([]float64, product(dims)))
}

// NewFloatGridFrom wraps `values` (not copied); len(values) must match the dims.
func NewFloatGridFrom(dims []int, values []float64) FloatGrid {
	if len(values) != product(dims) {
		panic(fmt.Sprintf("NewFloatGridFrom: %d values for dims %v", len(values), dims))
	}
	g := FloatGrid{
		dims:    append([]int(nil), dims...),
		strides: make([]int, len(dims)),
		values:  values,
	}
	stride := 1
	for d := range dims {
		g.strides[d] = stride
		stride *= dims[d]
	}
	return g
}

// FromSamples converts raw integer or float samples into a FloatGrid.
func FromSamples[T constraints.Integer | constraints.Float](dims []int, samples []T) FloatGrid {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = float64(s)
	}
	return NewFloatGridFrom(dims, values)
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

func (g *FloatGrid)NewFromThis() FloatGrid  { return NewFloatGrid(g.dims...) }
func (g *FloatGrid)Set(x, y int, v float64) { g.values[g.strides[1]*y + x] = v }
func (g *FloatGrid)Get(x, y int) float64    { return g.values[g.strides[1]*y + x] }
func (g *FloatGrid)NumDims() int            { return len(g.dims) }
func (g *FloatGrid)Len() int                { return len(g.values) }
func (g *FloatGrid)Values() []float64       { return g.values }
func (g *FloatGrid)Dims() []int             { return append([]int(nil), g.dims...) }
func (g *FloatGrid)Dim(d int) int           { return g.dims[d] }
func (g *FloatGrid)Dx() int                 { return g.dims[0] }
func (g *FloatGrid)Dy() int                 { return g.dims[1] }

func (g *FloatGrid)Dz() int {
	if len(g.dims) < 3 {
		return 1
	}
	return g.dims[2]
}

// Index returns the offset into Values() of the sample at `pos`.
func (g *FloatGrid)Index(pos []int) int {
	idx := 0
	for d, p := range pos {
		idx += p * g.strides[d]
	}
	return idx
}

// Position is the inverse of Index; it fills `pos`, which must have NumDims() entries.
func (g *FloatGrid)Position(idx int, pos []int) {
	for d := len(g.dims)-1; d >= 0; d-- {
		pos[d] = idx / g.strides[d]
		idx -= pos[d] * g.strides[d]
	}
}

func (g *FloatGrid)At(pos []int) float64       { return g.values[g.Index(pos)] }
func (g *FloatGrid)SetAt(pos []int, v float64) { g.values[g.Index(pos)] = v }

// Contains reports whether `pos` lies inside the grid.
func (g *FloatGrid)Contains(pos []int) bool {
	for d, p := range pos {
		if p < 0 || p >= g.dims[d] {
			return false
		}
	}
	return true
}

func (g *FloatGrid)Copy() *FloatGrid {
	g2 := NewFloatGrid(g.dims...)
	copy(g2.values, g.values)
	return &g2
}

// Crop copies out the half-open box [min, max).
func (g *FloatGrid)Crop(min, max []int) FloatGrid {
	size := make([]int, len(g.dims))
	for d := range size {
		size[d] = max[d] - min[d]
	}
	out := NewFloatGrid(size...)

	src := make([]int, len(g.dims))
	dst := make([]int, len(g.dims))
	for i := range out.values {
		out.Position(i, dst)
		for d := range dst {
			src[d] = dst[d] + min[d]
		}
		out.values[i] = g.At(src)
	}
	return out
}

func (g *FloatGrid)Mean() float64 {
	if len(g.values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range g.values {
		sum += v
	}
	return sum / float64(len(g.values))
}

func (g *FloatGrid)MinMax() (float64, float64) {
	min := math.MaxFloat64
	max := -1.0 * min
	for _, v := range g.values {
		if v > max { max = v }
		if v < min { min = v }
	}
	return min, max
}

func (g *FloatGrid)Stats() string {
	min, max := g.MinMax()
	return fmt.Sprintf("fg[%v, vals{%f,%f}]", g.dims, min, max)
}

// ToImg saves a simple grayscale, based on the range of values in the grid, and gamma scaling the
// gray to look normal for human vision. 3D grids are rendered through their middle slice.
func (g *FloatGrid)ToImg(title, filename string) error {
	min, max := g.MinMax()
	if max <= min {
		max = min + 1
	}

	z := g.Dz() / 2
	pos := make([]int, len(g.dims))
	img := image.NewRGBA64(image.Rectangle{Max:image.Point{g.Dx(), g.Dy()}})
	for x:=0; x<g.Dx(); x++ {
		for y:=0; y<g.Dy(); y++ {
			pos[0], pos[1] = x, y
			if len(pos) > 2 {
				pos[2] = z
			}
			gray := GammaExpand_F64((g.At(pos) - min) / (max - min))
			v := uint16(gray * 65535.0)
			img.Set(x, y, color.RGBA64{R: v, G: v, B: v, A: 0xFFFF})
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1,0.2,0.2)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
