// Package fusion combines registered tiles into a single mosaic.
package fusion

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

type Method int

const (
	Blend Method = iota
	Average
	AverageIgnoreZero
	Max
	Min
	MinIgnoreZero
	Overlay // One output channel per tile, no accumulation
	None    // Don't fuse at all
)

var methodNames = map[Method]string{
	Blend:             "linear-blending",
	Average:           "average",
	AverageIgnoreZero: "average-ignore-zero",
	Max:               "max",
	Min:               "min",
	MinIgnoreZero:     "min-ignore-zero",
	Overlay:           "overlay",
	None:              "none",
}

func (m Method) String() string {
	if s, exists := methodNames[m]; exists {
		return s
	}
	return "unknown"
}

func ParseMethod(s string) (Method, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "blend" {
		return Blend, nil
	}
	for m, name := range methodNames {
		if name == s {
			return m, nil
		}
	}
	return None, errors.Wrapf(tiles.ErrConfiguration, "fusion method %q not known", s)
}

// An Accumulator combines the samples that land on one output pixel.
// Each worker owns its own, made by Clone.
type Accumulator interface {
	Clear()
	// Add contributes a sample from the tile with position `tileID` in
	// the fusion's tile list, taken at `local` in that tile's frame.
	Add(value float64, tileID int, local []float64)
	Value() float64
	Clone() Accumulator

	sealed()
}

// New returns an empty accumulator for the method. The blend method
// needs the size of every tile, in tile list order.
func New(m Method, fraction float64, sizes [][]int) (Accumulator, error) {
	switch m {
	case Blend:
		return newBlend(fraction, sizes), nil
	case Average:
		return &average{}, nil
	case AverageIgnoreZero:
		return &average{ignoreZero: true}, nil
	case Max:
		return &extreme{keep: math.Max}, nil
	case Min:
		return &extreme{keep: math.Min}, nil
	case MinIgnoreZero:
		return &extreme{keep: math.Min, ignoreZero: true}, nil
	}
	return nil, errors.Wrapf(tiles.ErrConfiguration, "%s is not a per pixel fusion method", m)
}

type average struct {
	ignoreZero bool
	sum        float64
	n          int
}

func (a *average) sealed() {}
func (a *average) Clear()  { a.sum, a.n = 0, 0 }

func (a *average) Add(value float64, tileID int, local []float64) {
	if a.ignoreZero && value == 0 {
		return
	}
	a.sum += value
	a.n++
}

func (a *average) Value() float64 {
	if a.n == 0 {
		return 0
	}
	return a.sum / float64(a.n)
}

func (a *average) Clone() Accumulator { return &average{ignoreZero: a.ignoreZero} }

// extreme keeps the running max or min, seeded by the first sample.
type extreme struct {
	keep       func(a, b float64) float64
	ignoreZero bool
	val        float64
	set        bool
}

func (e *extreme) sealed() {}
func (e *extreme) Clear()  { e.val, e.set = 0, false }

func (e *extreme) Add(value float64, tileID int, local []float64) {
	if e.ignoreZero && value == 0 {
		return
	}
	if !e.set {
		e.val, e.set = value, true
		return
	}
	e.val = e.keep(e.val, value)
}

func (e *extreme) Value() float64     { return e.val }
func (e *extreme) Clone() Accumulator { return &extreme{keep: e.keep, ignoreZero: e.ignoreZero} }

// blend weights each sample by how far it sits from its tile's border,
// so seams fade across the overlap.
type blend struct {
	fraction  float64
	sizes     [][]int
	valueSum  float64
	weightSum float64
}

func newBlend(fraction float64, sizes [][]int) *blend {
	return &blend{fraction: fraction, sizes: sizes}
}

func (b *blend) sealed() {}
func (b *blend) Clear()  { b.valueSum, b.weightSum = 0, 0 }

func (b *blend) Add(value float64, tileID int, local []float64) {
	w := math.Max(0.00001, BlendWeight(local, b.sizes[tileID], b.fraction))
	b.valueSum += value * w
	b.weightSum += w
}

func (b *blend) Value() float64 {
	if b.weightSum == 0 {
		return 0
	}
	return b.valueSum / b.weightSum
}

func (b *blend) Clone() Accumulator { return newBlend(b.fraction, b.sizes) }

// BlendWeight is the raised cosine weight of a sample at `local` in a
// tile of the given size. It is 1 away from the borders and falls off
// over the outer fraction/2 of the tile on each side.
func BlendWeight(local []float64, size []int, fraction float64) float64 {
	minDistance := 1.0
	for d, pos := range local {
		dim := float64(size[d] - 1)

		// distance to the closer border
		value := math.Max(1, math.Min(pos+1, (dim-1)-pos+1))
		blendArea := math.Floor(fraction*0.5*dim + 0.5)
		if value < blendArea {
			value /= blendArea
		} else {
			value = 1
		}
		minDistance *= value
	}

	switch {
	case minDistance == 1:
		return 1
	case minDistance <= 0:
		return 0.0000001
	}
	return (math.Cos((1-minDistance)*math.Pi) + 1) / 2
}
