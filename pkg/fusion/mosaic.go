package fusion

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/pkg/errors"

	"github.com/abworrall/tile-stitcher/pkg/emath"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

// A Mosaic is the fused output: one plane per channel and timepoint,
// sampled at the bit depth of the widest input.
type Mosaic struct {
	Bounds
	Method        Method
	BitDepth      int
	NumChannels   int
	NumTimepoints int
	NumTiles      int               // Overlay only; channel c came from tile c % NumTiles
	Planes        []emath.FloatGrid // Index is c + t*NumChannels, both 0-based
}

func (m *Mosaic) Plane(c, t int) *emath.FloatGrid {
	return &m.Planes[c+t*m.NumChannels]
}

// NumSlices is the z extent of a 3D mosaic, or 1.
func (m *Mosaic) NumSlices() int {
	if len(m.Size) > 2 {
		return m.Size[2]
	}
	return 1
}

// quantize rounds integer mosaics to the range of their sample type.
func (m *Mosaic) quantize() error {
	switch m.BitDepth {
	case 32:
		return nil
	case 8, 16:
	default:
		return errors.Wrapf(tiles.ErrFusion, "cannot write %d bit samples", m.BitDepth)
	}

	max := float64(int(1)<<m.BitDepth - 1)
	for p := range m.Planes {
		vals := m.Planes[p].Values()
		for i, v := range vals {
			vals[i] = emath.Clamp(math.Round(v), 0, max)
		}
	}
	return nil
}

func (m *Mosaic) rect() image.Rectangle {
	return image.Rect(0, 0, m.Size[0], m.Size[1])
}

// Raster returns slice z of one channel and timepoint as a grayscale
// image of the mosaic's sample type. 32 bit mosaics come back as an HDR
// image scaled into [0,1].
func (m *Mosaic) Raster(c, t, z int) image.Image {
	g := m.Plane(c, t)
	switch m.BitDepth {
	case 8:
		img := image.NewGray(m.rect())
		m.eachPixel(z, func(x, y int, pos []int) {
			img.Pix[y*img.Stride+x] = uint8(g.At(pos))
		})
		return img
	case 16:
		img := image.NewGray16(m.rect())
		m.eachPixel(z, func(x, y int, pos []int) {
			img.SetGray16(x, y, color.Gray16{Y: uint16(g.At(pos))})
		})
		return img
	}
	return newFloatImage(z, g, g, g)
}

// RGB combines three channels of a timepoint into one colour image.
func (m *Mosaic) RGB(t, z int) image.Image {
	r, g, b := m.Plane(0, t), m.Plane(1, t), m.Plane(2, t)
	switch m.BitDepth {
	case 8:
		img := image.NewNRGBA(m.rect())
		m.eachPixel(z, func(x, y int, pos []int) {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(r.At(pos)), G: uint8(g.At(pos)), B: uint8(b.At(pos)), A: 0xff})
		})
		return img
	case 16:
		img := image.NewNRGBA64(m.rect())
		m.eachPixel(z, func(x, y int, pos []int) {
			img.SetNRGBA64(x, y, color.NRGBA64{R: uint16(r.At(pos)), G: uint16(g.At(pos)), B: uint16(b.At(pos)), A: 0xffff})
		})
		return img
	}
	return newFloatImage(z, r, g, b)
}

// Preview renders an overlay mosaic in false colour: every tile gets
// its own hue, and overlapping tiles add up.
func (m *Mosaic) Preview(t, z int) image.Image {
	img := image.NewNRGBA64(m.rect())
	if m.NumTiles == 0 {
		return img
	}

	hues := make([]colorful.Color, m.NumTiles)
	for k := range hues {
		hues[k] = colorful.Hsv(360*float64(k)/float64(m.NumTiles), 1, 1)
	}
	maxes := make([]float64, m.NumChannels)
	for c := range maxes {
		_, maxes[c] = m.Plane(c, t).MinMax()
	}

	m.eachPixel(z, func(x, y int, pos []int) {
		var r, g, b float64
		for c := 0; c < m.NumChannels; c++ {
			if maxes[c] <= 0 {
				continue
			}
			v := m.Plane(c, t).At(pos) / maxes[c]
			h := hues[c%m.NumTiles]
			r, g, b = r+v*h.R, g+v*h.G, b+v*h.B
		}
		img.SetNRGBA64(x, y, color.NRGBA64{R: to16(r), G: to16(g), B: to16(b), A: 0xffff})
	})
	return img
}

func to16(f float64) uint16 {
	return uint16(emath.Clamp(f, 0, 1) * 0xffff)
}

func (m *Mosaic) eachPixel(z int, f func(x, y int, pos []int)) {
	pos := make([]int, len(m.Size))
	if len(pos) > 2 {
		pos[2] = z
	}
	for y := 0; y < m.Size[1]; y++ {
		for x := 0; x < m.Size[0]; x++ {
			pos[0], pos[1] = x, y
			f(x, y, pos)
		}
	}
}

// floatImage is one z slice of float planes. Implements image.Image and
// hdr.Image.
type floatImage struct {
	r, g, b *emath.FloatGrid
	z       int
	scale   float64
}

func newFloatImage(z int, r, g, b *emath.FloatGrid) floatImage {
	max := 0.0
	for _, p := range []*emath.FloatGrid{r, g, b} {
		if _, m := p.MinMax(); m > max {
			max = m
		}
	}
	scale := 1.0
	if max > 0 {
		scale = 1 / max
	}
	return floatImage{r: r, g: g, b: b, z: z, scale: scale}
}

func (fi floatImage) ColorModel() color.Model { return hdrcolor.RGBModel }
func (fi floatImage) Bounds() image.Rectangle { return image.Rect(0, 0, fi.r.Dx(), fi.r.Dy()) }
func (fi floatImage) At(x, y int) color.Color { return fi.HDRAt(x, y) }
func (fi floatImage) Size() int               { return fi.r.Dx() * fi.r.Dy() }

func (fi floatImage) HDRAt(x, y int) hdrcolor.Color {
	pos := []int{x, y}
	if fi.r.NumDims() > 2 {
		pos = append(pos, fi.z)
	}
	r := math.Max(0, fi.r.At(pos)*fi.scale)
	g := math.Max(0, fi.g.At(pos)*fi.scale)
	b := math.Max(0, fi.b.At(pos)*fi.scale)
	return hdrcolor.RGB{R: r, G: g, B: b}
}
