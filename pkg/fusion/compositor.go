package fusion

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/abworrall/tile-stitcher/pkg/emath"
	"github.com/abworrall/tile-stitcher/pkg/logger"
	"github.com/abworrall/tile-stitcher/pkg/metrics"
	"github.com/abworrall/tile-stitcher/pkg/parallel"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

type Interpolation int

const (
	Linear Interpolation = iota
	Nearest
)

func (i Interpolation) String() string {
	if i == Nearest {
		return "nearest"
	}
	return "linear"
}

func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear", "":
		return Linear, nil
	case "nearest":
		return Nearest, nil
	}
	return Linear, errors.Wrapf(tiles.ErrConfiguration, "interpolation %q not known", s)
}

// Bounds is the box of mosaic space covered by the output.
type Bounds struct {
	Offset []float64 // Mosaic position of output sample 0
	Size   []int
}

// EstimateBounds returns the union of the tiles' extents under their
// models. Output sample 0 sits at the minimum corner.
func EstimateBounds(ts []*tiles.Tile) Bounds {
	n := ts[0].NumDims
	lo := make([]float64, n)
	hi := make([]float64, n)
	for d := range lo {
		lo[d], hi[d] = math.Inf(1), math.Inf(-1)
	}

	for _, t := range ts {
		min, max := t.WorldBounds()
		for d := 0; d < n; d++ {
			lo[d] = math.Min(lo[d], min[d])
			hi[d] = math.Max(hi[d], max[d])
		}
	}

	b := Bounds{Offset: lo, Size: make([]int, n)}
	for d := range b.Size {
		b.Size[d] = emath.Round(hi[d]-lo[d]) + 1
	}
	return b
}

type Compositor struct {
	Method        Method
	BlendFraction float64
	Interpolation Interpolation
	Workers       int

	Log     logger.ILogger
	Metrics *metrics.Run
}

func NewCompositor(m Method, log logger.ILogger) Compositor {
	return Compositor{Method: m, BlendFraction: 0.2, Log: log}
}

// Fuse renders every channel and timepoint of the tiles into a mosaic,
// one plane at a time. The tiles' models are only read.
func (c Compositor) Fuse(src tiles.Source, ts []*tiles.Tile) (*Mosaic, error) {
	if len(ts) == 0 {
		return nil, errors.Wrap(tiles.ErrFusion, "no tiles to fuse")
	}
	if c.Method == None {
		return nil, errors.Wrap(tiles.ErrFusion, "fusion method is none")
	}

	b := EstimateBounds(ts)
	numChannels, numTimepoints := ts[0].NumChannels, ts[0].NumTimepoints
	m := &Mosaic{
		Bounds:        b,
		Method:        c.Method,
		NumChannels:   numChannels,
		NumTimepoints: numTimepoints,
	}
	if c.Method == Overlay {
		m.NumChannels = numChannels * len(ts)
		m.NumTiles = len(ts)
	}
	c.Log.Infof("Fusing %d tiles into %v px with %s fusion (%s interpolation)", len(ts), b.Size, c.Method, c.Interpolation)

	for t := 0; t < numTimepoints; t++ {
		for ch := 1; ch <= numChannels; ch++ {
			start := time.Now()
			planes, depth, err := openPlanes(src, ts, ch, t)
			if err != nil {
				return nil, err
			}
			if depth > m.BitDepth {
				m.BitDepth = depth
			}

			if c.Method == Overlay {
				for k := range ts {
					out, err := c.fusePlanes(planes[k:k+1], ts[k:k+1], b)
					if err != nil {
						return nil, err
					}
					m.Planes = append(m.Planes, out)
				}
			} else {
				out, err := c.fusePlanes(planes, ts, b)
				if err != nil {
					return nil, err
				}
				m.Planes = append(m.Planes, out)
			}

			elapsed := time.Since(start)
			c.Metrics.Fused(elapsed)
			c.Log.Infof("Fused channel %d, timepoint %d (%d ms)", ch, t+1, elapsed.Milliseconds())
		}
	}

	if err := m.quantize(); err != nil {
		return nil, err
	}
	return m, nil
}

func openPlanes(src tiles.Source, ts []*tiles.Tile, channel, timepoint int) ([]emath.FloatGrid, int, error) {
	planes := make([]emath.FloatGrid, len(ts))
	depth := 0
	for k, t := range ts {
		p, err := src.OpenPlane(t, channel, timepoint, tiles.FullRoi())
		if err != nil {
			return nil, 0, errors.Wrapf(tiles.ErrFusion, "%s channel %d timepoint %d: %v", t.Name, channel, timepoint+1, err)
		}
		planes[k] = p.FloatGrid
		if p.BitDepth > depth {
			depth = p.BitDepth
		}
	}
	return planes, depth, nil
}

// fusePlanes fills every output sample from the tiles that cover it.
// The output is cut into one contiguous run of samples per worker, and
// each worker has its own accumulator.
func (c Compositor) fusePlanes(planes []emath.FloatGrid, ts []*tiles.Tile, b Bounds) (emath.FloatGrid, error) {
	sizes := make([][]int, len(ts))
	for k, t := range ts {
		sizes[k] = t.Size
	}

	method := c.Method
	if method == Overlay {
		method = Max // Only ever one contribution
	}
	proto, err := New(method, c.BlendFraction, sizes)
	if err != nil {
		return emath.FloatGrid{}, err
	}

	sample := (*emath.FloatGrid).LinearAt
	if c.Interpolation == Nearest {
		sample = (*emath.FloatGrid).NearestAt
	}

	out := emath.NewFloatGrid(b.Size...)
	dst := out.Values()
	n := len(b.Size)

	parallel.Chunks(len(dst), c.Workers, func(chunk parallel.Chunk) {
		acc := proto.Clone()
		pos := make([]int, n)
		world := make([]float64, n)

		for i := chunk.Start; i < chunk.End; i++ {
			out.Position(i, pos)
			for d := range pos {
				world[d] = float64(pos[d]) + b.Offset[d]
			}

			acc.Clear()
			for k, t := range ts {
				local := t.Model.ApplyInverse(world)
				if !covers(local, t.Size) {
					continue
				}
				acc.Add(sample(&planes[k], local), k, local)
			}
			dst[i] = acc.Value()
		}
	})
	return out, nil
}

// edgeTolerance absorbs rounding in fitted models, so a tile still
// covers its own first and last samples.
const edgeTolerance = 1e-6

// covers reports whether `local` lies within [0, size-1] on every axis.
func covers(local []float64, size []int) bool {
	for d, v := range local {
		if v < -edgeTolerance || v > float64(size[d]-1)+edgeTolerance {
			return false
		}
	}
	return true
}
