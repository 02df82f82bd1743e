package tiles

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/abworrall/tile-stitcher/pkg/emath"
	"github.com/abworrall/tile-stitcher/pkg/parallel"
)

// AverageChannels asks OpenPlane for the mean over all channels.
const AverageChannels = 0

// A Plane is one channel of one timepoint of a tile (or a crop of it).
type Plane struct {
	emath.FloatGrid
	BitDepth int
}

// A Source supplies pixel data for tiles.
type Source interface {
	Exists(t *Tile) bool
	// OpenPlane returns channel `channel` (1-based, or AverageChannels) of
	// timepoint `timepoint` (0-based), cropped to `roi`.
	OpenPlane(t *Tile, channel, timepoint int, roi Roi) (Plane, error)
}

// An Image is the decoded pixel data of a tile: one FloatGrid per
// channel and timepoint.
type Image struct {
	Dims          []int
	NumChannels   int
	NumTimepoints int
	BitDepth      int
	Planes        []emath.FloatGrid // Index is c + t*NumChannels, both 0-based
}

func NewImage(bitDepth int, planes ...emath.FloatGrid) *Image {
	return &Image{
		Dims:          planes[0].Dims(),
		NumChannels:   len(planes),
		NumTimepoints: 1,
		BitDepth:      bitDepth,
		Planes:        planes,
	}
}

func (img *Image) Plane(c, t int) *emath.FloatGrid {
	return &img.Planes[c+t*img.NumChannels]
}

// MemorySource serves tiles from decoded images held in memory. Adding
// images is safe from several goroutines; reading is lock free once
// loading has finished.
type MemorySource struct {
	Workers int // Used to average channels

	mu     sync.Mutex
	images map[int]*Image
}

func NewMemorySource(workers int) *MemorySource {
	return &MemorySource{Workers: workers, images: map[int]*Image{}}
}

// Add stores the image for the tile, and copies its geometry onto the tile.
func (s *MemorySource) Add(t *Tile, img *Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[t.Index] = img
	t.SetSize(img.Dims...)
	t.NumChannels = img.NumChannels
	t.NumTimepoints = img.NumTimepoints
}

func (s *MemorySource) image(t *Tile) *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[t.Index]
}

func (s *MemorySource) Exists(t *Tile) bool {
	return s.image(t) != nil
}

func (s *MemorySource) BitDepth(t *Tile) int {
	if img := s.image(t); img != nil {
		return img.BitDepth
	}
	return 0
}

func (s *MemorySource) OpenPlane(t *Tile, channel, timepoint int, roi Roi) (Plane, error) {
	img := s.image(t)
	if img == nil {
		return Plane{}, errors.Wrapf(ErrIO, "tile %s not loaded", t.Name)
	}

	switch img.BitDepth {
	case 8, 16, 32:
	default:
		return Plane{}, errors.Wrapf(ErrUnsupportedSampleType, "tile %s has %d bit samples", t.Name, img.BitDepth)
	}
	if channel < 0 || channel > img.NumChannels {
		return Plane{}, errors.Wrapf(ErrConfiguration, "tile %s has no channel %d", t.Name, channel)
	}
	if timepoint < 0 || timepoint >= img.NumTimepoints {
		return Plane{}, errors.Wrapf(ErrConfiguration, "tile %s has no timepoint %d", t.Name, timepoint+1)
	}

	r := roi.Resolve(img.Dims)
	if channel != AverageChannels {
		return Plane{FloatGrid: img.Plane(channel-1, timepoint).Crop(r.Min, r.Max), BitDepth: img.BitDepth}, nil
	}

	crops := make([]emath.FloatGrid, img.NumChannels)
	for c := range crops {
		crops[c] = img.Plane(c, timepoint).Crop(r.Min, r.Max)
	}
	return Plane{FloatGrid: averagePlanes(crops, s.Workers), BitDepth: img.BitDepth}, nil
}

// averagePlanes sums the planes and divides by their count, each worker
// owning a contiguous run of samples.
func averagePlanes(planes []emath.FloatGrid, workers int) emath.FloatGrid {
	if len(planes) == 1 {
		return planes[0]
	}
	out := planes[0].NewFromThis()
	dst := out.Values()
	n := float64(len(planes))

	parallel.Chunks(len(dst), workers, func(c parallel.Chunk) {
		for i := c.Start; i < c.End; i++ {
			sum := 0.0
			for p := range planes {
				sum += planes[p].Values()[i]
			}
			dst[i] = sum / n
		}
	})
	return out
}
