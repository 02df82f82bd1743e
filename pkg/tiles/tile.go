package tiles

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/abworrall/tile-stitcher/pkg/emath"
)

// A Tile is one input image of the mosaic, with its own coordinate
// frame. Its Model maps tile-local pixel coordinates into mosaic space.
type Tile struct {
	Index    int
	Name     string
	Filename string

	NumDims int
	Size    []int     // Extent in pixels, per axis
	Offset  []float64 // Approximate position, from the layout
	Model   emath.Model

	NumChannels   int
	NumTimepoints int
	CaptureTime   time.Time // From EXIF, if the file had any
}

func NewTile(index int, name string, size ...int) *Tile {
	t := &Tile{
		Index:         index,
		Name:          name,
		NumDims:       len(size),
		Size:          append([]int(nil), size...),
		NumChannels:   1,
		NumTimepoints: 1,
	}
	t.SetOffset(make([]float64, len(size)))
	return t
}

// NewTileFromFile names the tile after the base of its filename.
func NewTileFromFile(index int, filename string) *Tile {
	return &Tile{
		Index:         index,
		Name:          filepath.Base(filename),
		Filename:      filename,
		NumChannels:   1,
		NumTimepoints: 1,
	}
}

// SetSize records the pixel extent, resetting the offset and model if
// the dimensionality changed.
func (t *Tile) SetSize(size ...int) {
	t.Size = append([]int(nil), size...)
	if t.NumDims != len(size) || len(t.Offset) != len(size) {
		t.NumDims = len(size)
		t.SetOffset(make([]float64, len(size)))
	}
}

// SetOffset sets the approximate position, and resets the model to it.
func (t *Tile) SetOffset(offset []float64) {
	t.Offset = append([]float64(nil), offset...)
	t.Model = emath.NewTranslationModel(offset...)
}

// WorldBounds returns the closed box [min, max] the tile covers in mosaic space.
func (t *Tile) WorldBounds() ([]float64, []float64) {
	lo := make([]float64, t.NumDims)
	hi := make([]float64, t.NumDims)
	for d := range hi {
		hi[d] = float64(t.Size[d] - 1)
	}
	return t.Model.Apply(lo), t.Model.Apply(hi)
}

func (t *Tile) String() string {
	return fmt.Sprintf("%s%v@%v", t.Name, t.Size, t.Model)
}

// A Roi is the half-open box [Min, Max) of a tile; Full means the whole tile.
type Roi struct {
	Min, Max []int
	Full     bool
}

func FullRoi() Roi { return Roi{Full: true} }

// Resolve turns a Full roi into explicit bounds for a tile of the given size.
func (r Roi) Resolve(size []int) Roi {
	if !r.Full {
		return r
	}
	return Roi{Min: make([]int, len(size)), Max: append([]int(nil), size...)}
}

func (r Roi) Size() []int {
	s := make([]int, len(r.Min))
	for d := range s {
		s[d] = r.Max[d] - r.Min[d]
	}
	return s
}

func (r Roi) String() string {
	if r.Full {
		return "full"
	}
	return fmt.Sprintf("%v-%v", r.Min, r.Max)
}
