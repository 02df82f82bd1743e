package tiles

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/tile-stitcher/pkg/emath"
	"github.com/abworrall/tile-stitcher/pkg/logger"
)

func rampGrid(w, h int, scale float64) emath.FloatGrid {
	g := emath.NewFloatGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, scale*float64(x+10*y))
		}
	}
	return g
}

func TestMemorySourceOpenPlane(t *testing.T) {
	tile := NewTile(3, "rgb", 1, 1)
	src := NewMemorySource(4)
	src.Add(tile, NewImage(16, rampGrid(8, 6, 1), rampGrid(8, 6, 2), rampGrid(8, 6, 3)))

	assert.True(t, src.Exists(tile))
	assert.Equal(t, []int{8, 6}, tile.Size)
	assert.Equal(t, 3, tile.NumChannels)

	p, err := src.OpenPlane(tile, 2, 0, Roi{Min: []int{2, 1}, Max: []int{5, 4}})
	require.NoError(t, err)
	assert.Equal(t, 16, p.BitDepth)
	assert.Equal(t, []int{3, 3}, p.Dims())
	assert.Equal(t, 2.0*(2+10*1), p.Get(0, 0))

	avg, err := src.OpenPlane(tile, AverageChannels, 0, FullRoi())
	require.NoError(t, err)
	assert.Equal(t, []int{8, 6}, avg.Dims())
	assert.InDelta(t, 2.0*(7+10*5), avg.Get(7, 5), 1e-9)
}

func TestMemorySourceErrors(t *testing.T) {
	src := NewMemorySource(1)
	tile := NewTile(0, "a", 4, 4)

	_, err := src.OpenPlane(tile, 1, 0, FullRoi())
	assert.ErrorIs(t, err, ErrIO)

	src.Add(tile, NewImage(12, rampGrid(4, 4, 1)))
	_, err = src.OpenPlane(tile, 1, 0, FullRoi())
	assert.ErrorIs(t, err, ErrUnsupportedSampleType)

	src.Add(tile, NewImage(8, rampGrid(4, 4, 1)))
	_, err = src.OpenPlane(tile, 2, 0, FullRoi())
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = src.OpenPlane(tile, 1, 1, FullRoi())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestCheckConsistent(t *testing.T) {
	a := NewTile(0, "a", 4, 4)
	b := NewTile(1, "b", 4, 4)
	require.NoError(t, CheckConsistent([]*Tile{a, b}))

	assert.ErrorIs(t, CheckConsistent([]*Tile{a}), ErrConfiguration)
	assert.ErrorIs(t, CheckConsistent([]*Tile{a, NewTile(2, "c", 4, 4, 4)}), ErrIO)

	b.NumChannels = 3
	assert.ErrorIs(t, CheckConsistent([]*Tile{a, b}), ErrIO)
	b.NumChannels = 1
	b.NumTimepoints = 2
	assert.ErrorIs(t, CheckConsistent([]*Tile{a, b}), ErrIO)
}

func TestImageFromGo(t *testing.T) {
	gray := image.NewGray16(image.Rect(0, 0, 3, 2))
	gray.SetGray16(2, 1, color.Gray16{Y: 40000})
	img, err := ImageFromGo(gray)
	require.NoError(t, err)
	assert.Equal(t, 16, img.BitDepth)
	assert.Equal(t, 1, img.NumChannels)
	assert.Equal(t, 40000.0, img.Plane(0, 0).Get(2, 1))

	rgb := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rgb.Set(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img, err = ImageFromGo(rgb)
	require.NoError(t, err)
	assert.Equal(t, 8, img.BitDepth)
	assert.Equal(t, 3, img.NumChannels)
	assert.Equal(t, 10.0, img.Plane(0, 0).Get(1, 0))
	assert.Equal(t, 30.0, img.Plane(2, 0).Get(1, 0))
}

func writeGrayPNG(t *testing.T, filename string, w, h int) {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 251)
	}
	f, err := os.Create(filename)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestExpandAndLoad(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	writeGrayPNG(t, filepath.Join(dir, "a.png"), 20, 10)
	writeGrayPNG(t, filepath.Join(sub, "b.png"), 20, 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stitch.yaml"), []byte("verbosity: 1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0644))

	in, err := ExpandFilesAndDirs(dir)
	require.NoError(t, err)
	require.Len(t, in.Images, 2)
	require.Len(t, in.Configs, 1)

	tiles := []*Tile{}
	for i, f := range in.Images {
		tiles = append(tiles, NewTileFromFile(i, f))
	}
	src := NewMemorySource(2)
	log := &logger.MemLogger{}
	require.NoError(t, Loader{Workers: 2, Log: log}.Load(tiles, src))

	assert.Equal(t, []int{20, 10}, tiles[1].Size)
	assert.True(t, log.Contains("Loaded b.png: 20x10px"))

	p, err := src.OpenPlane(tiles[0], 1, 0, FullRoi())
	require.NoError(t, err)
	assert.Equal(t, 8, p.BitDepth)
	assert.Equal(t, 21.0, p.Get(1, 1))

	_, err = ExpandFilesAndDirs(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, ErrIO)
}
