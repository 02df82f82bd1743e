package stitch

import (
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/tile-stitcher/pkg/emath"
	"github.com/abworrall/tile-stitcher/pkg/fusion"
	"github.com/abworrall/tile-stitcher/pkg/logger"
	"github.com/abworrall/tile-stitcher/pkg/metrics"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

func TestConfigDefaultsValidate(t *testing.T) {
	require.NoError(t, NewConfig().Validate())

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"bad layout", func(c *Config) { c.Layout = "spiral" }},
		{"grid without size", func(c *Config) { c.Layout = "row-by-row" }},
		{"column order on rows", func(c *Config) {
			c.Layout, c.Order, c.GridSizeX, c.GridSizeY = "row-by-row", "down-right", 2, 2
		}},
		{"grid overlap", func(c *Config) {
			c.Layout, c.GridSizeX, c.GridSizeY, c.OverlapX = "snake-by-rows", 2, 2, 1
		}},
		{"file layout without file", func(c *Config) { c.Layout = "positions-from-file" }},
		{"sequential range", func(c *Config) { c.Sequential, c.SeqRange = true, 0 }},
		{"peaks", func(c *Config) { c.CheckPeaks = 0 }},
		{"threshold", func(c *Config) { c.RegThreshold = 1.5 }},
		{"fusion", func(c *Config) { c.Fusion = "median" }},
		{"interpolation", func(c *Config) { c.Interpolation = "cubic" }},
		{"blend fraction", func(c *Config) { c.BlendFraction = -0.1 }},
		{"no output", func(c *Config) { c.OutputName = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewConfig()
			tc.modify(&c)
			assert.ErrorIs(t, c.Validate(), tiles.ErrConfiguration)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "stitch.yaml")
	yml := "layout: snake-by-columns\norder: up-left\ngridsizex: 3\ngridsizey: 2\nfusion: max\n"
	require.NoError(t, os.WriteFile(filename, []byte(yml), 0644))

	c, err := LoadConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, "snake-by-columns", c.Layout)
	assert.Equal(t, 3, c.GridSizeX)
	assert.Equal(t, "max", c.Fusion)
	assert.Equal(t, 5, c.CheckPeaks) // default kept
	require.NoError(t, c.Validate())

	g, err := c.Grid()
	require.NoError(t, err)
	assert.Equal(t, tiles.LeftUp, g.Order)

	again, err := newConfigFromYaml([]byte(c.AsYaml()))
	require.NoError(t, err)
	assert.Equal(t, c, again)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, tiles.ErrConfiguration)
}

// writeTiles cuts a 2x2 grid of overlapping tiles out of a noise image,
// and saves them as PNGs.
func writeTiles(t *testing.T, dir string) (*image.Gray, []string) {
	rng := rand.New(rand.NewSource(11))
	src := image.NewGray(image.Rect(0, 0, 200, 150))
	for i := range src.Pix {
		src.Pix[i] = uint8(rng.Intn(256))
	}

	origins := []image.Point{{0, 0}, {80, 0}, {0, 60}, {80, 60}}
	files := []string{}
	for i, o := range origins {
		tile := src.SubImage(image.Rect(o.X, o.Y, o.X+120, o.Y+90))
		filename := filepath.Join(dir, []string{"tile_00.png", "tile_01.png", "tile_02.png", "tile_03.png"}[i])
		f, err := os.Create(filename)
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, tile))
		require.NoError(t, f.Close())
		files = append(files, filename)
	}
	return src, files
}

func TestRunGrid(t *testing.T) {
	dir := t.TempDir()
	src, files := writeTiles(t, dir)

	c := NewConfig()
	c.Layout = "row-by-row"
	c.GridSizeX, c.GridSizeY = 2, 2
	c.OverlapX, c.OverlapY = 0.3, 0.3
	c.Subpixel = false
	c.Fusion = "average"
	c.Workers = 2
	c.OutputDirectory = dir
	c.OutputName = "mosaic.png"

	log := &logger.MemLogger{}
	s := New(c, log, metrics.NewRun())
	require.NoError(t, s.Run(files))

	assert.Len(t, s.Pairs, 6)
	require.Len(t, s.Result.Tiles, 4)
	expect := [][]float64{{0, 0}, {80, 0}, {0, 60}, {80, 60}}
	for i, tile := range s.Result.Tiles {
		assert.InDeltaSlice(t, expect[i], tile.Model.Params(), 1e-6, tile.Name)
	}

	reader, err := os.Open(filepath.Join(dir, RegisteredConfigurationName))
	require.NoError(t, err)
	defer reader.Close()
	entries, err := tiles.ReadTileConfiguration(reader)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "tile_03.png", entries[3].Filename)
	assert.InDeltaSlice(t, []float64{80, 60}, entries[3].Offset, 1e-6)

	f, err := os.Open(filepath.Join(dir, "mosaic.png"))
	require.NoError(t, err)
	defer f.Close()
	out, err := png.Decode(f)
	require.NoError(t, err)
	gray, ok := out.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, src.Bounds(), gray.Bounds())
	assert.Equal(t, src.Pix, gray.Pix)

	assert.True(t, log.Contains("Loaded tile_00.png: 120x90px"))
	assert.True(t, log.Contains("tile_00.png[1] -> tile_01.png[1]: (80.000, 0.000)"))
	assert.True(t, log.Contains("Global optimization"))
	assert.True(t, log.Contains("Finished, total time"))
}

func TestRunWithoutRegistrationOrFusion(t *testing.T) {
	dir := t.TempDir()
	_, files := writeTiles(t, dir)

	c := NewConfig()
	c.ComputeOverlap = false
	c.Fusion = "none"
	c.OutputDirectory = dir

	s := New(c, &logger.NullLogger{}, nil)
	require.NoError(t, s.Run(files))
	assert.Empty(t, s.Files)
	assert.Nil(t, s.Mosaic)
	assert.Len(t, s.FusedTiles(), 4)

	_, err := os.Stat(filepath.Join(dir, RegisteredConfigurationName))
	assert.True(t, os.IsNotExist(err))
}

func TestRunFailures(t *testing.T) {
	dir := t.TempDir()
	_, files := writeTiles(t, dir)

	s := New(NewConfig(), &logger.NullLogger{}, nil)
	assert.ErrorIs(t, s.Run(files[:1]), tiles.ErrConfiguration)

	s = New(NewConfig(), &logger.NullLogger{}, nil)
	assert.ErrorIs(t, s.Run([]string{filepath.Join(dir, "nope.png"), files[0]}), tiles.ErrIO)
}

func TestRunStopsWhenNoTilesOverlap(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		img := image.NewGray(image.Rect(0, 0, 16, 16))
		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	layout := filepath.Join(dir, "TileConfiguration.txt")
	contents := "dim = 2\na.png; ; (0.0, 0.0)\nb.png; ; (500.0, 0.0)\n"
	require.NoError(t, os.WriteFile(layout, []byte(contents), 0644))

	c := NewConfig()
	c.Layout = "positions-from-file"
	c.TileConfiguration = layout
	c.OutputDirectory = dir
	c.OutputName = "mosaic.png"

	log := &logger.MemLogger{}
	s := New(c, log, nil)
	err := s.Run(nil)
	require.ErrorIs(t, err, tiles.ErrConfiguration)
	assert.True(t, log.Contains("none of the 2 tiles overlap"))

	assert.Empty(t, s.Pairs)
	assert.Empty(t, s.Result.Tiles)
	assert.Nil(t, s.Mosaic)
	assert.Empty(t, s.Files)
	for _, f := range []string{RegisteredConfigurationName, "mosaic.png"} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.True(t, os.IsNotExist(err), f)
	}
}

func TestFuseFailureKeepsRegistration(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(5))
	whole := emath.NewFloatGrid(100, 40)
	for i := range whole.Values() {
		whole.Values()[i] = float64(rng.Intn(256))
	}
	cropA := whole.Crop([]int{0, 0}, []int{60, 40})
	cropB := whole.Crop([]int{40, 0}, []int{100, 40})

	a := tiles.NewTile(0, "a", 60, 40)
	b := tiles.NewTile(1, "b", 60, 40)
	b.SetOffset([]float64{36, 2})
	src := tiles.NewMemorySource(1)
	src.Add(a, tiles.NewImage(8, cropA))
	src.Add(b, tiles.NewImage(8, cropB))

	c := NewConfig()
	c.Subpixel = false
	c.OutputDirectory = dir
	s := New(c, &logger.MemLogger{}, nil)
	require.NoError(t, s.SetTiles([]*tiles.Tile{a, b}, src))
	require.NoError(t, s.Register())
	s.Optimize()
	require.NoError(t, s.WriteTileConfiguration())

	// Same pixels, served as samples no mosaic can be written in
	src.Add(a, tiles.NewImage(12, cropA))
	src.Add(b, tiles.NewImage(12, cropB))
	assert.ErrorIs(t, s.Fuse(), tiles.ErrFusion)
	assert.Nil(t, s.Mosaic)

	assert.False(t, s.Result.Degenerate)
	require.Len(t, s.Result.Tiles, 2)
	assert.InDeltaSlice(t, []float64{0, 0}, s.Result.Tiles[0].Model.Params(), 1e-6)
	assert.InDeltaSlice(t, []float64{40, 0}, s.Result.Tiles[1].Model.Params(), 1e-6)

	reader, err := os.Open(filepath.Join(dir, RegisteredConfigurationName))
	require.NoError(t, err)
	defer reader.Close()
	entries, err := tiles.ReadTileConfiguration(reader)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[1].Filename)
	assert.InDeltaSlice(t, []float64{40, 0}, entries[1].Offset, 1e-6)
}

func mosaic(depth, channels int, size ...int) *fusion.Mosaic {
	m := &fusion.Mosaic{
		Bounds:        fusion.Bounds{Offset: make([]float64, len(size)), Size: size},
		Method:        fusion.Average,
		BitDepth:      depth,
		NumChannels:   channels,
		NumTimepoints: 1,
	}
	for c := 0; c < channels; c++ {
		g := emath.NewFloatGrid(size...)
		for i := range g.Values() {
			g.Values()[i] = float64(i % 200)
		}
		m.Planes = append(m.Planes, g)
	}
	return m
}

func TestWriteMosaicNames(t *testing.T) {
	dir := t.TempDir()

	files, err := WriteMosaic(mosaic(8, 2, 6, 4), dir, "out.tif")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "out_c1_t1.tif"), filepath.Join(dir, "out_c2_t1.tif")}, files)

	files, err = WriteMosaic(mosaic(16, 1, 6, 4, 2), dir, "vol.png")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "vol_z1.png"), filepath.Join(dir, "vol_z2.png")}, files)

	files, err = WriteMosaic(mosaic(8, 3, 6, 4), dir, "rgb.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "rgb.jpg")}, files)

	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestWriteRasterFormats(t *testing.T) {
	dir := t.TempDir()
	m := mosaic(8, 1, 6, 4)
	for _, name := range []string{"a.png", "a.bmp", "a.jpeg", "a.hdr", "a.tiff", "a.raw"} {
		require.NoError(t, WriteRaster(m.Raster(0, 0, 0), filepath.Join(dir, name)), name)
	}

	m32 := mosaic(32, 1, 6, 4)
	require.NoError(t, WriteRaster(m32.Raster(0, 0, 0), filepath.Join(dir, "f.hdr")))

	err := WriteRaster(m.Raster(0, 0, 0), filepath.Join(dir, "missing", "a.png"))
	assert.ErrorIs(t, err, tiles.ErrIO)
}
