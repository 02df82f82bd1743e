package register

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/tile-stitcher/pkg/emath"
	"github.com/abworrall/tile-stitcher/pkg/logger"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

func noise(seed int64, dims ...int) emath.FloatGrid {
	rng := rand.New(rand.NewSource(seed))
	g := emath.NewFloatGrid(dims...)
	for i := range g.Values() {
		g.Values()[i] = 1000 * rng.Float64()
	}
	return g
}

func crop(g emath.FloatGrid, min []int, size ...int) emath.FloatGrid {
	max := make([]int, len(min))
	for d := range min {
		max[d] = min[d] + size[d]
	}
	return g.Crop(min, max)
}

func TestPhaseCorrelateIntegerShift(t *testing.T) {
	img := noise(1, 160, 120)

	tests := []struct {
		name   string
		aAt    []int
		bAt    []int
		expect []float64
	}{
		{"right and down", []int{0, 0}, []int{17, 9}, []float64{17, 9}},
		{"left and down", []int{20, 10}, []int{8, 15}, []float64{-12, 5}},
		{"up only", []int{30, 40}, []int{30, 5}, []float64{0, -35}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := crop(img, tc.aAt, 80, 64)
			b := crop(img, tc.bAt, 80, 64)

			res, err := PhaseCorrelate(&a, &b, 5, false)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, res.Shift)
			assert.Greater(t, res.Correlation, 0.9)
			assert.LessOrEqual(t, res.Correlation, 1.0+1e-9)

			res, err = PhaseCorrelate(&a, &b, 5, true)
			require.NoError(t, err)
			for d := range tc.expect {
				assert.InDelta(t, tc.expect[d], res.Shift[d], 0.1)
			}
			assert.Greater(t, res.Correlation, 0.9)
		})
	}
}

func TestPhaseCorrelateDifferentSizes(t *testing.T) {
	img := noise(2, 150, 100)
	a := crop(img, []int{0, 0}, 90, 70)
	b := crop(img, []int{40, 20}, 70, 60)

	res, err := PhaseCorrelate(&a, &b, 5, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 20}, res.Shift)
	assert.Greater(t, res.Correlation, 0.9)
}

func TestPhaseCorrelate3D(t *testing.T) {
	vol := noise(3, 24, 22, 18)
	a := crop(vol, []int{0, 0, 0}, 16, 14, 12)
	b := crop(vol, []int{3, 2, 1}, 16, 14, 12)

	res, err := PhaseCorrelate(&a, &b, 5, true)
	require.NoError(t, err)
	for d, want := range []float64{3, 2, 1} {
		assert.InDelta(t, want, res.Shift[d], 0.1)
	}
	assert.Greater(t, res.Correlation, 0.9)
}

func TestPhaseCorrelateFlatFails(t *testing.T) {
	a := emath.NewFloatGrid(32, 32)
	b := emath.NewFloatGrid(32, 32)
	_, err := PhaseCorrelate(&a, &b, 5, false)
	assert.ErrorIs(t, err, tiles.ErrRegistration)

	c := emath.NewFloatGrid(8, 8, 8)
	_, err = PhaseCorrelate(&a, &c, 5, false)
	assert.ErrorIs(t, err, tiles.ErrRegistration)
}

func TestWrapAlternatives(t *testing.T) {
	alts := wrapAlternatives([]int{3, 7}, []int{10, 20})
	assert.ElementsMatch(t, [][]int{{3, 7}, {-7, 7}, {3, -13}, {-7, -13}}, alts)
}

func TestNeighbourOffsets(t *testing.T) {
	assert.Len(t, neighbourOffsets(2), 8)
	assert.Len(t, neighbourOffsets(3), 26)
}

func TestFindPeaks(t *testing.T) {
	s := emath.NewFloatGrid(10, 10)
	s.Set(2, 2, 5)
	s.Set(7, 3, 9)
	s.Set(9, 9, 7) // wraps round to neighbour (0,0)
	s.Set(0, 0, 6)

	peaks := findPeaks(&s, 3)
	require.Len(t, peaks, 3)
	assert.Equal(t, []int{7, 3}, peaks[0].pos)
	assert.Equal(t, []int{9, 9}, peaks[1].pos)
	assert.Equal(t, []int{2, 2}, peaks[2].pos)
}

func TestSubpixelOffset(t *testing.T) {
	s := emath.NewFloatGrid(20, 20)
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			dx, dy := float64(x)-10.3, float64(y)-7.6
			s.Set(x, y, 100-dx*dx-dy*dy-0.5*dx*dy)
		}
	}
	off := subpixelOffset(&s, []int{10, 8})
	assert.InDelta(t, 0.3, off[0], 1e-9)
	assert.InDelta(t, -0.4, off[1], 1e-9)

	// On the border, the x axis can't be fitted
	off = subpixelOffset(&s, []int{0, 8})
	assert.Equal(t, 0.0, off[0])

	// A far away extremum is clamped to one sample
	off = subpixelOffset(&s, []int{15, 8})
	assert.Equal(t, -1.0, off[0])
	assert.False(t, math.IsNaN(off[1]))
}

func pairSource() (*tiles.MemorySource, *tiles.Pair) {
	img := noise(4, 130, 70)
	src := tiles.NewMemorySource(2)
	a := tiles.NewTile(0, "a", 80, 64)
	b := tiles.NewTile(1, "b", 80, 64)
	src.Add(a, tiles.NewImage(16, crop(img, []int{0, 0}, 80, 64)))
	src.Add(b, tiles.NewImage(16, crop(img, []int{50, 6}, 80, 64)))

	p := tiles.NewPair(a, b)
	p.RoiA = tiles.Roi{Min: []int{45, 0}, Max: []int{80, 64}}
	p.RoiB = tiles.Roi{Min: []int{0, 0}, Max: []int{35, 64}}
	return src, p
}

func TestPairwiseUsesCropOrigins(t *testing.T) {
	src, p := pairSource()
	res, err := Pairwise(src, p, Params{CheckPeaks: 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 6}, res.Shift)
	assert.Greater(t, res.Correlation, 0.9)
}

func TestRegisterAll(t *testing.T) {
	src, good := pairSource()

	c := tiles.NewTile(2, "c", 80, 64)
	src.Add(c, tiles.NewImage(12, emath.NewFloatGrid(80, 64)))
	bad := tiles.NewPair(good.A, c)
	bad.Valid = true

	log := &logger.MemLogger{}
	failed := RegisterAll(src, []*tiles.Pair{good, bad}, Params{CheckPeaks: 5}, 2, log, nil)
	assert.Equal(t, 1, failed)

	assert.True(t, good.Valid)
	assert.True(t, good.Registered)
	assert.Equal(t, []float64{50, 6}, good.Shift)

	assert.False(t, bad.Valid)
	assert.False(t, bad.Registered)
	assert.True(t, log.Contains("a[1] -> b[1]: (50.000, 6.000)"))
	assert.True(t, log.Contains("unsupported sample type"))
}

func TestLogTimings(t *testing.T) {
	log := &logger.MemLogger{}
	dropped := logTimings([]time.Duration{500 * time.Nanosecond, 2 * time.Millisecond, 10 * time.Hour}, log)
	assert.Equal(t, 1, dropped)
	assert.True(t, log.Contains("left out of the summary"))
	assert.True(t, log.Contains("Pair registration times over 2 pairs"))
	assert.True(t, log.Contains("(1 left out)"))

	log = &logger.MemLogger{}
	assert.Equal(t, 0, logTimings([]time.Duration{0, time.Microsecond}, log))
	assert.True(t, log.Contains("over 2 pairs"))
	assert.False(t, log.Contains("left out of the summary"))

	assert.Equal(t, 0, logTimings(nil, log))
}
