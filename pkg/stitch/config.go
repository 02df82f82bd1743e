package stitch

import (
	"log"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/tile-stitcher/pkg/fusion"
	"github.com/abworrall/tile-stitcher/pkg/optimize"
	"github.com/abworrall/tile-stitcher/pkg/parallel"
	"github.com/abworrall/tile-stitcher/pkg/register"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

/* Example config file ...

layout: snake-by-rows
order: right-down
gridsizex: 4
gridsizey: 3
overlapx: 0.2
overlapy: 0.2
fusion: linear-blending
regthreshold: 0.3
outputname: mosaic.tif

*/

type Config struct {
	Verbosity int

	// Where the tiles are
	Layout            string
	Order             string
	GridSizeX         int
	GridSizeY         int
	OverlapX          float64 // Fraction of a tile shared with its neighbour
	OverlapY          float64
	TileConfiguration string // For the positions-from-file layout
	SortByCaptureTime bool

	// Registration
	ComputeOverlap    bool // If false, tiles stay where the layout put them
	Sequential        bool // Compare each tile with the next SeqRange tiles only
	SeqRange          int
	CheckPeaks        int
	Subpixel          bool
	Channel1          int // 0 averages all channels
	Channel2          int
	RegThreshold      float64
	RelativeThreshold float64
	AbsoluteThreshold float64
	IgnoreZ           bool

	// Fusion
	Fusion        string
	BlendFraction float64
	Interpolation string

	MemoryConstrained bool
	Workers           int // 0 means one per CPU

	OutputDirectory string
	OutputName      string
	DumpCorrelation bool   // Write every correlation surface as a PNG
	MetricsAddr     string // e.g. ":9090"; empty means no metrics server
}

func NewConfig() Config {
	return Config{
		Layout:            "unknown-positions",
		Order:             "right-down",
		OverlapX:          0.2,
		OverlapY:          0.2,
		ComputeOverlap:    true,
		SeqRange:          1,
		CheckPeaks:        5,
		Subpixel:          true,
		RegThreshold:      0.3,
		RelativeThreshold: 2.5,
		AbsoluteThreshold: 3.5,
		Fusion:            fusion.Blend.String(),
		BlendFraction:     0.2,
		Interpolation:     fusion.Linear.String(),
		OutputDirectory:   ".",
		OutputName:        "fused.tif",
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

// LoadConfig reads a yaml file over the defaults.
func LoadConfig(filename string) (Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return NewConfig(), errors.Wrapf(tiles.ErrConfiguration, "read '%s': %v", filename, err)
	}
	c, err := newConfigFromYaml(contents)
	if err != nil {
		return c, errors.Wrapf(tiles.ErrConfiguration, "parse '%s': %v", filename, err)
	}
	return c, nil
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// Validate checks every setting, so a run never fails halfway through
// on a typo.
func (c Config) Validate() error {
	layout, err := tiles.ParseLayout(c.Layout)
	if err != nil {
		return err
	}
	if layout.IsGrid() {
		if _, err := c.Grid(); err != nil {
			return err
		}
	}
	if layout == tiles.PositionsFromFile && c.TileConfiguration == "" {
		return errors.Wrap(tiles.ErrConfiguration, "positions-from-file needs a tile configuration file")
	}
	if c.Sequential && c.SeqRange < 1 {
		return errors.Wrapf(tiles.ErrConfiguration, "sequential range %d must be at least 1", c.SeqRange)
	}
	if c.CheckPeaks < 1 {
		return errors.Wrapf(tiles.ErrConfiguration, "checkpeaks %d must be at least 1", c.CheckPeaks)
	}
	if c.Channel1 < 0 || c.Channel2 < 0 {
		return errors.Wrapf(tiles.ErrConfiguration, "channels (%d, %d) can't be negative", c.Channel1, c.Channel2)
	}
	if c.RegThreshold < 0 || c.RegThreshold > 1 {
		return errors.Wrapf(tiles.ErrConfiguration, "regthreshold %.2f must be in [0,1]", c.RegThreshold)
	}
	if c.RelativeThreshold <= 0 || c.AbsoluteThreshold <= 0 {
		return errors.Wrapf(tiles.ErrConfiguration, "error thresholds (%.2f, %.2f) must be positive",
			c.RelativeThreshold, c.AbsoluteThreshold)
	}
	if _, err := fusion.ParseMethod(c.Fusion); err != nil {
		return err
	}
	if c.BlendFraction < 0 || c.BlendFraction > 1 {
		return errors.Wrapf(tiles.ErrConfiguration, "blendfraction %.2f must be in [0,1]", c.BlendFraction)
	}
	if _, err := fusion.ParseInterpolation(c.Interpolation); err != nil {
		return err
	}
	if c.Workers < 0 {
		return errors.Wrapf(tiles.ErrConfiguration, "workers %d", c.Workers)
	}
	if c.OutputName == "" {
		return errors.Wrap(tiles.ErrConfiguration, "no output name")
	}
	return nil
}

func (c Config) Grid() (tiles.Grid, error) {
	layout, err := tiles.ParseLayout(c.Layout)
	if err != nil {
		return tiles.Grid{}, err
	}
	order, err := tiles.ParseOrder(layout, c.Order)
	if err != nil {
		return tiles.Grid{}, err
	}
	g := tiles.Grid{
		Layout:   layout,
		Order:    order,
		SizeX:    c.GridSizeX,
		SizeY:    c.GridSizeY,
		OverlapX: c.OverlapX,
		OverlapY: c.OverlapY,
	}
	return g, g.Validate()
}

func (c Config) NumWorkers() int {
	return parallel.NumWorkers(c.MemoryConstrained, c.Workers)
}

func (c Config) RegisterParams() register.Params {
	return register.Params{
		CheckPeaks: c.CheckPeaks,
		Subpixel:   c.Subpixel,
		Channel1:   c.Channel1,
		Channel2:   c.Channel2,
		IgnoreZ:    c.IgnoreZ,
	}
}

func (c Config) OptimizeParams() optimize.Params {
	p := optimize.DefaultParams()
	p.RegThreshold = c.RegThreshold
	p.RelativeThreshold = c.RelativeThreshold
	p.AbsoluteThreshold = c.AbsoluteThreshold
	p.IgnoreZ = c.IgnoreZ
	return p
}
