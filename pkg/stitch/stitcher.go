// Package stitch runs the whole pipeline: load tiles, find overlapping
// pairs, register them, place the tiles globally, and fuse a mosaic.
package stitch

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/abworrall/tile-stitcher/pkg/fusion"
	"github.com/abworrall/tile-stitcher/pkg/logger"
	"github.com/abworrall/tile-stitcher/pkg/metrics"
	"github.com/abworrall/tile-stitcher/pkg/optimize"
	"github.com/abworrall/tile-stitcher/pkg/overlap"
	"github.com/abworrall/tile-stitcher/pkg/register"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

const RegisteredConfigurationName = "TileConfiguration.registered.txt"

// A Stitcher holds the state of one run. The stages run one after the
// other; each stage's parallel work is done before the next starts.
type Stitcher struct {
	Config
	Log     logger.ILogger
	Metrics *metrics.Run

	Source *tiles.MemorySource
	Tiles  []*tiles.Tile // In layout order
	Pairs  []*tiles.Pair
	Result optimize.Result
	Mosaic *fusion.Mosaic
	Files  []string // Everything written so far
}

func New(c Config, log logger.ILogger, m *metrics.Run) *Stitcher {
	return &Stitcher{Config: c, Log: log, Metrics: m}
}

// Run stitches the image files. Configuration and I/O problems abort the
// run; a fusion failure still leaves the registered tile configuration
// on disk.
func (s *Stitcher) Run(images []string) error {
	start := time.Now()
	if err := s.Validate(); err != nil {
		return err
	}

	if err := s.Load(images); err != nil {
		return err
	}

	if s.ComputeOverlap {
		if err := s.Register(); err != nil {
			return err
		}
		s.Optimize()
		if err := s.WriteTileConfiguration(); err != nil {
			return err
		}
	} else {
		s.Log.Infof("Not computing overlaps, tiles stay where the layout put them")
	}

	if err := s.Fuse(); err != nil {
		return err
	}
	if err := s.Write(); err != nil {
		return err
	}

	s.Log.Infof("Finished, total time %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// Load creates a tile per image (or per entry of the tile configuration
// file), decodes them all, and places them as the layout says.
func (s *Stitcher) Load(images []string) error {
	layout, err := tiles.ParseLayout(s.Layout)
	if err != nil {
		return err
	}

	ts := []*tiles.Tile{}
	if layout == tiles.PositionsFromFile {
		if ts, err = tiles.LoadTileConfigurationFile(s.TileConfiguration); err != nil {
			return err
		}
	} else {
		for i, f := range images {
			ts = append(ts, tiles.NewTileFromFile(i, f))
		}
	}
	if len(ts) < 2 {
		return errors.Wrapf(tiles.ErrConfiguration, "need at least two tiles, have %d", len(ts))
	}

	src := tiles.NewMemorySource(s.NumWorkers())
	loader := tiles.Loader{Workers: s.NumWorkers(), Log: s.Log}
	if err := loader.Load(ts, src); err != nil {
		return err
	}
	s.Metrics.TilesLoaded(len(ts))

	return s.SetTiles(ts, src)
}

// SetTiles installs already loaded tiles, ordering and arranging them
// as the configuration says.
func (s *Stitcher) SetTiles(ts []*tiles.Tile, src *tiles.MemorySource) error {
	if err := tiles.CheckConsistent(ts); err != nil {
		return err
	}
	layout, err := tiles.ParseLayout(s.Layout)
	if err != nil {
		return err
	}

	if s.SortByCaptureTime {
		tiles.SortByCaptureTime(ts)
	}
	if layout.IsGrid() {
		grid, err := s.Grid()
		if err != nil {
			return err
		}
		if ts, err = grid.Arrange(ts); err != nil {
			return err
		}
	}

	s.Tiles, s.Source = ts, src
	return nil
}

// Register finds the candidate pairs and registers them all. A layout
// with no overlapping tiles at all ends the run here.
func (s *Stitcher) Register() error {
	opts := overlap.Options{Mode: overlap.BoundingBox, SeqRange: s.SeqRange}
	if s.Sequential {
		opts.Mode = overlap.Sequential
	}
	pairs, err := overlap.FindPairs(s.Tiles, opts, s.Log)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		err := errors.Wrapf(tiles.ErrConfiguration, "none of the %d tiles overlap, nothing to register", len(s.Tiles))
		s.Log.Errorf("%v", err)
		return err
	}
	s.Log.Infof("Registering %d pairs of tiles", len(pairs))

	params := s.RegisterParams()
	if s.DumpCorrelation {
		params.DumpDir = s.OutputDirectory
	}
	if failed := register.RegisterAll(s.Source, pairs, params, s.NumWorkers(), s.Log, s.Metrics); failed > 0 {
		s.Log.Errorf("%d of %d pairs could not be registered", failed, len(pairs))
	}
	s.Pairs = pairs
	return nil
}

// Optimize places the tiles. Only tiles that ended up connected to the
// graph (or the anchor alone) go on to fusion.
func (s *Stitcher) Optimize() {
	anchor := s.Tiles[0]
	if len(s.Pairs) > 0 {
		anchor = s.Pairs[0].A
	}
	s.Result = optimize.Optimize(s.Pairs, anchor, s.OptimizeParams(), s.Log, s.Metrics)
	for _, t := range s.Result.Tiles {
		s.Log.Infof("%s: %s", t.Name, t.Model)
	}
}

// FusedTiles are the tiles that make up the mosaic.
func (s *Stitcher) FusedTiles() []*tiles.Tile {
	if s.ComputeOverlap {
		return s.Result.Tiles
	}
	return s.Tiles
}

func (s *Stitcher) WriteTileConfiguration() error {
	filename := filepath.Join(s.OutputDirectory, RegisteredConfigurationName)
	if err := tiles.WriteTileConfigurationFile(filename, s.Result.Tiles); err != nil {
		return err
	}
	s.Files = append(s.Files, filename)
	s.Log.Infof("Wrote %s", filename)
	return nil
}

func (s *Stitcher) Fuse() error {
	method, err := fusion.ParseMethod(s.Fusion)
	if err != nil {
		return err
	}
	if method == fusion.None {
		s.Log.Infof("Not fusing")
		return nil
	}
	interp, err := fusion.ParseInterpolation(s.Interpolation)
	if err != nil {
		return err
	}

	c := fusion.Compositor{
		Method:        method,
		BlendFraction: s.BlendFraction,
		Interpolation: interp,
		Workers:       s.NumWorkers(),
		Log:           s.Log,
		Metrics:       s.Metrics,
	}
	if s.Mosaic, err = c.Fuse(s.Source, s.FusedTiles()); err != nil {
		s.Log.Errorf("%v", err)
		return err
	}
	return nil
}

func (s *Stitcher) Write() error {
	if s.Mosaic == nil {
		return nil
	}
	files, err := WriteMosaic(s.Mosaic, s.OutputDirectory, s.OutputName)
	s.Files = append(s.Files, files...)
	for _, f := range files {
		s.Log.Infof("Wrote %s", f)
	}
	return err
}
