// Package optimize places tiles in mosaic space from their pairwise
// shifts, by iterative weighted least squares with outlier rejection.
package optimize

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/abworrall/tile-stitcher/pkg/emath"
	"github.com/abworrall/tile-stitcher/pkg/logger"
	"github.com/abworrall/tile-stitcher/pkg/metrics"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

// saturation is the max residual, in pixels, below which the relative
// outlier test never fires.
const saturation = 0.95

type Params struct {
	RegThreshold      float64 // Pairs below this correlation are ignored
	RelativeThreshold float64 // Max residual over mean residual that flags an outlier
	AbsoluteThreshold float64 // Mean residual, in pixels, that flags an outlier

	MaxAllowedError float64
	MaxIterations   int
	MaxPlateauWidth int

	MaxRetries int  // Bound on outlier removals; 0 means the initial number of pairs
	IgnoreZ    bool // Drop the z component of 3D shifts
}

func DefaultParams() Params {
	return Params{
		RegThreshold:      0.3,
		RelativeThreshold: 2.5,
		AbsoluteThreshold: 3.5,
		MaxAllowedError:   10,
		MaxIterations:     1000,
		MaxPlateauWidth:   200,
	}
}

type Result struct {
	Tiles      []*tiles.Tile // Tiles that ended up in the graph, by index, with models set
	MeanError  float64
	MaxError   float64
	Iterations int
	Retries    int
	Removed    []*tiles.Pair // Pairs dropped as outliers, in the order they went
	Components int

	// Degenerate is set when no pair was usable; Tiles holds only the
	// anchor, at the origin.
	Degenerate bool
}

// Optimize computes a model for every tile reachable through usable
// pairs. Pairs it finds to be outliers are invalidated. Registration and
// numerical failures are logged, never returned: the result is always
// the best state reached.
func Optimize(pairs []*tiles.Pair, anchor *tiles.Tile, params Params, log logger.ILogger, m *metrics.Run) Result {
	if anchor == nil && len(pairs) > 0 {
		anchor = pairs[0].A
	}
	res := Result{}

	maxRetries := -1
	for {
		tg := buildGraph(pairs, params.RegThreshold, params.IgnoreZ)
		if maxRetries < 0 {
			maxRetries = params.MaxRetries
			if maxRetries <= 0 {
				maxRetries = tg.edges
			}
		}

		if tg.edges == 0 {
			return degenerate(anchor, res, log)
		}

		res.Components = tg.components()
		if res.Components > 1 {
			log.Infof("Tile graph has %d tiles in %d separate groups, they are placed independently", len(tg.nodes), res.Components)
		}

		fixed := tg.fixedNode(anchor)
		before := tg.snapshot()
		iterations, err := tg.solve(fixed, params)
		res.Tiles = tg.tiles()
		res.Iterations = iterations
		if err != nil {
			tg.restore(before)
			log.Errorf("%v", errors.Wrapf(tiles.ErrOptimization, "cannot compute global optimization (attempt %d): %v", res.Retries+1, err))
			return res
		}

		mean, max, worst, err := tg.residuals()
		if err != nil {
			log.Errorf("%v", errors.Wrapf(tiles.ErrOptimization, "residuals (attempt %d): %v", res.Retries+1, err))
			return res
		}
		res.MeanError, res.MaxError = mean, max
		log.Debugf("Attempt %d: %d tiles, %d pairs, mean error %.3f px, max error %.3f px (%d iterations)",
			res.Retries+1, len(tg.nodes), tg.edges, mean, max, iterations)

		if !isOutlier(mean, max, params) {
			break
		}
		if res.Retries >= maxRetries {
			log.Errorf("Still over the error thresholds after removing %d pairs, keeping this solution", res.Retries)
			break
		}

		log.Infof("Identified link %s (R=%.4f) to be bad. Reoptimizing.", worst.pair, worst.pair.Correlation)
		worst.pair.Invalidate()
		res.Removed = append(res.Removed, worst.pair)
		res.Retries++
		m.OutlierRemoved()
	}

	log.Infof("Global optimization: %d tiles, mean error %.3f px, max error %.3f px", len(res.Tiles), res.MeanError, res.MaxError)
	m.Residuals(res.MeanError, res.MaxError)
	return res
}

func degenerate(anchor *tiles.Tile, res Result, log logger.ILogger) Result {
	res.Degenerate = true
	res.Tiles = nil
	if anchor == nil {
		log.Errorf("%v", errors.Wrap(tiles.ErrRegistration, "no correlated tiles found, and no tile to anchor"))
		return res
	}
	origin := make([]float64, anchor.NumDims)
	anchor.Model = emath.NewTranslationModel(origin...)
	res.Tiles = []*tiles.Tile{anchor}
	res.MeanError, res.MaxError = 0, 0
	log.Errorf("%v", errors.Wrapf(tiles.ErrRegistration, "no correlated tiles found, setting %s to %v", anchor.Name, origin))
	return res
}

func isOutlier(mean, max float64, params Params) bool {
	return (mean*params.RelativeThreshold < max && max > saturation) || mean > params.AbsoluteThreshold
}

// solve pre-aligns the graph, then refits every non fixed tile in turn
// until the mean error is acceptable and has stopped changing over the
// plateau window, or the iteration budget runs out.
func (tg *tileGraph) solve(fixed *node, params Params) (int, error) {
	if err := tg.preAlign(fixed); err != nil {
		return 0, err
	}

	history := []float64{}
	i := 0
	for {
		for _, n := range tg.nodes {
			if n == fixed {
				continue
			}
			if err := n.fit(nil); err != nil {
				return i, errors.Wrapf(err, "fitting %s", n.tile.Name)
			}
		}

		mean, _, _, err := tg.residuals()
		if err != nil {
			return i, err
		}
		history = append(history, mean)

		proceed := true
		if i > params.MaxPlateauWidth {
			proceed = mean > params.MaxAllowedError
			for d := params.MaxPlateauWidth; !proceed && d >= 1; d /= 2 {
				proceed = math.Abs(wideSlope(history, d)) > 0.0001
			}
		}

		i++
		if !proceed || i >= params.MaxIterations {
			return i, nil
		}
	}
}

// wideSlope is the average change per iteration over the last d.
func wideSlope(history []float64, d int) float64 {
	last := len(history) - 1
	return (history[last] - history[last-d]) / float64(d)
}

// residuals returns the mean and max displacement over every point
// match, and the match that was displaced furthest.
func (tg *tileGraph) residuals() (float64, float64, *pointMatch, error) {
	dists := []float64{}
	var worst *pointMatch
	worstDist := 0.0
	for _, n := range tg.nodes {
		for i := range n.matches {
			m := &n.matches[i]
			d := m.distance(n)
			if math.IsNaN(d) {
				return 0, 0, nil, errors.Errorf("%s: residual is NaN", m.pair)
			}
			if worst == nil || d > worstDist {
				worst, worstDist = m, d
			}
			dists = append(dists, d)
		}
	}

	mean, err := stats.Mean(dists)
	if err != nil {
		return 0, 0, nil, err
	}
	max, err := stats.Max(dists)
	if err != nil {
		return 0, 0, nil, err
	}
	return mean, max, worst, nil
}
