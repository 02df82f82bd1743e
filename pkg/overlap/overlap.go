// Package overlap finds the pairs of tiles worth registering against
// each other, and where in each tile they probably overlap.
package overlap

import (
	"math"

	"github.com/pkg/errors"

	"github.com/abworrall/tile-stitcher/pkg/logger"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

type Mode int

const (
	BoundingBox Mode = iota // Pair tiles whose approximate boxes intersect
	Sequential              // Pair each tile with the next SeqRange tiles
)

type Options struct {
	Mode     Mode
	SeqRange int
}

// FindPairs returns one Pair per candidate adjacency, in (i, j) order
// with i < j, with the crop of each side attached.
func FindPairs(ts []*tiles.Tile, opts Options, log logger.ILogger) ([]*tiles.Pair, error) {
	if len(ts) < 2 {
		log.Errorf("Need at least two tiles to find overlaps, have %d", len(ts))
		return []*tiles.Pair{}, errors.Wrapf(tiles.ErrConfiguration, "need at least two tiles, have %d", len(ts))
	}

	pairs := []*tiles.Pair{}
	add := func(a, b *tiles.Tile) {
		p := tiles.NewPair(a, b)
		p.RoiA = ComputeRoi(a, b)
		p.RoiB = ComputeRoi(b, a)
		pairs = append(pairs, p)
	}

	switch opts.Mode {
	case Sequential:
		if opts.SeqRange < 1 {
			return []*tiles.Pair{}, errors.Wrapf(tiles.ErrConfiguration, "sequential range %d", opts.SeqRange)
		}
		for i := range ts {
			for j := 1; j <= opts.SeqRange; j++ {
				if i+j >= len(ts) {
					break
				}
				add(ts[i], ts[i+j])
			}
		}

	default:
		for i := 0; i < len(ts)-1; i++ {
			for j := i + 1; j < len(ts); j++ {
				if Overlapping(ts[i], ts[j]) {
					add(ts[i], ts[j])
				}
			}
		}
	}

	log.Debugf("Found %d candidate pairs among %d tiles", len(pairs), len(ts))
	return pairs, nil
}

// Overlapping tests the closed boxes [offset, offset+size] of the two
// tiles on every axis; touching counts.
func Overlapping(a, b *tiles.Tile) bool {
	for d := 0; d < a.NumDims; d++ {
		aMin, aMax := a.Offset[d], a.Offset[d]+float64(a.Size[d])
		bMin, bMax := b.Offset[d], b.Offset[d]+float64(b.Size[d])
		if bMin > aMax || aMin > bMax {
			return false
		}
	}
	return true
}

// ComputeRoi returns the part of tile a that tile b probably covers, in
// a's local pixels. If on some axis b neither starts nor ends within a,
// the whole of a is used.
func ComputeRoi(a, b *tiles.Tile) tiles.Roi {
	roi := tiles.Roi{Min: make([]int, a.NumDims), Max: make([]int, a.NumDims)}

	for d := 0; d < a.NumDims; d++ {
		aMin, aMax := a.Offset[d], a.Offset[d]+float64(a.Size[d])
		bMin, bMax := b.Offset[d], b.Offset[d]+float64(b.Size[d])

		switch {
		case bMin >= aMin && bMin <= aMax: // b starts inside a
			roi.Min[d] = round(bMin - aMin)
			if bMax <= aMax {
				roi.Max[d] = round(bMax - aMin)
			} else {
				roi.Max[d] = a.Size[d]
			}

		case bMax <= aMax: // b ends inside a
			roi.Min[d] = 0
			roi.Max[d] = round(bMax - aMin)

		default: // b spans all of a, or misses it
			return tiles.FullRoi()
		}

		if roi.Min[d] < 0 {
			roi.Min[d] = 0
		}
		if roi.Max[d] > a.Size[d] {
			roi.Max[d] = a.Size[d]
		}
		if roi.Max[d]-roi.Min[d] < 1 {
			return tiles.FullRoi()
		}
	}
	return roi
}

func round(f float64) int { return int(math.Round(f)) }
