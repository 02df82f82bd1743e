// Package register measures the relative shift of overlapping tiles by
// phase correlation.
package register

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/abworrall/tile-stitcher/pkg/emath"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

type Params struct {
	CheckPeaks int  // How many correlation peaks to verify
	Subpixel   bool // Refine the winning peak with a quadratic fit
	Channel1   int  // Channel of the first tile, or tiles.AverageChannels
	Channel2   int
	IgnoreZ    bool   // Zero the z shift of 3D pairs
	DumpDir    string // If set, write each correlation surface here as a PNG
}

func DefaultParams() Params {
	return Params{CheckPeaks: 5, Subpixel: true}
}

// Pairwise registers the two crops of a pair, and returns the shift in
// full tile coordinates.
func Pairwise(src tiles.Source, p *tiles.Pair, params Params) (Result, error) {
	pa, err := src.OpenPlane(p.A, params.Channel1, p.Timepoint, p.RoiA)
	if err != nil {
		return Result{}, errors.Wrapf(tiles.ErrRegistration, "%s: open %s: %v", p, p.A.Name, err)
	}
	pb, err := src.OpenPlane(p.B, params.Channel2, p.Timepoint, p.RoiB)
	if err != nil {
		return Result{}, errors.Wrapf(tiles.ErrRegistration, "%s: open %s: %v", p, p.B.Name, err)
	}

	res, surface, err := phaseCorrelate(&pa.FloatGrid, &pb.FloatGrid, params.CheckPeaks, params.Subpixel)
	if params.DumpDir != "" && surface.Len() > 0 {
		dumpSurface(&surface, p, res, params.DumpDir)
	}
	if err != nil {
		return Result{}, errors.Wrapf(err, "%s", p)
	}

	// crop relative -> tile relative
	ra := p.RoiA.Resolve(p.A.Size)
	rb := p.RoiB.Resolve(p.B.Size)
	for d := range res.Shift {
		res.Shift[d] += float64(ra.Min[d] - rb.Min[d])
	}
	if params.IgnoreZ && len(res.Shift) > 2 {
		res.Shift[2] = 0
	}
	return res, nil
}

func dumpSurface(surface *emath.FloatGrid, p *tiles.Pair, res Result, dir string) {
	title := fmt.Sprintf("%s: %v R=%.3f", p, res.Shift, res.Correlation)
	name := strings.NewReplacer(" ", "", ">", "", "[", "_", "]", "").Replace(fmt.Sprintf("pcm-%s-%s.png", p.A.Name, p.B.Name))
	surface.ToImg(title, filepath.Join(dir, name))
}
