package tiles

import "github.com/pkg/errors"

// Failure kinds of a stitching run. Errors returned by this module wrap
// one of these, so callers can test with errors.Is (or errors.Cause).
var (
	// Too few tiles, bad grid parameters. Aborts the run.
	ErrConfiguration = errors.New("configuration error")

	// Missing/unreadable tile, or tiles that disagree on dimensionality,
	// channel count or timepoint count. Aborts the run.
	ErrIO = errors.New("tile i/o error")

	// A pair could not be registered; the pair is invalidated.
	ErrRegistration = errors.New("registration failure")

	// The least squares solve failed; the attempt stops where it is.
	ErrOptimization = errors.New("optimization failure")

	// The mosaic could not be fused; registration results still stand.
	ErrFusion = errors.New("fusion failure")

	ErrUnsupportedSampleType = errors.New("unsupported sample type")
)
