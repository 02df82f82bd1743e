package register

import (
	"fmt"
	"strings"
	"time"

	"github.com/codahale/hdrhistogram"

	"github.com/abworrall/tile-stitcher/pkg/logger"
	"github.com/abworrall/tile-stitcher/pkg/metrics"
	"github.com/abworrall/tile-stitcher/pkg/parallel"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

// RegisterAll registers every pair on a pool of `workers` goroutines.
// Each worker claims the next pair from a shared counter and is the only
// writer of that pair. It returns how many pairs failed.
func RegisterAll(src tiles.Source, pairs []*tiles.Pair, params Params, workers int, log logger.ILogger, m *metrics.Run) int {
	elapsed := make([]time.Duration, len(pairs))
	failed := make([]bool, len(pairs))

	parallel.ForEach(len(pairs), workers, func(i int) {
		p := pairs[i]
		start := time.Now()
		res, err := Pairwise(src, p, params)
		elapsed[i] = time.Since(start)
		m.PairRegistered(elapsed[i], res.Correlation, err)

		if err != nil {
			p.Invalidate()
			failed[i] = true
			log.Errorf("%v", err)
			return
		}

		p.Shift = res.Shift
		p.Correlation = res.Correlation
		p.PhaseCorrelation = res.PhaseCorrelation
		p.Valid = true
		p.Registered = true
		log.Infof("%s: %s correlation (R)=%.4f (%d ms)", p, coordString(res.Shift), res.Correlation, elapsed[i].Milliseconds())
	})

	nFailed := 0
	for _, f := range failed {
		if f {
			nFailed++
		}
	}
	logTimings(elapsed, log)
	return nFailed
}

// logTimings summarises pair registration times. Anything quicker than
// a microsecond counts as one; a time the histogram cannot hold is
// logged and left out. It returns how many times were left out.
func logTimings(elapsed []time.Duration, log logger.ILogger) int {
	if len(elapsed) == 0 {
		return 0
	}
	h := hdrhistogram.New(1, int64(time.Hour/time.Microsecond), 3)
	dropped := 0
	for _, e := range elapsed {
		us := e.Microseconds()
		if us < 1 {
			us = 1
		}
		if err := h.RecordValue(us); err != nil {
			dropped++
			log.Errorf("Pair registration time %s left out of the summary: %v", e, err)
		}
	}
	if h.TotalCount() == 0 {
		return dropped
	}
	log.Debugf("Pair registration times over %d pairs: p50=%.1fms p95=%.1fms max=%.1fms (%d left out)",
		h.TotalCount(), float64(h.ValueAtQuantile(50))/1000, float64(h.ValueAtQuantile(95))/1000, float64(h.Max())/1000, dropped)
	return dropped
}

func coordString(v []float64) string {
	strs := make([]string, len(v))
	for d, f := range v {
		strs[d] = fmt.Sprintf("%.3f", f)
	}
	return "(" + strings.Join(strs, ", ") + ")"
}
