// Package metrics exports prometheus metrics about a stitching run.
// All methods are safe on a nil *Run, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abworrall/tile-stitcher/pkg/logger"
)

type Run struct {
	Registry *prometheus.Registry

	pairs         *prometheus.CounterVec
	pairSeconds   prometheus.Histogram
	correlation   prometheus.Histogram
	outliers      prometheus.Counter
	residual      *prometheus.GaugeVec
	fusionSeconds prometheus.Histogram
	tilesLoaded   prometheus.Counter
}

// NewRun registers a fresh set of metrics in their own registry, so
// runs never collide with each other.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Run{
		Registry: reg,
		pairs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stitcher_pairs_registered_total",
			Help: "Tile pairs put through phase correlation, by outcome.",
		}, []string{"outcome"}),
		pairSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stitcher_pair_registration_seconds",
			Help:    "Time to register one tile pair.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		correlation: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stitcher_pair_correlation",
			Help:    "Cross correlation (R) of registered pairs.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		outliers: f.NewCounter(prometheus.CounterOpts{
			Name: "stitcher_outlier_pairs_removed_total",
			Help: "Pairs dropped by the global optimizer as outliers.",
		}),
		residual: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stitcher_optimizer_residual_pixels",
			Help: "Residual displacement of the accepted solution.",
		}, []string{"stat"}),
		fusionSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stitcher_fusion_seconds",
			Help:    "Time to fuse one channel/timepoint of the mosaic.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		}),
		tilesLoaded: f.NewCounter(prometheus.CounterOpts{
			Name: "stitcher_tiles_loaded_total",
			Help: "Tiles decoded.",
		}),
	}
}

func (r *Run) PairRegistered(elapsed time.Duration, correlation float64, err error) {
	if r == nil {
		return
	}
	r.pairSeconds.Observe(elapsed.Seconds())
	if err != nil {
		r.pairs.WithLabelValues("failed").Inc()
		return
	}
	r.pairs.WithLabelValues("ok").Inc()
	r.correlation.Observe(correlation)
}

func (r *Run) OutlierRemoved() {
	if r == nil {
		return
	}
	r.outliers.Inc()
}

func (r *Run) Residuals(mean, max float64) {
	if r == nil {
		return
	}
	r.residual.WithLabelValues("mean").Set(mean)
	r.residual.WithLabelValues("max").Set(max)
}

func (r *Run) Fused(elapsed time.Duration) {
	if r == nil {
		return
	}
	r.fusionSeconds.Observe(elapsed.Seconds())
}

func (r *Run) TilesLoaded(n int) {
	if r == nil {
		return
	}
	r.tilesLoaded.Add(float64(n))
}

// Serve exposes the run's metrics on http://addr/metrics until the
// process exits.
func (r *Run) Serve(addr string, log logger.ILogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("metrics server on %s: %v", addr, err)
		}
	}()
	log.Infof("Serving metrics on http://%s/metrics", addr)
}
