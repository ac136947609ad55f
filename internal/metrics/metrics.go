// Package metrics exposes prometheus collectors for the particle frame loop.
//
// A nil *Collectors is valid and records nothing, so packages can take
// one unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "particlelife"

// Collectors holds every metric the frame loop records.
type Collectors struct {
	frames        prometheus.Counter
	frameErrors   prometheus.Counter
	frameDuration prometheus.Histogram
	dispatches    *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	rebuilds      prometheus.Counter
	liveSets      prometheus.Gauge
	retired       prometheus.Gauge
	pipelineState *prometheus.GaugeVec
	configReloads *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg
// registers with the default prometheus registry.
func New(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collectors{
		frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames submitted to the GPU.",
		}),
		frameErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Frames that failed to encode or submit.",
		}),
		frameDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "CPU time spent preparing, encoding and submitting a frame.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Compute dispatches recorded, by node and kernel.",
		}, []string{"node", "kernel"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_dispatches_total",
			Help:      "Per-entity dispatches skipped, by node and reason.",
		}, []string{"node", "reason"}),
		rebuilds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_rebuilds_total",
			Help:      "GPU resource sets built or rebuilt.",
		}),
		liveSets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resource_sets",
			Help:      "Live per-entity GPU resource sets.",
		}),
		retired: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retired_resource_sets",
			Help:      "Resource sets waiting for in-flight frames before release.",
		}),
		pipelineState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_state",
			Help:      "Entities per node state.",
		}, []string{"node", "state"}),
		configReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration file reloads, by result.",
		}, []string{"result"}),
	}
}

// FrameDone records a submitted frame and its duration.
func (c *Collectors) FrameDone(d time.Duration) {
	if c == nil {
		return
	}
	c.frames.Inc()
	c.frameDuration.Observe(d.Seconds())
}

// FrameFailed records a frame that could not be submitted.
func (c *Collectors) FrameFailed() {
	if c == nil {
		return
	}
	c.frameErrors.Inc()
}

// Dispatch records one recorded dispatch.
func (c *Collectors) Dispatch(node, kernel string) {
	if c == nil {
		return
	}
	c.dispatches.WithLabelValues(node, kernel).Inc()
}

// Skip records a skipped per-entity dispatch.
func (c *Collectors) Skip(node, reason string) {
	if c == nil {
		return
	}
	c.skipped.WithLabelValues(node, reason).Inc()
}

// Rebuild records a resource set (re)build.
func (c *Collectors) Rebuild() {
	if c == nil {
		return
	}
	c.rebuilds.Inc()
}

// ResourceSets sets the live and retired resource set gauges.
func (c *Collectors) ResourceSets(live, retired int) {
	if c == nil {
		return
	}
	c.liveSets.Set(float64(live))
	c.retired.Set(float64(retired))
}

// NodeStates replaces the per-state entity counts of node. States absent
// from counts are reset to zero.
func (c *Collectors) NodeStates(node string, states []string, counts map[string]int) {
	if c == nil {
		return
	}
	for _, s := range states {
		c.pipelineState.WithLabelValues(node, s).Set(float64(counts[s]))
	}
}

// ConfigReload records a configuration reload attempt.
func (c *Collectors) ConfigReload(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.configReloads.WithLabelValues(result).Inc()
}

// NewServer returns an HTTP server exposing g on /metrics. A nil g
// serves the default gatherer.
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}
