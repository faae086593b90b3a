// Package metrics exports index measurements to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/hyperjump/chikai/internal/forest"
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements forest.Observer with Prometheus collectors.
type Prometheus struct {
	buildLatency   prometheus.Histogram
	builds         *prometheus.CounterVec
	indexedItems   prometheus.Gauge
	treeCount      prometheus.Gauge
	queryLatency   *prometheus.HistogramVec
	queryCandidate prometheus.Histogram
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		buildLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chikai_index_build_seconds",
			Help:    "Time spent building the tree forest.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chikai_index_builds_total",
			Help: "Forest builds by outcome.",
		}, []string{"status"}),
		indexedItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chikai_index_items",
			Help: "Items covered by the current tree set.",
		}),
		treeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chikai_index_trees",
			Help: "Trees in the current tree set.",
		}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chikai_query_seconds",
			Help:    "Neighbor query latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		queryCandidate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chikai_query_candidates",
			Help:    "Distinct candidates merged per query before truncation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	for _, c := range []prometheus.Collector{
		p.buildLatency, p.builds, p.indexedItems, p.treeCount, p.queryLatency, p.queryCandidate,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ObserveBuild implements forest.Observer.
func (p *Prometheus) ObserveBuild(trees, items int, d time.Duration, err error) {
	p.buildLatency.Observe(d.Seconds())
	switch {
	case err == nil:
		p.builds.WithLabelValues("ok").Inc()
	case errors.Is(err, forest.ErrEmptyIndex):
		p.builds.WithLabelValues("empty").Inc()
	default:
		p.builds.WithLabelValues("error").Inc()
		return
	}
	p.indexedItems.Set(float64(items))
	p.treeCount.Set(float64(trees))
}

// ObserveQuery implements forest.Observer.
func (p *Prometheus) ObserveQuery(_, candidates int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.queryLatency.WithLabelValues(status).Observe(d.Seconds())
	if err == nil {
		p.queryCandidate.Observe(float64(candidates))
	}
}
