package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "downgrade_roblox"

// Metrics defines counters for the install pipeline.
type Metrics interface {
	IncPackagesDownloaded(variant string)
	AddBytesDownloaded(variant string, n int64)
	IncPipelineRuns(variant, result string)
	IncRemovalRetries()
	ObserveStageDuration(stage string, durationSeconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncPackagesDownloaded(string)          {}
func (Noop) AddBytesDownloaded(string, int64)      {}
func (Noop) IncPipelineRuns(string, string)        {}
func (Noop) IncRemovalRetries()                    {}
func (Noop) ObserveStageDuration(string, float64) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	registry           *prometheus.Registry
	packagesDownloaded *prometheus.CounterVec
	bytesDownloaded    *prometheus.CounterVec
	pipelineRuns       *prometheus.CounterVec
	removalRetries     prometheus.Counter
	stageDuration      *prometheus.HistogramVec
}

// NewProm creates the collectors and registers them on a fresh registry.
func NewProm() *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		packagesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "packages_downloaded_total",
			Help:      "Packages downloaded by variant",
		}, []string{"variant"}),
		bytesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bytes_downloaded_total",
			Help:      "Package bytes downloaded by variant",
		}, []string{"variant"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by variant and result",
		}, []string{"variant", "result"}),
		removalRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "removal_retries_total",
			Help:      "Retried deletions of locked version directories",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Install stage latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"stage"}),
	}

	p.registry.MustRegister(
		p.packagesDownloaded,
		p.bytesDownloaded,
		p.pipelineRuns,
		p.removalRetries,
		p.stageDuration,
	)

	return p
}

func (p *Prom) IncPackagesDownloaded(variant string) {
	p.packagesDownloaded.WithLabelValues(variant).Inc()
}

func (p *Prom) AddBytesDownloaded(variant string, n int64) {
	if n <= 0 {
		return
	}

	p.bytesDownloaded.WithLabelValues(variant).Add(float64(n))
}

func (p *Prom) IncPipelineRuns(variant, result string) {
	p.pipelineRuns.WithLabelValues(variant, result).Inc()
}

func (p *Prom) IncRemovalRetries() {
	p.removalRetries.Inc()
}

func (p *Prom) ObserveStageDuration(stage string, durationSeconds float64) {
	p.stageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// Gatherer exposes the private registry.
func (p *Prom) Gatherer() prometheus.Gatherer {
	return p.registry
}

// WriteTextfile writes every metric to path in the Prometheus text format.
func (p *Prom) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	return nil
}
