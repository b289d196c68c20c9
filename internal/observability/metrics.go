// Package observability wires Prometheus metrics and OpenTelemetry tracing
// around Monte Carlo runs.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for whiteworms_trials_total.
const (
	OutcomeAbsorbed  = "absorbed"
	OutcomeTruncated = "truncated"
)

// Collector bundles the Prometheus metrics recorded per trial. A nil
// Collector is safe to use; ObserveTrial is then a no-op.
type Collector struct {
	gatherer prometheus.Gatherer

	Trials            *prometheus.CounterVec
	TrialEvents       prometheus.Histogram
	TrialDurations    prometheus.Histogram
	ProtectedFraction prometheus.Histogram
	NetworkNodes      prometheus.Gauge
}

// NewCollector registers the simulation metrics against reg, defaulting to
// the global Prometheus registry when nil. Registering twice against the same
// registry returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	trials, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whiteworms_trials_total",
		Help: "Total number of finished Monte Carlo trials, labeled by outcome (absorbed or truncated).",
	}, []string{"outcome"}), "whiteworms_trials_total")
	if err != nil {
		return nil, err
	}

	events, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whiteworms_trial_events",
		Help:    "Number of accepted events per trial.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	}), "whiteworms_trial_events")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whiteworms_trial_duration_seconds",
		Help:    "Wall-clock time spent simulating one trial.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}), "whiteworms_trial_duration_seconds")
	if err != nil {
		return nil, err
	}

	protected, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whiteworms_protected_fraction",
		Help:    "Final protected fraction (Pg + Pmu) / n per trial.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	}), "whiteworms_protected_fraction")
	if err != nil {
		return nil, err
	}

	nodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whiteworms_network_nodes",
		Help: "Number of nodes in the network of the current run.",
	}), "whiteworms_network_nodes")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		Trials:            trials,
		TrialEvents:       events,
		TrialDurations:    durations,
		ProtectedFraction: protected,
		NetworkNodes:      nodes,
	}, nil
}

// ObserveTrial records one finished trial.
func (c *Collector) ObserveTrial(absorbed bool, events int, protectedFraction float64, elapsed time.Duration) {
	if c == nil {
		return
	}
	outcome := OutcomeAbsorbed
	if !absorbed {
		outcome = OutcomeTruncated
	}
	c.Trials.WithLabelValues(outcome).Inc()
	c.TrialEvents.Observe(float64(events))
	c.TrialDurations.Observe(elapsed.Seconds())
	c.ProtectedFraction.Observe(protectedFraction)
}

// SetNetworkNodes records the size of the network being simulated.
func (c *Collector) SetNetworkNodes(n int) {
	if c == nil {
		return
	}
	c.NetworkNodes.Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
