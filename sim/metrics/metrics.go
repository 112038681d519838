// Package metrics exposes the observable events of a run as Prometheus
// metrics on a private registry.
package metrics

import (
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/ingertb/rawsim/sim"
)

const namespace = "rawsim"

// Collector implements sim.Observer by updating Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	announcements    prometheus.Counter
	threshold        prometheus.Gauge
	thresholdChanges *prometheus.CounterVec
	rawDuration      prometheus.Gauge
	buffered         prometheus.Gauge
	associations     prometheus.Counter
	deassociations   prometheus.Counter
	associated       prometheus.Gauge
	algorithm        *prometheus.GaugeVec
}

// NewCollector creates the metrics and registers them on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		announcements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_total",
			Help:      "Count of announcements sent by the AP.",
		}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "auth_threshold",
			Help:      "Authentication threshold carried by the latest announcement.",
		}),
		thresholdChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_changes_total",
			Help:      "Count of admission threshold changes by controller phase.",
		}, []string{"state"}),
		rawDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "raw_duration_microseconds",
			Help:      "Total RAW airtime of the latest announcement.",
		}),
		buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_stations",
			Help:      "Stations flagged with buffered downlink data in the latest announcement.",
		}),
		associations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "associations_total",
			Help:      "Count of completed station associations.",
		}),
		deassociations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deassociations_total",
			Help:      "Count of associations lost or torn down.",
		}),
		associated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "associated_stations",
			Help:      "Stations currently associated.",
		}),
		algorithm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admission_algorithm_info",
			Help:      "Configured admission algorithm; the value is always 1.",
		}, []string{"selector", "name"}),
	}
	c.registry.MustRegister(
		c.announcements,
		c.threshold,
		c.thresholdChanges,
		c.rawDuration,
		c.buffered,
		c.associations,
		c.deassociations,
		c.associated,
		c.algorithm,
	)
	return c
}

// Registry returns the private registry holding every metric.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// AnnouncementSent counts the announcement and records its payload.
func (c *Collector) AnnouncementSent(e sim.AnnouncementEvent) {
	c.announcements.Inc()
	a := e.Announcement
	if a == nil {
		return
	}
	c.threshold.Set(float64(a.AuthThreshold))
	c.buffered.Set(float64(len(a.Buffered)))
	if a.RawEnabled {
		c.rawDuration.Set(float64(a.Layout.Duration()))
	} else {
		c.rawDuration.Set(0)
	}
}

// ThresholdChanged counts the change under the controller phase.
func (c *Collector) ThresholdChanged(e sim.ThresholdEvent) {
	c.thresholdChanges.WithLabelValues(e.State).Inc()
}

// AlgorithmConfigured publishes the algorithm as an info metric.
func (c *Collector) AlgorithmConfigured(e sim.AlgorithmEvent) {
	c.algorithm.Reset()
	c.algorithm.WithLabelValues(strconv.Itoa(e.Algorithm), e.Name).Set(1)
}

// Associated counts a new association.
func (c *Collector) Associated(sim.AssociationEvent) {
	c.associations.Inc()
	c.associated.Inc()
}

// Deassociated counts a lost association.
func (c *Collector) Deassociated(sim.AssociationEvent) {
	c.deassociations.Inc()
	c.associated.Dec()
}

// WriteText writes every metric in the Prometheus text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
