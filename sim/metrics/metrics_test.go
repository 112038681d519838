package metrics

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingertb/rawsim/sim"
	"github.com/ingertb/rawsim/sim/raw"
)

func announcement(threshold int, rawEnabled bool) sim.AnnouncementEvent {
	layout := raw.Partition(raw.Params{TotalStations: 4, Groups: 1, SlotDurationCount: 10, SlotNum: 2})
	return sim.AnnouncementEvent{Announcement: &sim.Announcement{
		AuthThreshold: threshold,
		RawEnabled:    rawEnabled,
		Layout:        layout,
		Buffered:      map[uint16]bool{1: true, 2: true},
	}}
}

func TestCollector_AnnouncementSent(t *testing.T) {
	// GIVEN a fresh collector
	c := NewCollector()

	// WHEN two announcements are observed
	c.AnnouncementSent(announcement(1023, true))
	ev := announcement(700, true)
	c.AnnouncementSent(ev)

	// THEN the counter grows and the gauges follow the latest payload
	assert.Equal(t, 2.0, testutil.ToFloat64(c.announcements))
	assert.Equal(t, 700.0, testutil.ToFloat64(c.threshold))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.buffered))
	assert.Equal(t, float64(ev.Announcement.Layout.Duration()), testutil.ToFloat64(c.rawDuration))
}

func TestCollector_RawDisabledReportsZeroDuration(t *testing.T) {
	c := NewCollector()
	c.AnnouncementSent(announcement(1023, true))
	c.AnnouncementSent(announcement(1023, false))
	assert.Zero(t, testutil.ToFloat64(c.rawDuration))
}

func TestCollector_ThresholdChangesByState(t *testing.T) {
	c := NewCollector()

	c.ThresholdChanged(sim.ThresholdEvent{Old: 1023, New: 767, State: "LEARN"})
	c.ThresholdChanged(sim.ThresholdEvent{Old: 767, New: 639, State: "LEARN"})
	c.ThresholdChanged(sim.ThresholdEvent{Old: 639, New: 700, State: "WORK"})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.thresholdChanges.WithLabelValues("LEARN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.thresholdChanges.WithLabelValues("WORK")))
}

func TestCollector_AssociatedGaugeTracksLosses(t *testing.T) {
	// GIVEN three associations and one loss
	c := NewCollector()
	c.Associated(sim.AssociationEvent{Station: 1, AID: 1})
	c.Associated(sim.AssociationEvent{Station: 2, AID: 2})
	c.Associated(sim.AssociationEvent{Station: 3, AID: 3})
	c.Deassociated(sim.AssociationEvent{Station: 2, AID: 2})

	// THEN totals are monotonic and the gauge is the difference
	assert.Equal(t, 3.0, testutil.ToFloat64(c.associations))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deassociations))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.associated))
}

func TestCollector_AlgorithmInfo(t *testing.T) {
	c := NewCollector()

	c.AlgorithmConfigured(sim.AlgorithmEvent{Algorithm: 1, Name: "queue-step"})

	assert.Equal(t, 1, testutil.CollectAndCount(c.algorithm))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.algorithm.WithLabelValues("1", "queue-step")))
}

func TestCollector_WriteText(t *testing.T) {
	// GIVEN a collector with some observed events
	c := NewCollector()
	c.AlgorithmConfigured(sim.AlgorithmEvent{Algorithm: 6, Name: "aimd"})
	c.AnnouncementSent(announcement(512, true))
	c.Associated(sim.AssociationEvent{Station: 1, AID: 1})

	// WHEN the exposition is written
	var buf bytes.Buffer
	require.NoError(t, c.WriteText(&buf))

	// THEN it parses back and carries the values
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(&buf)
	require.NoError(t, err)
	require.Contains(t, families, "rawsim_auth_threshold")
	assert.Equal(t, 512.0, families["rawsim_auth_threshold"].GetMetric()[0].GetGauge().GetValue())
	require.Contains(t, families, "rawsim_associations_total")
	assert.Equal(t, 1.0, families["rawsim_associations_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Contains(t, families, "rawsim_admission_algorithm_info")
}

func TestCollector_ImplementsObserver(t *testing.T) {
	var _ sim.Observer = NewCollector()
}
