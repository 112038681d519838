package trace

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ingertb/rawsim/sim"
)

// TraceLevel controls the verbosity of event tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures threshold changes and association events.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelFull additionally captures every announcement.
	TraceLevelFull TraceLevel = "full"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	TraceLevelFull:      true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects event records during a run. It implements
// sim.Observer; at TraceLevelNone every event is dropped.
type SimulationTrace struct {
	Config        TraceConfig          `yaml:"-"`
	Algorithm     string               `yaml:"algorithm"`
	Announcements []AnnouncementRecord `yaml:"announcements,omitempty"`
	Thresholds    []ThresholdRecord    `yaml:"thresholds"`
	Associations  []AssociationRecord  `yaml:"associations"`
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:        config,
		Announcements: make([]AnnouncementRecord, 0),
		Thresholds:    make([]ThresholdRecord, 0),
		Associations:  make([]AssociationRecord, 0),
	}
}

func (st *SimulationTrace) enabled() bool {
	return st.Config.Level != TraceLevelNone && st.Config.Level != ""
}

// AnnouncementSent records the announcement at TraceLevelFull only.
func (st *SimulationTrace) AnnouncementSent(e sim.AnnouncementEvent) {
	if st.Config.Level != TraceLevelFull || e.Announcement == nil {
		return
	}
	a := e.Announcement
	rec := AnnouncementRecord{
		Clock:     e.Clock,
		Interval:  a.Interval,
		Threshold: a.AuthThreshold,
		Groups:    len(a.Layout.Groups),
		Buffered:  len(a.Buffered),
	}
	if a.RawEnabled {
		rec.Duration = a.Layout.Duration()
	}
	st.Announcements = append(st.Announcements, rec)
}

// ThresholdChanged appends a threshold record.
func (st *SimulationTrace) ThresholdChanged(e sim.ThresholdEvent) {
	if !st.enabled() {
		return
	}
	st.Thresholds = append(st.Thresholds, ThresholdRecord{
		Clock:    e.Clock,
		Interval: e.Interval,
		Old:      e.Old,
		New:      e.New,
		Delta:    e.Delta,
		State:    e.State,
	})
}

// AlgorithmConfigured remembers the admission algorithm name.
func (st *SimulationTrace) AlgorithmConfigured(e sim.AlgorithmEvent) {
	if st.enabled() {
		st.Algorithm = e.Name
	}
}

// Associated appends an association record.
func (st *SimulationTrace) Associated(e sim.AssociationEvent) {
	st.recordAssociation(e, true)
}

// Deassociated appends a loss-of-association record.
func (st *SimulationTrace) Deassociated(e sim.AssociationEvent) {
	st.recordAssociation(e, false)
}

func (st *SimulationTrace) recordAssociation(e sim.AssociationEvent, associated bool) {
	if !st.enabled() {
		return
	}
	st.Associations = append(st.Associations, AssociationRecord{
		Clock:      e.Clock,
		Station:    e.Station.String(),
		AID:        e.AID,
		Associated: associated,
	})
}

// WriteYAML serializes the collected records.
func (st *SimulationTrace) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	return enc.Close()
}
