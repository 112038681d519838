// Package trace records the observable events of a run for offline analysis.
package trace

// AnnouncementRecord captures one announcement as stations saw it.
type AnnouncementRecord struct {
	Clock     int64  `yaml:"clock"`
	Interval  uint64 `yaml:"interval"`
	Threshold int    `yaml:"threshold"`
	Groups    int    `yaml:"groups"`
	// Duration is the total RAW airtime announced, 0 when RAW is off.
	Duration int64 `yaml:"duration_us"`
	Buffered int   `yaml:"buffered"`
}

// ThresholdRecord captures a single admission threshold change.
type ThresholdRecord struct {
	Clock    int64  `yaml:"clock"`
	Interval uint64 `yaml:"interval"`
	Old      int    `yaml:"old"`
	New      int    `yaml:"new"`
	Delta    int    `yaml:"delta"`
	State    string `yaml:"state"`
}

// AssociationRecord captures a station gaining or losing its association.
type AssociationRecord struct {
	Clock      int64  `yaml:"clock"`
	Station    string `yaml:"station"`
	AID        uint16 `yaml:"aid,omitempty"`
	Associated bool   `yaml:"associated"`
}
