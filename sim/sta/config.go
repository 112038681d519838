package sta

import "fmt"

// Config holds the per-station timing and retry parameters. Durations are in
// ticks (µs).
type Config struct {
	ActiveProbing   bool  `yaml:"active_probing"`
	ProbeTimeout    int64 `yaml:"probe_timeout_us"`
	AuthTimeout     int64 `yaml:"auth_timeout_us"`
	AssocTimeout    int64 `yaml:"assoc_timeout_us"`
	DisassocTimeout int64 `yaml:"disassoc_timeout_us"`
	// MaxRetries caps the resends per phase; 0 retries forever.
	MaxRetries       int `yaml:"max_retries"`
	MaxMissedBeacons int `yaml:"max_missed_beacons"`
	// WatchdogInterval is the missed-beacon timeout. 0 derives it from the
	// announced beacon interval.
	WatchdogInterval int64 `yaml:"watchdog_interval_us"`

	ContentionWindow int   `yaml:"contention_window"`
	SlotTime         int64 `yaml:"slot_time_us"`
	FrameTime        int64 `yaml:"frame_time_us"`
	AckTime          int64 `yaml:"ack_time_us"`
}

// DefaultConfig returns an actively probing station with 802.11ah-like timing.
func DefaultConfig() Config {
	return Config{
		ActiveProbing:    true,
		ProbeTimeout:     50_000,
		AuthTimeout:      200_000,
		AssocTimeout:     200_000,
		DisassocTimeout:  50_000,
		MaxRetries:       0,
		MaxMissedBeacons: 10,
		WatchdogInterval: 0,
		ContentionWindow: 16,
		SlotTime:         52,
		FrameTime:        1_000,
		AckTime:          240,
	}
}

// Validate rejects non-positive timeouts and backoff parameters.
func (c Config) Validate() error {
	timeouts := []struct {
		name string
		v    int64
	}{
		{"probe_timeout_us", c.ProbeTimeout},
		{"auth_timeout_us", c.AuthTimeout},
		{"assoc_timeout_us", c.AssocTimeout},
		{"disassoc_timeout_us", c.DisassocTimeout},
		{"slot_time_us", c.SlotTime},
		{"frame_time_us", c.FrameTime},
	}
	for _, t := range timeouts {
		if t.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", t.name, t.v)
		}
	}
	if c.AckTime < 0 {
		return fmt.Errorf("ack_time_us must be non-negative, got %d", c.AckTime)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.MaxMissedBeacons < 1 {
		return fmt.Errorf("max_missed_beacons must be positive, got %d", c.MaxMissedBeacons)
	}
	if c.WatchdogInterval < 0 {
		return fmt.Errorf("watchdog_interval_us must be non-negative, got %d", c.WatchdogInterval)
	}
	if c.ContentionWindow < 1 {
		return fmt.Errorf("contention_window must be positive, got %d", c.ContentionWindow)
	}
	return nil
}
