package ap

import (
	"fmt"

	"github.com/ingertb/rawsim/sim/cac"
	"github.com/ingertb/rawsim/sim/raw"
)

// Config groups the access point parameters. Durations are in ticks (µs).
type Config struct {
	BeaconInterval         int64 `yaml:"beacon_interval_us"`
	EnableBeaconGeneration bool  `yaml:"beacon_generation"`
	// EnableJitter delays the first announcement by a uniform draw in
	// [0, BeaconInterval).
	EnableJitter      bool `yaml:"jitter"`
	RawEnabled        bool `yaml:"raw_enabled"`
	SlotFormat        int  `yaml:"slot_format"`
	SlotDurationCount int  `yaml:"slot_duration_count"`
	SlotNum           int  `yaml:"slot_num"`
	CrossBoundary     bool `yaml:"cross_boundary"`
	Groups            int  `yaml:"groups"`
	AuthSlots         int  `yaml:"auth_slots"`
	// MaxStations caps the number of authenticated stations; 0 is unlimited.
	MaxStations int `yaml:"max_stations"`
	// MgmtServiceTime is the time the AP needs to send one queued
	// authentication or association response.
	MgmtServiceTime int64      `yaml:"mgmt_service_time_us"`
	Admission       cac.Config `yaml:"admission"`
}

// DefaultConfig returns a RAW-enabled AP with a 100 ms announcement interval.
func DefaultConfig() Config {
	return Config{
		BeaconInterval:         100_000,
		EnableBeaconGeneration: true,
		EnableJitter:           false,
		RawEnabled:             true,
		SlotFormat:             0,
		SlotDurationCount:      100,
		SlotNum:                4,
		CrossBoundary:          false,
		Groups:                 1,
		AuthSlots:              0,
		MaxStations:            0,
		MgmtServiceTime:        2_000,
		Admission:              cac.DefaultConfig(),
	}
}

// rawParams returns the partitioner inputs for the given station count and threshold.
func (c Config) rawParams(total, threshold int) raw.Params {
	return raw.Params{
		TotalStations:     total,
		Groups:            c.Groups,
		SlotFormat:        c.SlotFormat,
		SlotDurationCount: c.SlotDurationCount,
		SlotNum:           c.SlotNum,
		CrossBoundary:     c.CrossBoundary,
		AuthThreshold:     threshold,
		AuthSlots:         c.AuthSlots,
	}
}

// AdmissionConfig returns the controller configuration with the AP's group
// count filled in.
func (c Config) AdmissionConfig() cac.Config {
	cfg := c.Admission
	cfg.RawGroups = c.Groups
	return cfg
}

// Validate rejects out-of-range parameters. Nothing is clamped.
func (c Config) Validate() error {
	if c.BeaconInterval <= 0 {
		return fmt.Errorf("beacon_interval_us must be positive, got %d", c.BeaconInterval)
	}
	if c.MgmtServiceTime <= 0 {
		return fmt.Errorf("mgmt_service_time_us must be positive, got %d", c.MgmtServiceTime)
	}
	if c.MaxStations < 0 {
		return fmt.Errorf("max_stations must be non-negative, got %d", c.MaxStations)
	}
	if err := c.rawParams(0, raw.UnrestrictedThreshold).Validate(); err != nil {
		return fmt.Errorf("raw parameters: %w", err)
	}
	if err := c.AdmissionConfig().Validate(); err != nil {
		return fmt.Errorf("admission: %w", err)
	}
	return nil
}
