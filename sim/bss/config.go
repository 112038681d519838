package bss

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ingertb/rawsim/sim/ap"
	"github.com/ingertb/rawsim/sim/sta"
)

// MediumConfig describes the shared channel.
type MediumConfig struct {
	Delay int64   `yaml:"delay_us"`
	Loss  float64 `yaml:"loss"`
}

// TrafficConfig describes the data traffic offered once stations are associated.
// A zero interval disables that direction.
type TrafficConfig struct {
	UplinkInterval   int64 `yaml:"uplink_interval_us"`
	DownlinkInterval int64 `yaml:"downlink_interval_us"`
}

// WaveConfig starts Count stations at uniformly spread times in
// [Start, Start+Spread].
type WaveConfig struct {
	Count  int   `yaml:"count"`
	Start  int64 `yaml:"start_us"`
	Spread int64 `yaml:"spread_us"`
	// SecondWave tells the AP that a new population arrives at Start.
	SecondWave bool `yaml:"second_wave"`
}

// ScenarioConfig is a complete simulation setup.
type ScenarioConfig struct {
	Seed    int64         `yaml:"seed"`
	Horizon int64         `yaml:"horizon_us"`
	AP      ap.Config     `yaml:"ap"`
	Station sta.Config    `yaml:"station"`
	Waves   []WaveConfig  `yaml:"waves"`
	Medium  MediumConfig  `yaml:"medium"`
	Traffic TrafficConfig `yaml:"traffic"`
}

// DefaultScenario returns 100 stations starting within the first second,
// simulated for 60 s.
func DefaultScenario() ScenarioConfig {
	return ScenarioConfig{
		Seed:    42,
		Horizon: 60_000_000,
		AP:      ap.DefaultConfig(),
		Station: sta.DefaultConfig(),
		Waves:   []WaveConfig{{Count: 100, Start: 0, Spread: 1_000_000}},
		Medium:  MediumConfig{Delay: 10},
		Traffic: TrafficConfig{UplinkInterval: 1_000_000},
	}
}

// LoadScenario reads a YAML scenario file on top of DefaultScenario.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadScenario(path string) (*ScenarioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	cfg := DefaultScenario()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &cfg, nil
}

// TotalStations returns the station count over all waves.
func (c ScenarioConfig) TotalStations() int {
	n := 0
	for _, w := range c.Waves {
		n += w.Count
	}
	return n
}

// Validate checks every section of the scenario.
func (c ScenarioConfig) Validate() error {
	if c.Horizon <= 0 {
		return fmt.Errorf("horizon_us must be positive, got %d", c.Horizon)
	}
	if err := c.AP.Validate(); err != nil {
		return fmt.Errorf("ap: %w", err)
	}
	if err := c.Station.Validate(); err != nil {
		return fmt.Errorf("station: %w", err)
	}
	if len(c.Waves) == 0 {
		return fmt.Errorf("at least one wave is required")
	}
	for i, w := range c.Waves {
		if w.Count < 1 {
			return fmt.Errorf("waves[%d]: count must be positive, got %d", i, w.Count)
		}
		if w.Start < 0 || w.Spread < 0 {
			return fmt.Errorf("waves[%d]: start_us and spread_us must be non-negative", i)
		}
	}
	if c.Medium.Delay < 0 {
		return fmt.Errorf("medium.delay_us must be non-negative, got %d", c.Medium.Delay)
	}
	if c.Medium.Loss < 0 || c.Medium.Loss >= 1 {
		return fmt.Errorf("medium.loss must be in [0, 1), got %g", c.Medium.Loss)
	}
	if c.Traffic.UplinkInterval < 0 || c.Traffic.DownlinkInterval < 0 {
		return fmt.Errorf("traffic intervals must be non-negative")
	}
	return nil
}
