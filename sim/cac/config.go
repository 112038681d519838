package cac

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ingertb/rawsim/sim/raw"
)

// MaxThreshold is the unrestricted authentication threshold.
const MaxThreshold = raw.UnrestrictedThreshold

// Algorithm selects the threshold decision policy. Selector 4 is not defined.
type Algorithm int

const (
	Fixed              Algorithm = 0
	QueueStep          Algorithm = 1
	Proportional       Algorithm = 2
	FailureAware       Algorithm = 3
	SaturationEstimate Algorithm = 5
	AIMD               Algorithm = 6
	TwoGroupOracle     Algorithm = 7
	AuthQueue          Algorithm = 8
	RateMatch          Algorithm = 9
	Hysteresis         Algorithm = 10
)

var algorithmNames = map[Algorithm]string{
	Fixed:              "fixed",
	QueueStep:          "queue-step",
	Proportional:       "proportional",
	FailureAware:       "failure-aware",
	SaturationEstimate: "saturation-estimate",
	AIMD:               "aimd",
	TwoGroupOracle:     "two-group-oracle",
	AuthQueue:          "auth-queue",
	RateMatch:          "rate-match",
	Hysteresis:         "hysteresis",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

// IsValidAlgorithm reports whether a names one of the ten defined algorithms.
func IsValidAlgorithm(a Algorithm) bool {
	_, ok := algorithmNames[a]
	return ok
}

// ValidAlgorithmNames returns the algorithm names ordered by selector.
func ValidAlgorithmNames() []string {
	algs := make([]int, 0, len(algorithmNames))
	for a := range algorithmNames {
		algs = append(algs, int(a))
	}
	sort.Ints(algs)
	names := make([]string, len(algs))
	for i, a := range algs {
		names[i] = algorithmNames[Algorithm(a)]
	}
	return names
}

// ParseAlgorithm accepts either a selector number or an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if !IsValidAlgorithm(Algorithm(n)) {
			return 0, fmt.Errorf("unknown admission algorithm %d", n)
		}
		return Algorithm(n), nil
	}
	for a, name := range algorithmNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown admission algorithm %q; valid: %s", s, strings.Join(ValidAlgorithmNames(), ", "))
}

// Config holds the admission controller parameters.
type Config struct {
	Algorithm         Algorithm `yaml:"algorithm"`
	InitialThreshold  int       `yaml:"initial_threshold"`
	MinThreshold      int       `yaml:"min_threshold"`
	InitialDelta      int       `yaml:"initial_delta"`
	DeltaReduced      int       `yaml:"delta_reduced"`
	LearningThreshold int       `yaml:"learning_threshold"`  // non-growing intervals before LEARN -> WORK
	NewGroupThreshold int       `yaml:"new_group_threshold"` // growing intervals before WORK -> LEARN
	WaitThreshold     int       `yaml:"wait_threshold"`      // empty intervals at 1023 before -> WAIT
	// WaitEmptyIntervals is the number of empty intervals WAIT requires before
	// a non-empty queue starts learning.
	WaitEmptyIntervals int `yaml:"wait_empty_intervals"`
	NSaturated         int `yaml:"n_saturated"`
	// ReferenceThreshold is T1 of the two-group oracle; 1023 means learn it.
	ReferenceThreshold int `yaml:"reference_threshold"`
	HistoryDepth       int `yaml:"history_depth"`
	// RawGroups is the number of RAW groups the AP announces.
	RawGroups int `yaml:"-"`
}

// DefaultConfig returns the queue-step controller with conservative settings.
func DefaultConfig() Config {
	return Config{
		Algorithm:          QueueStep,
		InitialThreshold:   MaxThreshold,
		MinThreshold:       0,
		InitialDelta:       256,
		DeltaReduced:       16,
		LearningThreshold:  3,
		NewGroupThreshold:  3,
		WaitThreshold:      5,
		WaitEmptyIntervals: 0,
		ReferenceThreshold: MaxThreshold,
		HistoryDepth:       32,
		RawGroups:          1,
	}
}

// Validate rejects invalid selectors and out-of-range parameters.
// Nothing is clamped silently.
func (c Config) Validate() error {
	if !IsValidAlgorithm(c.Algorithm) {
		return fmt.Errorf("unknown admission algorithm %d; valid selectors are 0-3 and 5-10", int(c.Algorithm))
	}
	if c.InitialThreshold < 0 || c.InitialThreshold > MaxThreshold {
		return fmt.Errorf("initial_threshold must be in [0, %d], got %d", MaxThreshold, c.InitialThreshold)
	}
	if c.MinThreshold < 0 || c.MinThreshold > c.InitialThreshold {
		return fmt.Errorf("min_threshold must be in [0, initial_threshold=%d], got %d", c.InitialThreshold, c.MinThreshold)
	}
	if c.InitialDelta < 1 || c.InitialDelta > MaxThreshold {
		return fmt.Errorf("initial_delta must be in [1, %d], got %d", MaxThreshold, c.InitialDelta)
	}
	if c.DeltaReduced < 1 || c.DeltaReduced > c.InitialDelta {
		return fmt.Errorf("delta_reduced must be in [1, initial_delta=%d], got %d", c.InitialDelta, c.DeltaReduced)
	}
	if c.LearningThreshold < 1 {
		return fmt.Errorf("learning_threshold must be positive, got %d", c.LearningThreshold)
	}
	if c.NewGroupThreshold < 1 {
		return fmt.Errorf("new_group_threshold must be positive, got %d", c.NewGroupThreshold)
	}
	if c.WaitThreshold < 1 {
		return fmt.Errorf("wait_threshold must be positive, got %d", c.WaitThreshold)
	}
	if c.WaitEmptyIntervals < 0 {
		return fmt.Errorf("wait_empty_intervals must be non-negative, got %d", c.WaitEmptyIntervals)
	}
	if c.NSaturated < 0 {
		return fmt.Errorf("n_saturated must be non-negative, got %d", c.NSaturated)
	}
	if c.Algorithm == SaturationEstimate && c.NSaturated == 0 {
		return fmt.Errorf("algorithm %s requires n_saturated > 0", c.Algorithm)
	}
	if c.ReferenceThreshold < 0 || c.ReferenceThreshold > MaxThreshold {
		return fmt.Errorf("reference_threshold must be in [0, %d], got %d", MaxThreshold, c.ReferenceThreshold)
	}
	if c.HistoryDepth < 1 {
		return fmt.Errorf("history_depth must be positive, got %d", c.HistoryDepth)
	}
	if c.Algorithm == TwoGroupOracle && c.RawGroups != 2 {
		return fmt.Errorf("algorithm %s requires exactly 2 RAW groups, got %d", c.Algorithm, c.RawGroups)
	}
	return nil
}

// UnmarshalText lets configuration files name the algorithm or give its selector.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText writes the algorithm by name.
func (a Algorithm) MarshalText() ([]byte, error) {
	if !IsValidAlgorithm(a) {
		return nil, fmt.Errorf("unknown admission algorithm %d", int(a))
	}
	return []byte(a.String()), nil
}
