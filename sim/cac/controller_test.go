package cac

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingertb/rawsim/sim"
)

type recorder struct {
	sim.NopObserver
	thresholds []sim.ThresholdEvent
	algorithms []sim.AlgorithmEvent
}

func (r *recorder) ThresholdChanged(e sim.ThresholdEvent) { r.thresholds = append(r.thresholds, e) }
func (r *recorder) AlgorithmConfigured(e sim.AlgorithmEvent) { r.algorithms = append(r.algorithms, e) }

func newController(t *testing.T, cfg Config) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	c, err := New(cfg, rec)
	require.NoError(t, err)
	return c, rec
}

func step(c *Controller, queue int) int {
	return c.Step(Observation{Queue: queue})
}

func TestNew_RejectsUndefinedAlgorithms(t *testing.T) {
	for _, alg := range []Algorithm{4, 11, -1} {
		cfg := DefaultConfig()
		cfg.Algorithm = alg
		_, err := New(cfg, nil)
		assert.Error(t, err, "algorithm %d must be rejected", alg)
	}
}

func TestNew_PublishesAlgorithmConfiguredOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm = AIMD
	c, rec := newController(t, cfg)
	step(c, 3)
	step(c, 0)
	require.Len(t, rec.algorithms, 1)
	assert.Equal(t, int(AIMD), rec.algorithms[0].Algorithm)
	assert.Equal(t, "aimd", rec.algorithms[0].Name)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("7")
	require.NoError(t, err)
	assert.Equal(t, TwoGroupOracle, a)

	a, err = ParseAlgorithm("rate-match")
	require.NoError(t, err)
	assert.Equal(t, RateMatch, a)

	_, err = ParseAlgorithm("4")
	assert.Error(t, err)
	_, err = ParseAlgorithm("bogus")
	assert.Error(t, err)
	assert.Len(t, ValidAlgorithmNames(), 10)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above max", func(c *Config) { c.InitialThreshold = 1024 }},
		{"negative threshold", func(c *Config) { c.InitialThreshold = -1 }},
		{"min above initial", func(c *Config) { c.InitialThreshold = 100; c.MinThreshold = 200 }},
		{"zero delta", func(c *Config) { c.InitialDelta = 0 }},
		{"reduced above initial", func(c *Config) { c.DeltaReduced = 512 }},
		{"zero learning threshold", func(c *Config) { c.LearningThreshold = 0 }},
		{"zero new group threshold", func(c *Config) { c.NewGroupThreshold = 0 }},
		{"zero wait threshold", func(c *Config) { c.WaitThreshold = 0 }},
		{"saturation estimate without n", func(c *Config) { c.Algorithm = SaturationEstimate }},
		{"oracle with one group", func(c *Config) { c.Algorithm = TwoGroupOracle }},
		{"zero history", func(c *Config) { c.HistoryDepth = 0 }},
	}
	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestController_BoundedForAllAlgorithms checks, for random interval
// sequences, that the threshold stays within [0, 1023], moves by at most the
// delta magnitude per interval, and that |delta| never grows inside LEARN.
func TestController_BoundedForAllAlgorithms(t *testing.T) {
	for _, alg := range []Algorithm{Fixed, QueueStep, Proportional, FailureAware, SaturationEstimate,
		AIMD, TwoGroupOracle, AuthQueue, RateMatch, Hysteresis} {
		t.Run(alg.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Algorithm = alg
			cfg.NSaturated = 200
			cfg.RawGroups = 2
			cfg.LearningThreshold = 4
			c, _ := newController(t, cfg)
			rng := rand.New(rand.NewSource(int64(alg) + 7))

			for i := 0; i < 2000; i++ {
				prevT, prevD, prevState := c.Threshold(), c.Delta(), c.State()
				queue := 0
				if rng.Float64() < 0.7 {
					queue = rng.Intn(40)
				}
				obs := Observation{
					Interval:     uint64(i),
					AuthSuccess:  rng.Intn(5),
					AuthFailed:   rng.Intn(2),
					AssocSuccess: rng.Intn(5),
					Queue:        queue,
					AuthQueued:   queue / 2,
					AssocQueued:  queue - queue/2,
					Associated:   rng.Intn(200),
					SecondWave:   i == 1000,
				}
				got := c.Step(obs)

				require.Equal(t, got, c.Threshold())
				require.GreaterOrEqual(t, got, 0)
				require.LessOrEqual(t, got, MaxThreshold)
				limit := max(abs(prevD), abs(c.Delta()))
				require.LessOrEqual(t, abs(got-prevT), limit, "interval %d: %d -> %d exceeds delta %d", i, prevT, got, limit)
				if prevState == Learn && c.State() == Learn {
					require.LessOrEqual(t, abs(c.Delta()), abs(prevD), "interval %d: delta grew while learning", i)
				}
			}
		})
	}
}

func TestController_WaitLearnWorkCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelta = 64
	cfg.LearningThreshold = 2
	cfg.NewGroupThreshold = 2
	c, rec := newController(t, cfg)
	assert.Equal(t, Wait, c.State())
	assert.Equal(t, MaxThreshold, c.Threshold())

	// GIVEN queue growth, WHEN learning starts THEN the threshold drops by delta
	assert.Equal(t, 959, step(c, 5))
	assert.Equal(t, Learn, c.State())
	assert.Equal(t, 895, step(c, 9))

	// queue shrinks: direction reverses, the prior pair is pushed, delta halves
	assert.Equal(t, 927, step(c, 6))
	top, ok := c.History().Peek()
	require.True(t, ok)
	assert.Equal(t, Pair{Threshold: 895, Delta: -64}, top)
	assert.Equal(t, 32, c.Delta())

	// two non-growing intervals settle the threshold
	assert.Equal(t, 927, step(c, 6))
	assert.Equal(t, Work, c.State())
	assert.Equal(t, 0, c.Delta())
	assert.Equal(t, 32, c.DeltaTemp())

	// WHEN the queue grows for new_group_threshold intervals
	assert.Equal(t, 927, step(c, 8))
	assert.Equal(t, 863, step(c, 10))

	// THEN the settled point is pushed and learning restarts with a larger delta
	assert.Equal(t, Learn, c.State())
	top, _ = c.History().Peek()
	assert.Equal(t, Pair{Threshold: 927, Delta: 32}, top)
	assert.Equal(t, -64, c.Delta())
	assert.Len(t, rec.thresholds, 4)
}

func TestController_OscillationPopsRegressionPoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelta = 1
	cfg.DeltaReduced = 1
	cfg.LearningThreshold = 2
	cfg.NewGroupThreshold = 1
	cfg.WaitThreshold = 2
	c, _ := newController(t, cfg)

	assert.Equal(t, 1022, step(c, 1))
	step(c, 1)
	step(c, 1)
	require.Equal(t, Work, c.State())
	require.Equal(t, 1022, c.Threshold())

	// WORK -> LEARN pushes the settled pair
	assert.Equal(t, 1021, step(c, 2))
	require.Equal(t, Learn, c.State())
	pushed, ok := c.History().Peek()
	require.True(t, ok)
	assert.Equal(t, Pair{Threshold: 1022, Delta: 1}, pushed)

	// a reversal at the smallest step pops it back
	step(c, 1)
	assert.Equal(t, Work, c.State())
	assert.Equal(t, pushed.Threshold, c.Target())
	assert.Equal(t, pushed.Delta, c.Delta())
	assert.Equal(t, 1022, c.Threshold())
	assert.Equal(t, 0, c.History().Len())

	// the queue drains: additive recovery to 1023, then WAIT
	assert.Equal(t, 1023, step(c, 0))
	step(c, 0)
	assert.Equal(t, Work, c.State())
	step(c, 0)
	assert.Equal(t, Wait, c.State())
	assert.Equal(t, MaxThreshold, c.Threshold())
}

func TestController_WaitRequiresEmptyIntervals(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WaitEmptyIntervals = 2
	c, _ := newController(t, cfg)

	step(c, 4)
	assert.Equal(t, Wait, c.State(), "non-empty queue without prior empty intervals keeps WAIT")
	step(c, 0)
	step(c, 0)
	step(c, 3)
	assert.Equal(t, Learn, c.State())
}

func TestController_SecondWaveStartsLearning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WaitEmptyIntervals = 5
	c, _ := newController(t, cfg)
	c.Step(Observation{Queue: 2, SecondWave: true})
	assert.Equal(t, Learn, c.State())
}

func TestController_FixedNeverMoves(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm = Fixed
	cfg.InitialThreshold = 400
	c, rec := newController(t, cfg)
	for q := 0; q < 50; q++ {
		assert.Equal(t, 400, step(c, q%7))
	}
	assert.Equal(t, Work, c.State())
	assert.Empty(t, rec.thresholds)
}

func TestController_InitialRestrictedThresholdStartsLearning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialThreshold = 600
	c, _ := newController(t, cfg)
	assert.Equal(t, Learn, c.State())
	assert.Equal(t, 600, c.Threshold())
	assert.Equal(t, 344, step(c, 3))
}

func TestController_MinThresholdFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinThreshold = 100
	cfg.LearningThreshold = 100
	c, _ := newController(t, cfg)
	for q := 1; q < 30; q++ {
		step(c, q)
	}
	assert.Equal(t, 100, c.Threshold())
}

func TestTwoGroupOracle_ReturnsToT1OnSecondWave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm = TwoGroupOracle
	cfg.RawGroups = 2
	cfg.InitialDelta = 100
	cfg.LearningThreshold = 1
	cfg.WaitThreshold = 2
	c, _ := newController(t, cfg)

	assert.Equal(t, 923, step(c, 5))
	step(c, 5)
	require.Equal(t, Work, c.State())

	// first wave drains; controller recovers to WAIT
	for i := 0; i < 20 && c.State() != Wait; i++ {
		step(c, 0)
	}
	require.Equal(t, Wait, c.State())
	require.Equal(t, MaxThreshold, c.Threshold())

	got := c.Step(Observation{Queue: 3, SecondWave: true})
	assert.Equal(t, 923, got)
	assert.Equal(t, Work, c.State())
}

func TestAIMD_HalvesWithinDelta(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm = AIMD
	cfg.InitialDelta = 1000
	cfg.LearningThreshold = 10
	c, _ := newController(t, cfg)
	assert.Equal(t, 512, step(c, 4), "1023 - 1023/2")
	assert.Equal(t, 256, step(c, 8))
}

func TestHysteresis_NeedsTwoAgreeingIntervals(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm = Hysteresis
	cfg.LearningThreshold = 10
	c, _ := newController(t, cfg)
	assert.Equal(t, MaxThreshold, step(c, 2), "first growth only arms the hysteresis")
	assert.Equal(t, Learn, c.State())
	assert.Equal(t, 767, step(c, 4))
}
