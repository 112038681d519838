// Package cac implements the AP's adaptive authentication admission control.
//
// The controller observes one Observation per announcement interval and
// moves the authentication threshold through three phases:
//
//	WAIT  no restriction, threshold = 1023
//	LEARN search for a sustainable threshold with a shrinking delta
//	WORK  hold the settled threshold
//
// Direction reversals while learning are pushed onto a bounded History so the
// controller can fall back to a known operating point when it starts to
// oscillate.
package cac

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ingertb/rawsim/sim"
)

// minStep is the smallest learning delta.
const minStep = 1

// State is the phase of the admission controller.
type State int

const (
	Wait State = iota
	Learn
	Work
)

func (s State) String() string {
	switch s {
	case Wait:
		return "WAIT"
	case Learn:
		return "LEARN"
	case Work:
		return "WORK"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Observation is the read-only view of one interval's counters.
type Observation struct {
	Interval     uint64
	Clock        int64
	AuthSuccess  int
	AuthFailed   int
	AssocSuccess int
	AssocFailed  int
	// Queue is the management queue depth sampled at the interval boundary.
	Queue       int
	AuthQueued  int
	AssocQueued int
	Associated  int
	SecondWave  bool
}

// Served returns the number of successful responses sent in the interval.
func (o Observation) Served() int {
	return o.AuthSuccess + o.AssocSuccess
}

// Failed returns the number of refusals sent in the interval.
func (o Observation) Failed() int {
	return o.AuthFailed + o.AssocFailed
}

// Controller owns the adaptive threshold state. It is created once per AP
// and stepped exactly once per announcement interval.
type Controller struct {
	cfg      Config
	policy   Policy
	observer sim.Observer

	state     State
	threshold int
	// target is where the policy wants the threshold; the announced
	// threshold moves toward it by at most the delta magnitude per step.
	target       int
	delta        int
	deltaTemp    int
	deltaReduced int

	improveCounter int
	learnCounter   int
	waitCounter    int
	emptyRun       int
	queueLast      int

	history *History
	steps   uint64
}

// New validates cfg and creates a Controller. The AlgorithmConfigured event
// is published before New returns.
func New(cfg Config, observer sim.Observer) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("admission controller: %w", err)
	}
	policy, err := NewPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("admission controller: %w", err)
	}
	if observer == nil {
		observer = sim.NopObserver{}
	}
	c := &Controller{
		cfg:          cfg,
		policy:       policy,
		observer:     observer,
		threshold:    cfg.InitialThreshold,
		target:       cfg.InitialThreshold,
		deltaTemp:    cfg.InitialDelta,
		deltaReduced: cfg.DeltaReduced,
		history:      NewHistory(cfg.HistoryDepth),
	}
	switch {
	case cfg.Algorithm == Fixed:
		if cfg.InitialThreshold < MaxThreshold {
			c.state = Work
		}
	case cfg.InitialThreshold < MaxThreshold:
		c.state = Learn
		c.delta = -cfg.InitialDelta
	}
	observer.AlgorithmConfigured(sim.AlgorithmEvent{Algorithm: int(cfg.Algorithm), Name: cfg.Algorithm.String()})
	logrus.Debugf("admission controller: algorithm=%s state=%s threshold=%d", cfg.Algorithm, c.state, c.threshold)
	return c, nil
}

// Step consumes one interval's observation and returns the threshold to announce.
func (c *Controller) Step(obs Observation) int {
	prevThreshold, prevDelta := c.threshold, c.delta

	c.policy.Decide(c, obs)

	c.target = clamp(c.target, c.cfg.MinThreshold, MaxThreshold)
	limit := max(abs(prevDelta), abs(c.delta))
	step := clamp(c.target-prevThreshold, -limit, limit)
	c.threshold = clamp(prevThreshold+step, c.cfg.MinThreshold, MaxThreshold)

	c.queueLast = obs.Queue
	c.steps++

	if c.threshold != prevThreshold {
		c.observer.ThresholdChanged(sim.ThresholdEvent{
			Clock:    obs.Clock,
			Interval: obs.Interval,
			Old:      prevThreshold,
			New:      c.threshold,
			Delta:    c.delta,
			State:    c.state.String(),
		})
	}
	return c.threshold
}

// Algorithm returns the configured decision policy selector.
func (c *Controller) Algorithm() Algorithm { return c.cfg.Algorithm }

// State returns the current phase.
func (c *Controller) State() State { return c.state }

// Threshold returns the currently announced threshold.
func (c *Controller) Threshold() int { return c.threshold }

// Target returns the operating point the threshold is moving toward.
func (c *Controller) Target() int { return c.target }

// Delta returns the signed step size.
func (c *Controller) Delta() int { return c.delta }

// DeltaTemp returns the learning step remembered while in WORK.
func (c *Controller) DeltaTemp() int { return c.deltaTemp }

// History returns the operating-point stack.
func (c *Controller) History() *History { return c.history }

// Steps returns how many intervals have been observed.
func (c *Controller) Steps() uint64 { return c.steps }

// adapt runs the shared WAIT/LEARN/WORK machine with a policy-specific signal.
func (c *Controller) adapt(obs Observation, s signaler) {
	growing := obs.Queue > c.queueLast
	switch c.state {
	case Wait:
		c.target = MaxThreshold
		if obs.Queue == 0 {
			c.emptyRun++
			return
		}
		if c.emptyRun < c.cfg.WaitEmptyIntervals && !obs.SecondWave {
			c.emptyRun = 0
			return
		}
		c.enterLearn(c.cfg.InitialDelta)
		c.learn(obs, s, growing)
	case Learn:
		c.learn(obs, s, growing)
	case Work:
		c.work(obs, growing)
	}
	c.checkWait(obs)
}

func (c *Controller) enterLearn(delta int) {
	c.state = Learn
	c.delta = -max(delta, minStep)
	c.improveCounter = 0
	c.learnCounter = 0
	c.waitCounter = 0
	c.emptyRun = 0
}

func (c *Controller) learn(obs Observation, s signaler, growing bool) {
	if growing {
		c.improveCounter = 0
	} else {
		c.improveCounter++
	}
	if c.improveCounter >= c.cfg.LearningThreshold {
		c.enterWork()
		return
	}

	dir, mag := s.signal(c, obs)
	if dir == 0 {
		c.target = c.threshold
		return
	}
	if dir != sign(c.delta) {
		if abs(c.delta) <= minStep {
			// Reversing at the smallest step: the search is oscillating.
			if p, ok := c.history.Pop(); ok {
				c.settle(p)
				return
			}
			c.enterWork()
			return
		}
		c.history.Push(Pair{Threshold: c.threshold, Delta: c.delta})
		c.delta = dir * max(abs(c.delta)/2, minStep)
	}
	step := abs(c.delta)
	if mag > 0 && mag < step {
		step = mag
	}
	c.target = c.threshold + sign(c.delta)*step
}

func (c *Controller) enterWork() {
	c.state = Work
	if c.delta != 0 {
		c.deltaTemp = abs(c.delta)
	}
	c.delta = 0
	c.target = c.threshold
	c.improveCounter = 0
	c.learnCounter = 0
}

// settle enters WORK at a remembered operating point. The threshold travels
// there by at most |p.Delta| per interval.
func (c *Controller) settle(p Pair) {
	c.state = Work
	c.target = p.Threshold
	c.delta = p.Delta
	c.deltaTemp = max(abs(p.Delta), minStep)
	c.improveCounter = 0
	c.learnCounter = 0
	logrus.Debugf("admission controller: settling at threshold=%d delta=%d", p.Threshold, p.Delta)
}

func (c *Controller) work(obs Observation, growing bool) {
	if growing {
		c.learnCounter++
	} else {
		c.learnCounter = 0
	}
	if c.learnCounter >= c.cfg.NewGroupThreshold {
		c.history.Push(Pair{Threshold: c.threshold, Delta: c.deltaTemp})
		c.deltaTemp = min(2*max(c.deltaTemp, minStep), c.cfg.InitialDelta)
		c.enterLearn(c.deltaTemp)
		c.target = c.threshold + c.delta
		return
	}
	if c.target != c.threshold {
		return
	}
	if obs.Queue == 0 && c.threshold < MaxThreshold {
		c.delta = c.deltaReduced
		c.target = c.threshold + c.deltaReduced
		return
	}
	c.delta = 0
}

func (c *Controller) checkWait(obs Observation) {
	if c.state == Wait || c.threshold < MaxThreshold || obs.Queue > 0 {
		c.waitCounter = 0
		return
	}
	c.waitCounter++
	if c.waitCounter >= c.cfg.WaitThreshold {
		c.state = Wait
		c.delta = 0
		c.target = MaxThreshold
		c.emptyRun = c.waitCounter
		c.waitCounter = 0
		c.improveCounter = 0
		c.learnCounter = 0
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
