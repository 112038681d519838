package cac

import "fmt"

// Policy is one admission algorithm. Decide is called exactly once per
// interval and may only move the controller through its helpers; Step
// enforces the threshold bounds afterwards.
type Policy interface {
	Algorithm() Algorithm
	Decide(c *Controller, obs Observation)
}

// NewPolicy creates the policy selected by cfg.Algorithm.
// Returns an error on unrecognized selectors.
func NewPolicy(cfg Config) (Policy, error) {
	switch cfg.Algorithm {
	case Fixed:
		return &fixedPolicy{threshold: cfg.InitialThreshold}, nil
	case QueueStep:
		return &adaptivePolicy{alg: QueueStep, s: queueStep{}}, nil
	case Proportional:
		return &adaptivePolicy{alg: Proportional, s: proportional{}}, nil
	case FailureAware:
		return &adaptivePolicy{alg: FailureAware, s: failureAware{}}, nil
	case SaturationEstimate:
		return &adaptivePolicy{alg: SaturationEstimate, s: saturationEstimate{nSaturated: cfg.NSaturated}}, nil
	case AIMD:
		return &adaptivePolicy{alg: AIMD, s: aimd{increase: cfg.DeltaReduced}}, nil
	case TwoGroupOracle:
		return &twoGroupOracle{t1: cfg.ReferenceThreshold, fixedT1: cfg.ReferenceThreshold < MaxThreshold, restoreDelta: cfg.InitialDelta}, nil
	case AuthQueue:
		return &adaptivePolicy{alg: AuthQueue, s: &authQueue{}}, nil
	case RateMatch:
		return &adaptivePolicy{alg: RateMatch, s: rateMatch{}}, nil
	case Hysteresis:
		return &adaptivePolicy{alg: Hysteresis, s: &hysteresis{need: 2}}, nil
	default:
		return nil, fmt.Errorf("unknown admission algorithm %d", int(cfg.Algorithm))
	}
}

// signaler proposes a learning direction (-1 lower, +1 raise, 0 hold) and an
// optional step magnitude; 0 means the full delta.
type signaler interface {
	signal(c *Controller, obs Observation) (dir, mag int)
}

// fixedPolicy pins the threshold at its configured value.
type fixedPolicy struct {
	threshold int
}

func (p *fixedPolicy) Algorithm() Algorithm { return Fixed }

func (p *fixedPolicy) Decide(c *Controller, _ Observation) {
	c.target = p.threshold
	c.delta = 0
}

// adaptivePolicy runs the shared WAIT/LEARN/WORK machine.
type adaptivePolicy struct {
	alg Algorithm
	s   signaler
}

func (p *adaptivePolicy) Algorithm() Algorithm { return p.alg }

func (p *adaptivePolicy) Decide(c *Controller, obs Observation) {
	c.adapt(obs, p.s)
}

// queueStep lowers the threshold while the queue grows and raises it while
// the queue drains.
type queueStep struct{}

func (queueStep) signal(c *Controller, obs Observation) (int, int) {
	switch {
	case obs.Queue > c.queueLast:
		return -1, 0
	case obs.Queue == 0 || obs.Queue < c.queueLast:
		return 1, 0
	default:
		return 0, 0
	}
}

// proportional scales the step by the relative change of the queue.
type proportional struct{}

func (proportional) signal(c *Controller, obs Observation) (int, int) {
	dir, _ := queueStep{}.signal(c, obs)
	if dir == 0 || (obs.Queue == 0 && c.queueLast == 0) {
		return dir, 0
	}
	change := abs(obs.Queue - c.queueLast)
	base := max(obs.Queue, c.queueLast, 1)
	return dir, ceilDiv(abs(c.delta)*change, base)
}

// failureAware treats any refusal as congestion.
type failureAware struct{}

func (failureAware) signal(c *Controller, obs Observation) (int, int) {
	switch {
	case obs.Failed() > 0 || obs.Queue > c.queueLast:
		return -1, 0
	case obs.Queue == 0:
		return 1, 0
	default:
		return 0, 0
	}
}

// saturationEstimate steers toward the share of the remaining stations the
// AP served in the last interval.
type saturationEstimate struct {
	nSaturated int
}

func (p saturationEstimate) signal(c *Controller, obs Observation) (int, int) {
	remaining := max(p.nSaturated-obs.Associated, 1)
	desired := clamp(MaxThreshold*max(obs.Served(), 1)/remaining, 0, MaxThreshold)
	if obs.Queue == 0 && desired < c.threshold {
		return 1, 0
	}
	return sign(desired - c.threshold), abs(desired - c.threshold)
}

// aimd halves the threshold on growth and adds a small increment otherwise.
type aimd struct {
	increase int
}

func (p aimd) signal(c *Controller, obs Observation) (int, int) {
	switch {
	case obs.Queue > c.queueLast:
		return -1, max(c.threshold/2, 1)
	case obs.Queue == 0 || obs.Queue < c.queueLast:
		return 1, max(p.increase, 1)
	default:
		return 0, 0
	}
}

// authQueue only reacts to pending authentication responses; an association
// backlog alone holds the threshold.
type authQueue struct {
	last int
}

func (p *authQueue) signal(_ *Controller, obs Observation) (int, int) {
	defer func() { p.last = obs.AuthQueued }()
	switch {
	case obs.AuthQueued > p.last:
		return -1, 0
	case obs.AuthQueued == 0 && obs.AssocQueued == 0:
		return 1, 0
	default:
		return 0, 0
	}
}

// rateMatch sizes the step by the backlog relative to what was served.
type rateMatch struct{}

func (rateMatch) signal(c *Controller, obs Observation) (int, int) {
	served := obs.Served()
	switch {
	case obs.Queue == 0:
		return 1, 0
	case obs.Queue > c.queueLast:
		return -1, ceilDiv(abs(c.delta)*obs.Queue, obs.Queue+served)
	case served > 0:
		return 1, ceilDiv(abs(c.delta)*served, obs.Queue+served)
	default:
		return 0, 0
	}
}

// hysteresis only moves once the queue signal agrees for need intervals.
type hysteresis struct {
	need    int
	pending int
	count   int
}

func (p *hysteresis) signal(c *Controller, obs Observation) (int, int) {
	dir, _ := queueStep{}.signal(c, obs)
	if dir == p.pending {
		p.count++
	} else {
		p.pending = dir
		p.count = 1
	}
	if dir == 0 || p.count < p.need {
		return 0, 0
	}
	return dir, 0
}

// twoGroupOracle is queue-step for the two-wave, two-group scenario: it
// remembers the first settled threshold T1 and returns to it directly when
// the second wave arrives instead of learning again.
type twoGroupOracle struct {
	t1           int
	fixedT1      bool
	restoreDelta int
}

func (p *twoGroupOracle) Algorithm() Algorithm { return TwoGroupOracle }

func (p *twoGroupOracle) Decide(c *Controller, obs Observation) {
	if obs.SecondWave && p.t1 < MaxThreshold && c.state != Learn {
		c.settle(Pair{Threshold: p.t1, Delta: -p.restoreDelta})
		return
	}
	learning := c.state == Learn
	c.adapt(obs, queueStep{})
	if learning && c.state == Work && !p.fixedT1 && p.t1 == MaxThreshold {
		p.t1 = c.target
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
