package ap

import "github.com/ingertb/rawsim/sim"

// IntervalCounters hold what happened at the AP between two announcements.
// Frame handlers write them; only the announcement scheduler reads them, via Take.
type IntervalCounters struct {
	AuthSuccess  int
	AuthFailed   int
	AssocSuccess int
	AssocFailed  int
	// Queue samples, taken at the interval boundary.
	Queue       int
	AuthQueued  int
	AssocQueued int
}

// Take returns the counters and resets them in one step.
func (c *IntervalCounters) Take() IntervalCounters {
	snapshot := *c
	*c = IntervalCounters{}
	return snapshot
}

// countResponse records a management response leaving the queue.
func (c *IntervalCounters) countResponse(f *sim.Frame) {
	switch f.Kind {
	case sim.FrameAuthResponse:
		if f.Success {
			c.AuthSuccess++
		} else {
			c.AuthFailed++
		}
	case sim.FrameAssocResponse:
		if f.Success {
			c.AssocSuccess++
		} else {
			c.AssocFailed++
		}
	}
}

// mgmtQueue is the FIFO of authentication and association responses waiting
// to be sent.
type mgmtQueue struct {
	frames []*sim.Frame
}

func (q *mgmtQueue) Len() int { return len(q.frames) }

func (q *mgmtQueue) push(f *sim.Frame) {
	q.frames = append(q.frames, f)
}

func (q *mgmtQueue) pop() *sim.Frame {
	if len(q.frames) == 0 {
		return nil
	}
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return f
}

// holds reports whether a response of kind to addr is already queued.
func (q *mgmtQueue) holds(kind sim.FrameKind, addr sim.Address) bool {
	for _, f := range q.frames {
		if f.Kind == kind && f.To == addr {
			return true
		}
	}
	return false
}

// count returns the number of queued responses of kind.
func (q *mgmtQueue) count(kind sim.FrameKind) int {
	n := 0
	for _, f := range q.frames {
		if f.Kind == kind {
			n++
		}
	}
	return n
}
