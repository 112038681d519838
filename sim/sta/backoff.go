package sta

import (
	"github.com/ingertb/rawsim/sim"
)

// AccessWindow is the period of one announcement in which the station may
// contend for the channel.
type AccessWindow struct {
	Start    int64
	Duration int64
	// Deadline is the latest tick a transmission may end: the slot end, or
	// the end of the RAW group when cross-boundary transmission is allowed.
	Deadline int64
	Inside   bool
	// Group and Slot are -1 when the announcement carries no RAW layout.
	Group int
	Slot  int
}

// End returns the first tick after the window.
func (w AccessWindow) End() int64 { return w.Start + w.Duration }

// contender is what the backoff engine transmits for.
type contender interface {
	HasTraffic() bool
	TransmitNext()
}

// Backoff is the slot-boundary aware RAW backoff engine of one station.
// Its counter survives window boundaries; only a transmission or Reset
// discards it.
type Backoff struct {
	sched   sim.Scheduler
	rng     sim.RandomSource
	cw      int
	slot    int64
	airtime int64
	owner   contender

	window  AccessWindow
	last    *sim.Announcement
	counter int // -1 when no backoff is in progress

	outside *sim.Timer
	tick    *sim.Timer
	busy    *sim.Timer

	attempts int64
}

// NewBackoff creates an engine that contends on behalf of owner.
func NewBackoff(cfg Config, sched sim.Scheduler, rng sim.RandomSource, owner contender) *Backoff {
	return &Backoff{
		sched:   sched,
		rng:     rng,
		cw:      cfg.ContentionWindow,
		slot:    cfg.SlotTime,
		airtime: cfg.FrameTime + cfg.AckTime,
		owner:   owner,
		window:  AccessWindow{Group: -1, Slot: -1},
		counter: -1,
	}
}

// Window returns the current access window.
func (b *Backoff) Window() AccessWindow { return b.window }

// Counter returns the remaining backoff slots, or -1 if none was drawn.
func (b *Backoff) Counter() int { return b.counter }

// Attempts returns the number of transmissions made.
func (b *Backoff) Attempts() int64 { return b.attempts }

// OnAnnouncement recomputes the access window of aid. An announcement
// identical to the previous one changes nothing.
func (b *Backoff) OnAnnouncement(ann *sim.Announcement, aid uint16) {
	if ann == nil || ann.Same(b.last) {
		return
	}
	b.last = ann
	b.sched.Cancel(b.outside)
	b.sched.Cancel(b.tick)
	b.outside, b.tick = nil, nil
	b.window = windowFor(ann, aid)

	if b.window.Duration <= 0 {
		return
	}
	now := b.sched.Now()
	switch {
	case now < b.window.Start:
		b.outside = b.sched.ScheduleAfter(b.window.Start-now, b.enter)
	case now < b.window.End():
		b.enter()
	}
}

// Notify resumes contention after new traffic was queued.
func (b *Backoff) Notify() {
	b.resume()
}

// Reset cancels every timer and forgets the window and the counter.
func (b *Backoff) Reset() {
	b.sched.Cancel(b.outside)
	b.sched.Cancel(b.tick)
	b.sched.Cancel(b.busy)
	b.outside, b.tick, b.busy = nil, nil, nil
	b.last = nil
	b.window = AccessWindow{Group: -1, Slot: -1}
	b.counter = -1
}

// Pending returns the number of live backoff timers.
func (b *Backoff) Pending() int {
	n := 0
	for _, t := range []*sim.Timer{b.outside, b.tick, b.busy} {
		if t.Pending() {
			n++
		}
	}
	return n
}

func windowFor(ann *sim.Announcement, aid uint16) AccessWindow {
	if !ann.RawEnabled || ann.Layout.Empty() {
		end := ann.Timestamp + ann.BeaconInterval
		return AccessWindow{Start: ann.Timestamp, Duration: ann.BeaconInterval, Deadline: end, Group: -1, Slot: -1}
	}
	gi, slot, ok := ann.Layout.Locate(int(aid))
	if !ok {
		return AccessWindow{Group: -1, Slot: -1}
	}
	g := ann.Layout.Groups[gi]
	w := AccessWindow{
		Start:    ann.Timestamp + g.Offset + int64(slot)*g.SlotDuration(),
		Duration: g.SlotDuration(),
		Group:    gi,
		Slot:     slot,
	}
	w.Deadline = w.End()
	if g.CrossBoundary {
		w.Deadline = ann.Timestamp + g.Offset + g.Duration()
	}
	return w
}

func (b *Backoff) enter() {
	b.outside = nil
	b.window.Inside = true
	b.resume()
}

func (b *Backoff) resume() {
	if !b.window.Inside || b.tick.Pending() || b.busy.Pending() || !b.owner.HasTraffic() {
		return
	}
	if b.sched.Now() >= b.window.End() {
		b.window.Inside = false
		return
	}
	if b.counter < 0 {
		b.counter = b.rng.Intn(b.cw)
	}
	b.countdown()
}

// countdown transmits at zero or waits for the next slot boundary inside
// the window.
func (b *Backoff) countdown() {
	if b.counter == 0 {
		b.transmit()
		return
	}
	if b.sched.Now()+b.slot >= b.window.End() {
		b.window.Inside = false
		return
	}
	b.tick = b.sched.ScheduleAfter(b.slot, b.onSlot)
}

func (b *Backoff) onSlot() {
	b.tick = nil
	b.counter--
	b.countdown()
}

// transmit starts an exchange. It must start inside the window; only the
// exchange itself may run on to the deadline.
func (b *Backoff) transmit() {
	now := b.sched.Now()
	if now >= b.window.End() || b.window.Deadline-now < b.airtime {
		b.window.Inside = false
		return
	}
	b.counter = -1
	b.attempts++
	b.owner.TransmitNext()
	b.busy = b.sched.ScheduleAfter(b.airtime, func() {
		b.busy = nil
		b.resume()
	})
}
