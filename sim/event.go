package sim

import (
	"container/heap"

	"github.com/sirupsen/logrus"
)

// Scheduler is the timer service shared by the AP and station engines.
// Delays and the clock are in ticks (microseconds).
type Scheduler interface {
	Now() int64
	ScheduleAfter(delay int64, fn func()) *Timer
	Cancel(t *Timer)
}

// Timer is a cancelable handle to a scheduled callback.
type Timer struct {
	at        int64
	seq       uint64
	fn        func()
	index     int // position in the heap, -1 once removed
	cancelled bool
	fired     bool
}

// Timestamp returns the tick at which the timer fires.
func (t *Timer) Timestamp() int64 {
	return t.at
}

// Pending reports whether the timer is still waiting to fire.
// A nil timer is never pending.
func (t *Timer) Pending() bool {
	return t != nil && !t.cancelled && !t.fired
}

// EventQueue implements heap.Interface and orders timers by timestamp,
// breaking ties by scheduling order.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type EventQueue []*Timer

func (eq EventQueue) Len() int { return len(eq) }
func (eq EventQueue) Less(i, j int) bool {
	if eq[i].at != eq[j].at {
		return eq[i].at < eq[j].at
	}
	return eq[i].seq < eq[j].seq
}
func (eq EventQueue) Swap(i, j int) {
	eq[i], eq[j] = eq[j], eq[i]
	eq[i].index = i
	eq[j].index = j
}

func (eq *EventQueue) Push(x any) {
	t := x.(*Timer)
	t.index = len(*eq)
	*eq = append(*eq, t)
}

func (eq *EventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*eq = old[0 : n-1]
	return item
}

// EventLoop is the reference Scheduler: a single-threaded discrete-event loop.
type EventLoop struct {
	Clock   int64
	Horizon int64
	queue   EventQueue
	nextSeq uint64
	fired   int64
}

// NewEventLoop creates an EventLoop that stops once the clock passes horizon.
func NewEventLoop(horizon int64) *EventLoop {
	return &EventLoop{
		Horizon: horizon,
		queue:   make(EventQueue, 0),
	}
}

// Now returns the current simulation time.
func (l *EventLoop) Now() int64 {
	return l.Clock
}

// ScheduleAfter schedules fn to run delay ticks from now.
// Negative delays are treated as zero.
func (l *EventLoop) ScheduleAfter(delay int64, fn func()) *Timer {
	if delay < 0 {
		delay = 0
	}
	t := &Timer{at: l.Clock + delay, seq: l.nextSeq, fn: fn}
	l.nextSeq++
	heap.Push(&l.queue, t)
	return t
}

// Cancel removes a pending timer. Cancelling a nil, fired or already
// cancelled timer is a no-op.
func (l *EventLoop) Cancel(t *Timer) {
	if !t.Pending() {
		return
	}
	t.cancelled = true
	if t.index >= 0 && t.index < len(l.queue) && l.queue[t.index] == t {
		heap.Remove(&l.queue, t.index)
	}
}

// Pending returns the number of timers waiting to fire.
func (l *EventLoop) Pending() int {
	return len(l.queue)
}

// Fired returns how many callbacks have run so far.
func (l *EventLoop) Fired() int64 {
	return l.fired
}

// Step runs the next timer. It returns false when the queue is empty or the
// next timer lies beyond the horizon.
func (l *EventLoop) Step() bool {
	if len(l.queue) == 0 {
		return false
	}
	if l.queue[0].at > l.Horizon {
		return false
	}
	t := heap.Pop(&l.queue).(*Timer)
	l.Clock = t.at
	t.fired = true
	l.fired++
	t.fn()
	return true
}

// Run drains the event queue up to the horizon.
func (l *EventLoop) Run() {
	for l.Step() {
	}
	if len(l.queue) > 0 {
		l.Clock = l.Horizon
	}
	logrus.Debugf("[tick %07d] Event loop stopped after %d events", l.Clock, l.fired)
}

// RunUntil processes timers up to and including tick until.
func (l *EventLoop) RunUntil(until int64) {
	for len(l.queue) > 0 && l.queue[0].at <= until && l.queue[0].at <= l.Horizon {
		l.Step()
	}
	if until > l.Clock {
		l.Clock = min(until, l.Horizon)
	}
}
