package sta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingertb/rawsim/sim"
	"github.com/ingertb/rawsim/sim/raw"
)

// countingRand returns v (capped to the range) and counts the draws.
type countingRand struct {
	v     int
	calls int
}

func (r *countingRand) Intn(n int) int {
	r.calls++
	return min(r.v, n-1)
}

func (r *countingRand) Float64() float64 { return 0 }

type fakeOwner struct {
	sched   sim.Scheduler
	pending int
	sent    []int64
}

func (o *fakeOwner) HasTraffic() bool { return o.pending > 0 }

func (o *fakeOwner) TransmitNext() {
	o.pending--
	o.sent = append(o.sent, o.sched.Now())
}

func backoffConfig() Config {
	cfg := DefaultConfig()
	cfg.ContentionWindow = 64
	cfg.SlotTime = 100
	cfg.FrameTime = 1000
	cfg.AckTime = 200
	return cfg
}

// oneSlotParams lays out a single station in a single 1700 µs slot.
func oneSlotParams() raw.Params {
	return raw.Params{TotalStations: 1, Groups: 1, SlotDurationCount: 10, SlotNum: 1, AuthThreshold: raw.UnrestrictedThreshold}
}

func announcement(interval uint64, ts int64, p raw.Params) *sim.Announcement {
	return &sim.Announcement{
		Interval:       interval,
		Timestamp:      ts,
		BeaconInterval: 2000,
		AuthThreshold:  raw.UnrestrictedThreshold,
		RawEnabled:     true,
		Layout:         raw.Partition(p),
	}
}

func newTestBackoff(cfg Config, horizon int64, rng *countingRand, pending int) (*Backoff, *sim.EventLoop, *fakeOwner) {
	loop := sim.NewEventLoop(horizon)
	owner := &fakeOwner{sched: loop, pending: pending}
	return NewBackoff(cfg, loop, rng, owner), loop, owner
}

func deliverAt(loop *sim.EventLoop, at int64, b *Backoff, ann *sim.Announcement, aid uint16) {
	loop.ScheduleAfter(at-loop.Now(), func() { b.OnAnnouncement(ann, aid) })
}

func TestBackoff_CounterResumesInNextWindow(t *testing.T) {
	// GIVEN a backoff of 20 slots and a window that only fits 16 of them
	rng := &countingRand{v: 20}
	b, loop, owner := newTestBackoff(backoffConfig(), 10_000, rng, 1)
	deliverAt(loop, 0, b, announcement(1, 0, oneSlotParams()), 1)

	// WHEN the first window closes
	loop.RunUntil(1999)

	// THEN the partially decremented counter is kept
	assert.Equal(t, 4, b.Counter())
	assert.False(t, b.Window().Inside)
	assert.Empty(t, owner.sent)

	// WHEN the next window opens
	deliverAt(loop, 2000, b, announcement(2, 2000, oneSlotParams()), 1)
	loop.RunUntil(2000)

	// THEN the countdown continues from the same value without a new draw
	assert.Equal(t, 4, b.Counter())
	assert.Equal(t, 1, rng.calls)

	// WHEN it reaches zero
	loop.RunUntil(5000)

	// THEN the frame goes out four slots into the second window
	assert.Equal(t, []int64{2400}, owner.sent)
	assert.Equal(t, -1, b.Counter())
	assert.Equal(t, int64(1), b.Attempts())
}

func TestBackoff_IdenticalAnnouncementIsNoOp(t *testing.T) {
	// GIVEN a countdown in progress
	rng := &countingRand{v: 20}
	b, loop, _ := newTestBackoff(backoffConfig(), 10_000, rng, 1)
	ann := announcement(1, 0, oneSlotParams())
	deliverAt(loop, 0, b, ann, 1)
	loop.RunUntil(550)
	before := b.Window()
	require.Equal(t, 15, b.Counter())

	// WHEN the same payload is received again
	dup := *ann
	b.OnAnnouncement(&dup, 1)

	// THEN neither the window nor the countdown changes
	assert.Equal(t, before, b.Window())
	assert.Equal(t, 15, b.Counter())
	assert.Equal(t, 1, b.Pending())

	loop.RunUntil(1999)
	assert.Equal(t, 4, b.Counter())
	assert.Equal(t, 1, rng.calls)
}

func TestBackoff_DefersUntilOwnGroup(t *testing.T) {
	// GIVEN two groups with the station in the second
	p := oneSlotParams()
	p.TotalStations, p.Groups = 2, 2
	rng := &countingRand{v: 3}
	b, loop, owner := newTestBackoff(backoffConfig(), 10_000, rng, 1)
	deliverAt(loop, 0, b, announcement(1, 0, p), 2)

	// WHEN the announcement arrives before the group starts
	loop.RunUntil(1699)

	// THEN only the outside-window timer is armed and nothing is drawn
	w := b.Window()
	assert.Equal(t, int64(1700), w.Start)
	assert.Equal(t, 1, w.Group)
	assert.False(t, w.Inside)
	assert.Equal(t, -1, b.Counter())
	assert.Equal(t, 1, b.Pending())

	// WHEN the group opens
	loop.RunUntil(1700)

	// THEN the countdown starts inside the window
	assert.True(t, b.Window().Inside)
	assert.Equal(t, 3, b.Counter())

	loop.RunUntil(5000)
	assert.Equal(t, []int64{2000}, owner.sent)
}

func TestBackoff_CrossBoundaryExtendsDeadline(t *testing.T) {
	tests := []struct {
		name          string
		crossBoundary bool
		wantSent      int
	}{
		{"slot end bounds the exchange", false, 0},
		{"group end bounds the exchange", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN two 500 µs slots and an 800 µs frame exchange
			cfg := backoffConfig()
			cfg.FrameTime, cfg.AckTime = 600, 200
			p := raw.Params{TotalStations: 2, Groups: 1, SlotNum: 2, CrossBoundary: tt.crossBoundary, AuthThreshold: raw.UnrestrictedThreshold}
			b, loop, owner := newTestBackoff(cfg, 1999, &countingRand{}, 1)

			// WHEN the station with slot 0 reaches zero at the slot start
			deliverAt(loop, 0, b, announcement(1, 0, p), 2)
			loop.Run()

			// THEN it transmits only if the deadline leaves room
			assert.Len(t, owner.sent, tt.wantSent)
			if tt.wantSent == 0 {
				assert.Equal(t, 0, b.Counter(), "the expired counter is kept for the next window")
			}
		})
	}
}

func TestBackoff_CrossBoundaryOnlyExtendsExchangesStartedInSlot(t *testing.T) {
	tests := []struct {
		name     string
		queuedAt int64
		wantSent []int64
	}{
		{"traffic inside own slot", 100, []int64{100}},
		{"traffic after own slot", 600, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN two 500 µs slots with cross-boundary transmission and an idle station in slot 0
			cfg := backoffConfig()
			cfg.FrameTime, cfg.AckTime = 600, 200
			p := raw.Params{TotalStations: 2, Groups: 1, SlotNum: 2, CrossBoundary: true, AuthThreshold: raw.UnrestrictedThreshold}
			b, loop, owner := newTestBackoff(cfg, 1999, &countingRand{}, 0)
			deliverAt(loop, 0, b, announcement(1, 0, p), 2)

			// WHEN a frame is queued
			loop.ScheduleAfter(tt.queuedAt, func() {
				owner.pending++
				b.Notify()
			})
			loop.Run()

			// THEN it only starts while the own slot is open
			assert.Equal(t, tt.wantSent, owner.sent)
			assert.Equal(t, int64(1000), b.Window().Deadline)
			if tt.wantSent == nil {
				assert.False(t, b.Window().Inside)
				assert.Equal(t, 1, owner.pending)
			}
		})
	}
}

func TestBackoff_UnrestrictedWithoutRAW(t *testing.T) {
	// GIVEN an announcement without RAW and two queued frames
	cfg := backoffConfig()
	cfg.FrameTime, cfg.AckTime = 500, 100
	b, loop, owner := newTestBackoff(cfg, 10_000, &countingRand{}, 2)
	ann := announcement(1, 0, oneSlotParams())
	ann.RawEnabled = false
	ann.Layout = raw.Layout{}
	deliverAt(loop, 0, b, ann, 1)
	loop.RunUntil(1999)

	// THEN the whole interval is the window and both frames go out back to back
	w := b.Window()
	assert.Equal(t, int64(2000), w.Duration)
	assert.Equal(t, -1, w.Group)
	assert.Equal(t, []int64{0, 600}, owner.sent)
}

func TestBackoff_StationOutsideLayoutWaits(t *testing.T) {
	b, loop, owner := newTestBackoff(backoffConfig(), 10_000, &countingRand{}, 1)
	deliverAt(loop, 0, b, announcement(1, 0, oneSlotParams()), 5)
	loop.RunUntil(1999)

	assert.Equal(t, int64(0), b.Window().Duration)
	assert.Equal(t, 0, b.Pending())
	assert.Empty(t, owner.sent)
}

func TestBackoff_ResetForgetsEverything(t *testing.T) {
	rng := &countingRand{v: 20}
	b, loop, _ := newTestBackoff(backoffConfig(), 10_000, rng, 1)
	deliverAt(loop, 0, b, announcement(1, 0, oneSlotParams()), 1)
	loop.RunUntil(550)

	b.Reset()

	assert.Equal(t, -1, b.Counter())
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 0, loop.Pending())
}
