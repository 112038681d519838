package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventLoop_OrdersByTimeThenScheduling(t *testing.T) {
	// GIVEN timers scheduled out of order, two of them at the same tick
	loop := NewEventLoop(1000)
	var got []string
	loop.ScheduleAfter(30, func() { got = append(got, "c") })
	loop.ScheduleAfter(10, func() { got = append(got, "a1") })
	loop.ScheduleAfter(10, func() { got = append(got, "a2") })
	loop.ScheduleAfter(20, func() { got = append(got, "b") })

	// WHEN the loop runs
	loop.Run()

	// THEN they fire by time, ties in scheduling order
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, got)
	assert.Equal(t, int64(30), loop.Now())
	assert.Equal(t, int64(4), loop.Fired())
}

func TestEventLoop_CancelRemovesTimer(t *testing.T) {
	loop := NewEventLoop(1000)
	fired := false
	timer := loop.ScheduleAfter(10, func() { fired = true })
	other := loop.ScheduleAfter(20, func() {})

	loop.Cancel(timer)

	assert.False(t, timer.Pending())
	assert.True(t, other.Pending())
	assert.Equal(t, 1, loop.Pending())
	loop.Run()
	assert.False(t, fired)
	assert.False(t, other.Pending())
}

func TestEventLoop_CancelIsIdempotent(t *testing.T) {
	loop := NewEventLoop(1000)
	timer := loop.ScheduleAfter(10, func() {})
	loop.Cancel(timer)
	loop.Cancel(timer)
	loop.Cancel(nil)
	assert.Equal(t, 0, loop.Pending())

	fired := loop.ScheduleAfter(5, func() {})
	loop.Run()
	loop.Cancel(fired)
	assert.False(t, fired.Pending())
}

func TestEventLoop_CallbackCancelsLaterTimer(t *testing.T) {
	// GIVEN a callback that cancels a timer due at the same tick
	loop := NewEventLoop(1000)
	var later *Timer
	ran := false
	loop.ScheduleAfter(10, func() { loop.Cancel(later) })
	later = loop.ScheduleAfter(10, func() { ran = true })

	loop.Run()

	assert.False(t, ran)
}

func TestEventLoop_StopsAtHorizon(t *testing.T) {
	// GIVEN a self-rescheduling timer
	loop := NewEventLoop(250)
	count := 0
	var tick func()
	tick = func() {
		count++
		loop.ScheduleAfter(100, tick)
	}
	loop.ScheduleAfter(0, tick)

	// WHEN the loop runs
	loop.Run()

	// THEN timers at or before the horizon fire and the clock ends on it
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(250), loop.Now())
}

func TestEventLoop_RunUntil(t *testing.T) {
	loop := NewEventLoop(1000)
	var got []int64
	for _, d := range []int64{10, 20, 30} {
		loop.ScheduleAfter(d, func() { got = append(got, loop.Now()) })
	}

	loop.RunUntil(20)

	assert.Equal(t, []int64{10, 20}, got)
	assert.Equal(t, int64(20), loop.Now())
	assert.Equal(t, 1, loop.Pending())
}

func TestEventLoop_NegativeDelayRunsNow(t *testing.T) {
	loop := NewEventLoop(1000)
	loop.RunUntil(50)
	timer := loop.ScheduleAfter(-5, func() {})
	assert.Equal(t, int64(50), timer.Timestamp())
}
