package bss

import (
	"github.com/sirupsen/logrus"

	"github.com/ingertb/rawsim/sim"
)

// MediumStats counts deliveries on the shared medium.
type MediumStats struct {
	Transmitted int64
	Delivered   int64
	Lost        int64
	ByKind      map[sim.FrameKind]int64
}

// Medium is the frame-transmission collaborator: it delivers every frame to
// its destination (or to every other radio for broadcasts) after a fixed
// propagation delay, dropping each delivery independently with the
// configured loss probability.
type Medium struct {
	sched     sim.Scheduler
	rng       sim.RandomSource
	delay     int64
	loss      float64
	receivers map[sim.Address]sim.Receiver
	order     []sim.Address
	stats     MediumStats
}

// NewMedium creates an empty medium.
func NewMedium(cfg MediumConfig, sched sim.Scheduler, rng sim.RandomSource) *Medium {
	return &Medium{
		sched:     sched,
		rng:       rng,
		delay:     cfg.Delay,
		loss:      cfg.Loss,
		receivers: make(map[sim.Address]sim.Receiver),
		stats:     MediumStats{ByKind: make(map[sim.FrameKind]int64)},
	}
}

// Attach connects a radio. Broadcasts reach radios in attachment order.
func (m *Medium) Attach(r sim.Receiver) {
	addr := r.Address()
	if _, ok := m.receivers[addr]; ok {
		panic("bss.Medium: address attached twice: " + addr.String())
	}
	m.receivers[addr] = r
	m.order = append(m.order, addr)
}

// Stats returns the delivery counters.
func (m *Medium) Stats() MediumStats { return m.stats }

// Transmit implements sim.Transmitter.
func (m *Medium) Transmit(f *sim.Frame) {
	m.stats.Transmitted++
	m.stats.ByKind[f.Kind]++
	if f.To == sim.Broadcast {
		for _, addr := range m.order {
			if addr != f.From {
				m.deliver(m.receivers[addr], f)
			}
		}
		return
	}
	r, ok := m.receivers[f.To]
	if !ok {
		logrus.Debugf("[tick %07d] medium: %s from %s to unknown %s dropped", m.sched.Now(), f.Kind, f.From, f.To)
		m.stats.Lost++
		return
	}
	m.deliver(r, f)
}

func (m *Medium) deliver(r sim.Receiver, f *sim.Frame) {
	if m.loss > 0 && m.rng.Float64() < m.loss {
		m.stats.Lost++
		return
	}
	m.stats.Delivered++
	m.sched.ScheduleAfter(m.delay, func() { r.Receive(f) })
}
