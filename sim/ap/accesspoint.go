// Package ap implements the access point: the announcement scheduler that
// drives the admission controller once per interval, and the handlers for
// the station request/response exchange.
package ap

import (
	"fmt"
	"maps"

	"github.com/sirupsen/logrus"

	"github.com/ingertb/rawsim/sim"
	"github.com/ingertb/rawsim/sim/cac"
	"github.com/ingertb/rawsim/sim/raw"
)

// State is the announcement scheduler state.
type State int

const (
	Idle State = iota
	Generating
)

func (s State) String() string {
	if s == Generating {
		return "GENERATING"
	}
	return "IDLE"
}

// Stats are cumulative counters over the whole run.
type Stats struct {
	Announcements  uint64
	ProbeResponses int64
	AuthAccepted   int64
	AuthRefused    int64
	AssocAccepted  int64
	AssocRefused   int64
	Disassociated  int64
	UplinkFrames   int64
	DownlinkFrames int64
	MaxQueue       int
}

// AccessPoint owns the announcement scheduler, the admission controller and
// the association table.
type AccessPoint struct {
	cfg      Config
	addr     sim.Address
	sched    sim.Scheduler
	rng      sim.RandomSource
	tx       sim.Transmitter
	observer sim.Observer
	cac      *cac.Controller

	state       State
	beaconTimer *sim.Timer
	interval    uint64
	jittered    bool
	secondWave  bool
	last        *sim.Announcement

	counters     IntervalCounters
	lastTaken    IntervalCounters
	queue        mgmtQueue
	serviceTimer *sim.Timer

	authenticated map[sim.Address]bool
	associated    map[sim.Address]bool
	aids          map[sim.Address]uint16
	owners        map[uint16]sim.Address
	nextAID       uint16
	buffered      map[uint16]bool

	stats Stats
}

// New validates cfg and creates an idle AccessPoint. Call Start to begin
// announcing. Panics if a collaborator is nil.
func New(cfg Config, addr sim.Address, sched sim.Scheduler, rng sim.RandomSource, tx sim.Transmitter, observer sim.Observer) (*AccessPoint, error) {
	if sched == nil || rng == nil || tx == nil {
		panic("ap.New: scheduler, random source and transmitter must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("access point: %w", err)
	}
	if observer == nil {
		observer = sim.NopObserver{}
	}
	controller, err := cac.New(cfg.AdmissionConfig(), observer)
	if err != nil {
		return nil, fmt.Errorf("access point: %w", err)
	}
	return &AccessPoint{
		cfg:           cfg,
		addr:          addr,
		sched:         sched,
		rng:           rng,
		tx:            tx,
		observer:      observer,
		cac:           controller,
		authenticated: make(map[sim.Address]bool),
		associated:    make(map[sim.Address]bool),
		aids:          make(map[sim.Address]uint16),
		owners:        make(map[uint16]sim.Address),
		nextAID:       1,
		buffered:      make(map[uint16]bool),
	}, nil
}

// Address returns the AP's address on the medium.
func (a *AccessPoint) Address() sim.Address { return a.addr }

// State returns the announcement scheduler state.
func (a *AccessPoint) State() State { return a.state }

// Controller exposes the admission controller for inspection.
func (a *AccessPoint) Controller() *cac.Controller { return a.cac }

// Stats returns the cumulative counters.
func (a *AccessPoint) Stats() Stats { return a.stats }

// Associated returns the number of currently associated stations.
func (a *AccessPoint) Associated() int { return len(a.associated) }

// QueueLen returns the number of management responses waiting to be sent.
func (a *AccessPoint) QueueLen() int { return a.queue.Len() }

// LastInterval returns the counters consumed by the most recent announcement.
func (a *AccessPoint) LastInterval() IntervalCounters { return a.lastTaken }

// LastAnnouncement returns the most recent announcement, or nil.
func (a *AccessPoint) LastAnnouncement() *sim.Announcement { return a.last }

// Start enables beacon generation if the configuration asks for it.
func (a *AccessPoint) Start() {
	if a.cfg.EnableBeaconGeneration {
		a.SetBeaconGeneration(true)
	}
}

// SetBeaconGeneration switches between GENERATING and IDLE. Enabling
// schedules the next announcement immediately, delayed by jitter on the very
// first firing only. Disabling cancels the pending firing.
func (a *AccessPoint) SetBeaconGeneration(enabled bool) {
	if !enabled {
		a.sched.Cancel(a.beaconTimer)
		a.beaconTimer = nil
		a.state = Idle
		return
	}
	if a.state == Generating {
		return
	}
	a.state = Generating
	var delay int64
	if a.cfg.EnableJitter && !a.jittered {
		delay = int64(a.rng.Intn(int(a.cfg.BeaconInterval)))
	}
	a.jittered = true
	a.beaconTimer = a.sched.ScheduleAfter(delay, a.announce)
}

// SignalSecondWave marks the next interval's observation so the controller
// knows a new population of stations has started.
func (a *AccessPoint) SignalSecondWave() {
	a.secondWave = true
}

// BufferDownlink flags downlink data for aid in the next announcement.
// Returns false if no station holds aid.
func (a *AccessPoint) BufferDownlink(aid uint16) bool {
	owner, ok := a.owners[aid]
	if !ok || !a.associated[owner] {
		return false
	}
	a.buffered[aid] = true
	return true
}

// announce is one firing of the announcement scheduler.
func (a *AccessPoint) announce() {
	a.beaconTimer = nil
	if a.state != Generating {
		return
	}
	now := a.sched.Now()
	a.interval++

	a.counters.Queue = a.queue.count(sim.FrameAuthResponse) + a.queue.count(sim.FrameAssocResponse)
	a.counters.AuthQueued = a.queue.count(sim.FrameAuthResponse)
	a.counters.AssocQueued = a.queue.count(sim.FrameAssocResponse)
	counters := a.counters.Take()
	a.lastTaken = counters

	threshold := a.cac.Step(cac.Observation{
		Interval:     a.interval,
		Clock:        now,
		AuthSuccess:  counters.AuthSuccess,
		AuthFailed:   counters.AuthFailed,
		AssocSuccess: counters.AssocSuccess,
		AssocFailed:  counters.AssocFailed,
		Queue:        counters.Queue,
		AuthQueued:   counters.AuthQueued,
		AssocQueued:  counters.AssocQueued,
		Associated:   len(a.associated),
		SecondWave:   a.secondWave,
	})
	a.secondWave = false

	ann := &sim.Announcement{
		Interval:       a.interval,
		Timestamp:      now,
		BeaconInterval: a.cfg.BeaconInterval,
		AuthThreshold:  threshold,
		RawEnabled:     a.cfg.RawEnabled,
	}
	if a.cfg.RawEnabled {
		ann.Layout = raw.Partition(a.cfg.rawParams(len(a.aids), threshold))
	}
	if len(a.buffered) > 0 {
		ann.Buffered = maps.Clone(a.buffered)
	}
	a.last = ann
	a.stats.Announcements++

	a.tx.Transmit(&sim.Frame{Kind: sim.FrameBeacon, From: a.addr, To: sim.Broadcast, Announcement: ann})
	a.observer.AnnouncementSent(sim.AnnouncementEvent{Clock: now, AP: a.addr, Announcement: ann})
	logrus.Debugf("[tick %07d] AP interval %d: served=%d failed=%d queue=%d threshold=%d state=%s",
		now, a.interval, counters.AuthSuccess+counters.AssocSuccess, counters.AuthFailed+counters.AssocFailed,
		counters.Queue, threshold, a.cac.State())

	a.beaconTimer = a.sched.ScheduleAfter(a.cfg.BeaconInterval, a.announce)
}

// Receive handles a frame from the medium. Frames for other radios are ignored.
func (a *AccessPoint) Receive(f *sim.Frame) {
	if f.To != a.addr && f.To != sim.Broadcast {
		return
	}
	switch f.Kind {
	case sim.FrameProbeRequest:
		a.stats.ProbeResponses++
		a.tx.Transmit(&sim.Frame{
			Kind:           sim.FrameProbeResponse,
			From:           a.addr,
			To:             f.From,
			AuthThreshold:  a.cac.Threshold(),
			BeaconInterval: a.cfg.BeaconInterval,
		})
	case sim.FrameAuthRequest:
		a.handleAuth(f.From)
	case sim.FrameAssocRequest:
		a.handleAssoc(f.From)
	case sim.FrameDisassocRequest:
		a.handleDisassoc(f.From)
	case sim.FramePsPoll:
		a.handlePsPoll(f)
	case sim.FrameData:
		a.stats.UplinkFrames++
	}
}

func (a *AccessPoint) handleAuth(from sim.Address) {
	if a.queue.holds(sim.FrameAuthResponse, from) {
		return
	}
	accept := a.authenticated[from] || a.cfg.MaxStations == 0 || len(a.authenticated) < a.cfg.MaxStations
	if accept {
		a.authenticated[from] = true
	} else {
		logrus.Debugf("[tick %07d] AP refuses authentication of %s: %d stations authenticated",
			a.sched.Now(), from, len(a.authenticated))
	}
	a.enqueue(&sim.Frame{Kind: sim.FrameAuthResponse, From: a.addr, To: from, Success: accept})
}

func (a *AccessPoint) handleAssoc(from sim.Address) {
	if a.queue.holds(sim.FrameAssocResponse, from) {
		return
	}
	if !a.authenticated[from] {
		a.enqueue(&sim.Frame{Kind: sim.FrameAssocResponse, From: a.addr, To: from})
		return
	}
	aid, ok := a.aids[from]
	if !ok {
		aid = a.nextAID
		a.nextAID++
		a.aids[from] = aid
		a.owners[aid] = from
	}
	a.associated[from] = true
	a.enqueue(&sim.Frame{Kind: sim.FrameAssocResponse, From: a.addr, To: from, Success: true, AID: aid})
}

func (a *AccessPoint) handleDisassoc(from sim.Address) {
	if a.associated[from] {
		a.stats.Disassociated++
	}
	delete(a.associated, from)
	delete(a.authenticated, from)
	if aid, ok := a.aids[from]; ok {
		delete(a.buffered, aid)
	}
	a.tx.Transmit(&sim.Frame{Kind: sim.FrameDisassocAck, From: a.addr, To: from})
}

func (a *AccessPoint) handlePsPoll(f *sim.Frame) {
	if !a.buffered[f.AID] || a.owners[f.AID] != f.From {
		return
	}
	delete(a.buffered, f.AID)
	a.stats.DownlinkFrames++
	a.tx.Transmit(&sim.Frame{Kind: sim.FrameData, From: a.addr, To: f.From, AID: f.AID})
}

// enqueue appends a response and starts the service timer if it is idle.
func (a *AccessPoint) enqueue(f *sim.Frame) {
	a.queue.push(f)
	a.stats.MaxQueue = max(a.stats.MaxQueue, a.queue.Len())
	if !a.serviceTimer.Pending() {
		a.serviceTimer = a.sched.ScheduleAfter(a.cfg.MgmtServiceTime, a.serveQueue)
	}
}

// serveQueue sends the response at the head of the queue.
func (a *AccessPoint) serveQueue() {
	a.serviceTimer = nil
	f := a.queue.pop()
	if f == nil {
		return
	}
	a.counters.countResponse(f)
	switch {
	case f.Kind == sim.FrameAuthResponse && f.Success:
		a.stats.AuthAccepted++
	case f.Kind == sim.FrameAuthResponse:
		a.stats.AuthRefused++
	case f.Kind == sim.FrameAssocResponse && f.Success:
		a.stats.AssocAccepted++
	case f.Kind == sim.FrameAssocResponse:
		a.stats.AssocRefused++
	}
	a.tx.Transmit(f)
	if a.queue.Len() > 0 {
		a.serviceTimer = a.sched.ScheduleAfter(a.cfg.MgmtServiceTime, a.serveQueue)
	}
}
