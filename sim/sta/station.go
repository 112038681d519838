// Package sta implements the station side: the access and association state
// machine and the RAW backoff engine that runs while associated.
package sta

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ingertb/rawsim/sim"
	"github.com/ingertb/rawsim/sim/raw"
)

// MacState is the association state of a station.
type MacState int

const (
	Idle MacState = iota
	WaitProbeResp
	WaitAuthResp
	WaitAssocResp
	Associated
	WaitDisassocAck
	BeaconMissed
	Refused
)

var macStateNames = map[MacState]string{
	Idle:            "IDLE",
	WaitProbeResp:   "WAIT_PROBE_RESP",
	WaitAuthResp:    "WAIT_AUTH_RESP",
	WaitAssocResp:   "WAIT_ASSOC_RESP",
	Associated:      "ASSOCIATED",
	WaitDisassocAck: "WAIT_DISASSOC_ACK",
	BeaconMissed:    "BEACON_MISSED",
	Refused:         "REFUSED",
}

func (s MacState) String() string {
	if name, ok := macStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("MacState(%d)", int(s))
}

// Stats are cumulative per-station counters.
type Stats struct {
	ProbeRequests  int
	AuthRequests   int
	AssocRequests  int
	Timeouts       int
	Refusals       int
	GatedOut       int
	BeaconsMissed  int
	Losses         int
	UplinkSent     int64
	PsPolls        int64
	DownlinkFrames int64
	// AssociatedAt is the tick of the last successful association, or -1.
	AssociatedAt int64
	StartedAt    int64
}

// Station is one non-AP radio. All methods must be called from the event loop.
type Station struct {
	cfg      Config
	addr     sim.Address
	sched    sim.Scheduler
	rng      sim.RandomSource
	tx       sim.Transmitter
	observer sim.Observer

	state   MacState
	started bool
	ap      sim.Address
	apKnown bool
	aid     uint16

	// authValue gates authentication: the station only authenticates when it
	// is below the announced threshold.
	authValue      int
	threshold      int
	beaconInterval int64

	phaseTimer *sim.Timer
	watchdog   *sim.Timer
	retries    int
	missed     int

	uplinkPending int
	dataBuffered  bool
	backoff       *Backoff

	stats Stats
}

// New validates cfg and creates an idle station. Panics if a collaborator is nil.
func New(cfg Config, addr sim.Address, sched sim.Scheduler, rng sim.RandomSource, tx sim.Transmitter, observer sim.Observer) (*Station, error) {
	if sched == nil || rng == nil || tx == nil {
		panic("sta.New: scheduler, random source and transmitter must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("station %s: %w", addr, err)
	}
	if observer == nil {
		observer = sim.NopObserver{}
	}
	s := &Station{
		cfg:       cfg,
		addr:      addr,
		sched:     sched,
		rng:       rng,
		tx:        tx,
		observer:  observer,
		authValue: rng.Intn(raw.UnrestrictedThreshold),
		threshold: raw.UnrestrictedThreshold,
		stats:     Stats{AssociatedAt: -1, StartedAt: -1},
	}
	s.backoff = NewBackoff(cfg, sched, rng, s)
	return s, nil
}

// Address returns the station's address on the medium.
func (s *Station) Address() sim.Address { return s.addr }

// State returns the current association state.
func (s *Station) State() MacState { return s.state }

// AID returns the association identifier, 0 while unassociated.
func (s *Station) AID() uint16 { return s.aid }

// AuthValue returns the value compared against the announced threshold.
func (s *Station) AuthValue() int { return s.authValue }

// MissedBeacons returns the consecutive missed-beacon count.
func (s *Station) MissedBeacons() int { return s.missed }

// Backoff returns the station's backoff engine.
func (s *Station) Backoff() *Backoff { return s.backoff }

// Stats returns the cumulative counters.
func (s *Station) Stats() Stats { return s.stats }

// PendingRetryTimers returns the number of live request timeouts. The beacon
// watchdog and backoff timers are not retry timers.
func (s *Station) PendingRetryTimers() int {
	if s.phaseTimer.Pending() {
		return 1
	}
	return 0
}

// WatchdogPending reports whether the missed-beacon watchdog is armed.
func (s *Station) WatchdogPending() bool { return s.watchdog.Pending() }

// StartAssociation begins the association procedure. It is the external
// trigger that leaves REFUSED or a retry-exhausted IDLE.
func (s *Station) StartAssociation() {
	if s.state == Refused {
		s.setState(Idle)
	}
	if s.stats.StartedAt < 0 {
		s.stats.StartedAt = s.sched.Now()
	}
	s.started = true
	if s.state != Idle {
		return
	}
	s.retries = 0
	s.begin()
}

// Disassociate leaves the BSS. Returns false if the station is not associated.
func (s *Station) Disassociate() bool {
	if s.state != Associated && s.state != BeaconMissed {
		return false
	}
	s.sched.Cancel(s.watchdog)
	s.watchdog = nil
	s.backoff.Reset()
	s.setState(WaitDisassocAck)
	s.send(sim.FrameDisassocRequest, 0)
	s.phaseTimer = s.sched.ScheduleAfter(s.cfg.DisassocTimeout, s.finishDisassociation)
	return true
}

// Restart cancels every pending timer, drops in-flight counters and starts
// association from scratch.
func (s *Station) Restart() {
	s.sched.Cancel(s.watchdog)
	s.watchdog = nil
	s.backoff.Reset()
	if s.aid != 0 {
		s.loseAssociation()
	}
	s.setState(Idle)
	s.retries = 0
	s.missed = 0
	s.apKnown = false
	s.StartAssociation()
}

// Enqueue adds n uplink frames and wakes the backoff engine.
func (s *Station) Enqueue(n int) {
	if n <= 0 {
		return
	}
	s.uplinkPending += n
	if s.state == Associated || s.state == BeaconMissed {
		s.backoff.Notify()
	}
}

// UplinkPending returns the number of queued uplink frames.
func (s *Station) UplinkPending() int { return s.uplinkPending }

// HasTraffic reports whether the backoff engine has something to send.
func (s *Station) HasTraffic() bool {
	return s.uplinkPending > 0 || s.dataBuffered
}

// TransmitNext sends a PS-Poll when downlink data is buffered, otherwise one
// uplink frame.
func (s *Station) TransmitNext() {
	if s.dataBuffered {
		s.dataBuffered = false
		s.stats.PsPolls++
		s.send(sim.FramePsPoll, s.aid)
		return
	}
	if s.uplinkPending > 0 {
		s.uplinkPending--
		s.stats.UplinkSent++
		s.send(sim.FrameData, s.aid)
	}
}

// Receive handles a frame from the medium.
func (s *Station) Receive(f *sim.Frame) {
	if f.To != s.addr && f.To != sim.Broadcast {
		return
	}
	if s.apKnown && f.From != s.ap && f.Kind != sim.FrameBeacon && f.Kind != sim.FrameProbeResponse {
		return
	}
	switch f.Kind {
	case sim.FrameBeacon:
		s.onBeacon(f)
	case sim.FrameProbeResponse:
		s.onProbeResponse(f)
	case sim.FrameAuthResponse:
		s.onAuthResponse(f)
	case sim.FrameAssocResponse:
		s.onAssocResponse(f)
	case sim.FrameDisassocAck:
		if s.state == WaitDisassocAck {
			s.finishDisassociation()
		}
	case sim.FrameData:
		if s.state == Associated || s.state == BeaconMissed {
			s.stats.DownlinkFrames++
		}
	}
}

// setState cancels the phase timer and switches state.
func (s *Station) setState(next MacState) {
	s.sched.Cancel(s.phaseTimer)
	s.phaseTimer = nil
	if next != s.state {
		logrus.Debugf("[tick %07d] %s: %s -> %s", s.sched.Now(), s.addr, s.state, next)
	}
	s.state = next
}

func (s *Station) begin() {
	switch {
	case s.cfg.ActiveProbing:
		s.sendProbe()
	case s.apKnown:
		s.authenticate()
	}
	// Passive stations without a known AP wait in IDLE for a beacon.
}

func (s *Station) sendProbe() {
	s.setState(WaitProbeResp)
	s.stats.ProbeRequests++
	s.send(sim.FrameProbeRequest, 0)
	s.arm(s.cfg.ProbeTimeout, s.sendProbe)
}

// authenticate sends an authentication request if the station passes the
// announced threshold; otherwise it waits in IDLE for the next announcement.
func (s *Station) authenticate() {
	if s.authValue >= s.threshold {
		s.stats.GatedOut++
		s.setState(Idle)
		return
	}
	s.sendAuth()
}

func (s *Station) sendAuth() {
	s.setState(WaitAuthResp)
	s.stats.AuthRequests++
	s.send(sim.FrameAuthRequest, 0)
	s.arm(s.cfg.AuthTimeout, s.sendAuth)
}

func (s *Station) sendAssoc() {
	s.setState(WaitAssocResp)
	s.stats.AssocRequests++
	s.send(sim.FrameAssocRequest, 0)
	s.arm(s.cfg.AssocTimeout, s.sendAssoc)
}

// arm starts the phase timeout. On expiry the phase is resent until
// MaxRetries resends have been spent.
func (s *Station) arm(timeout int64, resend func()) {
	phase := s.state
	s.phaseTimer = s.sched.ScheduleAfter(timeout, func() {
		s.phaseTimer = nil
		s.stats.Timeouts++
		s.retries++
		if s.cfg.MaxRetries > 0 && s.retries > s.cfg.MaxRetries {
			logrus.Warnf("[tick %07d] %s: giving up in %s after %d retries", s.sched.Now(), s.addr, phase, s.cfg.MaxRetries)
			s.setState(Idle)
			s.started = false
			return
		}
		resend()
	})
}

func (s *Station) send(kind sim.FrameKind, aid uint16) {
	to := s.ap
	if !s.apKnown {
		to = sim.Broadcast
	}
	s.tx.Transmit(&sim.Frame{Kind: kind, From: s.addr, To: to, AID: aid})
}

func (s *Station) learnAP(from sim.Address) {
	s.ap = from
	s.apKnown = true
}

func (s *Station) onBeacon(f *sim.Frame) {
	ann := f.Announcement
	if ann == nil {
		return
	}
	if s.apKnown && f.From != s.ap && (s.state != Idle || s.aid != 0) {
		return
	}
	s.learnAP(f.From)
	s.threshold = ann.AuthThreshold
	s.beaconInterval = ann.BeaconInterval

	switch s.state {
	case Associated, BeaconMissed:
		if s.state == BeaconMissed {
			s.setState(Associated)
		}
		s.missed = 0
		s.armWatchdog()
		s.dataBuffered = s.dataBuffered || ann.Buffered[s.aid]
		s.backoff.OnAnnouncement(ann, s.aid)
		s.backoff.Notify()
	case Idle:
		if s.started {
			s.retries = 0
			s.authenticate()
		}
	}
}

func (s *Station) onProbeResponse(f *sim.Frame) {
	if s.state != WaitProbeResp {
		return
	}
	s.learnAP(f.From)
	s.threshold = f.AuthThreshold
	if f.BeaconInterval > 0 {
		s.beaconInterval = f.BeaconInterval
	}
	s.retries = 0
	s.authenticate()
}

func (s *Station) onAuthResponse(f *sim.Frame) {
	if s.state != WaitAuthResp {
		return
	}
	if !f.Success {
		s.stats.Refusals++
		s.setState(Refused)
		return
	}
	s.retries = 0
	s.sendAssoc()
}

func (s *Station) onAssocResponse(f *sim.Frame) {
	if s.state != WaitAssocResp {
		return
	}
	if !f.Success || f.AID == 0 {
		s.stats.Refusals++
		s.setState(Refused)
		return
	}
	s.retries = 0
	s.aid = f.AID
	s.missed = 0
	s.setState(Associated)
	s.stats.AssociatedAt = s.sched.Now()
	s.armWatchdog()
	s.observer.Associated(sim.AssociationEvent{Clock: s.sched.Now(), Station: s.addr, Peer: s.ap, AID: s.aid})
	s.backoff.Notify()
}

// armWatchdog restarts the missed-beacon timer.
func (s *Station) armWatchdog() {
	s.sched.Cancel(s.watchdog)
	s.watchdog = nil
	interval := s.cfg.WatchdogInterval
	if interval <= 0 {
		// A beacon counts as missed once 1.5 announced intervals pass without one.
		interval = s.beaconInterval + s.beaconInterval/2
	}
	if interval <= 0 {
		return
	}
	s.watchdog = s.sched.ScheduleAfter(interval, s.onBeaconMissed)
}

func (s *Station) onBeaconMissed() {
	s.watchdog = nil
	s.missed++
	s.stats.BeaconsMissed++
	if s.missed < s.cfg.MaxMissedBeacons {
		s.setState(BeaconMissed)
		s.armWatchdog()
		return
	}
	logrus.Infof("[tick %07d] %s: %d beacons missed, restarting association", s.sched.Now(), s.addr, s.missed)
	s.backoff.Reset()
	s.loseAssociation()
	s.missed = 0
	s.apKnown = false
	s.setState(Idle)
	s.retries = 0
	s.begin()
}

func (s *Station) finishDisassociation() {
	s.loseAssociation()
	s.setState(Idle)
	s.started = false
}

func (s *Station) loseAssociation() {
	s.stats.Losses++
	s.observer.Deassociated(sim.AssociationEvent{Clock: s.sched.Now(), Station: s.addr, Peer: s.ap, AID: s.aid})
	s.aid = 0
	s.dataBuffered = false
}
