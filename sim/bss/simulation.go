// Package bss wires one access point and a population of stations onto a
// shared medium and runs them on a single event loop.
package bss

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/ingertb/rawsim/sim"
	"github.com/ingertb/rawsim/sim/ap"
	"github.com/ingertb/rawsim/sim/sta"
)

// APAddress is the address of the access point. Stations are numbered from
// firstStationAddress upwards.
const (
	APAddress           sim.Address = 0x0a000001
	firstStationAddress sim.Address = 0x0b000001
)

// Simulation is one basic service set: an AP, its stations and the medium.
type Simulation struct {
	cfg      ScenarioConfig
	loop     *sim.EventLoop
	rng      *sim.Streams
	medium   *Medium
	ap       *ap.AccessPoint
	stations []*sta.Station
	hasRun   bool
}

// NewSimulation validates cfg and builds every component. The observer
// receives the events of the AP, its admission controller and every station.
func NewSimulation(cfg ScenarioConfig, observer sim.Observer) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if observer == nil {
		observer = sim.NopObserver{}
	}
	loop := sim.NewEventLoop(cfg.Horizon)
	rng := sim.NewStreams(cfg.Seed)
	medium := NewMedium(cfg.Medium, loop, rng.Stream(sim.StreamMedium))

	access, err := ap.New(cfg.AP, APAddress, loop, rng.Stream(sim.StreamAccessPoint), medium, observer)
	if err != nil {
		return nil, err
	}
	medium.Attach(access)

	stations := make([]*sta.Station, cfg.TotalStations())
	for i := range stations {
		addr := firstStationAddress + sim.Address(i)
		st, err := sta.New(cfg.Station, addr, loop, rng.Stream(sim.StationStream(i)), medium, observer)
		if err != nil {
			return nil, err
		}
		medium.Attach(st)
		stations[i] = st
	}
	return &Simulation{
		cfg:      cfg,
		loop:     loop,
		rng:      rng,
		medium:   medium,
		ap:       access,
		stations: stations,
	}, nil
}

// AccessPoint returns the simulated AP.
func (s *Simulation) AccessPoint() *ap.AccessPoint { return s.ap }

// Stations returns the simulated stations in address order.
func (s *Simulation) Stations() []*sta.Station { return s.stations }

// Medium returns the shared medium.
func (s *Simulation) Medium() *Medium { return s.medium }

// Run executes the scenario up to its horizon and summarizes it.
// Panics if called more than once.
func (s *Simulation) Run() *Summary {
	if s.hasRun {
		panic("bss.Simulation.Run() called more than once")
	}
	s.hasRun = true

	// 1. Announcements
	s.ap.Start()

	// 2. Station arrivals, wave by wave
	arrivals := s.rng.Stream(sim.StreamArrivals)
	next := 0
	for _, w := range s.cfg.Waves {
		if w.SecondWave {
			s.loop.ScheduleAfter(w.Start, s.ap.SignalSecondWave)
		}
		for i := 0; i < w.Count; i++ {
			st := s.stations[next]
			next++
			at := w.Start
			if w.Spread > 0 {
				at += arrivals.Int63n(w.Spread + 1)
			}
			s.loop.ScheduleAfter(at, st.StartAssociation)
		}
	}

	// 3. Offered traffic
	if s.cfg.Traffic.UplinkInterval > 0 {
		s.loop.ScheduleAfter(s.cfg.Traffic.UplinkInterval, s.offerUplink)
	}
	if s.cfg.Traffic.DownlinkInterval > 0 {
		s.loop.ScheduleAfter(s.cfg.Traffic.DownlinkInterval, s.offerDownlink(s.rng.Stream(sim.StreamTraffic)))
	}

	// 4. Event loop
	s.loop.Run()
	logrus.Infof("[tick %07d] simulation ended: %d events, %d announcements", s.loop.Now(), s.loop.Fired(), s.ap.Stats().Announcements)
	return s.summarize()
}

// offerUplink queues one frame at every associated station.
func (s *Simulation) offerUplink() {
	for _, st := range s.stations {
		if st.State() == sta.Associated {
			st.Enqueue(1)
		}
	}
	s.loop.ScheduleAfter(s.cfg.Traffic.UplinkInterval, s.offerUplink)
}

// offerDownlink buffers data for one random associated station per interval.
func (s *Simulation) offerDownlink(rng *rand.Rand) func() {
	var offer func()
	offer = func() {
		st := s.stations[rng.Intn(len(s.stations))]
		if st.AID() != 0 {
			s.ap.BufferDownlink(st.AID())
		}
		s.loop.ScheduleAfter(s.cfg.Traffic.DownlinkInterval, offer)
	}
	return offer
}

// Summary is the outcome of one run.
type Summary struct {
	Clock                int64
	Events               int64
	Announcements        uint64
	Algorithm            string
	FinalThreshold       int
	FinalState           string
	Stations             int
	Associated           int
	Refused              int
	Unassociated         int
	MeanAssociationDelay float64
	MaxAssociationDelay  int64
	AuthRefused          int64
	AssocRefused         int64
	MaxQueue             int
	UplinkSent           int64
	UplinkReceived       int64
	DownlinkDelivered    int64
	FramesLost           int64
}

func (s *Simulation) summarize() *Summary {
	apStats := s.ap.Stats()
	controller := s.ap.Controller()
	sum := &Summary{
		Clock:             s.loop.Now(),
		Events:            s.loop.Fired(),
		Announcements:     apStats.Announcements,
		Algorithm:         controller.Algorithm().String(),
		FinalThreshold:    controller.Threshold(),
		FinalState:        controller.State().String(),
		Stations:          len(s.stations),
		AuthRefused:       apStats.AuthRefused,
		AssocRefused:      apStats.AssocRefused,
		MaxQueue:          apStats.MaxQueue,
		UplinkReceived:    apStats.UplinkFrames,
		DownlinkDelivered: apStats.DownlinkFrames,
		FramesLost:        s.medium.Stats().Lost,
	}
	var delaySum int64
	for _, st := range s.stations {
		stats := st.Stats()
		sum.UplinkSent += stats.UplinkSent
		switch st.State() {
		case sta.Associated, sta.BeaconMissed:
			sum.Associated++
			delay := stats.AssociatedAt - stats.StartedAt
			delaySum += delay
			sum.MaxAssociationDelay = max(sum.MaxAssociationDelay, delay)
		case sta.Refused:
			sum.Refused++
		default:
			sum.Unassociated++
		}
	}
	if sum.Associated > 0 {
		sum.MeanAssociationDelay = float64(delaySum) / float64(sum.Associated)
	}
	return sum
}

// Print writes the summary in a human-readable form.
func (sum *Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "Simulated Time       : %d us (%d events)\n", sum.Clock, sum.Events)
	fmt.Fprintf(w, "Announcements        : %d\n", sum.Announcements)
	fmt.Fprintf(w, "Admission            : %s, threshold %d (%s)\n", sum.Algorithm, sum.FinalThreshold, sum.FinalState)
	fmt.Fprintf(w, "Stations             : %d associated, %d refused, %d other of %d\n",
		sum.Associated, sum.Refused, sum.Unassociated, sum.Stations)
	if sum.Associated > 0 {
		fmt.Fprintf(w, "Association Delay    : mean %.2f us, max %d us\n", sum.MeanAssociationDelay, sum.MaxAssociationDelay)
	}
	fmt.Fprintf(w, "Refusals             : %d auth, %d assoc (peak queue %d)\n", sum.AuthRefused, sum.AssocRefused, sum.MaxQueue)
	fmt.Fprintf(w, "Uplink Frames        : %d sent, %d received\n", sum.UplinkSent, sum.UplinkReceived)
	fmt.Fprintf(w, "Downlink Frames      : %d\n", sum.DownlinkDelivered)
	fmt.Fprintf(w, "Lost Deliveries      : %d\n", sum.FramesLost)
}
