package sim

import "github.com/sirupsen/logrus"

// AnnouncementEvent is published each time the AP sends an announcement.
type AnnouncementEvent struct {
	Clock        int64
	AP           Address
	Announcement *Announcement
}

// ThresholdEvent is published when the admission threshold changes.
type ThresholdEvent struct {
	Clock    int64
	Interval uint64
	Old      int
	New      int
	Delta    int
	State    string
}

// AlgorithmEvent is published once when the admission algorithm is configured.
type AlgorithmEvent struct {
	Clock     int64
	Algorithm int
	Name      string
}

// AssociationEvent is published when a station gains or loses its association.
type AssociationEvent struct {
	Clock   int64
	Station Address
	Peer    Address
	AID     uint16
}

// Observer receives the observable events of the engines.
// Implementations must not mutate engine state.
type Observer interface {
	AnnouncementSent(AnnouncementEvent)
	ThresholdChanged(ThresholdEvent)
	AlgorithmConfigured(AlgorithmEvent)
	Associated(AssociationEvent)
	Deassociated(AssociationEvent)
}

// NopObserver discards every event. Embed it to implement a subset of Observer.
type NopObserver struct{}

func (NopObserver) AnnouncementSent(AnnouncementEvent) {}
func (NopObserver) ThresholdChanged(ThresholdEvent) {}
func (NopObserver) AlgorithmConfigured(AlgorithmEvent) {}
func (NopObserver) Associated(AssociationEvent) {}
func (NopObserver) Deassociated(AssociationEvent) {}

// Observers fans each event out to every member in order.
type Observers []Observer

func (o Observers) AnnouncementSent(e AnnouncementEvent) {
	for _, ob := range o {
		ob.AnnouncementSent(e)
	}
}

func (o Observers) ThresholdChanged(e ThresholdEvent) {
	for _, ob := range o {
		ob.ThresholdChanged(e)
	}
}

func (o Observers) AlgorithmConfigured(e AlgorithmEvent) {
	for _, ob := range o {
		ob.AlgorithmConfigured(e)
	}
}

func (o Observers) Associated(e AssociationEvent) {
	for _, ob := range o {
		ob.Associated(e)
	}
}

func (o Observers) Deassociated(e AssociationEvent) {
	for _, ob := range o {
		ob.Deassociated(e)
	}
}

// LogObserver writes every event to logrus.
type LogObserver struct{}

func (LogObserver) AnnouncementSent(e AnnouncementEvent) {
	a := e.Announcement
	logrus.Debugf("[tick %07d] AP %s announcement #%d threshold=%d groups=%d",
		e.Clock, e.AP, a.Interval, a.AuthThreshold, len(a.Layout.Groups))
}

func (LogObserver) ThresholdChanged(e ThresholdEvent) {
	logrus.Infof("[tick %07d] interval %d: threshold %d -> %d (delta=%d, state=%s)",
		e.Clock, e.Interval, e.Old, e.New, e.Delta, e.State)
}

func (LogObserver) AlgorithmConfigured(e AlgorithmEvent) {
	logrus.Infof("admission algorithm %d (%s) configured", e.Algorithm, e.Name)
}

func (LogObserver) Associated(e AssociationEvent) {
	logrus.Infof("[tick %07d] %s associated with %s (aid=%d)", e.Clock, e.Station, e.Peer, e.AID)
}

func (LogObserver) Deassociated(e AssociationEvent) {
	logrus.Infof("[tick %07d] %s deassociated from %s", e.Clock, e.Station, e.Peer)
}
