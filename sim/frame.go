package sim

import (
	"fmt"

	"github.com/ingertb/rawsim/sim/raw"
)

// Address identifies a radio on the medium.
type Address uint32

// Broadcast is the destination of announcements.
const Broadcast Address = 0xffffffff

// String renders the address in MAC notation.
func (a Address) String() string {
	if a == Broadcast {
		return "ff:ff:ff:ff:ff:ff"
	}
	return fmt.Sprintf("00:00:%02x:%02x:%02x:%02x", byte(a>>24), byte(a>>16), byte(a>>8), byte(a))
}

// FrameKind enumerates the frames exchanged between the AP and stations.
type FrameKind int

const (
	FrameBeacon FrameKind = iota
	FrameProbeRequest
	FrameProbeResponse
	FrameAuthRequest
	FrameAuthResponse
	FrameAssocRequest
	FrameAssocResponse
	FrameDisassocRequest
	FrameDisassocAck
	FramePsPoll
	FrameData
)

var frameKindNames = map[FrameKind]string{
	FrameBeacon:          "beacon",
	FrameProbeRequest:    "probe-request",
	FrameProbeResponse:   "probe-response",
	FrameAuthRequest:     "auth-request",
	FrameAuthResponse:    "auth-response",
	FrameAssocRequest:    "assoc-request",
	FrameAssocResponse:   "assoc-response",
	FrameDisassocRequest: "disassoc-request",
	FrameDisassocAck:     "disassoc-ack",
	FramePsPoll:          "ps-poll",
	FrameData:            "data",
}

func (k FrameKind) String() string {
	if name, ok := frameKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("frame(%d)", int(k))
}

// IsManagement reports whether the frame belongs to the association exchange.
func (k FrameKind) IsManagement() bool {
	return k >= FrameProbeRequest && k <= FrameDisassocAck
}

// Frame is a single transmission on the medium.
type Frame struct {
	Kind FrameKind
	From Address
	To   Address
	// Success carries the status of auth/assoc responses.
	Success bool
	// AID is assigned in association responses and echoed in PS-Polls and data.
	AID uint16
	// AuthThreshold and BeaconInterval are advertised in probe responses.
	AuthThreshold  int
	BeaconInterval int64
	// Announcement is set on beacons only.
	Announcement *Announcement
}

// Announcement is the periodic beacon payload carrying the RAW parameter set.
type Announcement struct {
	Interval       uint64
	Timestamp      int64
	BeaconInterval int64
	AuthThreshold  int
	RawEnabled     bool
	Layout         raw.Layout
	// Buffered lists AIDs with downlink data waiting at the AP (the TIM bitmap).
	Buffered map[uint16]bool
}

// Same reports whether two announcements carry an identical payload.
func (a *Announcement) Same(b *Announcement) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Interval != b.Interval || a.Timestamp != b.Timestamp || a.BeaconInterval != b.BeaconInterval ||
		a.AuthThreshold != b.AuthThreshold || a.RawEnabled != b.RawEnabled {
		return false
	}
	if !a.Layout.Equal(b.Layout) || len(a.Buffered) != len(b.Buffered) {
		return false
	}
	for aid, v := range a.Buffered {
		if b.Buffered[aid] != v {
			return false
		}
	}
	return true
}

// Transmitter hands frames to the medium.
type Transmitter interface {
	Transmit(f *Frame)
}

// Receiver is a radio attached to the medium.
type Receiver interface {
	Address() Address
	Receive(f *Frame)
}
