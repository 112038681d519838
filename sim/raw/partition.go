// Package raw computes restricted-access-window group layouts.
// It has no dependencies on the rest of the simulator so the AP and the
// stations can evaluate the same pure functions independently.
package raw

import "fmt"

// UnrestrictedThreshold is the authentication threshold value meaning
// "every station may authenticate".
const UnrestrictedThreshold = 1023

// Slot timing of the RAW parameter set, in microseconds.
const (
	slotBaseUs  = 500
	slotCountUs = 120
)

// Field widths of the two slot formats.
var slotFormatLimits = map[int]struct{ maxDurationCount, maxSlotNum int }{
	0: {maxDurationCount: 1<<8 - 1, maxSlotNum: 1<<6 - 1},
	1: {maxDurationCount: 1<<11 - 1, maxSlotNum: 1<<3 - 1},
}

// Params are the inputs of Partition.
type Params struct {
	TotalStations     int
	Groups            int
	SlotFormat        int
	SlotDurationCount int
	SlotNum           int
	CrossBoundary     bool
	AuthThreshold     int
	AuthSlots         int
}

// Validate rejects slot parameters that do not fit the RPS fields.
func (p Params) Validate() error {
	limits, ok := slotFormatLimits[p.SlotFormat]
	if !ok {
		return fmt.Errorf("slot format must be 0 or 1, got %d", p.SlotFormat)
	}
	if p.SlotDurationCount < 0 || p.SlotDurationCount > limits.maxDurationCount {
		return fmt.Errorf("slot duration count must be in [0, %d] for slot format %d, got %d",
			limits.maxDurationCount, p.SlotFormat, p.SlotDurationCount)
	}
	if p.SlotNum < 1 || p.SlotNum > limits.maxSlotNum {
		return fmt.Errorf("slot num must be in [1, %d] for slot format %d, got %d",
			limits.maxSlotNum, p.SlotFormat, p.SlotNum)
	}
	if p.Groups < 1 {
		return fmt.Errorf("group count must be positive, got %d", p.Groups)
	}
	if p.TotalStations < 0 {
		return fmt.Errorf("total stations must be non-negative, got %d", p.TotalStations)
	}
	if p.AuthThreshold < 0 || p.AuthThreshold > UnrestrictedThreshold {
		return fmt.Errorf("authentication threshold must be in [0, %d], got %d", UnrestrictedThreshold, p.AuthThreshold)
	}
	if p.AuthSlots < 0 || p.AuthSlots > limits.maxSlotNum {
		return fmt.Errorf("auth slots must be in [0, %d] for slot format %d, got %d",
			limits.maxSlotNum, p.SlotFormat, p.AuthSlots)
	}
	return nil
}

// SlotDuration returns the duration of one RAW slot in microseconds.
func SlotDuration(durationCount int) int64 {
	return slotBaseUs + slotCountUs*int64(durationCount)
}

// Group is one RAW group of the announcement.
type Group struct {
	// StartAID is the first AID of the group; AIDs start at 1.
	StartAID          int
	Size              int
	SlotFormat        int
	SlotDurationCount int
	SlotNum           int
	CrossBoundary     bool
	// Offset is the start of the group relative to the announcement, in microseconds.
	Offset int64
	// Auth marks the group reserved for stations that are not yet associated.
	Auth bool
}

// SlotDuration returns the duration of each slot of the group.
func (g Group) SlotDuration() int64 {
	return SlotDuration(g.SlotDurationCount)
}

// Duration returns the total length of the group.
func (g Group) Duration() int64 {
	return int64(g.SlotNum) * g.SlotDuration()
}

// Contains reports whether aid falls in the group's AID range.
func (g Group) Contains(aid int) bool {
	return !g.Auth && aid >= g.StartAID && aid < g.StartAID+g.Size
}

// Layout is the ordered sequence of RAW groups of one announcement.
type Layout struct {
	Groups []Group
}

// Empty reports whether the layout has no groups.
func (l Layout) Empty() bool {
	return len(l.Groups) == 0
}

// Duration returns the end of the last group relative to the announcement.
func (l Layout) Duration() int64 {
	if len(l.Groups) == 0 {
		return 0
	}
	last := l.Groups[len(l.Groups)-1]
	return last.Offset + last.Duration()
}

// Equal reports whether two layouts are identical.
func (l Layout) Equal(o Layout) bool {
	if len(l.Groups) != len(o.Groups) {
		return false
	}
	for i := range l.Groups {
		if l.Groups[i] != o.Groups[i] {
			return false
		}
	}
	return true
}

// Locate returns the index of the group containing aid and the station's slot
// inside it. ok is false when no station group covers aid.
func (l Layout) Locate(aid int) (group, slot int, ok bool) {
	for i, g := range l.Groups {
		if g.Contains(aid) {
			return i, SlotIndex(aid, g.SlotNum), true
		}
	}
	return -1, -1, false
}

// AuthGroup returns the index of the authentication group, or -1.
func (l Layout) AuthGroup() int {
	for i, g := range l.Groups {
		if g.Auth {
			return i
		}
	}
	return -1
}

// SlotIndex maps an AID onto one of n slots. Every observer computing it for
// the same AID gets the same answer.
func SlotIndex(aid, n int) int {
	if n <= 0 {
		return 0
	}
	return aid % n
}

// Partition splits AIDs 1..TotalStations into contiguous RAW groups of
// near-equal size and lays them out back to back after the announcement.
// When the authentication threshold restricts access and AuthSlots > 0, an
// authentication group is placed first. Partition assumes p is valid.
func Partition(p Params) Layout {
	var layout Layout
	if p.TotalStations <= 0 {
		return layout
	}

	var offset int64
	if p.AuthThreshold < UnrestrictedThreshold && p.AuthSlots > 0 {
		auth := Group{
			SlotFormat:        p.SlotFormat,
			SlotDurationCount: p.SlotDurationCount,
			SlotNum:           p.AuthSlots,
			CrossBoundary:     p.CrossBoundary,
			Auth:              true,
		}
		layout.Groups = append(layout.Groups, auth)
		offset += auth.Duration()
	}

	n := min(max(p.Groups, 1), p.TotalStations)
	base, extra := p.TotalStations/n, p.TotalStations%n
	start := 1
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		g := Group{
			StartAID:          start,
			Size:              size,
			SlotFormat:        p.SlotFormat,
			SlotDurationCount: p.SlotDurationCount,
			SlotNum:           p.SlotNum,
			CrossBoundary:     p.CrossBoundary,
			Offset:            offset,
		}
		layout.Groups = append(layout.Groups, g)
		offset += g.Duration()
		start += size
	}
	return layout
}
