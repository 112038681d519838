package cac

// Pair is an operating point of the controller.
type Pair struct {
	Threshold int
	Delta     int
}

// History is a bounded last-in-first-out stack of operating points.
// When full, pushing evicts the oldest entry.
type History struct {
	entries []Pair
	limit   int
}

// NewHistory creates a History holding at most limit entries.
// A non-positive limit means unbounded.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Push records p on top of the stack.
func (h *History) Push(p Pair) {
	if h.limit > 0 && len(h.entries) == h.limit {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, p)
}

// Pop removes and returns the most recent entry.
func (h *History) Pop() (Pair, bool) {
	if len(h.entries) == 0 {
		return Pair{}, false
	}
	p := h.entries[len(h.entries)-1]
	h.entries = h.entries[:len(h.entries)-1]
	return p, true
}

// Peek returns the most recent entry without removing it.
func (h *History) Peek() (Pair, bool) {
	if len(h.entries) == 0 {
		return Pair{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the stack, oldest first.
func (h *History) Entries() []Pair {
	out := make([]Pair, len(h.entries))
	copy(out, h.entries)
	return out
}
