package reliability

// SequenceWindow validates an inbound frame's packet_number against the
// expected value (spec §8 testable property 3): accepts any value
// within a ±2·DataNumThreshold window and otherwise rejects it as
// outside the session's acceptance window.
type SequenceWindow struct {
	expected uint32
	span     int64
}

// NewSequenceWindow creates a window seeded at the first expected
// packet number, accepting inbound numbers within ±span of it.
func NewSequenceWindow(expected uint32, span int64) *SequenceWindow {
	return &SequenceWindow{expected: expected, span: span}
}

// Accepts reports whether packetNumber falls within the window around
// the expected value.
func (w *SequenceWindow) Accepts(packetNumber uint32) bool {
	delta := int64(packetNumber) - int64(w.expected)
	if delta < 0 {
		delta = -delta
	}
	return delta < w.span
}

// Advance moves the expected packet number forward to packetNumber+1
// once a frame bearing it has been accepted, so subsequent deltas stay
// small.
func (w *SequenceWindow) Advance(packetNumber uint32) {
	if packetNumber >= w.expected {
		w.expected = packetNumber + 1
	}
}
