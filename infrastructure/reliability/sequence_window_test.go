package reliability

import (
	"testing"

	"p2ptransport/infrastructure/wire"
)

// TestSequenceWindow_AcceptanceWindow exercises spec §8 testable
// property 3: the receiver accepts any permutation within a
// 2*DATA_NUM_THRESHOLD window of the expected value and ignores
// anything outside it.
func TestSequenceWindow_AcceptanceWindow(t *testing.T) {
	span := int64(2 * wire.DataNumThreshold)
	w := NewSequenceWindow(1000, span)

	if !w.Accepts(1000) {
		t.Fatalf("expected value must be accepted")
	}
	if !w.Accepts(1000 + uint32(span) - 1) {
		t.Fatalf("value just inside the window must be accepted")
	}
	if w.Accepts(1000 + uint32(span) + 100) {
		t.Fatalf("value well outside the window must be rejected")
	}
}

func TestSequenceWindow_AdvanceTracksHighestSeen(t *testing.T) {
	w := NewSequenceWindow(0, 100)
	w.Advance(5)
	if !w.Accepts(6) {
		t.Fatalf("window should have advanced past 5")
	}
	w.Advance(3) // a reordered, older frame must not move the window backward
	if w.expected != 6 {
		t.Fatalf("expected = %d, want 6 (no backward movement)", w.expected)
	}
}
