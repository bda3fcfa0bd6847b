package reliability

import (
	"errors"
	"time"

	"p2ptransport/infrastructure/wire"
)

// RingSize is the fixed slot count of both the send and receive buffers
// (spec §3: "a fixed-size ring of 32768 slots, a power of two").
const RingSize = wire.BufferRingSize

// ErrBufferFull is returned when the send buffer has no room for a new
// slot at its current window position (spec §7: "Capacity" errors
// surface as a rejected write).
var ErrBufferFull = errors.New("reliability: send buffer full")

// slot stores one ring position's bookkeeping, per spec §3: "{sent_time,
// payload_length, payload_bytes}".
type slot struct {
	occupied   bool
	sentTime   time.Time // zero while queued unacknowledged
	payload    []byte
}

// SendBuffer is the per-session outbound ring: packet numbers
// [start, end) are live, awaiting acknowledgment via clear_buffer_until.
type SendBuffer struct {
	start uint32
	end   uint32
	slots [RingSize]slot
}

// NewSendBuffer creates an empty send buffer starting at packet number 0.
func NewSendBuffer() *SendBuffer {
	return &SendBuffer{}
}

// Start returns the oldest unacknowledged packet number.
func (b *SendBuffer) Start() uint32 { return b.start }

// End returns one past the newest enqueued packet number.
func (b *SendBuffer) End() uint32 { return b.end }

// Enqueue appends payload at packet number End(), returning that
// number. Fails if the window is already full (end-start == RingSize).
func (b *SendBuffer) Enqueue(payload []byte) (uint32, error) {
	if b.end-b.start >= RingSize {
		return 0, ErrBufferFull
	}
	idx := b.end % RingSize
	b.slots[idx] = slot{occupied: true, payload: payload}
	n := b.end
	b.end++
	return n, nil
}

// MarkSent stamps packetNumber's slot with the time it was transmitted.
func (b *SendBuffer) MarkSent(packetNumber uint32, at time.Time) {
	if packetNumber < b.start || packetNumber >= b.end {
		return
	}
	b.slots[packetNumber%RingSize].sentTime = at
}

// MarkUnsent clears a slot's sent_time so the next pass retransmits it
// (spec §4.3 request-packet handling, step 1).
func (b *SendBuffer) MarkUnsent(packetNumber uint32) {
	if packetNumber < b.start || packetNumber >= b.end {
		return
	}
	b.slots[packetNumber%RingSize].sentTime = time.Time{}
}

// SentAt reports whether packetNumber has been transmitted, and when.
func (b *SendBuffer) SentAt(packetNumber uint32) (time.Time, bool) {
	if packetNumber < b.start || packetNumber >= b.end {
		return time.Time{}, false
	}
	s := b.slots[packetNumber%RingSize]
	if !s.occupied || s.sentTime.IsZero() {
		return time.Time{}, false
	}
	return s.sentTime, true
}

// Payload returns the payload bytes queued at packetNumber.
func (b *SendBuffer) Payload(packetNumber uint32) ([]byte, bool) {
	if packetNumber < b.start || packetNumber >= b.end {
		return nil, false
	}
	s := b.slots[packetNumber%RingSize]
	return s.payload, s.occupied
}

// ClearUntil frees every slot below ackedUpTo (the peer's reported
// buffer_start) and returns the oldest cleared slot's sent_time, used as
// the RTT sample (spec §4.3 receive path).
func (b *SendBuffer) ClearUntil(ackedUpTo uint32) (oldestSentTime time.Time, ok bool) {
	for b.start < ackedUpTo && b.start < b.end {
		idx := b.start % RingSize
		if !ok && !b.slots[idx].sentTime.IsZero() {
			oldestSentTime = b.slots[idx].sentTime
			ok = true
		}
		b.slots[idx] = slot{}
		b.start++
	}
	return oldestSentTime, ok
}

// Drain empties the buffer and zeroes every slot, for session teardown.
func (b *SendBuffer) Drain() {
	for i := range b.slots {
		b.slots[i] = slot{}
	}
	b.start, b.end = 0, 0
}

// RecvBuffer is the per-session inbound ring. Lossless frames occupy a
// slot until every prefix from Start() is contiguous, at which point
// they are delivered in order and Start() advances.
type RecvBuffer struct {
	start uint32
	end   uint32
	slots [RingSize]slot
}

// NewRecvBuffer creates an empty receive buffer starting at packet
// number 0.
func NewRecvBuffer() *RecvBuffer {
	return &RecvBuffer{}
}

// Start returns the next packet number the application expects.
func (b *RecvBuffer) Start() uint32 { return b.start }

// End returns one past the highest packet number observed so far.
func (b *RecvBuffer) End() uint32 { return b.end }

// Insert stores payload at packetNumber unless that slot is already
// occupied (spec §4.3: "inserts the frame ... unless occupied"). It
// reports whether the slot was newly filled.
func (b *RecvBuffer) Insert(packetNumber uint32, payload []byte) bool {
	if packetNumber < b.start {
		return false // already delivered
	}
	idx := packetNumber % RingSize
	if b.slots[idx].occupied {
		return false
	}
	b.slots[idx] = slot{occupied: true, payload: payload}
	if packetNumber >= b.end {
		b.end = packetNumber + 1
	}
	return true
}

// DrainContiguous returns, in order, every payload now contiguous from
// Start(), advancing Start() past them and freeing their slots.
func (b *RecvBuffer) DrainContiguous() [][]byte {
	var out [][]byte
	for {
		idx := b.start % RingSize
		s := b.slots[idx]
		if !s.occupied {
			break
		}
		out = append(out, s.payload)
		b.slots[idx] = slot{}
		b.start++
	}
	return out
}

// Missing reports every packet number in [start, end) whose slot is not
// occupied, used to build a REQUEST payload.
func (b *RecvBuffer) Missing() []uint32 {
	var missing []uint32
	for n := b.start; n < b.end; n++ {
		if !b.slots[n%RingSize].occupied {
			missing = append(missing, n)
		}
	}
	return missing
}

// Drain empties the buffer and zeroes every slot, for session teardown.
func (b *RecvBuffer) Drain() {
	for i := range b.slots {
		b.slots[i] = slot{}
	}
	b.start, b.end = 0, 0
}
