package reliability

import "time"

// EncodeRequest builds a REQUEST payload (spec §4.3) describing missing,
// a sorted ascending list of packet numbers each >= start, as a
// run-length list of 1-byte skip counts: value n means "the next n-1
// slots are present, the nth is missing"; a literal 0 extends the
// current run by 255 without terminating it.
func EncodeRequest(missing []uint32, start uint32) []byte {
	var out []byte
	prev := start
	for _, m := range missing {
		skip := m - prev
		for skip >= 255 {
			out = append(out, 0)
			skip -= 255
		}
		out = append(out, byte(skip+1))
		prev = m + 1
	}
	return out
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(data []byte, start uint32) []uint32 {
	var missing []uint32
	pos := start
	skip := uint32(0)
	for _, b := range data {
		if b == 0 {
			skip += 255
			continue
		}
		pos += skip + uint32(b) - 1
		missing = append(missing, pos)
		pos++
		skip = 0
	}
	return missing
}

// ApplyRequest implements the sender-side half of spec §4.3's request
// handling: for every packet number in [b.Start(), b.End()), a slot
// named in missing is cleared for resend if it was sent long enough ago
// to warrant it; every other slot is freed, since the request marks the
// receiver as already holding it.
func ApplyRequest(b *SendBuffer, missing []uint32, rttThreshold time.Duration, now time.Time) {
	missingSet := make(map[uint32]bool, len(missing))
	for _, m := range missing {
		missingSet[m] = true
	}

	for n := b.Start(); n < b.End(); n++ {
		if missingSet[n] {
			if sentTime, ok := b.SentAt(n); ok && now.Sub(sentTime) >= rttThreshold {
				b.MarkUnsent(n)
			}
			continue
		}
		b.freeAcknowledged(n)
	}
}

// freeAcknowledged frees a slot the peer has confirmed receiving,
// without requiring it to be contiguous with Start() (the peer may
// acknowledge ahead of the oldest still-missing slot).
func (b *SendBuffer) freeAcknowledged(packetNumber uint32) {
	if packetNumber < b.start || packetNumber >= b.end {
		return
	}
	b.slots[packetNumber%RingSize] = slot{}
}
