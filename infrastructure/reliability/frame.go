package reliability

import (
	"encoding/binary"

	"p2ptransport/infrastructure/wire"
)

// Frame is the plaintext carried inside the data AEAD (spec §4.3):
// buffer_start, packet_number, 0x00 padding, then a payload whose first
// byte is the packet-id.
type Frame struct {
	BufferStart  uint32
	PacketNumber uint32
	Payload      []byte // first byte is the packet-id
}

// paddingLength mirrors spec §4.3: "(MAX_CRYPTO_DATA_SIZE -
// payload_length) mod 8", so that frames land on byte boundaries that
// vary with payload size rather than leaking it directly.
func paddingLength(payloadLen int) int {
	return ((wire.MaxCryptoDataSize - payloadLen) % wire.CryptoMaxPadding + wire.CryptoMaxPadding) % wire.CryptoMaxPadding
}

// Marshal encodes the frame to its plaintext wire form.
func (f Frame) Marshal() []byte {
	pad := paddingLength(len(f.Payload))
	out := make([]byte, 8+pad+len(f.Payload))
	binary.BigEndian.PutUint32(out[0:4], f.BufferStart)
	binary.BigEndian.PutUint32(out[4:8], f.PacketNumber)
	// out[8 : 8+pad] is already zero (PACKET_ID_PADDING)
	copy(out[8+pad:], f.Payload)
	return out
}

// UnmarshalFrame decodes a plaintext frame, skipping the leading
// zero-padding before the payload's packet-id byte.
func UnmarshalFrame(b []byte) (Frame, bool) {
	if len(b) < 8+1 {
		return Frame{}, false
	}
	f := Frame{
		BufferStart:  binary.BigEndian.Uint32(b[0:4]),
		PacketNumber: binary.BigEndian.Uint32(b[4:8]),
	}
	i := 8
	for i < len(b) && b[i] == wire.PacketIDPadding {
		i++
	}
	if i >= len(b) {
		return Frame{}, false
	}
	f.Payload = append([]byte(nil), b[i:]...)
	return f, true
}
