// Package relay implements the TCP relay client (spec §4.6): proxy
// traversal, the relay handshake, length-prefixed authenticated
// framing, the virtual-connection table, ping/pong keepalive, and
// priority/ordinary output queues. Grounded on
// infrastructure/network/tcp/adapters/length_prefix_framing_adapter.go
// for the length-prefixed-frame shape and on
// infrastructure/tunnel/sessionplane/server/tcp_registration/registration.go
// for the connect/handshake-then-register lifecycle.
package relay

import (
	"encoding/binary"

	"p2ptransport/application"
)

// Relay-internal packet ids, carried as the first payload byte inside
// each length-prefixed frame once the relay handshake has completed
// (spec §4.6).
const (
	PacketRouteRequest  byte = 0x00
	PacketRouteResponse byte = 0x01
	PacketConnectNotify byte = 0x02
	PacketDisconnect    byte = 0x03
	PacketPing          byte = 0x04
	PacketPong          byte = 0x05
	PacketOOBSend       byte = 0x06
	PacketOOBReceive    byte = 0x07
	PacketData          byte = 0x08 // routed data, connection_id follows as the second byte
)

// NumReservedPorts connection ids below this are reserved for the
// relay's own control messages; real peer connection ids start here.
const NumReservedPorts = 16

// EncodeRouteRequest builds "0x00 ‖ peer_LTK" (spec §4.6).
func EncodeRouteRequest(peerLTK application.LongTermKey) []byte {
	out := make([]byte, 1+32)
	out[0] = PacketRouteRequest
	copy(out[1:], peerLTK[:])
	return out
}

// DecodeRouteRequest parses a route request payload.
func DecodeRouteRequest(b []byte) (application.LongTermKey, bool) {
	if len(b) != 1+32 || b[0] != PacketRouteRequest {
		return application.LongTermKey{}, false
	}
	var ltk application.LongTermKey
	copy(ltk[:], b[1:])
	return ltk, true
}

// EncodeRouteResponse builds the relay's routing-slot grant.
func EncodeRouteResponse(connectionID byte, peerLTK application.LongTermKey) []byte {
	out := make([]byte, 1+1+32)
	out[0] = PacketRouteResponse
	out[1] = connectionID
	copy(out[2:], peerLTK[:])
	return out
}

// DecodeRouteResponse parses a routing-slot grant.
func DecodeRouteResponse(b []byte) (connectionID byte, peerLTK application.LongTermKey, ok bool) {
	if len(b) != 1+1+32 || b[0] != PacketRouteResponse {
		return 0, application.LongTermKey{}, false
	}
	copy(peerLTK[:], b[2:])
	return b[1], peerLTK, true
}

// EncodePing builds a PING carrying a non-zero random 64-bit id.
func EncodePing(id uint64) []byte {
	out := make([]byte, 1+8)
	out[0] = PacketPing
	binary.BigEndian.PutUint64(out[1:], id)
	return out
}

// EncodePong builds the matching PONG.
func EncodePong(id uint64) []byte {
	out := make([]byte, 1+8)
	out[0] = PacketPong
	binary.BigEndian.PutUint64(out[1:], id)
	return out
}

// DecodePingPong extracts the id from a PING or PONG payload.
func DecodePingPong(b []byte) (id uint64, ok bool) {
	if len(b) != 1+8 || (b[0] != PacketPing && b[0] != PacketPong) {
		return 0, false
	}
	return binary.BigEndian.Uint64(b[1:]), true
}

// EncodeOOB builds "TCP_PACKET_OOB_SEND ‖ dst_LTK ‖ payload" (spec §4.6).
func EncodeOOB(dstLTK application.LongTermKey, payload []byte) []byte {
	out := make([]byte, 1+32+len(payload))
	out[0] = PacketOOBSend
	copy(out[1:33], dstLTK[:])
	copy(out[33:], payload)
	return out
}

// DecodeOOB parses an inbound OOB packet (relay relabels PacketOOBSend
// as PacketOOBReceive when forwarding, prefixing the sender's LTK
// instead of the destination's).
func DecodeOOB(b []byte) (senderLTK application.LongTermKey, payload []byte, ok bool) {
	if len(b) < 1+32 || b[0] != PacketOOBReceive {
		return application.LongTermKey{}, nil, false
	}
	copy(senderLTK[:], b[1:33])
	return senderLTK, append([]byte(nil), b[33:]...), true
}

// EncodeData builds a routed-data frame addressed to connectionID.
func EncodeData(connectionID byte, payload []byte) []byte {
	out := make([]byte, 2+len(payload))
	out[0] = PacketData
	out[1] = connectionID
	copy(out[2:], payload)
	return out
}

// DecodeData parses a routed-data frame.
func DecodeData(b []byte) (connectionID byte, payload []byte, ok bool) {
	if len(b) < 2 || b[0] != PacketData {
		return 0, nil, false
	}
	return b[1], append([]byte(nil), b[2:]...), true
}
