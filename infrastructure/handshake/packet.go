// Package handshake implements the cookie request/response exchange and
// the crypto handshake packet (spec §4.2). Grounded on the *shape* of
// infrastructure/cryptography/chacha20/handshake/handshake.go in the
// teacher repository: explicit wire-format structs with
// Marshal/Unmarshal methods and a driver type that owns the crypto,
// generalized to the spec's cookie-hash-bound handshake instead of the
// teacher's Ed25519-signature + HKDF scheme.
package handshake

import (
	"encoding/binary"

	"p2ptransport/application"
	"p2ptransport/infrastructure/wire"
)

// cookieRequest is "1‖our_DHT_pubkey‖nonce‖AEAD(DH(our_DHT, peer_DHT);
// plaintext = our_LTK ‖ zero-padding ‖ request_nonce_u64)".
type cookieRequest struct {
	senderDHTKey application.DHTKey
	nonce        [24]byte
	ciphertext   []byte // encrypts requestPlaintext
}

type requestPlaintext struct {
	senderLTK    application.LongTermKey
	requestNonce uint64
}

func (p requestPlaintext) marshal() []byte {
	out := make([]byte, wire.PublicKeySize+32+8)
	copy(out[:wire.PublicKeySize], p.senderLTK[:])
	binary.BigEndian.PutUint64(out[wire.PublicKeySize+32:], p.requestNonce)
	return out
}

func unmarshalRequestPlaintext(b []byte) (requestPlaintext, bool) {
	if len(b) != wire.PublicKeySize+32+8 {
		return requestPlaintext{}, false
	}
	var p requestPlaintext
	copy(p.senderLTK[:], b[:wire.PublicKeySize])
	p.requestNonce = binary.BigEndian.Uint64(b[wire.PublicKeySize+32:])
	return p, true
}

func (r cookieRequest) marshal() []byte {
	out := make([]byte, wire.CookieRequestSize)
	out[0] = wire.NetPacketCookieRequest
	copy(out[1:1+wire.PublicKeySize], r.senderDHTKey[:])
	copy(out[1+wire.PublicKeySize:1+wire.PublicKeySize+wire.NonceSize], r.nonce[:])
	copy(out[1+wire.PublicKeySize+wire.NonceSize:], r.ciphertext)
	return out
}

func unmarshalCookieRequest(b []byte) (cookieRequest, bool) {
	if len(b) != wire.CookieRequestSize || b[0] != wire.NetPacketCookieRequest {
		return cookieRequest{}, false
	}
	var r cookieRequest
	copy(r.senderDHTKey[:], b[1:1+wire.PublicKeySize])
	copy(r.nonce[:], b[1+wire.PublicKeySize:1+wire.PublicKeySize+wire.NonceSize])
	r.ciphertext = append([]byte(nil), b[1+wire.PublicKeySize+wire.NonceSize:]...)
	return r, true
}

// cookieResponse is "1‖nonce‖AEAD(same key; plaintext = cookie ‖ echoed
// request_nonce_u64)".
type cookieResponse struct {
	nonce      [24]byte
	ciphertext []byte
}

type responsePlaintext struct {
	cookie       []byte
	requestNonce uint64
}

func (p responsePlaintext) marshal() []byte {
	out := make([]byte, wire.CookieSize+8)
	copy(out[:wire.CookieSize], p.cookie)
	binary.BigEndian.PutUint64(out[wire.CookieSize:], p.requestNonce)
	return out
}

func unmarshalResponsePlaintext(b []byte) (responsePlaintext, bool) {
	if len(b) != wire.CookieSize+8 {
		return responsePlaintext{}, false
	}
	return responsePlaintext{
		cookie:       append([]byte(nil), b[:wire.CookieSize]...),
		requestNonce: binary.BigEndian.Uint64(b[wire.CookieSize:]),
	}, true
}

func (r cookieResponse) marshal() []byte {
	out := make([]byte, wire.CookieResponseSize)
	out[0] = wire.NetPacketCookieResponse
	copy(out[1:1+wire.NonceSize], r.nonce[:])
	copy(out[1+wire.NonceSize:], r.ciphertext)
	return out
}

func unmarshalCookieResponse(b []byte) (cookieResponse, bool) {
	if len(b) != wire.CookieResponseSize || b[0] != wire.NetPacketCookieResponse {
		return cookieResponse{}, false
	}
	var r cookieResponse
	copy(r.nonce[:], b[1:1+wire.NonceSize])
	r.ciphertext = append([]byte(nil), b[1+wire.NonceSize:]...)
	return r, true
}

// handshakePacket is "1 + cookie + nonce + AEAD(nonce2 ‖ session_pub ‖
// sha512(cookie) ‖ fresh_cookie_for_peer)".
type handshakePacket struct {
	echoedCookie []byte // the cookie this handshake is authorized by
	outerNonce   [24]byte
	ciphertext   []byte
}

type handshakePlaintext struct {
	sessionNonce    [24]byte
	sessionPub      application.SessionKey
	cookieHash      [64]byte
	freshCookie     []byte
}

func (p handshakePlaintext) marshal() []byte {
	out := make([]byte, wire.NonceSize+wire.SessionKeySize+64+wire.CookieSize)
	off := 0
	copy(out[off:off+wire.NonceSize], p.sessionNonce[:])
	off += wire.NonceSize
	copy(out[off:off+wire.SessionKeySize], p.sessionPub[:])
	off += wire.SessionKeySize
	copy(out[off:off+64], p.cookieHash[:])
	off += 64
	copy(out[off:], p.freshCookie)
	return out
}

func unmarshalHandshakePlaintext(b []byte) (handshakePlaintext, bool) {
	want := wire.NonceSize + wire.SessionKeySize + 64 + wire.CookieSize
	if len(b) != want {
		return handshakePlaintext{}, false
	}
	var p handshakePlaintext
	off := 0
	copy(p.sessionNonce[:], b[off:off+wire.NonceSize])
	off += wire.NonceSize
	copy(p.sessionPub[:], b[off:off+wire.SessionKeySize])
	off += wire.SessionKeySize
	copy(p.cookieHash[:], b[off:off+64])
	off += 64
	p.freshCookie = append([]byte(nil), b[off:]...)
	return p, true
}

func (h handshakePacket) marshal() []byte {
	out := make([]byte, wire.HandshakeSize)
	out[0] = wire.NetPacketCryptoHS
	off := 1
	copy(out[off:off+wire.CookieSize], h.echoedCookie)
	off += wire.CookieSize
	copy(out[off:off+wire.NonceSize], h.outerNonce[:])
	off += wire.NonceSize
	copy(out[off:], h.ciphertext)
	return out
}

func unmarshalHandshakePacket(b []byte) (handshakePacket, bool) {
	if len(b) != wire.HandshakeSize || b[0] != wire.NetPacketCryptoHS {
		return handshakePacket{}, false
	}
	var h handshakePacket
	off := 1
	h.echoedCookie = append([]byte(nil), b[off:off+wire.CookieSize]...)
	off += wire.CookieSize
	copy(h.outerNonce[:], b[off:off+wire.NonceSize])
	off += wire.NonceSize
	h.ciphertext = append([]byte(nil), b[off:]...)
	return h, true
}
