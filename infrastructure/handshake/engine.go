package handshake

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"p2ptransport/application"
	"p2ptransport/infrastructure/cookie"
	"p2ptransport/infrastructure/crypto"
)

// Engine drives both ends of the cookie exchange and the crypto
// handshake for one identity. It holds the long-term and DHT keypairs;
// everything else is per-call.
type Engine struct {
	ourLTKPub  application.LongTermKey
	ourLTKPriv [32]byte
	ourDHTPub  application.DHTKey
	ourDHTPriv [32]byte
	cookies    *cookie.Engine
}

// NewEngine creates a handshake Engine bound to one identity's long-term
// and DHT keypairs, sharing a cookie engine with the session manager.
func NewEngine(
	ltkPub application.LongTermKey, ltkPriv [32]byte,
	dhtPub application.DHTKey, dhtPriv [32]byte,
	cookies *cookie.Engine,
) *Engine {
	return &Engine{
		ourLTKPub:  ltkPub,
		ourLTKPriv: ltkPriv,
		ourDHTPub:  dhtPub,
		ourDHTPriv: dhtPriv,
		cookies:    cookies,
	}
}

func randomRequestNonce() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// BuildCookieRequest encodes a cookie request addressed to peerDHTKey.
// It returns the wire bytes and the request nonce the caller must match
// against the eventual response to discard stale replies.
func (e *Engine) BuildCookieRequest(peerDHTKey application.DHTKey) ([]byte, uint64, error) {
	requestNonce, err := randomRequestNonce()
	if err != nil {
		return nil, 0, err
	}

	nonce, err := crypto.RandomNonce()
	if err != nil {
		return nil, 0, err
	}

	shared := crypto.Precompute(application.SessionKey(peerDHTKey), e.ourDHTPriv)
	plaintext := requestPlaintext{senderLTK: e.ourLTKPub, requestNonce: requestNonce}.marshal()
	ciphertext := crypto.SealWithSharedKey(shared, nonce, plaintext)

	pkt := cookieRequest{senderDHTKey: e.ourDHTPub, nonce: nonce, ciphertext: ciphertext}
	return pkt.marshal(), requestNonce, nil
}

// ParseCookieRequest decodes an inbound cookie request, returning the
// claimed sender identity and the request nonce to echo back.
func (e *Engine) ParseCookieRequest(data []byte) (peerDHTKey application.DHTKey, peerLTK application.LongTermKey, requestNonce uint64, err error) {
	pkt, ok := unmarshalCookieRequest(data)
	if !ok {
		return application.DHTKey{}, application.LongTermKey{}, 0, ErrMalformedPacket
	}

	shared := crypto.Precompute(application.SessionKey(pkt.senderDHTKey), e.ourDHTPriv)
	plaintextBytes, openErr := crypto.OpenWithSharedKey(shared, pkt.nonce, pkt.ciphertext)
	if openErr != nil {
		return application.DHTKey{}, application.LongTermKey{}, 0, fmt.Errorf("handshake: open cookie request: %w", ErrAuthFailed)
	}

	plaintext, ok := unmarshalRequestPlaintext(plaintextBytes)
	if !ok {
		return application.DHTKey{}, application.LongTermKey{}, 0, ErrMalformedPacket
	}
	return pkt.senderDHTKey, plaintext.senderLTK, plaintext.requestNonce, nil
}

// BuildCookieResponse issues a fresh cookie binding (peerLTK,
// peerDHTKey) and encrypts it, along with the echoed request nonce,
// under the same DHT-key shared secret as the request.
func (e *Engine) BuildCookieResponse(peerDHTKey application.DHTKey, peerLTK application.LongTermKey, requestNonce uint64) ([]byte, error) {
	cookieBytes, err := e.cookies.Issue(peerLTK, peerDHTKey)
	if err != nil {
		return nil, err
	}

	nonce, err := crypto.RandomNonce()
	if err != nil {
		return nil, err
	}

	shared := crypto.Precompute(application.SessionKey(peerDHTKey), e.ourDHTPriv)
	plaintext := responsePlaintext{cookie: cookieBytes, requestNonce: requestNonce}.marshal()
	ciphertext := crypto.SealWithSharedKey(shared, nonce, plaintext)

	pkt := cookieResponse{nonce: nonce, ciphertext: ciphertext}
	return pkt.marshal(), nil
}

// ParseCookieResponse decrypts a cookie response addressed from
// peerDHTKey and verifies the echoed request nonce matches the
// outstanding request. The caller is expected to have recorded
// expectedRequestNonce from the matching BuildCookieRequest call.
func (e *Engine) ParseCookieResponse(data []byte, peerDHTKey application.DHTKey, expectedRequestNonce uint64) (issuedCookie []byte, err error) {
	pkt, ok := unmarshalCookieResponse(data)
	if !ok {
		return nil, ErrMalformedPacket
	}

	shared := crypto.Precompute(application.SessionKey(peerDHTKey), e.ourDHTPriv)
	plaintextBytes, openErr := crypto.OpenWithSharedKey(shared, pkt.nonce, pkt.ciphertext)
	if openErr != nil {
		return nil, fmt.Errorf("handshake: open cookie response: %w", ErrAuthFailed)
	}

	plaintext, ok := unmarshalResponsePlaintext(plaintextBytes)
	if !ok {
		return nil, ErrMalformedPacket
	}
	if plaintext.requestNonce != expectedRequestNonce {
		return nil, ErrRequestNonceMismatch
	}
	return plaintext.cookie, nil
}

// BuildHandshake assembles the crypto handshake packet (spec §4.2): it
// echoes peerCookie (the cookie we were issued, authorizing this
// handshake), binds it via sha512, and embeds a fresh cookie for the
// peer so a responder can reply without an extra round trip.
func (e *Engine) BuildHandshake(peerLTK application.LongTermKey, peerDHTKey application.DHTKey, peerCookie []byte, sessionPub application.SessionKey) ([]byte, [24]byte, error) {
	sessionNonce, err := crypto.RandomNonce()
	if err != nil {
		return nil, [24]byte{}, err
	}

	freshCookie, err := e.cookies.Issue(peerLTK, peerDHTKey)
	if err != nil {
		return nil, [24]byte{}, err
	}

	plaintext := handshakePlaintext{
		sessionNonce: sessionNonce,
		sessionPub:   sessionPub,
		cookieHash:   crypto.Sum512(peerCookie),
		freshCookie:  freshCookie,
	}.marshal()

	outerNonce, err := crypto.RandomNonce()
	if err != nil {
		return nil, [24]byte{}, err
	}

	shared := crypto.Precompute(application.SessionKey(peerLTK), e.ourLTKPriv)
	ciphertext := crypto.SealWithSharedKey(shared, outerNonce, plaintext)

	pkt := handshakePacket{echoedCookie: peerCookie, outerNonce: outerNonce, ciphertext: ciphertext}
	return pkt.marshal(), sessionNonce, nil
}

// Verified is the authenticated content of an inbound handshake packet.
type Verified struct {
	PeerLTK     application.LongTermKey
	PeerDHTKey  application.DHTKey
	SessionNonce [24]byte
	SessionPub  application.SessionKey
	FreshCookie []byte // the cookie the peer issued us, for our own reply handshake
}

// VerifyHandshake implements spec §4.2's verification order exactly:
// open the outer cookie to learn the claimed identity, decrypt the
// outer AEAD under (our LTK secret, claimed peer LTK), check the
// sha512 binding, and, if expectedPeerLTK is non-nil, check it matches.
func (e *Engine) VerifyHandshake(data []byte, expectedPeerLTK *application.LongTermKey) (Verified, error) {
	pkt, ok := unmarshalHandshakePacket(data)
	if !ok {
		return Verified{}, ErrMalformedPacket
	}

	claimedLTK, claimedDHTKey, err := e.cookies.Open(pkt.echoedCookie)
	if err != nil {
		return Verified{}, fmt.Errorf("handshake: open cookie: %w", ErrCookieInvalid)
	}

	shared := crypto.Precompute(application.SessionKey(claimedLTK), e.ourLTKPriv)
	plaintextBytes, openErr := crypto.OpenWithSharedKey(shared, pkt.outerNonce, pkt.ciphertext)
	if openErr != nil {
		return Verified{}, fmt.Errorf("handshake: open outer AEAD: %w", ErrAuthFailed)
	}

	plaintext, ok := unmarshalHandshakePlaintext(plaintextBytes)
	if !ok {
		return Verified{}, ErrMalformedPacket
	}

	if crypto.Sum512(pkt.echoedCookie) != plaintext.cookieHash {
		return Verified{}, ErrCookieHashMismatch
	}

	if expectedPeerLTK != nil && *expectedPeerLTK != claimedLTK {
		return Verified{}, ErrUnexpectedPeerLTK
	}

	return Verified{
		PeerLTK:      claimedLTK,
		PeerDHTKey:   claimedDHTKey,
		SessionNonce: plaintext.sessionNonce,
		SessionPub:   plaintext.sessionPub,
		FreshCookie:  plaintext.freshCookie,
	}, nil
}
