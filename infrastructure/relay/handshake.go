package relay

import (
	"fmt"
	"io"

	"p2ptransport/application"
	"p2ptransport/infrastructure/crypto"
	"p2ptransport/infrastructure/reliability"
)

// handshakeMessage is "session_pub ‖ base_nonce", the plaintext of both
// sides of the relay handshake (spec §4.6).
type handshakeMessage struct {
	sessionPub application.SessionKey
	baseNonce  reliability.Nonce
}

func (m handshakeMessage) marshal() []byte {
	out := make([]byte, 32+24)
	copy(out[:32], m.sessionPub[:])
	copy(out[32:], m.baseNonce[:])
	return out
}

func unmarshalHandshakeMessage(b []byte) (handshakeMessage, bool) {
	if len(b) != 32+24 {
		return handshakeMessage{}, false
	}
	var m handshakeMessage
	copy(m.sessionPub[:], b[:32])
	copy(m.baseNonce[:], b[32:])
	return m, true
}

// ClientHandshake drives the initiator side of the relay handshake:
// "our_LTK ‖ nonce ‖ AEAD(DH(our_LTK, relay_LTK); plaintext = session_pub
// ‖ base_nonce)", then reads and opens the relay's reply.
func ClientHandshake(conn io.ReadWriter, ourLTKPub application.LongTermKey, ourLTKPriv [32]byte, relayLTK application.LongTermKey, sessionPub application.SessionKey, sessionPriv [32]byte, baseNonce reliability.Nonce) (*FramedConn, error) {
	ltkShared := crypto.Precompute(application.SessionKey(relayLTK), ourLTKPriv)
	defer crypto.ZeroBytes(ltkShared[:])

	nonce, err := crypto.RandomNonce()
	if err != nil {
		return nil, err
	}
	plaintext := handshakeMessage{sessionPub: sessionPub, baseNonce: baseNonce}.marshal()
	ciphertext := crypto.SealWithSharedKey(ltkShared, nonce, plaintext)

	out := make([]byte, 32+24+len(ciphertext))
	copy(out[:32], ourLTKPub[:])
	copy(out[32:56], nonce[:])
	copy(out[56:], ciphertext)
	if _, err := writeFullTo(conn, out); err != nil {
		return nil, fmt.Errorf("relay: send client handshake: %w", err)
	}

	reply := make([]byte, 24+32+24+16)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return nil, fmt.Errorf("relay: read relay handshake reply: %w", err)
	}
	var replyNonce [24]byte
	copy(replyNonce[:], reply[:24])
	replyPlaintext, err := crypto.OpenWithSharedKey(ltkShared, replyNonce, reply[24:])
	if err != nil {
		return nil, fmt.Errorf("relay: open relay handshake reply: %w", ErrHandshakeAuthFailed)
	}
	serverMsg, ok := unmarshalHandshakeMessage(replyPlaintext)
	if !ok {
		return nil, ErrMalformedHandshake
	}

	sessionShared := crypto.Precompute(serverMsg.sessionPub, sessionPriv)
	return NewFramedConn(conn, sessionShared, baseNonce, serverMsg.baseNonce), nil
}

// ServerHandshake drives the relay's responder side.
func ServerHandshake(conn io.ReadWriter, relayLTKPub application.LongTermKey, relayLTKPriv [32]byte, sessionPub application.SessionKey, sessionPriv [32]byte, baseNonce reliability.Nonce) (*FramedConn, application.LongTermKey, error) {
	header := make([]byte, 32+24)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, application.LongTermKey{}, fmt.Errorf("relay: read client handshake: %w", err)
	}
	var clientLTK application.LongTermKey
	copy(clientLTK[:], header[:32])
	var clientNonce [24]byte
	copy(clientNonce[:], header[32:])

	ltkShared := crypto.Precompute(application.SessionKey(clientLTK), relayLTKPriv)
	defer crypto.ZeroBytes(ltkShared[:])

	// The ciphertext length is fixed: handshakeMessage (56 bytes) + MAC.
	ciphertext := make([]byte, 56+16)
	if _, err := io.ReadFull(conn, ciphertext); err != nil {
		return nil, application.LongTermKey{}, fmt.Errorf("relay: read client handshake body: %w", err)
	}
	plaintext, err := crypto.OpenWithSharedKey(ltkShared, clientNonce, ciphertext)
	if err != nil {
		return nil, application.LongTermKey{}, fmt.Errorf("relay: open client handshake: %w", ErrHandshakeAuthFailed)
	}
	clientMsg, ok := unmarshalHandshakeMessage(plaintext)
	if !ok {
		return nil, application.LongTermKey{}, ErrMalformedHandshake
	}

	replyNonce, err := crypto.RandomNonce()
	if err != nil {
		return nil, application.LongTermKey{}, err
	}
	replyPlaintext := handshakeMessage{sessionPub: sessionPub, baseNonce: baseNonce}.marshal()
	replyCiphertext := crypto.SealWithSharedKey(ltkShared, replyNonce, replyPlaintext)

	reply := make([]byte, 24+len(replyCiphertext))
	copy(reply[:24], replyNonce[:])
	copy(reply[24:], replyCiphertext)
	if _, err := writeFullTo(conn, reply); err != nil {
		return nil, application.LongTermKey{}, fmt.Errorf("relay: send server handshake reply: %w", err)
	}

	sessionShared := crypto.Precompute(clientMsg.sessionPub, sessionPriv)
	return NewFramedConn(conn, sessionShared, baseNonce, clientMsg.baseNonce), clientLTK, nil
}

func writeFullTo(w io.Writer, p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n, err := w.Write(p)
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}
