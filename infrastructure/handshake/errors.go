package handshake

import "errors"

var (
	ErrMalformedPacket   = errors.New("handshake: malformed packet")
	ErrCookieInvalid     = errors.New("handshake: cookie invalid")
	ErrAuthFailed        = errors.New("handshake: outer authentication failed")
	ErrCookieHashMismatch = errors.New("handshake: sha512(cookie) does not match included hash")
	ErrUnexpectedPeerLTK = errors.New("handshake: peer long-term key does not match expectation")
	ErrRequestNonceMismatch = errors.New("handshake: echoed request nonce does not match outstanding request")
)
