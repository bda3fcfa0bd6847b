package session

import "errors"

var (
	// ErrWrongState is returned when an operation is attempted from a
	// state that does not permit it (e.g. writing before ESTABLISHED).
	ErrWrongState = errors.New("session: operation not valid in current state")

	// ErrMaxSpeedReached is returned by a lossless write when the send
	// buffer is full or the congestion controller's token bucket is
	// empty (spec §7: "Capacity" errors reject the write).
	ErrMaxSpeedReached = errors.New("session: max speed reached")

	// ErrHandshakeTimeout is the internal reason a session transitions
	// to StateNoConnection after MaxNumSendPacketTries retries.
	ErrHandshakeTimeout = errors.New("session: handshake retries exhausted")

	// ErrUnknownPeer is returned when a manager operation names a peer
	// with no session.
	ErrUnknownPeer = errors.New("session: unknown peer")
)
