// Package session is the session manager (spec §4's closing component):
// it owns every session's cookie/handshake/reliable-layer/congestion
// state, dispatches inbound packets to the right session, and drives
// the periodic tick. Grounded on infrastructure/tunnel/session's
// Repository/Peer/ConcurrentRepository shapes in the teacher
// repository (map-backed registry behind a concurrency decorator,
// ticker-driven reaping), generalized from "VPN peer session" to the
// cookie/handshake/reliable-layer state machine of spec §3.
package session

// State is the session's lifecycle state (spec §3).
type State int

const (
	StateNoConnection State = iota
	StateCookieRequesting
	StateHandshakeSent
	StateNotConfirmed
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateNoConnection:
		return "NO_CONNECTION"
	case StateCookieRequesting:
		return "COOKIE_REQUESTING"
	case StateHandshakeSent:
		return "HANDSHAKE_SENT"
	case StateNotConfirmed:
		return "NOT_CONFIRMED"
	case StateEstablished:
		return "ESTABLISHED"
	default:
		return "UNKNOWN"
	}
}
