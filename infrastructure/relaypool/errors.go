package relaypool

import "errors"

var (
	// ErrNoOnionRelay is returned by SendTCPOnionRequest when onion
	// egress is disabled or no onion-capable relay is currently pooled.
	ErrNoOnionRelay = errors.New("relaypool: no onion-capable relay available")

	// ErrTooManyRelays is returned when a connection-to record already
	// holds MaxFriendTCPConnections relay references.
	ErrTooManyRelays = errors.New("relaypool: connection-to already at MaxFriendTCPConnections")

	// ErrRelayNotFound is returned when an operation names a relay
	// address the pool does not have.
	ErrRelayNotFound = errors.New("relaypool: relay not found")

	// ErrNoOnlineRelay is returned when a connection-to has no relay
	// currently online to send through.
	ErrNoOnlineRelay = errors.New("relaypool: connection-to has no online relay")
)
