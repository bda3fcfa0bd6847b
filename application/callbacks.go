package application

// Callbacks is the single embedder-facing trait the session manager
// invokes on status changes and inbound data, per the design note that
// collapses connection_status_callback / data_callback / oob_callback /
// dht_pk_callback into one interface supplied once at construction.
type Callbacks interface {
	// OnStatus fires when a session transitions to ESTABLISHED (online)
	// or is torn down (going offline).
	OnStatus(peer LongTermKey, online bool)

	// OnData delivers one lossless application payload, in order,
	// exactly once. packetID is the payload's first byte (16..191).
	OnData(peer LongTermKey, packetID byte, payload []byte)

	// OnLossy delivers one lossy application payload (packetID 192..254)
	// as soon as it is decrypted; order and delivery are not guaranteed.
	OnLossy(peer LongTermKey, packetID byte, payload []byte)

	// OnDHTKeyChanged fires when a handshake names a DHT key different
	// from the one the session was created with. The session is killed
	// before this fires; the embedder is expected to reconnect.
	OnDHTKeyChanged(peer LongTermKey, newDHTKey DHTKey)
}
