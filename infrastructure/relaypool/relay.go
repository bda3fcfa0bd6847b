// Package relaypool is the TCP connection multiplexer (spec §4.7): a
// pool of relay clients shared across peer sessions, each peer's
// connection-to record naming up to MAX_FRIEND_TCP_CONNECTIONS relay
// references, and the onion-egress entry point. Grounded on
// infrastructure/tunnel/session/repository.go's map-backed-registry
// shape and infrastructure/tunnel/session/revoker.go's
// mutex-guarded-slice idiom, generalized from "session repository" to
// "relay-client pool with promotion/sleep."
package relaypool

import (
	"net/netip"
	"sync"
	"time"

	"p2ptransport/application"
	"p2ptransport/infrastructure/relay"
)

// Status is a pooled relay's usage state.
type Status int

const (
	StatusOnline Status = iota
	StatusSleeping
	StatusOffline
)

// Relay is one pooled TCP relay client: its address, the relay's DHT
// key, the underlying virtual-connection multiplexer, and the
// bookkeeping needed for sleep/promotion (spec §4.7).
type Relay struct {
	mu sync.Mutex

	addr    netip.AddrPort
	dhtKey  application.DHTKey
	conn    *relay.Connection
	status  Status

	onionCapable bool
	lastUsed     time.Time
	refCount     int // number of connection-to records currently using this relay
}

// NewRelay wraps an established relay.Connection for pool bookkeeping.
func NewRelay(addr netip.AddrPort, dhtKey application.DHTKey, conn *relay.Connection, onionCapable bool, now time.Time) *Relay {
	return &Relay{
		addr:         addr,
		dhtKey:       dhtKey,
		conn:         conn,
		status:       StatusOnline,
		onionCapable: onionCapable,
		lastUsed:     now,
	}
}

func (r *Relay) Addr() netip.AddrPort { return r.addr }

func (r *Relay) Connection() *relay.Connection { return r.conn }

func (r *Relay) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Relay) OnionCapable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onionCapable
}

// touch marks the relay as used right now, promoting it out of
// StatusSleeping if it had drifted there.
func (r *Relay) touch(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUsed = now
	if r.status == StatusSleeping {
		r.status = StatusOnline
	}
}

func (r *Relay) addRef(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refCount++
	r.lastUsed = now
	if r.status == StatusSleeping {
		r.status = StatusOnline
	}
}

func (r *Relay) removeRef() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCount > 0 {
		r.refCount--
	}
}

// maybeSleep transitions an unreferenced, long-idle relay to
// StatusSleeping. Sleeping relays stay in the pool so a later
// connection-to reference can reanimate them without a fresh TCP
// connect + relay handshake (spec §4.7: "kept in the pool to be
// reanimated quickly").
func (r *Relay) maybeSleep(now time.Time, lockTimeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCount > 0 || r.status == StatusOffline {
		return
	}
	if now.Sub(r.lastUsed) >= lockTimeout {
		r.status = StatusSleeping
	}
}
