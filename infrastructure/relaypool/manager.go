package relaypool

import (
	"net/netip"
	"sync"
	"time"

	"p2ptransport/application"
	"p2ptransport/infrastructure/wire"
)

// Manager is the TCP connection multiplexer's public surface (spec
// §4.7): one per embedder, holding the shared relay Pool and every
// peer's ConnectionTo record.
type Manager struct {
	mu          sync.RWMutex
	pool        *Pool
	connections map[application.DHTKey]*ConnectionTo
	lockTimeout time.Duration
}

func NewManager(pool *Pool) *Manager {
	return &Manager{
		pool:        pool,
		connections: make(map[application.DHTKey]*ConnectionTo),
		lockTimeout: wire.RelayLockTimeout,
	}
}

// NewTCPConnectionTo creates (or returns the existing) connection-to
// record for peerDHTKey.
func (m *Manager) NewTCPConnectionTo(peerDHTKey application.DHTKey, sessionID uint64) *ConnectionTo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.connections[peerDHTKey]; ok {
		return existing
	}
	c := newConnectionTo(peerDHTKey, sessionID)
	m.connections[peerDHTKey] = c
	return c
}

// AddTCPRelayConnection adds relayAddr to peerDHTKey's connection-to
// record. The relay must already be pooled (via Pool.Add); referencing
// it here bumps its ref count, waking it from StatusSleeping if
// necessary (spec §4.7: "reanimated quickly").
func (m *Manager) AddTCPRelayConnection(peerDHTKey application.DHTKey, relayAddr netip.AddrPort, now time.Time) error {
	m.mu.RLock()
	c, ok := m.connections[peerDHTKey]
	m.mu.RUnlock()
	if !ok {
		return ErrRelayNotFound
	}
	r, ok := m.pool.Get(relayAddr)
	if !ok {
		return ErrRelayNotFound
	}
	if err := c.addRelay(relayAddr); err != nil {
		return err
	}
	r.addRef(now)
	return nil
}

// RemoveTCPRelayConnection drops relayAddr from peerDHTKey's
// connection-to record, releasing the relay's ref count.
func (m *Manager) RemoveTCPRelayConnection(peerDHTKey application.DHTKey, relayAddr netip.AddrPort) {
	m.mu.RLock()
	c, ok := m.connections[peerDHTKey]
	m.mu.RUnlock()
	if !ok {
		return
	}
	c.removeRelay(relayAddr)
	if r, ok := m.pool.Get(relayAddr); ok {
		r.removeRef()
	}
}

// SetTCPConnectionToStatus records whether peerDHTKey's TCP path is
// currently usable, e.g. because the direct UDP path has taken over.
func (m *Manager) SetTCPConnectionToStatus(peerDHTKey application.DHTKey, online bool) {
	m.mu.RLock()
	c, ok := m.connections[peerDHTKey]
	m.mu.RUnlock()
	if ok {
		c.SetOnline(online)
	}
}

// TCPConnectionToOnlineTCPRelays lists the relay addresses currently
// online among peerDHTKey's referenced set.
func (m *Manager) TCPConnectionToOnlineTCPRelays(peerDHTKey application.DHTKey) []netip.AddrPort {
	m.mu.RLock()
	c, ok := m.connections[peerDHTKey]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	var online []netip.AddrPort
	for _, addr := range c.relayAddrs() {
		if r, ok := m.pool.Get(addr); ok && r.Status() != StatusOffline {
			online = append(online, addr)
		}
	}
	return online
}

// SendPacketTCPConnection routes payload to peerLTK over peerDHTKey's
// first online relay.
func (m *Manager) SendPacketTCPConnection(peerDHTKey application.DHTKey, peerLTK application.LongTermKey, payload []byte, now time.Time) error {
	for _, addr := range m.TCPConnectionToOnlineTCPRelays(peerDHTKey) {
		r, ok := m.pool.Get(addr)
		if !ok {
			continue
		}
		if err := r.conn.SendData(peerLTK, payload); err == nil {
			r.touch(now)
			return nil
		}
	}
	return ErrNoOnlineRelay
}

// SendTCPOnionRequest delegates to the pool's onion-capable relay set.
func (m *Manager) SendTCPOnionRequest(dstLTK application.LongTermKey, payload []byte, now time.Time) error {
	return m.pool.SendTCPOnionRequest(dstLTK, payload, now)
}

// SetTCPOnionStatus delegates to the pool.
func (m *Manager) SetTCPOnionStatus(enabled bool) {
	m.pool.SetTCPOnionStatus(enabled)
}

// Tick runs the pool's sleep-promotion pass.
func (m *Manager) Tick(now time.Time) {
	m.pool.Tick(now, m.lockTimeout)
}
