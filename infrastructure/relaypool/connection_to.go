package relaypool

import (
	"net/netip"
	"sync"

	"p2ptransport/application"
	"p2ptransport/infrastructure/wire"
)

// ConnectionTo is one peer session's view of the relay pool: up to
// MaxFriendTCPConnections relay references, of which the recommended
// working set is RecommendedTCPConnections (spec §4.7).
type ConnectionTo struct {
	mu sync.Mutex

	peerDHTKey application.DHTKey
	sessionID  uint64
	online     bool

	relays [wire.MaxFriendTCPConnections]netip.AddrPort
	count  int
}

func newConnectionTo(peerDHTKey application.DHTKey, sessionID uint64) *ConnectionTo {
	return &ConnectionTo{peerDHTKey: peerDHTKey, sessionID: sessionID}
}

func (c *ConnectionTo) PeerDHTKey() application.DHTKey { return c.peerDHTKey }

func (c *ConnectionTo) SessionID() uint64 { return c.sessionID }

func (c *ConnectionTo) SetOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
}

func (c *ConnectionTo) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// addRelay appends addr to this connection-to's relay set, rejecting
// duplicates and enforcing MaxFriendTCPConnections.
func (c *ConnectionTo) addRelay(addr netip.AddrPort) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.count; i++ {
		if c.relays[i] == addr {
			return nil
		}
	}
	if c.count >= len(c.relays) {
		return ErrTooManyRelays
	}
	c.relays[c.count] = addr
	c.count++
	return nil
}

func (c *ConnectionTo) removeRelay(addr netip.AddrPort) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.count; i++ {
		if c.relays[i] == addr {
			copy(c.relays[i:c.count-1], c.relays[i+1:c.count])
			c.count--
			return
		}
	}
}

// relayAddrs returns a snapshot of the currently referenced relay
// addresses, in preference order (most recently added first is not
// tracked; callers treat the set as unordered beyond "first online").
func (c *ConnectionTo) relayAddrs() []netip.AddrPort {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]netip.AddrPort, c.count)
	copy(out, c.relays[:c.count])
	return out
}
