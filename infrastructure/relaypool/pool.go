package relaypool

import (
	"math/rand"
	"net/netip"
	"sync"
	"time"

	"p2ptransport/application"
)

// MaxOnionCapableRelays bounds the separately-tracked onion-capable
// relay set (spec §4.7: "the set of onion-capable relays is bounded
// separately"). The spec names no exact figure; six matches
// MAX_FRIEND_TCP_CONNECTIONS as a reasonable working-set size for a
// feature most clients never need more than a handful of paths for.
const MaxOnionCapableRelays = 6

// Pool is the registry of pooled relay clients, addressed by the
// relay's socket address.
type Pool struct {
	mu          sync.RWMutex
	byAddr      map[netip.AddrPort]*Relay
	onion       []netip.AddrPort
	onionActive bool
}

func NewPool() *Pool {
	return &Pool{
		byAddr: make(map[netip.AddrPort]*Relay),
	}
}

// Add registers r in the pool, and in the onion-capable set if it
// qualifies and there is room.
func (p *Pool) Add(r *Relay) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byAddr[r.addr] = r
	if r.OnionCapable() && len(p.onion) < MaxOnionCapableRelays {
		p.onion = append(p.onion, r.addr)
	}
}

// Get looks up a pooled relay by address.
func (p *Pool) Get(addr netip.AddrPort) (*Relay, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.byAddr[addr]
	return r, ok
}

// Remove drops a relay from the pool entirely, e.g. after a fatal
// socket error.
func (p *Pool) Remove(addr netip.AddrPort) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byAddr, addr)
	for i, a := range p.onion {
		if a == addr {
			p.onion = append(p.onion[:i], p.onion[i+1:]...)
			break
		}
	}
}

// SetTCPOnionStatus toggles whether send_tcp_onion_request (spec §4.7)
// is allowed to egress through the pool at all.
func (p *Pool) SetTCPOnionStatus(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onionActive = enabled
}

// SendTCPOnionRequest picks a random onion-capable relay and sends
// payload as an out-of-band packet addressed to dstLTK.
func (p *Pool) SendTCPOnionRequest(dstLTK application.LongTermKey, payload []byte, now time.Time) error {
	p.mu.RLock()
	if !p.onionActive || len(p.onion) == 0 {
		p.mu.RUnlock()
		return ErrNoOnionRelay
	}
	addr := p.onion[rand.Intn(len(p.onion))]
	r, ok := p.byAddr[addr]
	p.mu.RUnlock()
	if !ok {
		return ErrNoOnionRelay
	}
	r.touch(now)
	return r.conn.SendOOB(dstLTK, payload)
}

// Tick runs the sleep-promotion pass over every pooled relay: an
// unreferenced relay idle past lockTimeout is marked sleeping but kept
// in the pool (spec §4.7).
func (p *Pool) Tick(now time.Time, lockTimeout time.Duration) {
	p.mu.RLock()
	relays := make([]*Relay, 0, len(p.byAddr))
	for _, r := range p.byAddr {
		relays = append(relays, r)
	}
	p.mu.RUnlock()

	for _, r := range relays {
		r.maybeSleep(now, lockTimeout)
	}
}
