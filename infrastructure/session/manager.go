package session

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"p2ptransport/application"
	"p2ptransport/infrastructure/cookie"
	"p2ptransport/infrastructure/handshake"
	"p2ptransport/infrastructure/lan"
	"p2ptransport/infrastructure/transport"
	"p2ptransport/infrastructure/wire"
)

// Manager owns every peer Session, dispatches inbound wire packets to
// the right one, and drives the periodic tick. Grounded on
// infrastructure/tunnel/session's Repository/ConcurrentRepository idiom
// in the teacher repository: a map-backed registry behind one mutex,
// with the lock held only long enough to find or create the target
// before handing off to the target's own lock (spec §5's lock order,
// session-manager mutex outermost, per-session mutex innermost).
type Manager struct {
	mu     sync.RWMutex
	byPeer map[application.LongTermKey]*Session
	byAddr map[netip.AddrPort]application.LongTermKey

	ourLTKPub  application.LongTermKey
	ourLTKPriv [32]byte
	ourDHTPub  application.DHTKey
	ourDHTPriv [32]byte

	cookies   *cookie.Engine
	handshake *handshake.Engine
	callbacks application.Callbacks
	logger    application.Logger
}

// NewManager builds the manager for one local identity. cookies is
// shared with every Session it creates, so a cookie minted while
// answering an inbound request (before any Session exists) verifies
// against the same secret a later Session will see.
func NewManager(
	ourLTKPub application.LongTermKey, ourLTKPriv [32]byte,
	ourDHTPub application.DHTKey, ourDHTPriv [32]byte,
	cookies *cookie.Engine, callbacks application.Callbacks, logger application.Logger,
) *Manager {
	return &Manager{
		byPeer:     make(map[application.LongTermKey]*Session),
		byAddr:     make(map[netip.AddrPort]application.LongTermKey),
		ourLTKPub:  ourLTKPub,
		ourLTKPriv: ourLTKPriv,
		ourDHTPub:  ourDHTPub,
		ourDHTPriv: ourDHTPriv,
		cookies:    cookies,
		handshake:  handshake.NewEngine(ourLTKPub, ourLTKPriv, ourDHTPub, ourDHTPriv, cookies),
		callbacks:  callbacks,
		logger:     logger,
	}
}

// Connect creates (or returns the existing) session for peerLTK and, if
// newly created, returns the first cookie-request packet to send.
func (m *Manager) Connect(peerLTK application.LongTermKey, peerDHTKey application.DHTKey, picker *transport.Picker, now time.Time) (*Session, []byte, error) {
	m.mu.Lock()
	if existing, ok := m.byPeer[peerLTK]; ok {
		m.mu.Unlock()
		return existing, nil, nil
	}
	m.mu.Unlock()

	s, req, err := NewOutbound(m.ourLTKPub, m.ourLTKPriv, m.ourDHTPub, m.ourDHTPriv, peerLTK, peerDHTKey, m.cookies, picker, m.callbacks, now)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	m.byPeer[peerLTK] = s
	m.mu.Unlock()
	return s, req, nil
}

// NoteAddr records the (IP:port) a peer's traffic is currently arriving
// from, so a future inbound datagram with no session-identifying prefix
// (e.g. a LAN discovery reply) can still be routed. Callers typically
// call this once a handshake has named the peer's LTK.
func (m *Manager) NoteAddr(peerLTK application.LongTermKey, addr netip.AddrPort) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byAddr[addr] = peerLTK
}

// SessionFor returns the existing session for peerLTK, if any.
func (m *Manager) SessionFor(peerLTK application.LongTermKey) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byPeer[peerLTK]
	return s, ok
}

// SessionForAddr resolves a previously-noted address back to a session.
func (m *Manager) SessionForAddr(addr netip.AddrPort) (*Session, bool) {
	m.mu.RLock()
	peerLTK, ok := m.byAddr[addr]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.SessionFor(peerLTK)
}

// Dispatch routes one inbound wire packet by its first byte (spec §2's
// net-packet dispatch table). For cookie requests it answers directly,
// with no session involved; for cookie responses it finds the session
// recorded for from (see NoteAddr) and returns ErrUnknownPeer if there
// is none; for handshakes it finds the addressed session or creates an
// inbound one; for crypto data it looks the session up by from in the
// same way, since the wire format carries no peerLTK prefix on data
// packets, and passes the frame to that session's HandleDataFrame.
//
// Dispatch returns the bytes to send back to from, if any.
func (m *Manager) Dispatch(data []byte, from netip.AddrPort, picker *transport.Picker, now time.Time) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("session: empty packet")
	}

	switch data[0] {
	case wire.NetPacketCookieRequest:
		return m.handleCookieRequest(data)

	case wire.NetPacketCookieResponse:
		s, ok := m.SessionForAddr(from)
		if !ok {
			return nil, ErrUnknownPeer
		}
		return s.HandleCookieResponse(data, now)

	case wire.NetPacketCryptoHS:
		return m.handleHandshake(data, from, picker, now)

	case wire.NetPacketCryptoData:
		s, ok := m.SessionForAddr(from)
		if !ok {
			return nil, ErrUnknownPeer
		}
		if len(data) < 3 {
			return nil, fmt.Errorf("session: short data packet")
		}
		low16 := uint16(data[1])<<8 | uint16(data[2])
		return nil, s.HandleDataFrame(low16, data[3:], now)

	default:
		return nil, fmt.Errorf("session: unknown net packet id 0x%02x", data[0])
	}
}

func (m *Manager) handleCookieRequest(data []byte) ([]byte, error) {
	peerDHTKey, peerLTK, requestNonce, err := m.handshake.ParseCookieRequest(data)
	if err != nil {
		return nil, err
	}
	return m.handshake.BuildCookieResponse(peerDHTKey, peerLTK, requestNonce)
}

func (m *Manager) handleHandshake(data []byte, from netip.AddrPort, picker *transport.Picker, now time.Time) ([]byte, error) {
	// A handshake's peer LTK is only known after VerifyHandshake, so an
	// unsolicited inbound handshake cannot be routed to an existing
	// session by address alone; check by address first (a reply to our
	// own outbound handshake), falling back to creating a fresh inbound
	// session.
	if s, ok := m.SessionForAddr(from); ok {
		reply, err := s.HandleHandshake(data, now)
		if err == nil {
			if peerLTK, known := s.PeerLTK(); known {
				m.NoteAddr(peerLTK, from)
			}
		}
		return reply, err
	}

	s := NewInbound(m.ourLTKPub, m.ourLTKPriv, m.ourDHTPub, m.ourDHTPriv, m.cookies, picker, m.callbacks, now)
	reply, err := s.HandleHandshake(data, now)
	if err != nil {
		return nil, err
	}

	peerLTK, known := s.PeerLTK()
	if !known {
		return nil, fmt.Errorf("session: verified handshake carried no peer LTK")
	}

	m.mu.Lock()
	m.byPeer[peerLTK] = s
	m.mu.Unlock()
	m.NoteAddr(peerLTK, from)

	if m.logger != nil {
		m.logger.Printf("session: accepted inbound handshake from %s", from)
	}
	return reply, nil
}

// Kill tears down and forgets peerLTK's session, if any.
func (m *Manager) Kill(peerLTK application.LongTermKey, now time.Time) {
	m.mu.Lock()
	s, ok := m.byPeer[peerLTK]
	delete(m.byPeer, peerLTK)
	m.mu.Unlock()
	if ok {
		s.Kill(now)
	}
}

// Tick drives every session's periodic bookkeeping, returning the
// address/payload pairs that need to be sent (retry packets for
// sessions still handshaking).
func (m *Manager) Tick(now time.Time) []RetryPacket {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.byPeer))
	addrs := make(map[*Session]netip.AddrPort, len(m.byPeer))
	for peerLTK, s := range m.byPeer {
		sessions = append(sessions, s)
		for addr, ltk := range m.byAddr {
			if ltk == peerLTK {
				addrs[s] = addr
				break
			}
		}
	}
	m.mu.RUnlock()

	// Each session's Tick only touches its own mutex, so ticking the
	// whole set fans out across an errgroup the same way the teacher's
	// client_routing.Router joins its TUN/transport loops, generalized
	// from two fixed goroutines to one per live session.
	results := make([]tickResult, len(sessions))
	var g errgroup.Group
	for i, s := range sessions {
		i, s := i, s
		g.Go(func() error {
			retry, killed, err := s.Tick(now)
			results[i] = tickResult{session: s, retry: retry, killed: killed}
			return err
		})
	}
	if err := g.Wait(); err != nil && m.logger != nil {
		m.logger.Printf("session: tick error: %v", err)
	}

	var out []RetryPacket
	for _, r := range results {
		if r.killed {
			m.forget(r.session)
			continue
		}
		if r.retry != nil {
			out = append(out, RetryPacket{Addr: addrs[r.session], Payload: r.retry})
		}
	}
	return out
}

type tickResult struct {
	session *Session
	retry   []byte
	killed  bool
}

// Run drives the manager autonomously until ctx is cancelled: one
// goroutine ticks every session on tickInterval, resending any due
// cookie-request/handshake retry through that session's own picker; a
// second, started only if beacon and sender are both non-nil, emits a
// LAN_DISCOVERY broadcast on wire.LANDiscoveryInterval. Both loops are
// joined by an errgroup so the first fatal error cancels the other
// (spec §5 [EXPANDED]: "golang.org/x/sync/errgroup to supervise the
// LAN-beacon and session-manager tick goroutines").
func (m *Manager) Run(ctx context.Context, tickInterval time.Duration, beacon *lan.Beacon, sender lan.Sender, beaconPort uint16) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				m.tickAndResend(now)
			}
		}
	})

	if beacon != nil && sender != nil {
		g.Go(func() error {
			ticker := time.NewTicker(wire.LANDiscoveryInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := beacon.Emit(sender, m.ourDHTPub, beaconPort); err != nil && m.logger != nil {
						m.logger.Printf("session: lan beacon emit: %v", err)
					}
				}
			}
		})
	}

	return g.Wait()
}

// tickAndResend is Tick's autonomous counterpart: instead of handing
// retry bytes back to the caller, it resends them directly through the
// owning session's own transport picker.
func (m *Manager) tickAndResend(now time.Time) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.byPeer))
	for _, s := range m.byPeer {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			retry, killed, err := s.Tick(now)
			if killed {
				m.forget(s)
				return nil
			}
			if retry != nil {
				_ = s.picker.Send(retry, now, true)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil && m.logger != nil {
		m.logger.Printf("session: tick error: %v", err)
	}
}

// RetryPacket is a cookie-request or handshake packet Tick wants resent.
type RetryPacket struct {
	Addr    netip.AddrPort
	Payload []byte
}

func (m *Manager) forget(s *Session) {
	peerLTK, known := s.PeerLTK()
	if !known {
		return
	}
	m.mu.Lock()
	delete(m.byPeer, peerLTK)
	m.mu.Unlock()
}
