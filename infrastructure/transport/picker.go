// Package transport implements the per-session transport picker (spec
// §4.5): for each outbound frame, choose between the UDPv4 direct path,
// the UDPv6 direct path, and the TCP virtual circuit. Grounded on
// application/network/connection/egress.go's Egress interface and its
// address-aware decorator pattern (DefaultEgress.SetAddrPort),
// generalized from "one writer" to "choose among UDPv4 / UDPv6 /
// TCP-virtual-circuit per send".
package transport

import (
	"net/netip"
	"time"

	"p2ptransport/application"
	"p2ptransport/infrastructure/lan"
	"p2ptransport/infrastructure/wire"
)

// pathState is the per-family direct-path bookkeeping of spec §3's
// "Transport state per session": the last observed peer address, the
// last time a direct datagram was received, and the last time a
// speculative direct send (probe) was attempted.
type pathState struct {
	lastSeen      netip.AddrPort
	lastReceived  time.Time
	lastProbeSent time.Time
}

func (p pathState) alive(now time.Time) bool {
	return !p.lastReceived.IsZero() && now.Sub(p.lastReceived) < wire.UDPDirectTimeout
}

// Picker holds one session's transport state and chooses where each
// outbound frame goes.
type Picker struct {
	v4, v6          pathState
	directConnected bool
	lastTCPSent     time.Time

	udpV4, udpV6, tcp application.Egress
}

// NewPicker creates a picker with no direct-path history; every send
// falls through to TCP until a direct datagram is observed.
func NewPicker(udpV4, udpV6, tcp application.Egress) *Picker {
	return &Picker{udpV4: udpV4, udpV6: udpV6, tcp: tcp}
}

// NoteReceived records a direct datagram from addr, refreshing the
// matching family's liveness.
func (p *Picker) NoteReceived(addr netip.AddrPort, now time.Time) {
	if addr.Addr().Is4() || addr.Addr().Is4In6() {
		p.v4.lastSeen = addr
		p.v4.lastReceived = now
	} else {
		p.v6.lastSeen = addr
		p.v6.lastReceived = now
	}
}

// SetDirectConnected marks whether the session considers its direct UDP
// path confirmed (at least one authenticated frame received over it).
func (p *Picker) SetDirectConnected(v bool) {
	p.directConnected = v
}

// DirectConnected reports the session's current direct-confirmation
// state (spec §8 scenario 4: "crypto_connection_status.direct_connected
// flips to false" once the direct path is black-holed and TCP takes
// over).
func (p *Picker) DirectConnected() bool {
	return p.directConnected
}

// preferredFamily picks IPv4 unless its last-seen address is LAN and
// IPv6 is alive, in which case IPv6 global beats IPv4 LAN (spec §4.5).
func (p *Picker) preferredFamily(now time.Time) (egress application.Egress, state *pathState) {
	v4Alive := p.v4.alive(now)
	v6Alive := p.v6.alive(now)

	switch {
	case v4Alive && v6Alive:
		if p.v4.lastSeen.IsValid() && lan.IsLAN(p.v4.lastSeen.Addr()) {
			return p.udpV6, &p.v6
		}
		return p.udpV4, &p.v4
	case v4Alive:
		return p.udpV4, &p.v4
	case v6Alive:
		return p.udpV6, &p.v6
	default:
		return nil, nil
	}
}

// Send implements spec §4.5's three-step decision for one outbound
// frame. isCookieOrHandshake, or a frame of at most 96 bytes, marks
// probe-eligible traffic per rule 2.
func (p *Picker) Send(frame []byte, now time.Time, isCookieOrHandshake bool) error {
	egress, state := p.preferredFamily(now)

	if egress != nil && p.directConnected {
		return egress.Send(frame)
	}

	if egress != nil {
		eligible := isCookieOrHandshake || len(frame) <= 96
		if eligible && now.Sub(state.lastProbeSent) >= wire.UDPDirectTimeout/2 {
			state.lastProbeSent = now
			_ = egress.Send(frame) // best-effort: probe failure is not fatal
		}
	}

	p.lastTCPSent = now
	return p.tcp.Send(frame)
}
