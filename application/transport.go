package application

import "net/netip"

// Transport is a single, already-open path a frame can be written to and
// read from: a UDP socket bound to one family, or a TCP relay's virtual
// connection. Grounded on the teacher's connection.Transport /
// application.ConnectionAdapter shape (plain Read/Write over whatever
// the concrete adapter wraps).
type Transport interface {
	Write(frame []byte) (int, error)
	Read(buf []byte) (int, error)
}

// Egress is a single, serialized egress path for a session: it prevents
// concurrent Write calls into a Transport whose underlying nonce counter
// or socket is not safe for concurrent use. Mirrors
// application/network/connection/egress.go's DefaultEgress exactly,
// generalized from "one writer" to "whichever of UDPv4/UDPv6/TCP the
// transport picker selected for this send."
type Egress interface {
	Send(frame []byte) error
	Close() error
}

// AddrPortSetter is implemented by egresses whose destination can move
// (NAT roaming, direct-path failover). The transport picker uses it to
// keep a UDP egress pointed at the peer's latest observed address.
type AddrPortSetter interface {
	SetAddrPort(netip.AddrPort)
}
