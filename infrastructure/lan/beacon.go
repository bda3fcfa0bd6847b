package lan

import (
	"net"
	"net/netip"
	"sync"

	"golang.org/x/net/ipv6"

	"p2ptransport/application"
	"p2ptransport/infrastructure/wire"
)

// Ipv6MulticastGroup is the link-local multicast address the beacon
// additionally announces to (spec §6).
var Ipv6MulticastGroup = netip.MustParseAddr("ff02::1")

// Payload builds the beacon's 33-byte wire payload: the LAN-discovery
// packet id followed by our DHT public key.
func Payload(dhtKey application.DHTKey) []byte {
	out := make([]byte, wire.LANDiscoveryPacketSize)
	out[0] = wire.NetPacketLANDiscovery
	copy(out[1:], dhtKey[:])
	return out
}

// Sender abstracts the one outbound primitive the beacon needs: send a
// datagram to an address. Satisfied by *net.UDPConn.
type Sender interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// Beacon tracks the process-global broadcast-interface cache (spec §9
// Design Note: "initialize the cache exactly once under a mutex at
// startup; treat a 'no interfaces' result as permanent until an
// explicit refresh") and emits the LAN-discovery packet once per tick.
type Beacon struct {
	mu           sync.Mutex
	broadcasts   []netip.Addr
	initialized  bool
}

// NewBeacon creates a Beacon with an empty interface cache; the cache is
// populated lazily by the first Targets call, or eagerly via Refresh.
func NewBeacon() *Beacon {
	return &Beacon{}
}

// Refresh re-samples the local network interfaces for their IPv4
// broadcast addresses. Safe to call concurrently; callers needing a
// fresh read after a network change call this explicitly, since the
// cache is otherwise permanent once populated.
func (b *Beacon) Refresh() {
	broadcasts := computeBroadcastAddresses()

	b.mu.Lock()
	b.broadcasts = broadcasts
	b.initialized = true
	b.mu.Unlock()
}

// Targets returns the cached IPv4 broadcast addresses, populating the
// cache on first use if Refresh was never called.
func (b *Beacon) Targets() []netip.Addr {
	b.mu.Lock()
	initialized := b.initialized
	b.mu.Unlock()

	if !initialized {
		b.Refresh()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]netip.Addr, len(b.broadcasts))
	copy(out, b.broadcasts)
	return out
}

// computeBroadcastAddresses derives each IPv4 interface's broadcast
// address (addr | ^mask) from the host's configured interfaces.
func computeBroadcastAddresses() []netip.Addr {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var out []netip.Addr
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			bcast := make(net.IP, 4)
			for i := range bcast {
				bcast[i] = ip4[i] | ^ipNet.Mask[i]
			}
			if addr, ok := netip.AddrFromSlice(bcast); ok {
				out = append(out, addr)
			}
		}
	}
	return out
}

// Emit sends the beacon payload to every cached IPv4 broadcast address
// and to the IPv6 link-local multicast group, on port.
func (b *Beacon) Emit(sender Sender, dhtKey application.DHTKey, port uint16) error {
	payload := Payload(dhtKey)

	var firstErr error
	for _, addr := range b.Targets() {
		if _, err := sender.WriteToUDPAddrPort(payload, netip.AddrPortFrom(addr, port)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if _, err := sender.WriteToUDPAddrPort(payload, netip.AddrPortFrom(Ipv6MulticastGroup, port)); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// JoinMulticastGroup subscribes conn to the IPv6 link-local multicast
// group the beacon announces to, so incoming beacons from peers are
// actually delivered. Grounded on the ipv6.PacketConn JoinGroup idiom
// (golang.org/x/net/ipv6), the ecosystem's standard way to join a
// multicast group on a specific interface.
func JoinMulticastGroup(conn *net.UDPConn, iface *net.Interface) error {
	pc := ipv6.NewPacketConn(conn)
	return pc.JoinGroup(iface, &net.UDPAddr{IP: net.ParseIP(Ipv6MulticastGroup.String())})
}
