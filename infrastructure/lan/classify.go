// Package lan implements the LAN discovery beacon (spec §6): address
// classification and the periodic broadcast/multicast emission of one's
// DHT public key. Grounded on net/netip usage throughout the teacher
// repository's network-facing adapters (e.g.
// infrastructure/network/udp/adapters) for the idiom of working with
// netip.Addr/AddrPort rather than net.IP; the RFC-based classification
// table itself has no teacher analog and is transcribed directly from
// spec §6, cross-checked against original_source/toxcore/LAN_discovery.c.
package lan

import "net/netip"

var (
	cgnat      = netip.MustParsePrefix("100.64.0.0/10")
	class10    = netip.MustParsePrefix("10.0.0.0/8")
	class172   = netip.MustParsePrefix("172.16.0.0/12")
	class192   = netip.MustParsePrefix("192.168.0.0/16")
	linkLocal4 = netip.MustParsePrefix("169.254.0.0/16")
	linkLocal6 = netip.MustParsePrefix("fe80::/10")
)

// IsLAN classifies addr per spec §6's RFC-based table: RFC1918 private
// ranges, CGNAT (100.64.0.0/10), loopback, link-local (with the
// 169.254.0.0/16 "named" subnets .0.0 and .255.0 excluded, since those
// are reserved rather than usable link-local addresses), IPv4-mapped
// IPv6 whose embedded v4 is LAN, IPv6 link-local, and the IPv6
// link-local multicast address ff02::1.
func IsLAN(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}

	if addr.Is4In6() {
		return IsLAN(addr.Unmap())
	}

	if addr.IsLoopback() {
		return true
	}

	if addr.Is4() {
		if class10.Contains(addr) || class172.Contains(addr) || class192.Contains(addr) || cgnat.Contains(addr) {
			return true
		}
		if linkLocal4.Contains(addr) {
			as4 := addr.As4()
			if as4[2] == 0 || as4[2] == 255 {
				return false // 169.254.0.0/24 and 169.254.255.0/24 are reserved, not usable link-local
			}
			return true
		}
		return false
	}

	if addr.Is6() {
		if linkLocal6.Contains(addr) {
			return true
		}
		if addr == netip.MustParseAddr("ff02::1") {
			return true
		}
		return false
	}

	return false
}
