package transport

import (
	"net/netip"
	"testing"
	"time"
)

type fakeEgress struct {
	sent [][]byte
	err  error
}

func (f *fakeEgress) Send(frame []byte) error {
	f.sent = append(f.sent, frame)
	return f.err
}
func (f *fakeEgress) Close() error { return nil }

func TestPicker_UsesUDPWhenDirectConnected(t *testing.T) {
	udp4 := &fakeEgress{}
	udp6 := &fakeEgress{}
	tcp := &fakeEgress{}
	p := NewPicker(udp4, udp6, tcp)

	now := time.Now()
	p.NoteReceived(netip.MustParseAddrPort("8.8.8.8:33445"), now)
	p.SetDirectConnected(true)

	if err := p.Send([]byte("frame"), now, false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(udp4.sent) != 1 {
		t.Fatalf("expected 1 UDPv4 send, got %d", len(udp4.sent))
	}
	if len(tcp.sent) != 0 {
		t.Fatalf("expected no TCP sends, got %d", len(tcp.sent))
	}
}

func TestPicker_FallsBackToTCPWhenNoDirectPath(t *testing.T) {
	udp4 := &fakeEgress{}
	udp6 := &fakeEgress{}
	tcp := &fakeEgress{}
	p := NewPicker(udp4, udp6, tcp)

	if err := p.Send([]byte("frame"), time.Now(), false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(tcp.sent) != 1 {
		t.Fatalf("expected 1 TCP send, got %d", len(tcp.sent))
	}
}

func TestPicker_DirectPathExpiresAfterTimeout(t *testing.T) {
	udp4 := &fakeEgress{}
	udp6 := &fakeEgress{}
	tcp := &fakeEgress{}
	p := NewPicker(udp4, udp6, tcp)

	t0 := time.Now()
	p.NoteReceived(netip.MustParseAddrPort("8.8.8.8:33445"), t0)
	p.SetDirectConnected(true)

	later := t0.Add(9 * time.Second) // past UDP_DIRECT_TIMEOUT (8s)
	if err := p.Send([]byte("frame"), later, false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(tcp.sent) != 1 {
		t.Fatalf("expected failover to TCP once the direct path goes stale, got %d TCP sends", len(tcp.sent))
	}
}

func TestPicker_PrefersIPv6GlobalOverIPv4LAN(t *testing.T) {
	udp4 := &fakeEgress{}
	udp6 := &fakeEgress{}
	tcp := &fakeEgress{}
	p := NewPicker(udp4, udp6, tcp)

	now := time.Now()
	p.NoteReceived(netip.MustParseAddrPort("10.0.0.5:33445"), now) // LAN v4
	p.NoteReceived(netip.MustParseAddrPort("[2001:db8::1]:33445"), now)
	p.SetDirectConnected(true)

	if err := p.Send([]byte("frame"), now, false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(udp6.sent) != 1 || len(udp4.sent) != 0 {
		t.Fatalf("expected IPv6 global to win over IPv4 LAN: v4=%d v6=%d", len(udp4.sent), len(udp6.sent))
	}
}
