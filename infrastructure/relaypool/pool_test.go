package relaypool

import (
	"net/netip"
	"testing"
	"time"

	"p2ptransport/application"
)

func mustAddr(t *testing.T, s string) netip.AddrPort {
	t.Helper()
	addr, err := netip.ParseAddrPort(s)
	if err != nil {
		t.Fatalf("ParseAddrPort(%q): %v", s, err)
	}
	return addr
}

func TestPool_AddGetRemove(t *testing.T) {
	p := NewPool()
	addr := mustAddr(t, "203.0.113.1:33445")
	r := NewRelay(addr, application.DHTKey{1}, nil, false, time.Unix(0, 0))
	p.Add(r)

	got, ok := p.Get(addr)
	if !ok || got != r {
		t.Fatalf("Get after Add failed")
	}

	p.Remove(addr)
	if _, ok := p.Get(addr); ok {
		t.Fatalf("relay still present after Remove")
	}
}

func TestPool_TickMarksSleepingWhenUnreferenced(t *testing.T) {
	p := NewPool()
	addr := mustAddr(t, "203.0.113.2:33445")
	start := time.Unix(1000, 0)
	r := NewRelay(addr, application.DHTKey{2}, nil, false, start)
	p.Add(r)

	p.Tick(start.Add(30*time.Second), time.Minute)
	if r.Status() != StatusOnline {
		t.Fatalf("relay slept before lock timeout elapsed: %v", r.Status())
	}

	p.Tick(start.Add(90*time.Second), time.Minute)
	if r.Status() != StatusSleeping {
		t.Fatalf("relay did not sleep past lock timeout: %v", r.Status())
	}
}

func TestPool_TickDoesNotSleepReferencedRelay(t *testing.T) {
	p := NewPool()
	addr := mustAddr(t, "203.0.113.3:33445")
	start := time.Unix(2000, 0)
	r := NewRelay(addr, application.DHTKey{3}, nil, false, start)
	p.Add(r)
	r.addRef(start)

	p.Tick(start.Add(time.Hour), time.Minute)
	if r.Status() != StatusOnline {
		t.Fatalf("referenced relay slept: %v", r.Status())
	}
}

func TestPool_OnionRequestFailsWhenDisabled(t *testing.T) {
	p := NewPool()
	err := p.SendTCPOnionRequest(application.LongTermKey{9}, []byte("x"), time.Now())
	if err != ErrNoOnionRelay {
		t.Fatalf("err = %v, want ErrNoOnionRelay", err)
	}
}

func TestManager_ConnectionToLifecycle(t *testing.T) {
	p := NewPool()
	addr := mustAddr(t, "203.0.113.4:33445")
	r := NewRelay(addr, application.DHTKey{4}, nil, false, time.Unix(0, 0))
	p.Add(r)

	m := NewManager(p)
	peerDHT := application.DHTKey{5}
	conn := m.NewTCPConnectionTo(peerDHT, 42)
	if conn.PeerDHTKey() != peerDHT {
		t.Fatalf("wrong peer DHT key on new connection-to")
	}

	if err := m.AddTCPRelayConnection(peerDHT, addr, time.Unix(0, 0)); err != nil {
		t.Fatalf("AddTCPRelayConnection: %v", err)
	}

	online := m.TCPConnectionToOnlineTCPRelays(peerDHT)
	if len(online) != 1 || online[0] != addr {
		t.Fatalf("online relays = %v", online)
	}

	m.RemoveTCPRelayConnection(peerDHT, addr)
	if online := m.TCPConnectionToOnlineTCPRelays(peerDHT); len(online) != 0 {
		t.Fatalf("relay still listed after removal: %v", online)
	}
}

func TestConnectionTo_RejectsBeyondMaxFriendTCPConnections(t *testing.T) {
	p := NewPool()
	m := NewManager(p)
	peerDHT := application.DHTKey{6}
	m.NewTCPConnectionTo(peerDHT, 1)

	for i := 0; i < 6; i++ {
		addr := mustAddr(t, "203.0.113.10:"+portFor(i))
		p.Add(NewRelay(addr, application.DHTKey{byte(i)}, nil, false, time.Unix(0, 0)))
		if err := m.AddTCPRelayConnection(peerDHT, addr, time.Unix(0, 0)); err != nil {
			t.Fatalf("AddTCPRelayConnection[%d]: %v", i, err)
		}
	}

	overflowAddr := mustAddr(t, "203.0.113.10:40000")
	p.Add(NewRelay(overflowAddr, application.DHTKey{99}, nil, false, time.Unix(0, 0)))
	if err := m.AddTCPRelayConnection(peerDHT, overflowAddr, time.Unix(0, 0)); err != ErrTooManyRelays {
		t.Fatalf("err = %v, want ErrTooManyRelays", err)
	}
}

func portFor(i int) string {
	ports := []string{"33001", "33002", "33003", "33004", "33005", "33006"}
	return ports[i]
}
