package session

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"p2ptransport/application"
	"p2ptransport/infrastructure/cookie"
	"p2ptransport/infrastructure/wire"
)

func TestManager_DispatchCookieRequest_NoSessionCreated(t *testing.T) {
	cookies := cookie.NewEngineWithSecret(sharedSecretForTest())
	aLTKPub, aLTKPriv, aDHTPub, aDHTPriv := genKeys(t)
	bLTKPub, bLTKPriv, bDHTPub, bDHTPriv := genKeys(t)

	a := NewManager(aLTKPub, aLTKPriv, aDHTPub, aDHTPriv, cookies, &nopCallbacks{}, nil)
	b := NewManager(bLTKPub, bLTKPriv, bDHTPub, bDHTPriv, cookies, &nopCallbacks{}, nil)

	now := time.Unix(1_700_000_000, 0)
	req, reqNonce, err := func() ([]byte, uint64, error) {
		return a.handshake.BuildCookieRequest(bDHTPub)
	}()
	if err != nil {
		t.Fatalf("BuildCookieRequest: %v", err)
	}
	_ = reqNonce

	resp, err := b.Dispatch(req, netip.MustParseAddrPort("10.0.0.1:1"), nil, now)
	if err != nil {
		t.Fatalf("Dispatch cookie request: %v", err)
	}
	if resp == nil {
		t.Fatalf("no cookie response produced")
	}
	if len(b.byPeer) != 0 {
		t.Fatalf("answering a cookie request must not create a session, got %d", len(b.byPeer))
	}
}

func TestManager_DispatchCryptoData_UnknownPeerRejected(t *testing.T) {
	cookies := cookie.NewEngineWithSecret(sharedSecretForTest())
	ltkPub, ltkPriv, dhtPub, dhtPriv := genKeys(t)
	m := NewManager(ltkPub, ltkPriv, dhtPub, dhtPriv, cookies, &nopCallbacks{}, nil)

	frame := []byte{wire.NetPacketCryptoData, 0, 0, 1, 2, 3}
	_, err := m.Dispatch(frame, netip.MustParseAddrPort("10.0.0.9:9"), nil, time.Now())
	if err != ErrUnknownPeer {
		t.Fatalf("err = %v, want ErrUnknownPeer", err)
	}
}

func TestManager_DispatchUnknownPacketID(t *testing.T) {
	cookies := cookie.NewEngineWithSecret(sharedSecretForTest())
	ltkPub, ltkPriv, dhtPub, dhtPriv := genKeys(t)
	m := NewManager(ltkPub, ltkPriv, dhtPub, dhtPriv, cookies, &nopCallbacks{}, nil)

	_, err := m.Dispatch([]byte{0xFF}, netip.MustParseAddrPort("10.0.0.9:9"), nil, time.Now())
	if err == nil {
		t.Fatalf("expected error for unknown packet id")
	}
}

func TestManager_Kill_RemovesSession(t *testing.T) {
	clientMgr, serverMgr, client, server, now := establishedPair(t)
	peer, known := client.PeerLTK()
	if !known {
		t.Fatalf("client has no peer LTK")
	}
	clientMgr.Kill(peer, now)
	if _, ok := clientMgr.SessionFor(peer); ok {
		t.Fatalf("session still present after Kill")
	}
	if server.State() == StateNoConnection {
		t.Fatalf("killing the client side must not affect the server's own state")
	}
	_ = serverMgr
}

func sharedSecretForTest() (secret application.SharedKey) {
	secret[0] = 0xAA
	return secret
}

func TestManager_Run_StopsOnContextCancel(t *testing.T) {
	cookies := cookie.NewEngineWithSecret(sharedSecretForTest())
	ltkPub, ltkPriv, dhtPub, dhtPriv := genKeys(t)
	m := NewManager(ltkPub, ltkPriv, dhtPub, dhtPriv, cookies, &nopCallbacks{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond, nil, nil, 0) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("Run returned nil error, want context.Canceled")
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}
}
