package session

import (
	"bytes"
	"net/netip"
	"sync"
	"testing"
	"time"

	"p2ptransport/application"
	"p2ptransport/infrastructure/cookie"
	"p2ptransport/infrastructure/crypto"
	"p2ptransport/infrastructure/transport"
)

// recordingEgress is an application.Egress that appends every sent
// frame to a slice, optionally relaying it straight into a peer's
// Manager to simulate a two-party exchange without real sockets.
type recordingEgress struct {
	mu     sync.Mutex
	frames [][]byte
	onSend func([]byte)
}

func (e *recordingEgress) Send(frame []byte) error {
	e.mu.Lock()
	cp := append([]byte(nil), frame...)
	e.frames = append(e.frames, cp)
	e.mu.Unlock()
	if e.onSend != nil {
		e.onSend(cp)
	}
	return nil
}

func (e *recordingEgress) Close() error { return nil }

func (e *recordingEgress) last() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.frames) == 0 {
		return nil
	}
	return e.frames[len(e.frames)-1]
}

type nopCallbacks struct {
	mu      sync.Mutex
	online  map[application.LongTermKey]bool
	data    [][]byte
}

func (c *nopCallbacks) OnStatus(peer application.LongTermKey, online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online == nil {
		c.online = make(map[application.LongTermKey]bool)
	}
	c.online[peer] = online
}
func (c *nopCallbacks) OnData(peer application.LongTermKey, packetID byte, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, append([]byte{packetID}, payload...))
}
func (c *nopCallbacks) OnLossy(peer application.LongTermKey, packetID byte, payload []byte)    {}
func (c *nopCallbacks) OnDHTKeyChanged(peer application.LongTermKey, newDHTKey application.DHTKey) {}

func (c *nopCallbacks) isOnline(peer application.LongTermKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online[peer]
}

func genKeys(t *testing.T) (application.LongTermKey, [32]byte, application.DHTKey, [32]byte) {
	t.Helper()
	ltkPub, ltkPriv, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	dhtPub, dhtPriv, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return application.LongTermKey(ltkPub), ltkPriv, application.DHTKey(dhtPub), dhtPriv
}

// establishedPair drives a full NewOutbound/NewInbound handshake over
// two Managers, returning both sessions once the handshake has been
// exchanged; both are then NOT_CONFIRMED, as no data frame has arrived.
func establishedPair(t *testing.T) (clientMgr, serverMgr *Manager, client, server *Session, now time.Time) {
	t.Helper()
	sharedCookies := cookie.NewEngineWithSecret(application.SharedKey{0xAA})

	clientLTKPub, clientLTKPriv, clientDHTPub, clientDHTPriv := genKeys(t)
	serverLTKPub, serverLTKPriv, serverDHTPub, serverDHTPriv := genKeys(t)

	clientCB := &nopCallbacks{}
	serverCB := &nopCallbacks{}

	clientMgr = NewManager(clientLTKPub, clientLTKPriv, clientDHTPub, clientDHTPriv, sharedCookies, clientCB, nil)
	serverMgr = NewManager(serverLTKPub, serverLTKPriv, serverDHTPub, serverDHTPriv, sharedCookies, serverCB, nil)

	clientAddr := netip.MustParseAddrPort("10.0.0.1:33445")
	serverAddr := netip.MustParseAddrPort("10.0.0.2:33445")

	var serverPicker, clientPicker *transport.Picker

	toServer := &recordingEgress{}
	toServer.onSend = func(frame []byte) {
		reply, err := serverMgr.Dispatch(frame, clientAddr, serverPicker, now)
		if err != nil {
			t.Fatalf("server dispatch: %v", err)
		}
		if reply != nil {
			if _, err := clientMgr.Dispatch(reply, serverAddr, clientPicker, now); err != nil {
				t.Fatalf("client dispatch reply: %v", err)
			}
		}
	}
	toClient := &recordingEgress{}
	toClient.onSend = func(frame []byte) {
		reply, err := clientMgr.Dispatch(frame, serverAddr, clientPicker, now)
		if err != nil {
			t.Fatalf("client dispatch: %v", err)
		}
		if reply != nil {
			if _, err := serverMgr.Dispatch(reply, clientAddr, serverPicker, now); err != nil {
				t.Fatalf("server dispatch reply: %v", err)
			}
		}
	}

	clientPicker = transport.NewPicker(toServer, toServer, toServer)
	clientPicker.SetDirectConnected(true)
	serverPicker = transport.NewPicker(toClient, toClient, toClient)
	serverPicker.SetDirectConnected(true)

	now = time.Unix(1_700_000_000, 0)

	clientSession, cookieReq, err := clientMgr.Connect(serverLTKPub, serverDHTPub, clientPicker, now)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	clientMgr.NoteAddr(serverLTKPub, serverAddr)

	resp, err := serverMgr.Dispatch(cookieReq, clientAddr, serverPicker, now)
	if err != nil {
		t.Fatalf("server dispatch cookie request: %v", err)
	}

	hsReq, err := clientSession.HandleCookieResponse(resp, now)
	if err != nil {
		t.Fatalf("HandleCookieResponse: %v", err)
	}

	hsReply, err := serverMgr.handleHandshake(hsReq, clientAddr, serverPicker, now)
	if err != nil {
		t.Fatalf("server handleHandshake: %v", err)
	}
	serverSession, ok := serverMgr.SessionForAddr(clientAddr)
	if !ok {
		t.Fatalf("server has no session for client addr after handshake")
	}

	if _, err := clientSession.HandleHandshake(hsReply, now); err != nil {
		t.Fatalf("client HandleHandshake: %v", err)
	}

	return clientMgr, serverMgr, clientSession, serverSession, now
}

func TestHandshake_EstablishesBothSides(t *testing.T) {
	_, _, client, server, _ := establishedPair(t)
	if client.State() != StateNotConfirmed && client.State() != StateEstablished {
		t.Fatalf("client state = %v", client.State())
	}
	if server.State() != StateNotConfirmed {
		t.Fatalf("server state = %v, want NOT_CONFIRMED before first data frame", server.State())
	}
}

func TestLosslessWrite_DeliversInOrder(t *testing.T) {
	_, _, client, server, now := establishedPair(t)

	payload := append([]byte{16}, []byte("hello")...) // 16 is the first ordinary application packet id
	if _, err := client.WriteLossless(payload, now); err != nil {
		t.Fatalf("WriteLossless: %v", err)
	}

	if server.State() != StateEstablished {
		t.Fatalf("server state after first data frame = %v", server.State())
	}

	cb := server.callbacks.(*nopCallbacks)
	cb.mu.Lock()
	got := cb.data
	cb.mu.Unlock()
	if len(got) != 1 || !bytes.Equal(got[0], payload) {
		t.Fatalf("server received %q, want exactly %q", got, payload)
	}
}

func TestWriteLossless_WrongStateRejected(t *testing.T) {
	_, _, client, _, now := establishedPair(t)
	client.mu.Lock()
	client.state = StateHandshakeSent
	client.mu.Unlock()

	if _, err := client.WriteLossless([]byte{200, 1}, now); err != ErrWrongState {
		t.Fatalf("err = %v, want ErrWrongState", err)
	}
}

func TestKill_ZeroesStateAndFiresCallback(t *testing.T) {
	_, _, client, _, now := establishedPair(t)
	client.mu.Lock()
	client.state = StateEstablished
	cb := client.callbacks.(*nopCallbacks)
	peer := client.peerLTK
	client.mu.Unlock()

	client.Kill(now)

	if client.State() != StateNoConnection {
		t.Fatalf("state after Kill = %v", client.State())
	}
	if cb.isOnline(peer) {
		t.Fatalf("OnStatus(online=true) still set after Kill")
	}
}
