package relay

import (
	"bytes"
	"net"
	"testing"

	"p2ptransport/application"
	"p2ptransport/infrastructure/crypto"
	"p2ptransport/infrastructure/reliability"
)

func genLTK(t *testing.T) (application.LongTermKey, [32]byte) {
	t.Helper()
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return application.LongTermKey(pub), priv
}

func TestClientServerHandshake_RoundTrip(t *testing.T) {
	clientLTKPub, clientLTKPriv := genLTK(t)
	relayLTKPub, relayLTKPriv := genLTK(t)

	clientSessPub, clientSessPriv, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	serverSessPub, serverSessPriv, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var clientBaseNonce, serverBaseNonce reliability.Nonce
	clientBaseNonce[0] = 1
	serverBaseNonce[0] = 2

	type clientResult struct {
		framed *FramedConn
		err    error
	}
	resultCh := make(chan clientResult, 1)
	go func() {
		framed, err := ClientHandshake(clientConn, clientLTKPub, clientLTKPriv, relayLTKPub, clientSessPub, clientSessPriv, clientBaseNonce)
		resultCh <- clientResult{framed, err}
	}()

	serverFramed, gotClientLTK, err := ServerHandshake(serverConn, relayLTKPub, relayLTKPriv, serverSessPub, serverSessPriv, serverBaseNonce)
	if err != nil {
		t.Fatalf("ServerHandshake: %v", err)
	}
	if gotClientLTK != clientLTKPub {
		t.Fatalf("server saw wrong client LTK")
	}

	res := <-resultCh
	if res.err != nil {
		t.Fatalf("ClientHandshake: %v", res.err)
	}

	const msg = "hello relay"
	if err := res.framed.WriteFrame([]byte(msg)); err != nil {
		t.Fatalf("client WriteFrame: %v", err)
	}
	got, err := serverFramed.ReadFrame()
	if err != nil {
		t.Fatalf("server ReadFrame: %v", err)
	}
	if !bytes.Equal(got, []byte(msg)) {
		t.Fatalf("got %q, want %q", got, msg)
	}
}
