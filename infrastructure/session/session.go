package session

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"p2ptransport/application"
	"p2ptransport/infrastructure/congestion"
	"p2ptransport/infrastructure/cookie"
	"p2ptransport/infrastructure/crypto"
	"p2ptransport/infrastructure/handshake"
	"p2ptransport/infrastructure/reliability"
	"p2ptransport/infrastructure/transport"
	"p2ptransport/infrastructure/wire"
)

// Session is one peer's cryptographic session: cookie/handshake state,
// the sliding-window reliable layer, congestion control, and the
// transport picker, all behind one per-session mutex (spec §5: "one
// per-session mutex protects the direct-path fields, nonce counters,
// and send-buffer tail from concurrent writers").
type Session struct {
	mu sync.Mutex

	ourLTKPub  application.LongTermKey
	ourLTKPriv [32]byte

	peerLTK       application.LongTermKey
	peerLTKKnown  bool
	peerDHTKey    application.DHTKey

	state State

	handshake *handshake.Engine
	picker    *transport.Picker

	sessionPub  application.SessionKey
	sessionPriv [32]byte
	sharedKey   application.SharedKey

	sendNonce  reliability.Nonce
	recvWindow *reliability.NonceWindow
	seqWindow  *reliability.SequenceWindow

	sendBuf *reliability.SendBuffer
	recvBuf *reliability.RecvBuffer

	cong         *congestion.Controller
	dataTokens   *congestion.TokenBucket
	resendTokens *congestion.TokenBucket
	rtt          time.Duration
	usingTCP     bool

	maxSpeedReached bool

	pendingRequestNonce uint64
	pendingCookie       []byte // the cookie the peer issued us, to present in our handshake
	attempt             int
	attemptDeadline     time.Time
	lastTickCounters    tickCounters

	callbacks application.Callbacks
}

type tickCounters struct {
	lastAverage  time.Time
	packetsSent  int
	packetsResent int
}

// NewOutbound creates a session for an outbound connect(peerLTK) attempt
// and immediately builds its first cookie request (spec §3: "created on
// either an outbound connect(LTK) or on an inbound handshake").
func NewOutbound(
	ourLTKPub application.LongTermKey, ourLTKPriv [32]byte,
	ourDHTPub application.DHTKey, ourDHTPriv [32]byte,
	peerLTK application.LongTermKey, peerDHTKey application.DHTKey,
	cookies *cookie.Engine, picker *transport.Picker, callbacks application.Callbacks,
	now time.Time,
) (*Session, []byte, error) {
	s := newSession(ourLTKPub, ourLTKPriv, ourDHTPub, ourDHTPriv, cookies, picker, callbacks, now)
	s.peerLTK = peerLTK
	s.peerLTKKnown = true
	s.peerDHTKey = peerDHTKey

	req, requestNonce, err := s.handshake.BuildCookieRequest(peerDHTKey)
	if err != nil {
		return nil, nil, err
	}
	s.pendingRequestNonce = requestNonce
	s.state = StateCookieRequesting
	s.attempt = 1
	s.attemptDeadline = now.Add(wire.CryptoSendPacketInterval)
	return s, req, nil
}

// NewInbound creates a session reacting to an unsolicited handshake
// (the responder side of spec §3's alternate arrow into NOT_CONFIRMED).
// The caller still owns dispatching the handshake bytes into
// HandleHandshake once the session exists.
func NewInbound(
	ourLTKPub application.LongTermKey, ourLTKPriv [32]byte,
	ourDHTPub application.DHTKey, ourDHTPriv [32]byte,
	cookies *cookie.Engine, picker *transport.Picker, callbacks application.Callbacks,
	now time.Time,
) *Session {
	return newSession(ourLTKPub, ourLTKPriv, ourDHTPub, ourDHTPriv, cookies, picker, callbacks, now)
}

func newSession(
	ourLTKPub application.LongTermKey, ourLTKPriv [32]byte,
	ourDHTPub application.DHTKey, ourDHTPriv [32]byte,
	cookies *cookie.Engine, picker *transport.Picker, callbacks application.Callbacks,
	now time.Time,
) *Session {
	return &Session{
		ourLTKPub: ourLTKPub,
		ourLTKPriv: ourLTKPriv,
		state:      StateNoConnection,
		handshake:  handshake.NewEngine(ourLTKPub, ourLTKPriv, ourDHTPub, ourDHTPriv, cookies),
		picker:     picker,
		sendBuf:    reliability.NewSendBuffer(),
		recvBuf:    reliability.NewRecvBuffer(),
		cong:       congestion.NewController(),
		dataTokens: congestion.NewTokenBucket(wire.CryptoPacketMinRate, now),
		resendTokens: congestion.NewTokenBucket(wire.CryptoPacketMinRate, now),
		callbacks:  callbacks,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MaxSpeedReached reports whether the last lossless write was rejected
// or queued-but-unsent because the send buffer or token bucket was
// exhausted (spec §7: "Capacity" errors set this flag).
func (s *Session) MaxSpeedReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSpeedReached
}

// PeerLTK returns the peer's long-term key, if known yet.
func (s *Session) PeerLTK() (application.LongTermKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerLTK, s.peerLTKKnown
}

// HandleCookieResponse advances a COOKIE_REQUESTING session to
// HANDSHAKE_SENT: verifies the echoed request nonce, extracts the
// issued cookie, and builds the crypto handshake packet to send.
func (s *Session) HandleCookieResponse(data []byte, now time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCookieRequesting {
		return nil, ErrWrongState
	}

	cookieBytes, err := s.handshake.ParseCookieResponse(data, s.peerDHTKey, s.pendingRequestNonce)
	if err != nil {
		return nil, err
	}
	s.pendingCookie = cookieBytes

	sessionPub, sessionPriv, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	s.sessionPub, s.sessionPriv = sessionPub, sessionPriv

	pkt, sessionNonce, err := s.handshake.BuildHandshake(s.peerLTK, s.peerDHTKey, s.pendingCookie, s.sessionPub)
	if err != nil {
		return nil, err
	}
	s.sendNonce = reliability.Nonce(sessionNonce)

	s.state = StateHandshakeSent
	s.attempt = 1
	s.attemptDeadline = now.Add(wire.CryptoSendPacketInterval)
	return pkt, nil
}

// HandleHandshake verifies an inbound crypto handshake packet and
// advances the session toward NOT_CONFIRMED (spec §4.2's transition
// table). If the session had no peer LTK yet (inbound connection) it
// adopts the verified identity. If this session already has a peer DHT
// key and the handshake names a different one, the session is killed
// and the embedder is notified via OnDHTKeyChanged — the caller is
// expected to reinitiate, per spec.
//
// Returns the reply handshake bytes to send, if one is needed (the
// responder path, when no handshake has been sent yet).
func (s *Session) HandleHandshake(data []byte, now time.Time) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Every state is a valid entry point: COOKIE_REQUESTING,
	// HANDSHAKE_SENT and NOT_CONFIRMED per spec §4.2's transition
	// table, NO_CONNECTION for an unsolicited inbound handshake, and
	// ESTABLISHED for a legitimate re-handshake after a peer restart.
	var expected *application.LongTermKey
	if s.peerLTKKnown {
		expected = &s.peerLTK
	}

	verified, err := s.handshake.VerifyHandshake(data, expected)
	if err != nil {
		return nil, err
	}

	if s.peerLTKKnown && s.peerDHTKey != (application.DHTKey{}) && s.peerDHTKey != verified.PeerDHTKey {
		peer := s.peerLTK
		newDHT := verified.PeerDHTKey
		s.killLocked(now)
		if s.callbacks != nil {
			s.callbacks.OnDHTKeyChanged(peer, newDHT)
		}
		return nil, fmt.Errorf("session: peer DHT key changed")
	}

	needsReply := s.state != StateHandshakeSent && s.state != StateNotConfirmed
	s.peerLTK = verified.PeerLTK
	s.peerLTKKnown = true
	s.peerDHTKey = verified.PeerDHTKey

	s.sharedKey = crypto.Precompute(verified.SessionPub, s.sessionPriv)
	s.recvWindow = reliability.NewNonceWindow(reliability.Nonce(verified.SessionNonce))
	s.seqWindow = reliability.NewSequenceWindow(0, 2*wire.DataNumThreshold)

	var reply []byte
	if needsReply {
		if s.sessionPub == (application.SessionKey{}) {
			sessionPub, sessionPriv, genErr := crypto.GenerateKeyPair()
			if genErr != nil {
				return nil, genErr
			}
			s.sessionPub, s.sessionPriv = sessionPub, sessionPriv
			s.sharedKey = crypto.Precompute(verified.SessionPub, s.sessionPriv)
		}
		replyBytes, sessionNonce, buildErr := s.handshake.BuildHandshake(s.peerLTK, s.peerDHTKey, verified.FreshCookie, s.sessionPub)
		if buildErr != nil {
			return nil, buildErr
		}
		s.sendNonce = reliability.Nonce(sessionNonce)
		reply = replyBytes
	}

	s.state = StateNotConfirmed
	return reply, nil
}

// HandleDataFrame decrypts and processes one inbound CRYPTO_DATA
// payload (the 16-bit nonce prefix, followed by the AEAD ciphertext).
func (s *Session) HandleDataFrame(low16 uint16, ciphertext []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNotConfirmed && s.state != StateEstablished {
		return ErrWrongState
	}
	if s.recvWindow == nil {
		return ErrWrongState
	}

	nonce := s.recvWindow.Reconstruct(low16)
	plaintext, err := crypto.OpenWithSharedKey(s.sharedKey, [24]byte(nonce), ciphertext)
	if err != nil {
		return err
	}
	s.recvWindow.Advance(low16)

	frame, ok := reliability.UnmarshalFrame(plaintext)
	if !ok || len(frame.Payload) == 0 {
		return fmt.Errorf("session: malformed data frame")
	}

	if s.seqWindow != nil && !s.seqWindow.Accepts(frame.PacketNumber) {
		return nil // outside acceptance window, silently dropped per spec §7
	}
	if s.seqWindow != nil {
		s.seqWindow.Advance(frame.PacketNumber)
	}

	if oldestSent, ok := s.sendBuf.ClearUntil(frame.BufferStart); ok {
		if sample := now.Sub(oldestSent); s.rtt == 0 || sample < s.rtt {
			s.rtt = sample
		}
	}

	if s.state == StateNotConfirmed {
		s.state = StateEstablished
		if s.callbacks != nil && s.peerLTKKnown {
			s.callbacks.OnStatus(s.peerLTK, true)
		}
	}

	packetID := frame.Payload[0]
	switch {
	case packetID == wire.PacketIDPadding:
		return nil
	case packetID == wire.PacketIDKill:
		s.killLocked(now)
		return nil
	case packetID == wire.PacketIDRequest:
		threshold := s.requestThresholdLocked()
		missing := reliability.DecodeRequest(frame.Payload[1:], s.sendBuf.Start())
		reliability.ApplyRequest(s.sendBuf, missing, threshold, now)
		return nil
	case packetID >= wire.LossyIDLow:
		if s.callbacks != nil && s.peerLTKKnown {
			s.callbacks.OnLossy(s.peerLTK, packetID, frame.Payload[1:])
		}
		return nil
	default:
		if !s.recvBuf.Insert(frame.PacketNumber, frame.Payload) {
			return nil
		}
		for _, payload := range s.recvBuf.DrainContiguous() {
			if s.callbacks != nil && s.peerLTKKnown {
				s.callbacks.OnData(s.peerLTK, payload[0], payload[1:])
			}
		}
		return nil
	}
}

// requestThresholdLocked is the resend-eligibility threshold of spec
// §4.3: the measured RTT on a UDP path, or a fixed 500ms on TCP.
func (s *Session) requestThresholdLocked() time.Duration {
	if s.usingTCP {
		return 500 * time.Millisecond
	}
	if s.rtt > 0 {
		return s.rtt
	}
	return wire.CryptoSendPacketInterval
}

// WriteLossless enqueues payload (whose first byte must already be a
// lossless packet-id, 16..191) and transmits it immediately if the
// congestion controller's token bucket allows. Returns the packet
// number on success.
func (s *Session) WriteLossless(payload []byte, now time.Time) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEstablished {
		return 0, ErrWrongState
	}

	n, err := s.sendBuf.Enqueue(payload)
	if err != nil {
		s.maxSpeedReached = true
		return 0, ErrMaxSpeedReached
	}

	if !s.dataTokens.Take(now) {
		s.maxSpeedReached = true
		return n, ErrMaxSpeedReached // queued; a later tick or REQUEST round trip retries it
	}

	if sendErr := s.transmitLocked(n, now); sendErr != nil {
		s.maxSpeedReached = true
		return n, ErrMaxSpeedReached
	}
	s.maxSpeedReached = false
	return n, nil
}

// WriteLossy transmits payload (first byte a lossy packet-id, 192..254)
// immediately, outside the ring buffer: lossy frames are never
// retransmitted (spec §4.3: "do not occupy a slot").
func (s *Session) WriteLossy(payload []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEstablished {
		return ErrWrongState
	}

	frame := reliability.Frame{
		BufferStart:  s.recvBuf.Start(),
		PacketNumber: s.sendBuf.End(),
		Payload:      payload,
	}
	return s.sendFrameLocked(frame, now)
}

func (s *Session) transmitLocked(packetNumber uint32, now time.Time) error {
	payload, ok := s.sendBuf.Payload(packetNumber)
	if !ok {
		return fmt.Errorf("session: packet %d not queued", packetNumber)
	}
	frame := reliability.Frame{
		BufferStart:  s.recvBuf.Start(),
		PacketNumber: packetNumber,
		Payload:      payload,
	}
	if err := s.sendFrameLocked(frame, now); err != nil {
		return err
	}
	s.sendBuf.MarkSent(packetNumber, now)
	s.lastTickCounters.packetsSent++
	return nil
}

func (s *Session) sendFrameLocked(frame reliability.Frame, now time.Time) error {
	ciphertext := crypto.SealWithSharedKey(s.sharedKey, [24]byte(s.sendNonce), frame.Marshal())
	out := make([]byte, 1+2+len(ciphertext))
	out[0] = wire.NetPacketCryptoData
	binary.BigEndian.PutUint16(out[1:3], s.sendNonce.Low16())
	copy(out[3:], ciphertext)
	s.sendNonce.Increment()

	if s.picker == nil {
		return nil
	}
	// The picker doesn't report which path it actually used for this
	// send; DirectConnected() is the session's own belief and is the
	// same signal spec §4.4's TCP-suppression window keys off.
	wasDirect := s.picker.DirectConnected()
	err := s.picker.Send(out, now, false)
	if !wasDirect {
		s.usingTCP = true
		s.cong.NoteTCPUse(now)
	} else {
		s.usingTCP = false
	}
	return err
}

// SendRequest builds and transmits a REQUEST packet describing the
// receive buffer's current gaps.
func (s *Session) SendRequest(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEstablished {
		return ErrWrongState
	}
	missing := s.recvBuf.Missing()
	payload := append([]byte{wire.PacketIDRequest}, reliability.EncodeRequest(missing, s.recvBuf.Start())...)
	frame := reliability.Frame{
		BufferStart:  s.recvBuf.Start(),
		PacketNumber: s.sendBuf.End(),
		Payload:      payload,
	}
	return s.sendFrameLocked(frame, now)
}

// Tick runs this session's periodic bookkeeping: congestion-controller
// sampling, token-bucket rate updates, and cookie/handshake retry
// timeouts. It returns a non-nil packet to resend when a retry is due.
func (s *Session) Tick(now time.Time) (retry []byte, killed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCookieRequesting, StateHandshakeSent:
		if now.Before(s.attemptDeadline) {
			return nil, false, nil
		}
		if s.attempt >= wire.MaxNumSendPacketTries {
			s.killLocked(now)
			return nil, true, ErrHandshakeTimeout
		}
		s.attempt++
		s.attemptDeadline = now.Add(wire.CryptoSendPacketInterval)
		if s.state == StateCookieRequesting {
			req, _, buildErr := s.handshake.BuildCookieRequest(s.peerDHTKey)
			return req, false, buildErr
		}
		pkt, sessionNonce, buildErr := s.handshake.BuildHandshake(s.peerLTK, s.peerDHTKey, s.pendingCookie, s.sessionPub)
		if buildErr == nil {
			s.sendNonce = reliability.Nonce(sessionNonce)
		}
		return pkt, false, buildErr
	}

	if now.Sub(s.lastTickCounters.lastAverage) < wire.PacketCounterAverageInterval {
		return nil, false, nil
	}
	s.lastTickCounters.lastAverage = now

	queueDepth := int(s.sendBuf.End() - s.sendBuf.Start())
	s.cong.Tick(now, queueDepth, s.lastTickCounters.packetsSent, s.lastTickCounters.packetsResent, s.rtt)
	s.lastTickCounters.packetsSent = 0
	s.lastTickCounters.packetsResent = 0

	s.dataTokens.SetRate(s.cong.SendRate)
	s.resendTokens.SetRate(s.cong.SendRateRequested)
	s.resendDueLocked(now)
	return nil, false, nil
}

// resendDueLocked retransmits every queued-but-unsent slot (either
// never sent because the data token bucket was empty, or unmarked by
// an inbound REQUEST) at the separate, usually higher, resend rate
// (spec §4.4: "a separate bucket at send_rate_requested governs
// retransmissions").
func (s *Session) resendDueLocked(now time.Time) {
	if s.state != StateEstablished {
		return
	}
	for n := s.sendBuf.Start(); n < s.sendBuf.End(); n++ {
		if _, occupied := s.sendBuf.Payload(n); !occupied {
			continue // freed: the peer already has this slot
		}
		if _, sent := s.sendBuf.SentAt(n); sent {
			continue // already in flight
		}
		if !s.resendTokens.Take(now) {
			return
		}
		if err := s.transmitLocked(n, now); err == nil {
			s.lastTickCounters.packetsResent++
		}
	}
}

// Kill tears the session down immediately (spec §3 "Lifecycle"): both
// buffers are drained, nonce/session state is zeroed, and the status
// callback fires if the session was established.
func (s *Session) Kill(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked(now)
}

func (s *Session) killLocked(now time.Time) {
	wasEstablished := s.state == StateEstablished
	s.sendBuf.Drain()
	s.recvBuf.Drain()
	crypto.ZeroBytes(s.sessionPriv[:])
	crypto.ZeroBytes(s.sharedKey[:])
	s.sendNonce = reliability.Nonce{}
	if s.recvWindow != nil {
		s.recvWindow.Zeroize()
	}
	s.state = StateNoConnection
	if wasEstablished && s.callbacks != nil && s.peerLTKKnown {
		s.callbacks.OnStatus(s.peerLTK, false)
	}
}
