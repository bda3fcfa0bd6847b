package relay

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"p2ptransport/application"
	"p2ptransport/infrastructure/wire"
)

// Status is the relay client's connection lifecycle (spec §4.6):
// (none) → HTTP_CONNECTING → CONNECTING → UNCONFIRMED → CONFIRMED →
// (DISCONNECTED), with a parallel SOCKS5_CONNECTING →
// SOCKS5_UNCONFIRMED branch taken instead of CONNECTING/UNCONFIRMED
// when a SOCKS5 proxy is configured.
type Status int

const (
	StatusNone Status = iota
	StatusHTTPConnecting
	StatusSocks5Connecting
	StatusConnecting
	StatusSocks5Unconfirmed
	StatusUnconfirmed
	StatusConfirmed
	StatusSleeping
	StatusDisconnected
)

// slotStatus is a virtual connection's routing state within one relay's
// table (spec §4.6).
type slotStatus int

const (
	slotNone slotStatus = iota
	slotRegistered
	slotConnected
)

type virtualSlot struct {
	status       slotStatus
	connectionID byte
	peerLTK      application.LongTermKey
}

// Connection is one client-side relay socket: the framed transport, its
// virtual-connection table, ping/pong keepalive, and the two output
// queues (spec §4.6). Grounded on
// infrastructure/tunnel/sessionplane/server/tcp_registration/registration.go's
// connect-then-register lifecycle, generalized to a client-initiated,
// multi-peer table.
type Connection struct {
	mu     sync.Mutex
	framed *FramedConn
	status Status

	slots        [wire.NumClientConnections]virtualSlot
	byPeer       map[application.LongTermKey]int // index into slots
	byConnID     map[byte]int

	priorityQueue   [][]byte
	ordinaryPending []byte

	lastPingID   uint64
	lastPingSent time.Time
	lastPongRecv time.Time

	OnRouteResponse func(peerLTK application.LongTermKey, connectionID byte)
	OnData          func(connectionID byte, payload []byte)
	OnOOB           func(senderLTK application.LongTermKey, payload []byte)
	OnDisconnect    func(connectionID byte)
}

// NewConnection wraps an already-handshaken framed socket. The caller is
// expected to have driven ClientHandshake or ServerHandshake first and
// to call SetStatus(StatusConfirmed) once the relay has acknowledged.
func NewConnection(framed *FramedConn) *Connection {
	return &Connection{
		framed:   framed,
		status:   StatusConnecting,
		byPeer:   make(map[application.LongTermKey]int),
		byConnID: make(map[byte]int),
	}
}

func (c *Connection) SetStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// RequestRoute asks the relay to open a virtual connection to peerLTK,
// reserving a registered (not yet connected) slot locally.
func (c *Connection) RequestRoute(peerLTK application.LongTermKey) error {
	c.mu.Lock()
	if _, exists := c.byPeer[peerLTK]; exists {
		c.mu.Unlock()
		return nil
	}
	idx := c.freeSlotLocked()
	if idx < 0 {
		c.mu.Unlock()
		return ErrNoFreeSlot
	}
	c.slots[idx] = virtualSlot{status: slotRegistered, peerLTK: peerLTK}
	c.byPeer[peerLTK] = idx
	c.mu.Unlock()

	return c.sendPriority(EncodeRouteRequest(peerLTK))
}

func (c *Connection) freeSlotLocked() int {
	for i := range c.slots {
		if c.slots[i].status == slotNone {
			return i
		}
	}
	return -1
}

// handleRouteResponse binds a pending registered slot to the relay's
// granted connection id, promoting it to connected.
func (c *Connection) handleRouteResponse(connectionID byte, peerLTK application.LongTermKey) {
	c.mu.Lock()
	idx, ok := c.byPeer[peerLTK]
	if !ok || c.slots[idx].status != slotRegistered {
		c.mu.Unlock()
		return
	}
	c.slots[idx].status = slotConnected
	c.slots[idx].connectionID = connectionID
	c.byConnID[connectionID] = idx
	c.mu.Unlock()

	if c.OnRouteResponse != nil {
		c.OnRouteResponse(peerLTK, connectionID)
	}
}

// ConnectionIDFor returns the relay-assigned connection id for peerLTK,
// once routing has completed.
func (c *Connection) ConnectionIDFor(peerLTK application.LongTermKey) (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.byPeer[peerLTK]
	if !ok || c.slots[idx].status != slotConnected {
		return 0, false
	}
	return c.slots[idx].connectionID, true
}

// SendData routes payload to peerLTK's virtual connection as an ordinary
// (non-priority) write.
func (c *Connection) SendData(peerLTK application.LongTermKey, payload []byte) error {
	connectionID, ok := c.ConnectionIDFor(peerLTK)
	if !ok {
		return ErrNotConnected
	}
	return c.sendOrdinary(EncodeData(connectionID, payload))
}

// SendOOB sends an out-of-band packet to a peer with no established
// virtual connection (spec §4.6), as a priority write.
func (c *Connection) SendOOB(dstLTK application.LongTermKey, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendPriorityLocked(EncodeOOB(dstLTK, payload))
}

// Ping sends a keepalive if TCPPingFrequency has elapsed since the last
// one, and reports whether the relay has gone silent past
// TCPPingTimeout: no pong for longer than that, and no ping sent for
// longer than that either. A timeout is reported only after at least
// one pong has arrived; a relay that never answers is not reported.
func (c *Connection) Ping(now time.Time) (timedOut bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastPongRecv.IsZero() && now.Sub(c.lastPongRecv) > wire.TCPPingTimeout && now.Sub(c.lastPingSent) > wire.TCPPingTimeout {
		return true, nil
	}
	if !c.lastPingSent.IsZero() && now.Sub(c.lastPingSent) < wire.TCPPingFrequency {
		return false, nil
	}
	var idBytes [8]byte
	if _, err := rand.Read(idBytes[:]); err != nil {
		return false, err
	}
	c.lastPingID = binary.BigEndian.Uint64(idBytes[:])
	if c.lastPingID == 0 {
		c.lastPingID = 1
	}
	c.lastPingSent = now
	return false, c.sendPriorityLocked(EncodePing(c.lastPingID))
}

// HandleFrame dispatches one decrypted relay frame to the appropriate
// callback or internal state update.
func (c *Connection) HandleFrame(payload []byte, now time.Time) error {
	if len(payload) == 0 {
		return fmt.Errorf("relay: empty frame")
	}
	switch payload[0] {
	case PacketRouteResponse:
		connectionID, peerLTK, ok := DecodeRouteResponse(payload)
		if !ok {
			return fmt.Errorf("relay: malformed route response")
		}
		c.handleRouteResponse(connectionID, peerLTK)
	case PacketConnectNotify, PacketDisconnect:
		if len(payload) < 2 {
			return fmt.Errorf("relay: malformed connect/disconnect notice")
		}
		connectionID := payload[1]
		if payload[0] == PacketDisconnect {
			c.forgetConnection(connectionID)
			if c.OnDisconnect != nil {
				c.OnDisconnect(connectionID)
			}
		}
	case PacketPing:
		id, ok := DecodePingPong(payload)
		if !ok {
			return fmt.Errorf("relay: malformed ping")
		}
		return c.sendPriority(EncodePong(id))
	case PacketPong:
		c.mu.Lock()
		c.lastPongRecv = now
		c.mu.Unlock()
	case PacketOOBReceive:
		senderLTK, body, ok := DecodeOOB(payload)
		if !ok {
			return fmt.Errorf("relay: malformed OOB packet")
		}
		if c.OnOOB != nil {
			c.OnOOB(senderLTK, body)
		}
	case PacketData:
		connectionID, body, ok := DecodeData(payload)
		if !ok {
			return fmt.Errorf("relay: malformed data frame")
		}
		if c.OnData != nil {
			c.OnData(connectionID, body)
		}
	default:
		return fmt.Errorf("relay: unknown packet id 0x%02x", payload[0])
	}
	return nil
}

func (c *Connection) forgetConnection(connectionID byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.byConnID[connectionID]
	if !ok {
		return
	}
	peerLTK := c.slots[idx].peerLTK
	c.slots[idx] = virtualSlot{}
	delete(c.byConnID, connectionID)
	delete(c.byPeer, peerLTK)
}

// sendPriority attempts an inline write; on failure (including a
// partial write reported by the underlying framing, which always
// writes a whole frame or none) the payload joins the priority queue to
// retry on the next DrainQueues call.
func (c *Connection) sendPriority(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendPriorityLocked(payload)
}

func (c *Connection) sendPriorityLocked(payload []byte) error {
	if len(c.priorityQueue) > 0 {
		c.priorityQueue = append(c.priorityQueue, payload)
		return nil
	}
	if err := c.framed.WriteFrame(payload); err != nil {
		c.priorityQueue = append(c.priorityQueue, payload)
		return nil
	}
	return nil
}

// sendOrdinary is accepted only when both queues are empty (spec
// §4.6); a busy connection rejects the write so the caller can retry.
func (c *Connection) sendOrdinary(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.priorityQueue) > 0 || len(c.ordinaryPending) > 0 {
		return ErrBufferBusy
	}
	if err := c.framed.WriteFrame(payload); err != nil {
		c.ordinaryPending = payload
		return nil
	}
	return nil
}

// DrainQueues retries anything left over from a prior partial write:
// priority frames first, then the pending ordinary frame. Call once per
// tick.
func (c *Connection) DrainQueues() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.priorityQueue) > 0 {
		if err := c.framed.WriteFrame(c.priorityQueue[0]); err != nil {
			return nil // still stuck, try again next tick
		}
		c.priorityQueue = c.priorityQueue[1:]
	}
	if len(c.ordinaryPending) > 0 {
		if err := c.framed.WriteFrame(c.ordinaryPending); err != nil {
			return nil
		}
		c.ordinaryPending = nil
	}
	return nil
}
