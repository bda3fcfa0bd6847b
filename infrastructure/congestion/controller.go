package congestion

import (
	"time"

	"p2ptransport/infrastructure/wire"
)

const (
	averageIntervalMillis = int64(wire.PacketCounterAverageInterval / time.Millisecond) // 50
	queueRingSize         = wire.CongestionQueueArraySize                              // 12
	sentRingSize          = wire.CongestionLastSentArraySize                           // 24
)

// Controller estimates link throughput from queue-depth history and
// resend ratios and meters outbound dispatch at a time-varying rate
// (spec §4.4).
type Controller struct {
	queueDepth  *sampleRing
	sent        *sampleRing
	resent      *sampleRing
	lastEvent   time.Time
	usedTCPAt   time.Time

	SendRate          float64
	SendRateRequested float64
}

// NewController creates a controller with send_rate at its floor until
// the first Tick produces a real estimate.
func NewController() *Controller {
	return &Controller{
		queueDepth:        newSampleRing(queueRingSize),
		sent:              newSampleRing(sentRingSize),
		resent:            newSampleRing(sentRingSize),
		SendRate:          wire.CryptoPacketMinRate,
		SendRateRequested: wire.CryptoPacketMinRate,
	}
}

// NoteTCPUse records that the session used its TCP path at now, so the
// next Tick can suppress rate adjustment per spec §4.4's "TCP→UDP
// switch suppression".
func (c *Controller) NoteTCPUse(now time.Time) {
	c.usedTCPAt = now
}

// Tick runs one PACKET_COUNTER_AVERAGE_INTERVAL's worth of bookkeeping:
// queueDepth and the packets sent/resent since the last tick are pushed
// into their rings, and send_rate / send_rate_requested are
// recalculated per spec §4.4's formulas, unless the TCP suppression
// window is active.
func (c *Controller) Tick(now time.Time, queueDepth int, packetsSent, packetsResent int, rtt time.Duration) {
	c.queueDepth.push(int64(queueDepth))
	c.sent.push(int64(packetsSent))
	c.resent.push(int64(packetsResent))

	if !c.usedTCPAt.IsZero() && now.Sub(c.usedTCPAt) < wire.CongestionEventTimeout {
		return
	}

	deltaQueue := c.queueDepth.at(0) - c.queueDepth.at(queueRingSize-1)

	rttOffset := int(rtt / wire.PacketCounterAverageInterval)
	if rttOffset < 0 {
		rttOffset = 0
	}
	if rttOffset > sentRingSize-queueRingSize {
		rttOffset = sentRingSize - queueRingSize
	}

	var totalSent, totalResent int64
	for i := rttOffset; i < rttOffset+queueRingSize; i++ {
		totalSent += c.sent.at(i)
		totalResent += c.resent.at(i)
	}

	if deltaQueue > 0 {
		totalSent -= deltaQueue
		if totalSent < 0 {
			totalSent = 0
		}
	} else if -deltaQueue < totalResent {
		totalResent = -deltaQueue
	}

	denom := float64(queueRingSize * averageIntervalMillis)
	minSpeed := 1000 * float64(totalSent) / denom
	minSpeedRequest := 1000 * float64(totalSent+totalResent) / denom

	var sendArrayRatio float64
	if minSpeed > 0 {
		sendArrayRatio = float64(queueDepth) / minSpeed
	}

	switch {
	case sendArrayRatio > 2.0 && queueDepth > wire.CryptoMinQueueLength:
		c.SendRate = minSpeed * (2.0 / sendArrayRatio)
		c.lastEvent = now
	case c.lastEvent.IsZero() || now.Sub(c.lastEvent) > wire.CongestionEventTimeout:
		c.SendRate = minSpeed * 1.2
	default:
		c.SendRate = minSpeed * 0.9
	}

	if c.SendRate < wire.CryptoPacketMinRate {
		c.SendRate = wire.CryptoPacketMinRate
	}

	requested := minSpeedRequest * 1.2
	if c.SendRate > requested {
		requested = c.SendRate
	}
	c.SendRateRequested = requested
}
