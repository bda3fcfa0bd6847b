package congestion

import (
	"testing"
	"time"

	"p2ptransport/infrastructure/wire"
)

func TestController_SendRateNeverBelowFloor(t *testing.T) {
	c := NewController()
	now := time.Now()
	for i := 0; i < 5; i++ {
		c.Tick(now, 0, 0, 0, 0)
		now = now.Add(wire.PacketCounterAverageInterval)
	}
	if c.SendRate < wire.CryptoPacketMinRate {
		t.Fatalf("SendRate = %v, below floor %v", c.SendRate, wire.CryptoPacketMinRate)
	}
}

func TestController_BacksOffUnderQueuePressure(t *testing.T) {
	c := NewController()
	now := time.Now()

	// Build up send history so min_speed is well above zero.
	for i := 0; i < 12; i++ {
		c.Tick(now, 10, 100, 0, 0)
		now = now.Add(wire.PacketCounterAverageInterval)
	}
	rateBeforeBacklog := c.SendRate

	// A sudden deep queue with send_array_ratio > 2 and queueDepth above
	// the minimum threshold should trigger the backoff branch.
	c.Tick(now, wire.CryptoMinQueueLength+1000, 0, 0, 0)
	if c.SendRate >= rateBeforeBacklog {
		t.Fatalf("SendRate did not back off under queue pressure: before=%v after=%v", rateBeforeBacklog, c.SendRate)
	}
}

func TestController_NoteTCPUseSuppressesAdjustment(t *testing.T) {
	c := NewController()
	now := time.Now()
	c.Tick(now, 0, 10, 0, 0)
	frozen := c.SendRate

	c.NoteTCPUse(now)
	c.Tick(now.Add(100*time.Millisecond), 9999, 0, 0, 0)
	if c.SendRate != frozen {
		t.Fatalf("SendRate changed during TCP suppression window: %v -> %v", frozen, c.SendRate)
	}
}
