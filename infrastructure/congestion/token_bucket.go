package congestion

import (
	"time"

	"p2ptransport/infrastructure/wire"
)

// TokenBucket metes out packets at a refill rate with a bounded burst,
// per spec §4.4: "a per-session packets_left token bucket refills at
// send_rate tokens/s with a ceiling of 4*refill + CRYPTO_MIN_QUEUE_LENGTH".
type TokenBucket struct {
	refillPerSecond float64
	tokens          float64
	lastRefill      time.Time
}

// NewTokenBucket creates a bucket starting full, refilling at
// refillPerSecond tokens/s.
func NewTokenBucket(refillPerSecond float64, now time.Time) *TokenBucket {
	b := &TokenBucket{refillPerSecond: refillPerSecond, lastRefill: now}
	b.tokens = b.ceiling()
	return b
}

func (b *TokenBucket) ceiling() float64 {
	return 4*b.refillPerSecond + float64(wire.CryptoMinQueueLength)
}

// SetRate updates the refill rate, as the congestion controller's
// send_rate changes tick to tick.
func (b *TokenBucket) SetRate(refillPerSecond float64) {
	b.refillPerSecond = refillPerSecond
}

// Refill tops up tokens for the elapsed time since the last refill,
// capped at the bucket's ceiling.
func (b *TokenBucket) Refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillPerSecond
	if ceil := b.ceiling(); b.tokens > ceil {
		b.tokens = ceil
	}
	b.lastRefill = now
}

// Take attempts to consume one token, refilling first. It reports
// whether a token was available (packets_left == 0 rejects the write,
// per spec §4.4).
func (b *TokenBucket) Take(now time.Time) bool {
	b.Refill(now)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Available returns the current (post-refill) token count, truncated.
func (b *TokenBucket) Available(now time.Time) int {
	b.Refill(now)
	return int(b.tokens)
}
