package reliability

import (
	"testing"
	"time"
)

func TestSendBuffer_EnqueueAndClearUntil(t *testing.T) {
	b := NewSendBuffer()
	n0, err := b.Enqueue([]byte("a"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	n1, err := b.Enqueue([]byte("b"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if n0 != 0 || n1 != 1 {
		t.Fatalf("got packet numbers %d, %d, want 0, 1", n0, n1)
	}

	sentAt := time.Now()
	b.MarkSent(n0, sentAt)

	oldest, ok := b.ClearUntil(1)
	if !ok {
		t.Fatalf("ClearUntil did not report an RTT sample")
	}
	if !oldest.Equal(sentAt) {
		t.Fatalf("RTT sample = %v, want %v", oldest, sentAt)
	}
	if b.Start() != 1 {
		t.Fatalf("Start() = %d, want 1", b.Start())
	}
}

func TestSendBuffer_RejectsWhenFull(t *testing.T) {
	b := NewSendBuffer()
	for i := 0; i < RingSize; i++ {
		if _, err := b.Enqueue([]byte{byte(i)}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if _, err := b.Enqueue([]byte{0}); err != ErrBufferFull {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
}

func TestRecvBuffer_DrainContiguous(t *testing.T) {
	b := NewRecvBuffer()
	b.Insert(2, []byte("c"))
	b.Insert(0, []byte("a"))

	if out := b.DrainContiguous(); len(out) != 1 || string(out[0]) != "a" {
		t.Fatalf("expected only slot 0 to drain, got %v", out)
	}

	b.Insert(1, []byte("b"))
	out := b.DrainContiguous()
	if len(out) != 2 || string(out[0]) != "b" || string(out[1]) != "c" {
		t.Fatalf("expected [b c] to drain in order, got %v", out)
	}
	if b.Start() != 3 {
		t.Fatalf("Start() = %d, want 3", b.Start())
	}
}

func TestRecvBuffer_InsertIgnoresOccupiedAndAlreadyDelivered(t *testing.T) {
	b := NewRecvBuffer()
	b.Insert(0, []byte("a"))
	b.DrainContiguous()

	if b.Insert(0, []byte("replay")) {
		t.Fatalf("Insert accepted a packet number already delivered")
	}

	b.Insert(5, []byte("x"))
	if b.Insert(5, []byte("y")) {
		t.Fatalf("Insert accepted a second payload into an occupied slot")
	}
}

// TestRequestRoundTrip exercises spec §8 testable property 5 directly.
func TestRequestRoundTrip(t *testing.T) {
	start := uint32(100)
	missing := []uint32{101, 104, 106}

	encoded := EncodeRequest(missing, start)
	decoded := DecodeRequest(encoded, start)

	if len(decoded) != len(missing) {
		t.Fatalf("decoded %v, want %v", decoded, missing)
	}
	for i := range missing {
		if decoded[i] != missing[i] {
			t.Fatalf("decoded %v, want %v", decoded, missing)
		}
	}
}

func TestRequestRoundTrip_LongRunRequiresContinuationByte(t *testing.T) {
	start := uint32(0)
	missing := []uint32{400}

	encoded := EncodeRequest(missing, start)
	if len(encoded) < 2 {
		t.Fatalf("expected a continuation byte for a 400-slot run, got %v", encoded)
	}
	decoded := DecodeRequest(encoded, start)
	if len(decoded) != 1 || decoded[0] != 400 {
		t.Fatalf("decoded %v, want [400]", decoded)
	}
}

func TestApplyRequest_ClearsStaleMissingAndFreesAcked(t *testing.T) {
	b := NewSendBuffer()
	for i := 0; i < 3; i++ {
		b.Enqueue([]byte{byte(i)})
	}
	old := time.Now().Add(-time.Second)
	b.MarkSent(0, old)
	b.MarkSent(1, old)
	b.MarkSent(2, old)

	ApplyRequest(b, []uint32{1}, 100*time.Millisecond, time.Now())

	if _, stillSent := b.SentAt(1); stillSent {
		t.Fatalf("slot 1 should have been cleared for resend")
	}
	if _, stillSent := b.SentAt(0); stillSent {
		t.Fatalf("slot 0 should have been freed as acknowledged")
	}
	if _, ok := b.Payload(0); ok {
		t.Fatalf("slot 0 should have been freed, payload still present")
	}
}
