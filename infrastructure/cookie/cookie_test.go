package cookie

import (
	"testing"
	"time"

	"p2ptransport/application"
	"p2ptransport/infrastructure/wire"
)

func newTestEngine(t *testing.T) (*Engine, *time.Time) {
	t.Helper()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEngineWithSecret(application.SharedKey{1, 2, 3, 4})
	e.now = func() time.Time { return clock }
	return e, &clock
}

func TestIssueOpen_RoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	ltk := application.LongTermKey{7}
	dht := application.DHTKey{9}

	c, err := e.Issue(ltk, dht)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(c) != wire.CookieSize {
		t.Fatalf("cookie size = %d, want %d", len(c), wire.CookieSize)
	}

	gotLTK, gotDHT, err := e.Open(c)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if gotLTK != ltk || gotDHT != dht {
		t.Fatalf("Open returned (%x, %x), want (%x, %x)", gotLTK, gotDHT, ltk, dht)
	}
}

// TestReplayWindow exercises spec §8 testable property 1 at its upper
// edge: a cookie still opens exactly CookieLifetime after issuance and
// is rejected as expired just past it.
func TestReplayWindow(t *testing.T) {
	e, clock := newTestEngine(t)
	c, err := e.Issue(application.LongTermKey{1}, application.DHTKey{2})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	*clock = clock.Add(wire.CookieLifetime)
	if _, _, err := e.Open(c); err != nil {
		t.Fatalf("cookie should still be valid at exactly the lifetime boundary: %v", err)
	}

	*clock = clock.Add(time.Nanosecond)
	if _, _, err := e.Open(c); err != ErrCookieExpired {
		t.Fatalf("expected ErrCookieExpired just past the boundary, got %v", err)
	}
}

func TestOpen_RejectsWrongSecret(t *testing.T) {
	e, _ := newTestEngine(t)
	c, _ := e.Issue(application.LongTermKey{1}, application.DHTKey{2})

	other := NewEngineWithSecret(application.SharedKey{9, 9, 9})
	if _, _, err := other.Open(c); err != ErrInvalidCookie {
		t.Fatalf("expected ErrInvalidCookie under a different secret, got %v", err)
	}
}

func TestOpen_RejectsWrongSize(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, _, err := e.Open([]byte("too short")); err != ErrInvalidCookie {
		t.Fatalf("expected ErrInvalidCookie for malformed input, got %v", err)
	}
}

func TestRotateSecret_InvalidatesOldCookies(t *testing.T) {
	e, _ := newTestEngine(t)
	c, _ := e.Issue(application.LongTermKey{1}, application.DHTKey{2})

	if err := e.RotateSecret(); err != nil {
		t.Fatalf("RotateSecret: %v", err)
	}
	if _, _, err := e.Open(c); err != ErrInvalidCookie {
		t.Fatalf("expected ErrInvalidCookie after rotation, got %v", err)
	}
}
