package onion

import (
	"testing"

	"p2ptransport/application"
)

type fakeLocator struct {
	located []application.LongTermKey
	stopped []application.LongTermKey
}

func (f *fakeLocator) Locate(peerLTK application.LongTermKey) error {
	f.located = append(f.located, peerLTK)
	return nil
}

func (f *fakeLocator) StopLocating(peerLTK application.LongTermKey) {
	f.stopped = append(f.stopped, peerLTK)
}

type fakeSink struct {
	found map[application.LongTermKey]application.DHTKey
}

func (f *fakeSink) OnDHTKeyFound(peerLTK application.LongTermKey, dhtKey application.DHTKey) {
	if f.found == nil {
		f.found = map[application.LongTermKey]application.DHTKey{}
	}
	f.found[peerLTK] = dhtKey
}

func TestLocator_LocateAndStop(t *testing.T) {
	var l Locator = &fakeLocator{}
	ltk := application.LongTermKey{1}

	if err := l.Locate(ltk); err != nil {
		t.Fatalf("Locate: %v", err)
	}
	l.StopLocating(ltk)

	impl := l.(*fakeLocator)
	if len(impl.located) != 1 || impl.located[0] != ltk {
		t.Fatalf("Locate not recorded: %v", impl.located)
	}
	if len(impl.stopped) != 1 || impl.stopped[0] != ltk {
		t.Fatalf("StopLocating not recorded: %v", impl.stopped)
	}
}

func TestResultSink_DeliversFoundKey(t *testing.T) {
	var s ResultSink = &fakeSink{}
	ltk := application.LongTermKey{2}
	dht := application.DHTKey{3}

	s.OnDHTKeyFound(ltk, dht)

	impl := s.(*fakeSink)
	if impl.found[ltk] != dht {
		t.Fatalf("OnDHTKeyFound did not record result")
	}
}
