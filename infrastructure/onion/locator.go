// Package onion defines the narrow collaborator interfaces between a
// session manager and the onion/announce client (spec §1, §2): "in
// scope only to the degree that they cross the session boundary" — the
// onion client's own routing, announce packets, and path selection are
// out of scope entirely. Grounded on the single-trait collaborator
// pattern of application.Callbacks (spec §9 Design Note on
// callback-heavy dispatch), applied here to the session's two calls
// into the locator instead of the embedder's four calls into the
// session.
package onion

import "p2ptransport/application"

// Locator is the onion/announce client's side of the boundary: it finds
// a peer's current DHT key, and stops once a direct or TCP-relayed path
// makes the lookup unnecessary. No package in this module implements
// it, and session.Manager does not call it.
type Locator interface {
	// Locate begins (or refreshes) a lookup for peerLTK's current DHT
	// key. Results arrive asynchronously via ResultSink.
	Locate(peerLTK application.LongTermKey) error

	// StopLocating cancels an outstanding lookup for peerLTK, e.g. once
	// the session has connected by another means.
	StopLocating(peerLTK application.LongTermKey)
}

// ResultSink is invoked by the onion/announce client whenever a lookup
// resolves or the peer's DHT key changes. No package in this module
// implements it; session.Manager has no OnDHTKeyFound method.
type ResultSink interface {
	OnDHTKeyFound(peerLTK application.LongTermKey, dhtKey application.DHTKey)
}
