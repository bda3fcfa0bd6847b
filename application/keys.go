// Package application defines the interfaces and value types the embedder
// uses to drive the session transport, and that the transport's
// infrastructure packages implement.
package application

// LongTermKey is a Curve25519 public key identifying a peer for the
// lifetime of the process. The paired private key never leaves the
// embedder's key store.
type LongTermKey [32]byte

// DHTKey is the peer-locator subsystem's long-term key. The session
// treats it as an opaque identifier distinct from LongTermKey.
type DHTKey [32]byte

// SessionKey is an ephemeral Curve25519 public key generated fresh per
// connection attempt.
type SessionKey [32]byte

// SharedKey is a symmetric key derived once per (our session secret, peer
// session public) pair via Curve25519 DH precompute.
type SharedKey [32]byte

func (k LongTermKey) Bytes() []byte { return k[:] }
func (k DHTKey) Bytes() []byte      { return k[:] }
func (k SessionKey) Bytes() []byte  { return k[:] }
func (k SharedKey) Bytes() []byte   { return k[:] }
