// Package cookie implements the cookie engine (spec §4.1): short-lived,
// symmetrically-encrypted authorization tokens binding a peer's
// long-term key, DHT key, and issue time. Grounded on the shape of
// infrastructure/cryptography/noise.CookieManager in the teacher
// repository (random process secret behind a sync.RWMutex, a
// now func() time.Time seam for testing, RotateSecret), adapted from a
// per-IP DoS cookie to the spec's identity-binding cookie.
package cookie

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"p2ptransport/application"
	"p2ptransport/infrastructure/crypto"
	"p2ptransport/infrastructure/wire"
)

const plaintextSize = 8 + wire.PublicKeySize + wire.DHKeySize // issue_time ‖ peer_LTK ‖ peer_DHT_key

// Engine issues and opens cookies under a single process-local symmetric
// secret.
type Engine struct {
	mu     sync.RWMutex
	secret application.SharedKey
	now    func() time.Time
}

// NewEngine creates an Engine with a fresh random secret.
func NewEngine() (*Engine, error) {
	var secret application.SharedKey
	if _, err := io.ReadFull(rand.Reader, secret[:]); err != nil {
		return nil, err
	}
	return &Engine{secret: secret, now: time.Now}, nil
}

// NewEngineWithSecret creates an Engine with an explicit secret, for
// deterministic tests.
func NewEngineWithSecret(secret application.SharedKey) *Engine {
	return &Engine{secret: secret, now: time.Now}
}

// RotateSecret replaces the process secret with a fresh random one. All
// cookies issued under the old secret stop opening immediately.
func (e *Engine) RotateSecret() error {
	var fresh application.SharedKey
	if _, err := io.ReadFull(rand.Reader, fresh[:]); err != nil {
		return err
	}
	e.mu.Lock()
	old := e.secret
	e.secret = fresh
	e.mu.Unlock()
	crypto.ZeroBytes(old[:])
	return nil
}

// Issue emits a cookie binding peerLTK and peerDHTKey to the current
// time. It fails only if the system random source cannot supply a
// nonce.
func (e *Engine) Issue(peerLTK application.LongTermKey, peerDHTKey application.DHTKey) ([]byte, error) {
	nonce, err := crypto.RandomNonce()
	if err != nil {
		return nil, err
	}

	var plaintext [plaintextSize]byte
	binary.BigEndian.PutUint64(plaintext[0:8], uint64(e.now().Unix()))
	copy(plaintext[8:8+wire.PublicKeySize], peerLTK[:])
	copy(plaintext[8+wire.PublicKeySize:], peerDHTKey[:])

	e.mu.RLock()
	secret := e.secret
	e.mu.RUnlock()

	sealed := crypto.SealWithSharedKey(secret, nonce, plaintext[:])

	out := make([]byte, wire.NonceSize+len(sealed))
	copy(out, nonce[:])
	copy(out[wire.NonceSize:], sealed)
	return out, nil
}

// Open validates and decodes a cookie. It fails if the MAC does not
// verify, if the embedded timestamp is older than CookieLifetime, or
// lies in the future.
func (e *Engine) Open(cookieBytes []byte) (peerLTK application.LongTermKey, peerDHTKey application.DHTKey, err error) {
	if len(cookieBytes) != wire.CookieSize {
		return application.LongTermKey{}, application.DHTKey{}, ErrInvalidCookie
	}

	var nonce [wire.NonceSize]byte
	copy(nonce[:], cookieBytes[:wire.NonceSize])

	e.mu.RLock()
	secret := e.secret
	e.mu.RUnlock()

	plaintext, openErr := crypto.OpenWithSharedKey(secret, nonce, cookieBytes[wire.NonceSize:])
	if openErr != nil || len(plaintext) != plaintextSize {
		return application.LongTermKey{}, application.DHTKey{}, ErrInvalidCookie
	}

	issueTime := time.Unix(int64(binary.BigEndian.Uint64(plaintext[0:8])), 0)
	now := e.now()
	if now.After(issueTime.Add(wire.CookieLifetime)) {
		return application.LongTermKey{}, application.DHTKey{}, ErrCookieExpired
	}
	if issueTime.After(now) {
		return application.LongTermKey{}, application.DHTKey{}, ErrCookieFromFuture
	}

	copy(peerLTK[:], plaintext[8:8+wire.PublicKeySize])
	copy(peerDHTKey[:], plaintext[8+wire.PublicKeySize:])
	return peerLTK, peerDHTKey, nil
}
