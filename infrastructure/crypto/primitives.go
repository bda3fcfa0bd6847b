// Package crypto is the cryptographic primitives facade: key generation,
// Curve25519 DH precompute, XSalsa20-Poly1305 authenticated encryption,
// and SHA-512, used by every other infrastructure package. Grounded on
// the shape of infrastructure/cryptography/primitives.KeyDeriver in the
// teacher repository, adapted from ChaCha20-Poly1305/HKDF to the NaCl
// box/secretbox primitives the spec names explicitly.
package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"p2ptransport/application"
)

// GenerateKeyPair creates a fresh Curve25519 key pair. Used both for
// long-term identity keys (by the embedder, once) and for per-connection
// session keys (by the handshake engine, once per attempt).
func GenerateKeyPair() (public application.SessionKey, private [32]byte, err error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return application.SessionKey{}, [32]byte{}, err
	}
	return application.SessionKey(*pub), *priv, nil
}

// Precompute derives the shared symmetric key for a (our private, their
// public) pair. This is the spec's "precomputed shared key": computed
// once per session, reused for every frame.
func Precompute(theirPublic application.SessionKey, ourPrivate [32]byte) application.SharedKey {
	var shared [32]byte
	box.Precompute(&shared, (*[32]byte)(&theirPublic), &ourPrivate)
	return application.SharedKey(shared)
}

// SealWithSharedKey authenticates and encrypts plaintext under a
// precomputed shared key and an explicit 24-byte nonce chosen by the
// caller (a per-session counter for data frames, RandomNonce output for
// cookies).
func SealWithSharedKey(shared application.SharedKey, nonce [24]byte, plaintext []byte) []byte {
	return secretbox.Seal(nil, plaintext, &nonce, (*[32]byte)(&shared))
}

// OpenWithSharedKey authenticates and decrypts ciphertext produced by
// SealWithSharedKey. Returns ErrAuthFailed if the MAC does not verify.
func OpenWithSharedKey(shared application.SharedKey, nonce [24]byte, ciphertext []byte) ([]byte, error) {
	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, (*[32]byte)(&shared))
	if !ok {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// RandomNonce fills a fresh 24-byte nonce from the system CSPRNG, used
// anywhere the spec calls for a random (rather than counter-derived)
// nonce: cookies and the outer handshake AEAD.
func RandomNonce() ([24]byte, error) {
	var n [24]byte
	_, err := io.ReadFull(rand.Reader, n[:])
	return n, err
}

// Sum512 is the facade's SHA-512, used to bind a handshake to the cookie
// that authorized it (spec §4.2: sha512(cookie) == included_hash).
func Sum512(data []byte) [64]byte {
	return sha512.Sum512(data)
}

// ZeroBytes overwrites a byte slice with zeros. Used to scrub session
// secrets as soon as they are no longer needed (spec §3: "the paired
// private key is zeroed as soon as the shared secret is derived").
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
