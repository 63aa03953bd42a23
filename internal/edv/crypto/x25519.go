// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/randsrc"
)

// X25519KeySize is the size, in bytes, of an X25519 scalar or point.
const X25519KeySize = 32

// X25519KeyType is the verification-method type for the "recommended"
// cipher suite.
const X25519KeyType = "X25519KeyAgreementKey2020"

// multicodec headers used when exporting key material, per the
// x25519-key-agreement-key-2020 convention.
var (
	x25519PublicMulticodec  = []byte{0xec, 0x01}
	x25519PrivateMulticodec = []byte{0x82, 0x26}
)

// X25519Kak is an X25519 (Curve25519 ECDH) key-agreement key: the
// "recommended" cipher suite's KAK.
type X25519Kak struct {
	ID        string
	secret    [X25519KeySize]byte
	publicKey [X25519KeySize]byte
}

// GenerateX25519Kak generates a fresh X25519 keypair.
func GenerateX25519Kak() (*X25519Kak, error) {
	var secret [X25519KeySize]byte
	if err := randsrc.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("crypto: generate x25519 key: %w", err)
	}
	return ImportX25519Kak(secret[:])
}

// ImportX25519Kak reconstructs both halves of the keypair from a raw
// 32-byte secret scalar.
func ImportX25519Kak(secret []byte) (*X25519Kak, error) {
	if len(secret) != X25519KeySize {
		return nil, fmt.Errorf("crypto: x25519 secret must be %d bytes, got %d", X25519KeySize, len(secret))
	}
	k := &X25519Kak{}
	copy(k.secret[:], secret)
	pub, err := curve25519.X25519(k.secret[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("crypto: derive x25519 public key: %w", err)
	}
	copy(k.publicKey[:], pub)
	return k, nil
}

// DeriveSecret computes the shared secret with a peer's raw 32-byte public
// key via X25519 scalar multiplication.
func (k *X25519Kak) DeriveSecret(peerPublicKey []byte) ([]byte, error) {
	if len(peerPublicKey) != X25519KeySize {
		return nil, fmt.Errorf("crypto: peer public key must be %d bytes, got %d", X25519KeySize, len(peerPublicKey))
	}
	shared, err := curve25519.X25519(k.secret[:], peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: x25519 scalar mult: %w", err)
	}
	return shared, nil
}

// PublicKey returns a copy of the raw 32-byte public key.
func (k *X25519Kak) PublicKey() []byte {
	out := make([]byte, X25519KeySize)
	copy(out, k.publicKey[:])
	return out
}

// PublicKeyMultibase exports the public key as a multibase string with the
// x25519-pub multicodec header.
func (k *X25519Kak) PublicKeyMultibase() (string, error) {
	return encodeMulticodecMultibase(x25519PublicMulticodec, k.publicKey[:])
}

// PrivateKeyMultibase exports the private scalar as a multibase string with
// the x25519-priv multicodec header.
func (k *X25519Kak) PrivateKeyMultibase() (string, error) {
	return encodeMulticodecMultibase(x25519PrivateMulticodec, k.secret[:])
}

// Zero wipes the secret scalar.
func (k *X25519Kak) Zero() {
	Zero(k.secret[:])
}
