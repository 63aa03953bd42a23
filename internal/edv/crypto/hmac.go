// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package crypto implements a small capability surface: HMAC-SHA-256
// signing, AES-KW wrap/unwrap, PBKDF2 derivation and the two key-agreement
// suites (X25519, P-256). Every type that carries secret bytes exposes a
// Zero method and callers are expected to call it as soon as the secret is
// no longer needed.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/randsrc"
)

// HmacKeySize is the size, in bytes, of an HMAC-SHA-256 key.
const HmacKeySize = 32

// HmacAlgorithm is the JOSE-ish algorithm label assigned to the key.
const HmacAlgorithm = "HS256"

// HmacKeyType is the verification-method type assigned to the key.
const HmacKeyType = "Sha256HmacKey2019"

// Hmac is a 256-bit HMAC-SHA-256 key used both for blinding document
// attributes and, when used as the key-derivation key (kdk), for deriving
// sub-keys.
type Hmac struct {
	ID     string
	secret [HmacKeySize]byte
}

// GenerateHmac creates a random 256-bit HMAC key.
func GenerateHmac() (*Hmac, error) {
	var secret [HmacKeySize]byte
	if err := randsrc.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("crypto: generate hmac key: %w", err)
	}
	return &Hmac{secret: secret}, nil
}

// ImportHmac imports a raw 32-byte HMAC key.
func ImportHmac(secret []byte) (*Hmac, error) {
	if len(secret) != HmacKeySize {
		return nil, fmt.Errorf("crypto: hmac key must be %d bytes, got %d", HmacKeySize, len(secret))
	}
	h := &Hmac{}
	copy(h.secret[:], secret)
	return h, nil
}

// Sign computes the HMAC-SHA-256 tag over data.
func (h *Hmac) Sign(data []byte) []byte {
	mac := hmac.New(sha256.New, h.secret[:])
	mac.Write(data)
	return mac.Sum(nil)
}

// Verify reports whether tag is the correct HMAC-SHA-256 tag for data,
// using a constant-time comparison.
func (h *Hmac) Verify(data, tag []byte) bool {
	expected := h.Sign(data)
	return subtle.ConstantTimeCompare(expected, tag) == 1
}

// RawBytes returns a copy of the underlying 32-byte key. Callers that no
// longer need the copy must call Zero on it themselves; Zero below only
// covers the Hmac's own internal storage.
func (h *Hmac) RawBytes() []byte {
	out := make([]byte, HmacKeySize)
	copy(out, h.secret[:])
	return out
}

// Zero wipes the key material.
func (h *Hmac) Zero() {
	for i := range h.secret {
		h.secret[i] = 0
	}
}

// Zero wipes an arbitrary secret-bearing byte slice in place. Every
// short-lived derived buffer in this package (kdk bytes, kek secrets,
// unwrapped raw key blobs) is passed through this helper once consumed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
