// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	josecipher "github.com/go-jose/go-jose/v3/cipher"
)

// KekKeySize is the size, in bytes, of an AES-256 key-encryption key.
const KekKeySize = 32

// Kek is an AES-256 key-wrapping (RFC 3394) key, used to wrap the
// key-derivation key (and, in the fips cipher suite, the P-256 key
// agreement key) under a PBKDF2-derived secret.
type Kek struct {
	block cipher.Block
}

// ImportKek constructs a Kek from a raw 32-byte AES key.
func ImportKek(secret []byte) (*Kek, error) {
	if len(secret) != KekKeySize {
		return nil, fmt.Errorf("crypto: kek secret must be %d bytes, got %d", KekKeySize, len(secret))
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("crypto: new aes cipher: %w", err)
	}
	return &Kek{block: block}, nil
}

// WrapKey wraps unwrappedKey with AES-KW (RFC 3394), producing a blob 8
// bytes longer than the input.
func (k *Kek) WrapKey(unwrappedKey []byte) ([]byte, error) {
	wrapped, err := josecipher.KeyWrap(k.block, unwrappedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: wrap key: %w", err)
	}
	return wrapped, nil
}

// UnwrapKey attempts to AES-KW unwrap wrapped. It never returns an error
// for a bad unwrap (a wrong password looks exactly like corrupted
// ciphertext to AES-KW's integrity check); instead it returns (nil, false).
func (k *Kek) UnwrapKey(wrapped []byte) ([]byte, bool) {
	unwrapped, err := josecipher.KeyUnwrap(k.block, wrapped)
	if err != nil {
		return nil, false
	}
	return unwrapped, true
}
