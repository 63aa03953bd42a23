// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/randsrc"
)

// Pbkdf2Iterations is the fixed iteration count for cipher version "1".
const Pbkdf2Iterations = 100_000

// Pbkdf2SaltSize is the size, in bytes, of a freshly generated salt.
const Pbkdf2SaltSize = 16

// Pbkdf2Params is the input to DeriveBits.
type Pbkdf2Params struct {
	BitLength  int
	Iterations int
	Password   string
	Salt       []byte // optional; a fresh 16-byte salt is generated if nil
}

// Pbkdf2Result carries the derived bits and the salt that produced them
// (freshly generated salts must be persisted alongside the derived key).
type Pbkdf2Result struct {
	Salt        []byte
	DerivedBits []byte
	Iterations  int
}

// DeriveBits runs PBKDF2-HMAC-SHA-256 over params.Password, defaulting
// Iterations to Pbkdf2Iterations and generating a fresh Pbkdf2SaltSize-byte
// salt when params.Salt is nil.
func DeriveBits(params Pbkdf2Params) (*Pbkdf2Result, error) {
	iterations := params.Iterations
	if iterations == 0 {
		iterations = Pbkdf2Iterations
	}
	bitLength := params.BitLength
	if bitLength == 0 {
		bitLength = KekKeySize * 8
	}
	if bitLength%8 != 0 {
		return nil, fmt.Errorf("crypto: bitLength must be a multiple of 8, got %d", bitLength)
	}

	salt := params.Salt
	if salt == nil {
		salt = make([]byte, Pbkdf2SaltSize)
		if err := randsrc.Read(salt); err != nil {
			return nil, fmt.Errorf("crypto: generate salt: %w", err)
		}
	}

	derived := pbkdf2.Key([]byte(params.Password), salt, iterations, bitLength/8, sha256.New)

	return &Pbkdf2Result{
		Salt:        salt,
		DerivedBits: derived,
		Iterations:  iterations,
	}, nil
}
