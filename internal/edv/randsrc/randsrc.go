// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package randsrc is the EDV core's random-byte generation capability
// surface: a single seam the rest of the core reaches through rather than
// calling crypto/rand.Read directly everywhere.
//
// The generator is a ChaCha8 stream seeded from crypto/rand, used here for
// the fixed-size byte buffers the vault/document/secret identifiers and
// salts need.
package randsrc

import (
	"crypto/rand"
	mathrand "math/rand/v2"
	"sync"
)

// Source is a cryptographically seeded byte generator. The zero value is
// not usable; construct with New.
type Source struct {
	mu  sync.Mutex
	rng *mathrand.ChaCha8
}

// New seeds a fresh Source from the system CSPRNG.
func New() (*Source, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	return &Source{rng: mathrand.NewChaCha8(seed)}, nil
}

// Bytes fills buf with random bytes.
func (s *Source) Bytes(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(buf); i += 8 {
		v := s.rng.Uint64()
		for j := 0; j < 8 && i+j < len(buf); j++ {
			buf[i+j] = byte(v >> (8 * uint(j)))
		}
	}
	return nil
}

// shared is a process-wide default Source, lazily initialized. The EDV core
// never requires more than one: randomness is never secret-correlated
// across calls and ChaCha8 output is reseeded at process start only.
var (
	sharedOnce sync.Once
	shared     *Source
	sharedErr  error
)

// Default returns the process-wide default Source, initializing it on
// first use.
func Default() (*Source, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = New()
	})
	return shared, sharedErr
}

// Read fills buf with random bytes using the default Source. It is the
// capability most of the core calls through (idcodec.NewRandomID,
// crypto.GenerateHmac, Pbkdf2 salt generation, ...).
func Read(buf []byte) error {
	s, err := Default()
	if err != nil {
		return err
	}
	return s.Bytes(buf)
}
