// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"hash/fnv"
	"sync"
)

// lockCount is the stripe width: 256 buckets, hashed by key, serializing
// same-_id writers without serializing the whole collection.
const lockCount = 256

// lockStriper serializes concurrent put/insert/update attempts against the
// same _id within this process, standing in for the per-_id write ordering
// a backing document store would otherwise give for free via its own
// revision-gated writes. It does not, and is not meant to, coordinate
// across processes: cross-process uniqueness is enforced by the
// check-then-write constraint loop instead, with eventual consistency
// under concurrent writers from other processes.
type lockStriper struct {
	locks [lockCount]sync.Mutex
}

func newLockStriper() *lockStriper {
	return &lockStriper{}
}

func (s *lockStriper) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockCount]
}

// Lock acquires the stripe for key and returns the unlock func.
func (s *lockStriper) Lock(key string) func() {
	mu := s.lockFor(key)
	mu.Lock()
	return mu.Unlock
}
