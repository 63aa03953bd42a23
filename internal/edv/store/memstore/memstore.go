// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package memstore is an in-memory store.Storage, used by the core's own
// tests and by anything embedding the library outside Vault.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
)

// Store is a process-local, mutex-guarded map implementing store.Storage.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get implements store.Storage.
func (s *Store) Get(_ context.Context, key string) (*store.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return &store.Entry{Key: key, Value: out}, nil
}

// Put implements store.Storage.
func (s *Store) Put(_ context.Context, entry *store.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(entry.Value))
	copy(v, entry.Value)
	s.data[entry.Key] = v
	return nil
}

// Delete implements store.Storage.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List implements store.Storage.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
