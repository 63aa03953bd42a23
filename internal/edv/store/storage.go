// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package store implements two primitives layered over a local document
// database: insertOne (check-then-write with uniqueness constraints) and
// updateOne (sequence-gated, optionally upserting update). It also defines
// the minimal Storage contract the underlying engine is reduced to, and an
// in-memory implementation the core's own tests run against.
package store

import (
	"context"
	"errors"
)

// Entry is a single key/value pair as held by the underlying engine.
type Entry struct {
	Key   string
	Value []byte
}

// Storage is the local KV/document engine contract this core is reduced
// to: Get/Put/Delete by key, and List by key prefix. It deliberately has
// no native query language and no native compare-and-swap; Collection
// builds both on top using a _rev field embedded in each record's JSON.
type Storage interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	// List returns every key with the given prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ErrConflict is returned by Collection.putRaw when the record's _rev does not
// match the currently stored _rev — the store's stand-in for the
// underlying engine's native "status == 409" response.
var ErrConflict = errors.New("store: conflict (stale _rev)")

// ErrNotFound is returned by Collection.Get (via getRaw) when no record
// exists for a key. Callers outside this package translate it into
// xerrors.NotFoundError or a boolean "not found" return.
var ErrNotFound = errors.New("store: not found")
