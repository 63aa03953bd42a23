// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"testing"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store/memstore"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

func newTestCollection() *Collection {
	return NewCollection(memstore.New(), "widgets")
}

func TestInsertOneThenGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection()

	res, err := c.InsertOne(ctx, InsertOneOptions{Doc: Record{"_id": "a", "sequence": float64(0)}})
	if err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}
	if res.Record.ID() != "a" {
		t.Fatalf("ID = %q, want %q", res.Record.ID(), "a")
	}

	got, err := c.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got["sequence"] != float64(0) {
		t.Fatalf("sequence = %v, want 0", got["sequence"])
	}
}

func TestInsertOneDuplicateID(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection()

	if _, err := c.InsertOne(ctx, InsertOneOptions{Doc: Record{"_id": "a"}}); err != nil {
		t.Fatalf("first InsertOne() error = %v", err)
	}
	_, err := c.InsertOne(ctx, InsertOneOptions{Doc: Record{"_id": "a"}})
	if _, ok := xerrors.IsConstraint(err); !ok {
		t.Fatalf("second InsertOne() error = %v, want *ConstraintError", err)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection()

	_, err := c.Get(ctx, "nope")
	if err != ErrNotFound {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateOneSequenceGate(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection()

	if _, err := c.InsertOne(ctx, InsertOneOptions{Doc: Record{"_id": "a", "sequence": float64(0)}}); err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}

	// Updating with the *same* sequence (0) must fail: the selector requires
	// sequence == prev-1 == -1, which never matches.
	_, ok, err := c.UpdateOne(ctx, UpdateOneOptions{
		Doc:   Record{"_id": "a", "sequence": float64(0)},
		Query: Query{Selector: Selector{"_id": "a", "sequence": float64(-1)}},
	})
	if err != nil {
		t.Fatalf("UpdateOne() error = %v", err)
	}
	if ok {
		t.Fatal("UpdateOne() ok = true, want false for a stale sequence selector")
	}

	// The correct predecessor sequence (new sequence 1 minus 1 = 0, the
	// stored state) succeeds and advances the stored sequence.
	res, ok, err := c.UpdateOne(ctx, UpdateOneOptions{
		Doc:   Record{"_id": "a", "sequence": float64(1)},
		Query: Query{Selector: Selector{"_id": "a", "sequence": float64(0)}},
	})
	if err != nil {
		t.Fatalf("UpdateOne() error = %v", err)
	}
	if !ok {
		t.Fatal("UpdateOne() ok = false, want true")
	}
	if res.Record["sequence"] != float64(1) {
		t.Fatalf("sequence = %v, want 1", res.Record["sequence"])
	}
}

func TestUpdateOneUpsertDelegatesToInsert(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection()

	res, ok, err := c.UpdateOne(ctx, UpdateOneOptions{
		Doc:    Record{"_id": "a", "sequence": float64(0)},
		Query:  Query{Selector: Selector{"_id": "a", "sequence": float64(-1)}},
		Upsert: true,
	})
	if err != nil {
		t.Fatalf("UpdateOne() error = %v", err)
	}
	if !ok || res.Record.ID() != "a" {
		t.Fatalf("UpdateOne() = (%v, %v), want a fresh record for id a", res, ok)
	}
}

func TestUpdateOneNoMatchNoUpsert(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection()

	_, ok, err := c.UpdateOne(ctx, UpdateOneOptions{
		Doc:   Record{"_id": "a"},
		Query: Query{Selector: Selector{"_id": "a"}},
	})
	if err != nil {
		t.Fatalf("UpdateOne() error = %v", err)
	}
	if ok {
		t.Fatal("UpdateOne() ok = true, want false when nothing matched and upsert is false")
	}
}

func TestUniqueConstraintAcrossDocuments(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection()

	uniqueOn := func(value string) []Constraint {
		return []Constraint{{Selector: Selector{"tag": value}}}
	}

	if _, err := c.InsertOne(ctx, InsertOneOptions{
		Doc:               Record{"_id": "doc1", "tag": "foo"},
		UniqueConstraints: uniqueOn("foo"),
	}); err != nil {
		t.Fatalf("insert doc1 error = %v", err)
	}

	_, err := c.InsertOne(ctx, InsertOneOptions{
		Doc:               Record{"_id": "doc2", "tag": "foo"},
		UniqueConstraints: uniqueOn("foo"),
	})
	if _, ok := xerrors.IsConstraint(err); !ok {
		t.Fatalf("insert doc2 error = %v, want *ConstraintError", err)
	}

	// A document sharing non-unique attributes, but a distinct unique
	// attribute value, may coexist.
	if _, err := c.InsertOne(ctx, InsertOneOptions{
		Doc:               Record{"_id": "doc2", "tag": "bar"},
		UniqueConstraints: uniqueOn("bar"),
	}); err != nil {
		t.Fatalf("insert doc2 with distinct tag error = %v", err)
	}
}
