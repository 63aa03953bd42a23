// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package documents

import (
	"bytes"
	"context"
	"testing"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/idcodec"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store/memstore"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

func newTestStore() *Store {
	return NewStore(memstore.New())
}

// testID returns a well-formed document identifier, distinct per seed byte.
func testID(t *testing.T, seed byte) string {
	t.Helper()
	id, err := idcodec.Encode(bytes.Repeat([]byte{seed}, idcodec.RandomIDSize))
	if err != nil {
		t.Fatalf("idcodec.Encode: %v", err)
	}
	return id
}

func TestInsertThenGetHasSequenceZero(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	id := testID(t, 1)

	if _, err := s.Insert(ctx, "v1", Document{ID: id, Sequence: 0, JWE: "blob"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	got, err := s.Get(ctx, "v1", id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	doc, _ := got["doc"].(map[string]any)
	if doc["sequence"] != float64(0) {
		t.Fatalf("sequence = %v, want 0", doc["sequence"])
	}
}

func TestUpsertRequiresNextSequence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	id := testID(t, 1)

	if _, err := s.Insert(ctx, "v1", Document{ID: id, Sequence: 0}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	// Same sequence: must fail with InvalidStateError and leave state unchanged.
	_, err := s.Upsert(ctx, "v1", Document{ID: id, Sequence: 0}, false)
	if _, ok := err.(*xerrors.InvalidStateError); !ok {
		t.Fatalf("Upsert() with repeated sequence error = %v (%T), want *xerrors.InvalidStateError", err, err)
	}

	// Correct next sequence: succeeds.
	rec, err := s.Upsert(ctx, "v1", Document{ID: id, Sequence: 1}, false)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	doc, _ := rec["doc"].(map[string]any)
	if doc["sequence"] != float64(1) {
		t.Fatalf("sequence = %v, want 1", doc["sequence"])
	}
}

func docWithUnique(id string, seq float64, value string, unique bool) Document {
	return Document{
		ID:       id,
		Sequence: seq,
		JWE:      "blob",
		Indexed: []IndexedEntry{{
			Hmac:     KeyRef{ID: "urn:hmac", Type: "Sha256HmacKey2019"},
			Sequence: seq,
			Attributes: []Attribute{
				{Name: "content.id", Value: value, Unique: unique},
			},
		}},
	}
}

func TestUniqueAttributeAcrossDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	id1, id2 := testID(t, 1), testID(t, 2)

	if _, err := s.Upsert(ctx, "v1", docWithUnique(id1, 0, "foo", true), false); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	if _, err := s.Upsert(ctx, "v1", docWithUnique(id2, 0, "foo", true), false); err == nil {
		t.Fatal("second Upsert() with duplicate unique attribute succeeded, want error")
	} else if _, ok := xerrors.IsConstraint(err); !ok {
		t.Fatalf("error = %v (%T), want *xerrors.ConstraintError", err, err)
	}

	// A different value for id2 succeeds.
	if _, err := s.Upsert(ctx, "v1", docWithUnique(id2, 0, "different", true), false); err != nil {
		t.Fatalf("Upsert() with distinct value error = %v", err)
	}

	// Changing id2 back to the already-taken value fails.
	if _, err := s.Upsert(ctx, "v1", docWithUnique(id2, 1, "foo", true), false); err == nil {
		t.Fatal("Upsert() reverting to taken unique value succeeded, want error")
	}
}

func TestNonUniqueAttributeCanCoexist(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	id1, id2 := testID(t, 1), testID(t, 2)

	if _, err := s.Upsert(ctx, "v1", docWithUnique(id1, 0, "foo", false), false); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	if _, err := s.Upsert(ctx, "v1", docWithUnique(id2, 0, "foo", false), false); err != nil {
		t.Fatalf("second Upsert() with shared non-unique attribute error = %v", err)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.Get(ctx, "v1", testID(t, 9))
	if !xerrors.IsNotFound(err) {
		t.Fatalf("Get() error = %v, want *xerrors.NotFoundError", err)
	}
}

func docWithFoo(id, value string) Document {
	return Document{
		ID:       id,
		Sequence: 0,
		JWE:      "blob",
		Indexed: []IndexedEntry{{
			Hmac:       KeyRef{ID: "urn:hmac", Type: "Sha256HmacKey2019"},
			Attributes: []Attribute{{Name: "content.foo", Value: value}},
		}},
	}
}

func TestFindPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	for _, d := range []Document{docWithFoo(testID(t, 1), "bar"), docWithFoo(testID(t, 2), "bar"), docWithFoo(testID(t, 3), "different")} {
		if _, err := s.Insert(ctx, "v1", d); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	limit1 := 1
	records, err := s.CreateQuery(ctx, "v1", EdvQuery{
		Index:  "urn:hmac",
		Equals: []map[string]string{{"content.foo": "bar"}},
		Limit:  &limit1,
	})
	if err != nil {
		t.Fatalf("CreateQuery() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}

	limit2 := 2
	records, err = s.CreateQuery(ctx, "v1", EdvQuery{
		Index:  "urn:hmac",
		Equals: []map[string]string{{"content.foo": "bar"}},
		Limit:  &limit2,
	})
	if err != nil {
		t.Fatalf("CreateQuery() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
}

func TestCreateQueryRejectsBothEqualsAndHas(t *testing.T) {
	_, err := CreateQuery("v1", EdvQuery{
		Index:  "urn:hmac",
		Equals: []map[string]string{{"a": "b"}},
		Has:    []string{"a"},
	})
	if err == nil {
		t.Fatal("CreateQuery() with both equals and has succeeded, want error")
	}
}
