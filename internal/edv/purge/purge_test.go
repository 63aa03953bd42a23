// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package purge

import (
	"context"
	"sync"
	"testing"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store/memstore"
)

func TestTriggerRemovesTombstones(t *testing.T) {
	ctx := context.Background()
	backing := memstore.New()
	col := store.NewCollection(backing, "widgets")

	if _, err := col.InsertOne(ctx, store.InsertOneOptions{Doc: store.Record{"_id": "a"}}); err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}
	if _, err := col.InsertOne(ctx, store.InsertOneOptions{Doc: store.Record{"_id": "b"}}); err != nil {
		t.Fatalf("InsertOne() error = %v", err)
	}

	existing, err := col.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	tomb := existing.Clone()
	tomb.SetID("a")
	tomb.SetRev(existing.Rev())
	tomb["_deleted"] = true
	if _, _, err := col.UpdateOne(ctx, store.UpdateOneOptions{
		Doc:   tomb,
		Query: store.Query{Selector: store.Selector{"_id": "a"}},
	}); err != nil {
		t.Fatalf("UpdateOne() error = %v", err)
	}

	sweeper := New(col, nil)
	sweeper.Trigger(ctx)

	if _, err := col.Get(ctx, "a"); err != store.ErrNotFound {
		t.Fatalf("Get(a) error = %v, want ErrNotFound after purge", err)
	}
	if _, err := col.Get(ctx, "b"); err != nil {
		t.Fatalf("Get(b) error = %v, want nil (b was never deleted)", err)
	}
}

func TestTriggerCoalescesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	backing := memstore.New()
	col := store.NewCollection(backing, "widgets")
	sweeper := New(col, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Trigger(ctx)
		}()
	}
	wg.Wait()
}
