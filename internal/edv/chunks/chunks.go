// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunks implements per-document ordered chunk storage, gated on
// the chunk's sequence matching its document's current sequence.
package chunks

import (
	"context"
	"fmt"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/documents"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

// CollectionName is the logical collection name assigned to chunks.
const CollectionName = "edv-storage-chunk"

// Chunk is one ordered slice of a document's encrypted payload.
type Chunk struct {
	Sequence float64 `json:"sequence"`
	Index    int     `json:"index"`
	Offset   int     `json:"offset"`
	JWE      any     `json:"jwe"`
}

// Store persists document chunks, consulting the owning documents.Store to
// enforce the sequence invariant against the current document state.
type Store struct {
	col  *store.Collection
	docs *documents.Store
}

// NewStore opens the chunk collection, wired to docs for the sequence
// check every chunk write performs.
func NewStore(storage store.Storage, docs *documents.Store) *Store {
	return &Store{col: store.NewCollection(storage, CollectionName), docs: docs}
}

func recordID(edvID, docID string, index int) string {
	return fmt.Sprintf("%s:%s:%d", edvID, docID, index)
}

func chunkToRecord(edvID, docID string, chunk Chunk) store.Record {
	return store.Record{
		"_id":        recordID(edvID, docID, chunk.Index),
		"localEdvId": edvID,
		"docId":      docID,
		"chunk": map[string]any{
			"sequence": chunk.Sequence,
			"index":    float64(chunk.Index),
			"offset":   float64(chunk.Offset),
			"jwe":      chunk.JWE,
		},
	}
}

// Upsert writes chunk for the given document, failing with
// *xerrors.InvalidStateError if chunk.Sequence does not match the
// document's current sequence. A ConstraintError on the exact same chunk
// id (a benign concurrent upsert racing this one) is treated as success
// and returns whatever is now stored.
func (s *Store) Upsert(ctx context.Context, edvID, docID string, chunk Chunk) (store.Record, error) {
	docRec, err := s.docs.Get(ctx, edvID, docID)
	if err != nil {
		return nil, err
	}
	doc, _ := docRec["doc"].(map[string]any)
	docSeq, _ := doc["sequence"].(float64)
	if chunk.Sequence != docSeq {
		return nil, xerrors.NewInvalidStateErrorf(docSeq, chunk.Sequence,
			"Could not update document chunk. Sequence does not match the associated document.")
	}

	rec := chunkToRecord(edvID, docID, chunk)
	id := rec.ID()

	res, _, err := s.col.UpdateOne(ctx, store.UpdateOneOptions{
		Doc:    rec,
		Query:  store.Query{Selector: store.Selector{"_id": id}},
		Upsert: true,
	})
	if err != nil {
		if ce, ok := xerrors.IsConstraint(err); ok {
			if existing, ok := ce.Existing.(store.Record); ok && existing.ID() == id {
				return s.Get(ctx, edvID, docID, chunk.Index)
			}
		}
		return nil, err
	}
	return res.Record, nil
}

// Get fetches the chunk at index for the given document, failing with
// *xerrors.NotFoundError if it does not exist.
func (s *Store) Get(ctx context.Context, edvID, docID string, index int) (store.Record, error) {
	rec, err := s.col.Get(ctx, recordID(edvID, docID, index))
	if err == store.ErrNotFound {
		return nil, xerrors.NewNotFoundError("Document chunk not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("chunks: get %q/%d: %w", docID, index, err)
	}
	return rec, nil
}

// Remove best-effort tombstones the chunk at index, returning false if it
// did not exist. The tombstone is later swept by the purge package.
func (s *Store) Remove(ctx context.Context, edvID, docID string, index int) (bool, error) {
	existing, err := s.Get(ctx, edvID, docID, index)
	if xerrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	tombstone := existing.Clone()
	tombstone.SetID(existing.ID())
	tombstone.SetRev(existing.Rev())
	tombstone["_deleted"] = true

	if _, _, err := s.col.UpdateOne(ctx, store.UpdateOneOptions{
		Doc:   tombstone,
		Query: store.Query{Selector: store.Selector{"_id": existing.ID()}},
	}); err != nil {
		return false, err
	}
	return true, nil
}

// Collection exposes the underlying collection, used by the purge package
// to sweep tombstoned chunk records alongside document ones.
func (s *Store) Collection() *store.Collection {
	return s.col
}
