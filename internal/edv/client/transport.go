// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/chunks"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/documents"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/transport"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

// vaultTransport is this core's implementation of transport.Transport for
// a single vault: the concrete storage boundary handed to whatever
// transport.EncryptionCore the caller supplies.
type vaultTransport struct {
	sc    *StorageContext
	edvID string
}

func newVaultTransport(sc *StorageContext, edvID string) *vaultTransport {
	return &vaultTransport{sc: sc, edvID: edvID}
}

func mapToDocument(m map[string]any) (documents.Document, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return documents.Document{}, fmt.Errorf("client: marshal document: %w", err)
	}
	var doc documents.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return documents.Document{}, fmt.Errorf("client: unmarshal document: %w", err)
	}
	return doc, nil
}

func mapToChunk(m map[string]any) (chunks.Chunk, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return chunks.Chunk{}, fmt.Errorf("client: marshal chunk: %w", err)
	}
	var c chunks.Chunk
	if err := json.Unmarshal(b, &c); err != nil {
		return chunks.Chunk{}, fmt.Errorf("client: unmarshal chunk: %w", err)
	}
	return c, nil
}

// docFromRecord strips the storage envelope, returning the document
// fields plus localEdvId.
func docFromRecord(rec store.Record) map[string]any {
	doc, _ := rec["doc"].(map[string]any)
	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["localEdvId"] = rec["localEdvId"]
	return out
}

// CreateEdv implements transport.Transport: it persists the vault config,
// translating a uniqueness violation on the vault id into the
// transport-level DuplicateError.
func (t *vaultTransport) CreateEdv(ctx context.Context, config map[string]any) (map[string]any, error) {
	rec, err := t.sc.VaultConfigs.Insert(ctx, config)
	if err != nil {
		if _, ok := xerrors.IsConstraint(err); ok {
			return nil, xerrors.NewDuplicateError("Duplicate EDV configuration.")
		}
		return nil, err
	}
	return rec, nil
}

// GetConfig implements transport.Transport.
func (t *vaultTransport) GetConfig(ctx context.Context) (map[string]any, error) {
	return t.sc.VaultConfigs.Get(ctx, t.edvID)
}

// UpdateConfig implements transport.Transport.
func (t *vaultTransport) UpdateConfig(ctx context.Context, config map[string]any) (map[string]any, error) {
	return t.sc.VaultConfigs.Update(ctx, config)
}

// Insert implements transport.Transport.
func (t *vaultTransport) Insert(ctx context.Context, encrypted map[string]any) error {
	doc, err := mapToDocument(encrypted)
	if err != nil {
		return err
	}
	if _, err := t.sc.Documents.Insert(ctx, t.edvID, doc); err != nil {
		if _, ok := xerrors.IsConstraint(err); ok {
			return xerrors.NewDuplicateError("Duplicate document.")
		}
		return err
	}
	return nil
}

// Update implements transport.Transport. A deleted write schedules a
// background purge of the collection's tombstones rather than blocking on
// it.
func (t *vaultTransport) Update(ctx context.Context, encrypted map[string]any, deleted bool) error {
	doc, err := mapToDocument(encrypted)
	if err != nil {
		return err
	}
	if _, err := t.sc.Documents.Upsert(ctx, t.edvID, doc, deleted); err != nil {
		if _, ok := xerrors.IsConstraint(err); ok {
			return xerrors.NewDuplicateError("Duplicate document.")
		}
		return err
	}
	if deleted {
		go t.sc.purgeDocs.Trigger(context.Background())
	}
	return nil
}

// Get implements transport.Transport.
func (t *vaultTransport) Get(ctx context.Context, id string) (map[string]any, error) {
	rec, err := t.sc.Documents.Get(ctx, t.edvID, id)
	if err != nil {
		return nil, err
	}
	return docFromRecord(rec), nil
}

// Find implements transport.Transport.
func (t *vaultTransport) Find(ctx context.Context, query transport.FindQuery) (transport.FindResult, error) {
	var limit *int
	if query.Limit > 0 {
		l := query.Limit
		limit = &l
	}
	records, err := t.sc.Documents.CreateQuery(ctx, t.edvID, documents.EdvQuery{
		Index:  query.Index,
		Equals: query.Equals,
		Has:    query.Has,
		Count:  query.Count,
		Limit:  limit,
	})
	if err != nil {
		return transport.FindResult{}, err
	}
	if query.Count {
		n := len(records)
		return transport.FindResult{Count: &n}, nil
	}
	docs := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		docs = append(docs, docFromRecord(rec))
	}
	return transport.FindResult{Documents: docs}, nil
}

// StoreChunk implements transport.Transport.
func (t *vaultTransport) StoreChunk(ctx context.Context, docID string, chunk map[string]any) (map[string]any, error) {
	c, err := mapToChunk(chunk)
	if err != nil {
		return nil, err
	}
	return t.sc.Chunks.Upsert(ctx, t.edvID, docID, c)
}

// GetChunk implements transport.Transport.
func (t *vaultTransport) GetChunk(ctx context.Context, docID string, chunkIndex int) (map[string]any, error) {
	return t.sc.Chunks.Get(ctx, t.edvID, docID, chunkIndex)
}
