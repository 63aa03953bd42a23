// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the boundary between this storage core and an
// external encryption core that encrypts plaintext into JWE blobs and
// decrypts them back. The core never imports an encryption implementation;
// it only implements Transport and calls through an EncryptionCore
// collaborator supplied by the caller.
package transport

import "context"

// FindQuery mirrors the structured query the documents package builds,
// passed across the Transport boundary unchanged.
type FindQuery struct {
	Index  string
	Equals []map[string]string
	Has    []string
	Count  bool
	Limit  int
}

// FindResult is what Transport.Find returns: either a page of documents
// (with HasMore computed by the caller) or, when Count is set, a count.
type FindResult struct {
	Documents []map[string]any
	Count     *int
	HasMore   bool
}

// Transport is the set of storage operations the external encryption core
// is allowed to perform against a single unlocked vault. An EncryptionCore
// implementation is handed a Transport; it never reaches into storage any
// other way.
type Transport interface {
	CreateEdv(ctx context.Context, config map[string]any) (map[string]any, error)
	GetConfig(ctx context.Context) (map[string]any, error)
	UpdateConfig(ctx context.Context, config map[string]any) (map[string]any, error)
	Insert(ctx context.Context, encrypted map[string]any) error
	Update(ctx context.Context, encrypted map[string]any, deleted bool) error
	Get(ctx context.Context, id string) (map[string]any, error)
	Find(ctx context.Context, query FindQuery) (FindResult, error)
	StoreChunk(ctx context.Context, docID string, chunk map[string]any) (map[string]any, error)
	GetChunk(ctx context.Context, docID string, chunkIndex int) (map[string]any, error)
}

// EncryptionCore is the external collaborator that owns the actual content
// encryption/decryption, expressed here only as the shape the client's
// CRUD surface calls through. A real implementation would encrypt
// plaintext into a JWE before calling Transport.Insert/Update and decrypt
// the JWE it gets back from Transport.Get/Find; this package only carries
// the interface.
type EncryptionCore interface {
	Insert(ctx context.Context, t Transport, doc map[string]any) error
	Update(ctx context.Context, t Transport, doc map[string]any, deleted bool) error
	Get(ctx context.Context, t Transport, id string) (map[string]any, error)
	Find(ctx context.Context, t Transport, query FindQuery) (FindResult, error)
	GetConfig(ctx context.Context, t Transport) (map[string]any, error)
	UpdateConfig(ctx context.Context, t Transport, config map[string]any) (map[string]any, error)
}
