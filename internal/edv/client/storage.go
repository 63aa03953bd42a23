// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the vault orchestrator: it combines secrets,
// vaultconfig, documents and chunks with an external encryption core
// behind the Transport boundary to expose CreateEdv / FromLocalSecrets and
// document CRUD.
package client

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/chunks"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/documents"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/purge"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/secrets"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/vaultconfig"
)

// StorageContext is the process-wide (or per-test) set of lazily
// initialized collection handles: a value created once, with an idempotent
// Initialize, rather than hidden package-level singletons.
type StorageContext struct {
	storage store.Storage
	logger  hclog.Logger

	Secrets      *secrets.Store
	VaultConfigs *vaultconfig.Store
	Documents    *documents.Store
	Chunks       *chunks.Store

	purgeDocs   *purge.Sweeper
	purgeChunks *purge.Sweeper

	once    sync.Once
	initErr error
}

// NewStorageContext builds a StorageContext over storage. Collections are
// not opened until Initialize is called (or implicitly by the first
// operation that needs them). A nil logger defaults to hclog.NewNullLogger,
// the same ambient-logging default purge.New uses; the plugin layer passes
// its own framework.Backend.Logger() through instead.
func NewStorageContext(storage store.Storage, logger hclog.Logger) *StorageContext {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &StorageContext{storage: storage, logger: logger}
}

// Initialize opens every collection exactly once, no matter how many
// goroutines call it concurrently: the first caller does the work, every
// other caller blocks until it is done and then observes the same error
// (if any).
func (sc *StorageContext) Initialize(ctx context.Context) error {
	sc.once.Do(func() {
		sc.Secrets = secrets.NewStore(sc.storage)
		sc.VaultConfigs = vaultconfig.NewStore(sc.storage)
		sc.Documents = documents.NewStore(sc.storage)
		sc.Chunks = chunks.NewStore(sc.storage, sc.Documents)
		sc.purgeDocs = purge.New(sc.Documents.Collection(), sc.logger)
		sc.purgeChunks = purge.New(sc.Chunks.Collection(), sc.logger)
	})
	return sc.initErr
}
