// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"

	"github.com/hashicorp/vault/sdk/logical"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
)

// vaultStorage adapts Vault's logical.Storage (the plugin's sealed,
// process-local storage barrier) to the core's store.Storage contract.
type vaultStorage struct {
	logical logical.Storage
}

func newVaultStorage(s logical.Storage) *vaultStorage {
	return &vaultStorage{logical: s}
}

// Get implements store.Storage.
func (v *vaultStorage) Get(ctx context.Context, key string) (*store.Entry, error) {
	entry, err := v.logical.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	return &store.Entry{Key: key, Value: entry.Value}, nil
}

// Put implements store.Storage.
func (v *vaultStorage) Put(ctx context.Context, entry *store.Entry) error {
	return v.logical.Put(ctx, &logical.StorageEntry{Key: entry.Key, Value: entry.Value})
}

// Delete implements store.Storage.
func (v *vaultStorage) Delete(ctx context.Context, key string) error {
	return v.logical.Delete(ctx, key)
}

// List implements store.Storage.
func (v *vaultStorage) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := v.logical.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = prefix + k
	}
	return out, nil
}
