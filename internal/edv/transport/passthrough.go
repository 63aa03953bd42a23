// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// PassthroughCore is a trivial EncryptionCore used by the client's own
// tests and by callers that supply already-opaque "jwe" fields themselves
// (e.g. exercising the storage core in isolation from a real
// edv-client-core). It performs no encryption or decryption: every
// document it is handed already carries its final JWE value.
type PassthroughCore struct{}

// Insert implements EncryptionCore.
func (PassthroughCore) Insert(ctx context.Context, t Transport, doc map[string]any) error {
	return t.Insert(ctx, doc)
}

// Update implements EncryptionCore.
func (PassthroughCore) Update(ctx context.Context, t Transport, doc map[string]any, deleted bool) error {
	return t.Update(ctx, doc, deleted)
}

// Get implements EncryptionCore.
func (PassthroughCore) Get(ctx context.Context, t Transport, id string) (map[string]any, error) {
	return t.Get(ctx, id)
}

// Find implements EncryptionCore.
func (PassthroughCore) Find(ctx context.Context, t Transport, query FindQuery) (FindResult, error) {
	return t.Find(ctx, query)
}

// GetConfig implements EncryptionCore.
func (PassthroughCore) GetConfig(ctx context.Context, t Transport) (map[string]any, error) {
	return t.GetConfig(ctx)
}

// UpdateConfig implements EncryptionCore.
func (PassthroughCore) UpdateConfig(ctx context.Context, t Transport, config map[string]any) (map[string]any, error) {
	return t.UpdateConfig(ctx, config)
}
