// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/configstore"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

// CollectionName is the logical collection name assigned to secret
// configs.
const CollectionName = "edv-storage-secret"

// Store persists secret configuration records, one per vault id.
type Store struct {
	configs *configstore.Store
}

// NewStore opens the secret configuration collection.
func NewStore(storage store.Storage) *Store {
	return &Store{configs: configstore.New(storage, CollectionName, assertSecretConfig)}
}

func assertSecretConfig(cfg store.Record) error {
	if id, _ := cfg["id"].(string); id == "" {
		return xerrors.NewTypeError("secret config.id must be a non-empty string")
	}
	if hmacID, _ := cfg["hmacId"].(string); hmacID == "" {
		return xerrors.NewTypeError("secret config.hmacId must be a non-empty string")
	}
	if kakID, _ := cfg["keyAgreementKeyId"].(string); kakID == "" {
		return xerrors.NewTypeError("secret config.keyAgreementKeyId must be a non-empty string")
	}
	secretRec, ok := cfg["secret"].(map[string]any)
	if !ok {
		return xerrors.NewTypeError("secret config.secret must be an object")
	}
	if v, _ := secretRec["version"].(string); v != SecretVersion {
		return xerrors.NewTypeError("secret config.secret.version must be %q", SecretVersion)
	}
	if s, _ := secretRec["salt"].(string); s == "" {
		return xerrors.NewTypeError("secret config.secret.salt must be a non-empty string")
	}
	if w, _ := secretRec["wrappedKey"].(string); w == "" {
		return xerrors.NewTypeError("secret config.secret.wrappedKey must be a non-empty string")
	}
	return nil
}

// Insert persists a freshly generated secret configuration. Fails with
// *xerrors.ConstraintError if one already exists for the same id.
func (s *Store) Insert(ctx context.Context, config map[string]any) (map[string]any, error) {
	rec, err := s.configs.Insert(ctx, store.Record(config))
	if err != nil {
		return nil, err
	}
	return map[string]any(rec), nil
}

// Get fetches the secret configuration for id, failing with
// *xerrors.NotFoundError if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (map[string]any, error) {
	rec, err := s.configs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any(rec), nil
}

// Update persists an updated secret configuration, sequence-gated against
// the currently stored sequence.
func (s *Store) Update(ctx context.Context, config map[string]any) (map[string]any, error) {
	rec, err := s.configs.Update(ctx, store.Record(config))
	if err != nil {
		return nil, err
	}
	return map[string]any(rec), nil
}

// GetByIDIfExists is a convenience wrapper returning (nil, nil) instead of
// a NotFoundError when the secret is absent, for callers that treat "no
// secret yet" as a normal branch rather than an error.
func (s *Store) GetByIDIfExists(ctx context.Context, id string) (map[string]any, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		if xerrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}
