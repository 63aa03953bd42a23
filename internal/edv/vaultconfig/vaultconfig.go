// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package vaultconfig implements the per-vault metadata record (id,
// controller, sequence, hmac/keyAgreementKey references) as a
// configstore.Store instance, plus a secondary lookup by controller.
package vaultconfig

import (
	"context"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/configstore"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

// CollectionName is the logical collection name assigned to vault
// configs.
const CollectionName = "edv-storage-config"

// Store persists vault configuration records.
type Store struct {
	configs *configstore.Store
}

// NewStore opens the vault configuration collection.
func NewStore(storage store.Storage) *Store {
	return &Store{configs: configstore.New(storage, CollectionName, assertVaultConfig)}
}

func assertKeyRef(cfg store.Record, field string) error {
	ref, ok := cfg[field].(map[string]any)
	if !ok {
		return xerrors.NewTypeError("config.%s must be an object", field)
	}
	if id, _ := ref["id"].(string); id == "" {
		return xerrors.NewTypeError("config.%s.id must be a non-empty string", field)
	}
	if typ, _ := ref["type"].(string); typ == "" {
		return xerrors.NewTypeError("config.%s.type must be a non-empty string", field)
	}
	return nil
}

// Validate checks that config has the required shape, the same check
// Insert/Update run before persisting.
func Validate(config map[string]any) error {
	return assertVaultConfig(store.Record(config))
}

func assertVaultConfig(cfg store.Record) error {
	if id, _ := cfg["id"].(string); id == "" {
		return xerrors.NewTypeError("config.id must be a non-empty string")
	}
	if _, ok := cfg["controller"].(string); !ok {
		return xerrors.NewTypeError("config.controller must be a string")
	}
	switch seq := cfg["sequence"].(type) {
	case float64:
		if seq < 0 || seq > (1<<53)-2 {
			return xerrors.NewTypeError("config.sequence must be in [0, 2^53-2]")
		}
	default:
		return xerrors.NewTypeError("config.sequence must be a non-negative number")
	}
	if err := assertKeyRef(cfg, "hmac"); err != nil {
		return err
	}
	if err := assertKeyRef(cfg, "keyAgreementKey"); err != nil {
		return err
	}
	return nil
}

// Insert persists a freshly created vault configuration. Fails with
// *xerrors.ConstraintError if a configuration with the same id already
// exists.
func (s *Store) Insert(ctx context.Context, config map[string]any) (map[string]any, error) {
	rec, err := s.configs.Insert(ctx, store.Record(config))
	if err != nil {
		return nil, err
	}
	return map[string]any(rec), nil
}

// Get fetches the vault configuration for id, failing with
// *xerrors.NotFoundError if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (map[string]any, error) {
	rec, err := s.configs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any(rec), nil
}

// Update persists an updated vault configuration, sequence-gated against
// the currently stored sequence.
func (s *Store) Update(ctx context.Context, config map[string]any) (map[string]any, error) {
	rec, err := s.configs.Update(ctx, store.Record(config))
	if err != nil {
		return nil, err
	}
	return map[string]any(rec), nil
}

// Exists reports whether a vault configuration exists for id, without
// distinguishing "not found" from other lookup outcomes via an error
// return; used by the client's lazy-secret-reuse decision.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	if err == nil {
		return true, nil
	}
	if xerrors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// FindByController returns every vault configuration whose controller
// field equals controller.
func (s *Store) FindByController(ctx context.Context, controller string) ([]map[string]any, error) {
	records, err := s.configs.Collection().Find(ctx, store.Query{
		Selector: store.Selector{"controller": controller},
	})
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]any(rec))
	}
	return out, nil
}
