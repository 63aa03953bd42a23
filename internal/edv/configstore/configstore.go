// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package configstore implements a reusable "identified configuration"
// repository: insert/update/get over a collection keyed by the
// configuration's own id, with sequence-gated optimistic updates. Both the
// secret configuration store and the EDV configuration store are instances
// of this repository.
package configstore

import (
	"context"
	"fmt"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

// AssertFunc validates a configuration record's shape before it is
// persisted. Each caller (secrets, vaultconfig) supplies its own.
type AssertFunc func(cfg store.Record) error

// Store is a generic, collection-backed configuration repository.
type Store struct {
	col    *store.Collection
	assert AssertFunc
}

// New opens the named collection as a configuration repository.
func New(storage store.Storage, collectionName string, assert AssertFunc) *Store {
	return &Store{col: store.NewCollection(storage, collectionName), assert: assert}
}

func configID(cfg store.Record) (string, error) {
	id, _ := cfg["id"].(string)
	if id == "" {
		return "", xerrors.NewTypeError("config.id must be a non-empty string")
	}
	return id, nil
}

func configSequence(cfg store.Record) (float64, error) {
	switch v := cfg["sequence"].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, xerrors.NewTypeError("config.sequence must be a non-negative number")
	}
}

// Insert persists cfg, which must have sequence == 0. Fails with
// *xerrors.ConstraintError if a configuration with the same id already
// exists.
func (s *Store) Insert(ctx context.Context, cfg store.Record) (store.Record, error) {
	if s.assert != nil {
		if err := s.assert(cfg); err != nil {
			return nil, err
		}
	}
	id, err := configID(cfg)
	if err != nil {
		return nil, err
	}
	seq, err := configSequence(cfg)
	if err != nil {
		return nil, err
	}
	if seq != 0 {
		return nil, xerrors.NewTypeError("config.sequence must be 0 on insert")
	}

	doc := cfg.Clone()
	doc.SetID(id)

	res, err := s.col.InsertOne(ctx, store.InsertOneOptions{Doc: doc})
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// Update persists cfg over the existing record whose sequence equals
// cfg.sequence-1, advancing it to cfg.sequence. Fails with
// *xerrors.InvalidStateError if no such record exists.
func (s *Store) Update(ctx context.Context, cfg store.Record) (store.Record, error) {
	if s.assert != nil {
		if err := s.assert(cfg); err != nil {
			return nil, err
		}
	}
	id, err := configID(cfg)
	if err != nil {
		return nil, err
	}
	seq, err := configSequence(cfg)
	if err != nil {
		return nil, err
	}

	doc := cfg.Clone()
	doc.SetID(id)

	selector := store.Selector{"_id": id, "sequence": seq - 1}
	res, ok, err := s.col.UpdateOne(ctx, store.UpdateOneOptions{
		Doc:   doc,
		Query: store.Query{Selector: selector},
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, xerrors.NewInvalidStateError(
			"Could not update configuration. Sequence does not match or configuration does not exist.")
	}
	return res.Record, nil
}

// Get fetches the configuration with the given id, failing with
// *xerrors.NotFoundError if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	rec, err := s.col.Get(ctx, id)
	if err == store.ErrNotFound {
		return nil, xerrors.NewNotFoundError("Configuration not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("configstore: get %q: %w", id, err)
	}
	return rec, nil
}

// Collection exposes the underlying collection for callers (vaultconfig's
// secondary index on controller) that need lower-level access, such as
// running an additional Find against the same data.
func (s *Store) Collection() *store.Collection {
	return s.col
}
