// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

// Constraint is a uniqueness constraint checked before a write: if
// Selector matches an existing record, the write fails.
type Constraint struct {
	Selector Selector
}

// PutResult is what insertOne/updateOne return on success: the final
// stored record, alongside its id and rev for convenience.
type PutResult struct {
	ID     string
	Rev    string
	Record Record
}

// InsertOneOptions is the input to InsertOne.
type InsertOneOptions struct {
	Doc               Record
	UniqueConstraints []Constraint
}

// InsertOne appends an implicit {_id: doc._id} constraint when the
// document carries an id, checks every constraint concurrently, and
// attempts the write, retrying on a storage conflict. It is not atomic: a
// concurrent writer can insert a matching record between the constraint
// check and the write.
func (c *Collection) InsertOne(ctx context.Context, opts InsertOneOptions) (*PutResult, error) {
	constraints := effectiveConstraints(opts.Doc, opts.UniqueConstraints)

	for {
		if hit, err := c.checkConstraints(ctx, constraints, ""); err != nil {
			return nil, err
		} else if hit != nil {
			return nil, xerrors.NewConstraintError("duplicate record", hit)
		}

		var (
			rec Record
			err error
		)
		if opts.Doc.ID() != "" {
			rec, err = c.putRaw(ctx, opts.Doc)
		} else {
			rec, err = c.postRaw(ctx, opts.Doc)
		}
		if err == ErrConflict {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &PutResult{ID: rec.ID(), Rev: rec.Rev(), Record: rec}, nil
	}
}

// UpdateOneOptions is the input to UpdateOne.
type UpdateOneOptions struct {
	Doc               Record
	Query             Query
	Upsert            bool
	UniqueConstraints []Constraint
}

// UpdateOne looks up the target record via Query.Selector, then writes
// Doc under that record's id/rev (after re-checking uniqueness
// constraints against every *other* record), retrying on conflict. When no
// record matches and Upsert is true it delegates to InsertOne; when false
// it reports "no match" via ok=false.
func (c *Collection) UpdateOne(ctx context.Context, opts UpdateOneOptions) (result *PutResult, ok bool, err error) {
	for {
		existing, found, err := c.findOne(ctx, opts.Query.Selector)
		if err != nil {
			return nil, false, err
		}
		if !found {
			if !opts.Upsert {
				return nil, false, nil
			}
			res, err := c.InsertOne(ctx, InsertOneOptions{Doc: opts.Doc, UniqueConstraints: opts.UniqueConstraints})
			if err != nil {
				return nil, false, err
			}
			return res, true, nil
		}

		constraints := effectiveConstraints(opts.Doc, opts.UniqueConstraints)
		if hit, err := c.checkConstraints(ctx, constraints, existing.ID()); err != nil {
			return nil, false, err
		} else if hit != nil {
			return nil, false, xerrors.NewConstraintError("duplicate record", hit)
		}

		toWrite := opts.Doc.Clone()
		toWrite.SetID(existing.ID())
		toWrite.SetRev(existing.Rev())

		rec, err := c.putRaw(ctx, toWrite)
		if err == ErrConflict {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return &PutResult{ID: rec.ID(), Rev: rec.Rev(), Record: rec}, true, nil
	}
}

// effectiveConstraints prepends the implicit _id constraint, when doc
// carries one, to the caller-supplied unique constraints.
func effectiveConstraints(doc Record, extra []Constraint) []Constraint {
	constraints := extra
	if id := doc.ID(); id != "" {
		implicit := Constraint{Selector: Selector{"_id": id}}
		constraints = append([]Constraint{implicit}, extra...)
	}
	return constraints
}

// checkConstraints evaluates every constraint concurrently and returns the
// first hit whose id is not excludeID, or nil if none match. An empty
// excludeID excludes nothing.
func (c *Collection) checkConstraints(ctx context.Context, constraints []Constraint, excludeID string) (Record, error) {
	if len(constraints) == 0 {
		return nil, nil
	}

	type result struct {
		rec Record
		err error
	}
	results := make([]result, len(constraints))

	var wg sync.WaitGroup
	for i, constraint := range constraints {
		wg.Add(1)
		go func(i int, selector Selector) {
			defer wg.Done()
			rec, found, err := c.findOne(ctx, selector)
			if err != nil {
				results[i] = result{err: err}
				return
			}
			if found {
				results[i] = result{rec: rec}
			}
		}(i, constraint.Selector)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
	}
	for _, r := range results {
		if r.rec != nil && (excludeID == "" || r.rec.ID() != excludeID) {
			return r.rec, nil
		}
	}
	return nil, nil
}
