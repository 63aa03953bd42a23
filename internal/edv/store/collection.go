// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/idcodec"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/randsrc"
)

// Collection is a logical collection of Records layered on top of a
// Storage, keyed by "<name>/<id>". It implements the insertOne and
// updateOne primitives the rest of this codebase builds on.
type Collection struct {
	storage Storage
	name    string
	locks   *lockStriper
}

// NewCollection opens (or creates, lazily) the named collection over
// storage. Opening is idempotent and cheap: Collection holds no state
// beyond the name and its lock stripes.
func NewCollection(storage Storage, name string) *Collection {
	return &Collection{storage: storage, name: name, locks: newLockStriper()}
}

func (c *Collection) rawKey(id string) string {
	return c.name + "/" + id
}

// idFromKey strips this collection's prefix back off a raw storage key.
func (c *Collection) idFromKey(key string) string {
	return strings.TrimPrefix(key, c.name+"/")
}

func (c *Collection) getRaw(ctx context.Context, id string) (Record, error) {
	entry, err := c.storage.Get(ctx, c.rawKey(id))
	if err != nil {
		return nil, fmt.Errorf("store: get %q: %w", id, err)
	}
	if entry == nil {
		return nil, ErrNotFound
	}
	return decodeRecord(entry.Value)
}

func nextRev(prev string) string {
	n, _ := strconv.Atoi(prev)
	return strconv.Itoa(n + 1)
}

// putRaw writes rec, enforcing an optimistic-concurrency contract: a rec
// with no _rev may only create a brand-new record; a rec whose _rev does
// not match the currently stored _rev is rejected with ErrConflict.
func (c *Collection) putRaw(ctx context.Context, rec Record) (Record, error) {
	id := rec.ID()
	if id == "" {
		return nil, fmt.Errorf("store: record has no _id")
	}
	unlock := c.locks.Lock(c.rawKey(id))
	defer unlock()

	existing, err := c.getRaw(ctx, id)
	switch {
	case err == nil:
		if rec.Rev() == "" || rec.Rev() != existing.Rev() {
			return nil, ErrConflict
		}
	case err == ErrNotFound:
		if rec.Rev() != "" {
			return nil, ErrConflict
		}
	default:
		return nil, err
	}

	out := rec.Clone()
	prevRev := ""
	if existing != nil {
		prevRev = existing.Rev()
	}
	out.SetRev(nextRev(prevRev))

	data, err := encodeRecord(out)
	if err != nil {
		return nil, fmt.Errorf("store: encode record %q: %w", id, err)
	}
	if err := c.storage.Put(ctx, &Entry{Key: c.rawKey(id), Value: data}); err != nil {
		return nil, fmt.Errorf("store: put %q: %w", id, err)
	}
	return out, nil
}

// postRaw assigns a fresh server-chosen id and writes rec under it.
func (c *Collection) postRaw(ctx context.Context, rec Record) (Record, error) {
	id, err := idcodec.NewRandomID(randsrc.Read)
	if err != nil {
		return nil, fmt.Errorf("store: generate id: %w", err)
	}
	out := rec.Clone()
	out.SetID(id)
	return c.putRaw(ctx, out)
}

// findOne returns at most one record matching selector.
func (c *Collection) findOne(ctx context.Context, selector Selector) (Record, bool, error) {
	records, err := c.Find(ctx, Query{Selector: selector, Options: FindOptions{Limit: 1}})
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

// Find scans the collection for records matching query.Selector, returning
// at most query.Options.Limit of them (0 means unlimited). There is no
// query planner backing this: every Find is a full collection scan, the
// honest cost of reducing the underlying engine to Get/Put/Delete/List.
func (c *Collection) Find(ctx context.Context, query Query) ([]Record, error) {
	keys, err := c.storage.List(ctx, c.name+"/")
	if err != nil {
		return nil, fmt.Errorf("store: list %q: %w", c.name, err)
	}
	var out []Record
	for _, key := range keys {
		id := c.idFromKey(key)
		rec, err := c.getRaw(ctx, id)
		if err == ErrNotFound {
			continue // raced with a concurrent delete between List and Get.
		}
		if err != nil {
			return nil, err
		}
		if !query.Selector.Matches(rec) {
			continue
		}
		out = append(out, rec)
		if query.Options.Limit > 0 && len(out) >= query.Options.Limit {
			break
		}
	}
	return out, nil
}

// Get fetches the single record with the given id, returning ErrNotFound
// if it does not exist.
func (c *Collection) Get(ctx context.Context, id string) (Record, error) {
	return c.getRaw(ctx, id)
}

// Name returns the collection's logical name.
func (c *Collection) Name() string {
	return c.name
}

// PurgeDeleted physically removes every record tombstoned with
// "_deleted": true. It returns the number of records removed. A record
// racing a concurrent delete between the list and the delete is silently
// skipped, matching Find's own best-effort scan semantics.
func (c *Collection) PurgeDeleted(ctx context.Context) (int, error) {
	keys, err := c.storage.List(ctx, c.name+"/")
	if err != nil {
		return 0, fmt.Errorf("store: list %q: %w", c.name, err)
	}
	removed := 0
	for _, key := range keys {
		id := c.idFromKey(key)
		rec, err := c.getRaw(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return removed, err
		}
		if !rec.Deleted() {
			continue
		}
		if err := c.storage.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("store: delete %q: %w", id, err)
		}
		removed++
	}
	return removed, nil
}
