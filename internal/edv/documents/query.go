// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package documents

import (
	"context"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

// EdvQuery is the structured blinded-attribute query this package
// compiles: exactly one of Equals or Has selects documents by a set of
// blinded (name, value) pairs or by presence of blinded names, both
// scoped under a single hmac key identified by Index.
type EdvQuery struct {
	Index  string
	Equals []map[string]string
	Has    []string
	Count  bool
	Limit  *int
}

func validateEdvQuery(q EdvQuery) error {
	if q.Index == "" {
		return xerrors.NewTypeError("query.index must be a non-empty string")
	}
	hasEquals := len(q.Equals) > 0
	hasHas := len(q.Has) > 0
	if hasEquals == hasHas {
		return xerrors.NewTypeError("query must set exactly one of equals or has")
	}
	if q.Limit != nil && (*q.Limit < 1 || *q.Limit > 1000) {
		return xerrors.NewTypeError("query.limit must be in [1, 1000]")
	}
	return nil
}

// CreateQuery compiles an EdvQuery into a selector plus index hint. The
// "index" field names the hmac key the blinded names/values were computed
// under.
func CreateQuery(edvID string, q EdvQuery) (store.Query, error) {
	if err := validateEdvQuery(q); err != nil {
		return store.Query{}, err
	}

	h := percentEncode(q.Index)
	selector := store.Selector{"localEdvId": edvID}
	var useIndex []string

	if len(q.Equals) > 0 {
		selector["attributes"] = store.Gt{}
		alts := make([]store.Selector, 0, len(q.Equals))
		for _, eq := range q.Equals {
			all := make([]any, 0, len(eq))
			for name, value := range eq {
				all = append(all, h+":"+percentEncode(name)+":"+percentEncode(value))
			}
			alts = append(alts, store.Selector{"attributes": store.All{Values: all}})
		}
		selector["$or"] = alts
		useIndex = []string{"edv-doc", "attributes"}
	} else {
		all := make([]any, 0, len(q.Has))
		for _, name := range q.Has {
			all = append(all, h+":"+percentEncode(name))
		}
		selector["attributeNames"] = store.All{Values: all}
		useIndex = []string{"edv-doc", "attributes.name"}
	}

	opts := store.FindOptions{UseIndex: useIndex}
	if q.Limit != nil {
		opts.Limit = *q.Limit
	}
	return store.Query{Selector: selector, Options: opts}, nil
}

// CreateQuery compiles q and executes it against the document collection,
// the combined form a compile-then-find pair is normally used as.
func (s *Store) CreateQuery(ctx context.Context, edvID string, q EdvQuery) ([]store.Record, error) {
	query, err := CreateQuery(edvID, q)
	if err != nil {
		return nil, err
	}
	return s.Find(ctx, edvID, query)
}
