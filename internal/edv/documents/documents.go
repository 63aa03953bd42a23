// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package documents implements encrypted-document CRUD with sequence-gated
// upserts and blinded-attribute secondary indexes built from each
// document's indexed entries.
package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/idcodec"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

// CollectionName is the logical collection name assigned to documents.
const CollectionName = "edv-storage-doc"

// KeyRef identifies a key by id and verification-method type.
type KeyRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Attribute is one already-blinded (name, value) pair attached to a
// document for equality-testable queries.
type Attribute struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Unique bool   `json:"unique,omitempty"`
}

// IndexedEntry groups Attributes blinded under a single hmac key.
type IndexedEntry struct {
	Hmac       KeyRef      `json:"hmac"`
	Sequence   float64     `json:"sequence"`
	Attributes []Attribute `json:"attributes"`
}

// Document is the encrypted-document shape this store persists. JWE is
// opaque to this package: it is never parsed, only stored and returned.
type Document struct {
	ID       string         `json:"id"`
	Sequence float64        `json:"sequence"`
	JWE      any            `json:"jwe"`
	Indexed  []IndexedEntry `json:"indexed,omitempty"`
	Meta     any            `json:"meta,omitempty"`
}

// Store persists encrypted documents and maintains their secondary
// attribute indexes.
type Store struct {
	col *store.Collection
}

// NewStore opens the document collection.
func NewStore(storage store.Storage) *Store {
	return &Store{col: store.NewCollection(storage, CollectionName)}
}

// Collection exposes the underlying collection, used by the purge package
// to sweep tombstoned document records.
func (s *Store) Collection() *store.Collection {
	return s.col
}

func recordID(edvID, docID string) string {
	return edvID + ":" + docID
}

func validateDocument(doc Document) error {
	if doc.ID == "" {
		return xerrors.NewTypeError("document.id must be a non-empty string")
	}
	if !idcodec.ValidID(doc.ID) {
		return idcodec.IdentifierError(doc.ID)
	}
	if doc.Sequence < 0 {
		return xerrors.NewTypeError("document.sequence must be a non-negative number")
	}
	return nil
}

// blindedIndexKeys rebuilds the attributes / attributeNames /
// uniqueAttributes arrays from doc.Indexed.
func blindedIndexKeys(doc Document) (attributes, attributeNames, uniqueAttributes []string) {
	for _, entry := range doc.Indexed {
		h := percentEncode(entry.Hmac.ID)
		for _, attr := range entry.Attributes {
			name := h + ":" + percentEncode(attr.Name)
			full := name + ":" + percentEncode(attr.Value)
			attributes = append(attributes, full)
			attributeNames = append(attributeNames, name)
			if attr.Unique {
				uniqueAttributes = append(uniqueAttributes, full)
			}
		}
	}
	return
}

// percentEncode mirrors JavaScript's encodeURIComponent closely enough for
// building composite index-key strings: everything outside
// [A-Za-z0-9\-_.!~*'()] is percent-escaped.
func percentEncode(s string) string {
	const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_.!~*'()"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(unreserved, c) >= 0 {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func toAnySlice(strs []string) []any {
	out := make([]any, len(strs))
	for i, s := range strs {
		out[i] = s
	}
	return out
}

func docToMap(doc Document) (map[string]any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("documents: marshal document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("documents: unmarshal document: %w", err)
	}
	return m, nil
}

func buildRecord(edvID string, doc Document, deleted bool) (store.Record, error) {
	docMap, err := docToMap(doc)
	if err != nil {
		return nil, err
	}
	attributes, attributeNames, uniqueAttributes := blindedIndexKeys(doc)

	rec := store.Record{
		"_id":        recordID(edvID, doc.ID),
		"localEdvId": edvID,
		"doc":        docMap,
	}
	if len(attributes) > 0 {
		rec["attributes"] = toAnySlice(attributes)
	}
	if len(attributeNames) > 0 {
		rec["attributeNames"] = toAnySlice(attributeNames)
	}
	if len(uniqueAttributes) > 0 {
		rec["uniqueAttributes"] = toAnySlice(uniqueAttributes)
	}
	if deleted {
		rec["_deleted"] = true
	}
	return rec, nil
}

func uniqueConstraints(edvID string, rec store.Record) []store.Constraint {
	uniqueAttrs, _ := rec["uniqueAttributes"].([]any)
	if len(uniqueAttrs) == 0 {
		return nil
	}
	return []store.Constraint{{
		Selector: store.Selector{
			"localEdvId":       edvID,
			"uniqueAttributes": store.In{Values: uniqueAttrs},
		},
	}}
}

// Insert persists a brand-new document. Fails with
// *xerrors.ConstraintError if the document id or any unique attribute
// already exists.
func (s *Store) Insert(ctx context.Context, edvID string, doc Document) (store.Record, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	rec, err := buildRecord(edvID, doc, false)
	if err != nil {
		return nil, err
	}
	res, err := s.col.InsertOne(ctx, store.InsertOneOptions{
		Doc:               rec,
		UniqueConstraints: uniqueConstraints(edvID, rec),
	})
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// Upsert persists an update to an existing document (or creates it, since
// upsert is unconditional here), gated on doc.Sequence == prevSequence+1.
// deleted marks the write as a tombstone rather than removing the record.
func (s *Store) Upsert(ctx context.Context, edvID string, doc Document, deleted bool) (store.Record, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	rec, err := buildRecord(edvID, doc, deleted)
	if err != nil {
		return nil, err
	}
	id := rec.ID()
	selector := store.Selector{"_id": id, "doc.sequence": doc.Sequence - 1}

	res, _, err := s.col.UpdateOne(ctx, store.UpdateOneOptions{
		Doc:               rec,
		Query:             store.Query{Selector: selector},
		Upsert:            true,
		UniqueConstraints: uniqueConstraints(edvID, rec),
	})
	if err != nil {
		if ce, ok := xerrors.IsConstraint(err); ok {
			if existing, ok := ce.Existing.(store.Record); ok && existing.ID() == id {
				return nil, xerrors.NewInvalidStateError("Could not update document. Sequence does not match.")
			}
		}
		return nil, err
	}
	return res.Record, nil
}

// Get fetches the document with the given id, failing with
// *xerrors.NotFoundError if it does not exist.
func (s *Store) Get(ctx context.Context, edvID, id string) (store.Record, error) {
	rec, err := s.col.Get(ctx, recordID(edvID, id))
	if err == store.ErrNotFound {
		return nil, xerrors.NewNotFoundError("Document not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("documents: get %q: %w", id, err)
	}
	return rec, nil
}

// Find executes query against the document collection, forcing
// localEdvId into the selector if the caller omitted it.
func (s *Store) Find(ctx context.Context, edvID string, query store.Query) ([]store.Record, error) {
	selector := query.Selector
	if _, ok := selector["localEdvId"]; !ok {
		merged := store.Selector{"localEdvId": edvID}
		for k, v := range selector {
			merged[k] = v
		}
		selector = merged
	}
	return s.col.Find(ctx, store.Query{Selector: selector, Options: query.Options})
}
