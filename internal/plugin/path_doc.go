// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/documents"
)

// pathDoc returns the path configuration for doc/<id>: insert, update and
// fetch of a single encrypted document.
func (b *edvBackend) pathDoc() []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "doc/" + framework.GenericNameRegex("id"),
			Fields: map[string]*framework.FieldSchema{
				"id": {
					Type:        framework.TypeString,
					Description: "Document identifier.",
				},
				"sequence": {
					Type:        framework.TypeInt,
					Description: "Expected next sequence number for this document.",
				},
				"jwe": {
					Type:        framework.TypeString,
					Description: "Opaque encrypted payload. Never parsed by this plugin.",
				},
				"indexed": {
					Type:        framework.TypeSlice,
					Description: "Pre-blinded indexed attribute entries.",
				},
				"meta": {
					Type:        framework.TypeMap,
					Description: "Opaque cleartext metadata attached to the document.",
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.handleDocInsert,
					Summary:  "Insert a new encrypted document.",
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.handleDocUpdate,
					Summary:  "Update (or tombstone) an existing encrypted document.",
				},
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.handleDocGet,
					Summary:  "Fetch an encrypted document.",
				},
				logical.DeleteOperation: &framework.PathOperation{
					Callback: b.handleDocDelete,
					Summary:  "Tombstone an encrypted document.",
				},
			},
			ExistenceCheck:  b.docExists,
			HelpSynopsis:    pathDocHelpSyn,
			HelpDescription: pathDocHelpDesc,
		},
	}
}

func docFromFieldData(data *framework.FieldData) map[string]any {
	doc := map[string]any{
		"id":       data.Get("id").(string),
		"sequence": float64(data.Get("sequence").(int)),
		"jwe":      data.Get("jwe").(string),
	}
	if indexed, ok := data.GetOk("indexed"); ok {
		doc["indexed"] = indexed
	}
	if meta, ok := data.GetOk("meta"); ok {
		doc["meta"] = meta
	}
	return doc
}

// handleDocInsert inserts a brand-new document. Panics from the core's
// JSON/codec handling are recovered here so a bad payload cannot bring
// down the Vault plugin process.
func (b *edvBackend) handleDocInsert(ctx context.Context, req *logical.Request, data *framework.FieldData) (resp *logical.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger().Error("panic handling edv doc insert", "recover", r)
			err = fmt.Errorf("internal error inserting document")
		}
	}()

	c, err := b.unlockedClient()
	if err != nil {
		return nil, err
	}
	if err := c.Insert(ctx, docFromFieldData(data)); err != nil {
		return nil, err
	}
	return &logical.Response{}, nil
}

// handleDocUpdate updates an existing document.
func (b *edvBackend) handleDocUpdate(ctx context.Context, req *logical.Request, data *framework.FieldData) (resp *logical.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger().Error("panic handling edv doc update", "recover", r)
			err = fmt.Errorf("internal error updating document")
		}
	}()

	c, err := b.unlockedClient()
	if err != nil {
		return nil, err
	}
	if err := c.Update(ctx, docFromFieldData(data)); err != nil {
		return nil, err
	}
	return &logical.Response{}, nil
}

// handleDocDelete tombstones an existing document by writing the next
// sequence with deleted=true, rather than physically removing it.
func (b *edvBackend) handleDocDelete(ctx context.Context, req *logical.Request, data *framework.FieldData) (resp *logical.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger().Error("panic handling edv doc delete", "recover", r)
			err = fmt.Errorf("internal error deleting document")
		}
	}()

	c, err := b.unlockedClient()
	if err != nil {
		return nil, err
	}
	if err := c.Delete(ctx, docFromFieldData(data)); err != nil {
		return nil, err
	}
	return &logical.Response{}, nil
}

// handleDocGet fetches a document by id.
func (b *edvBackend) handleDocGet(ctx context.Context, req *logical.Request, data *framework.FieldData) (resp *logical.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger().Error("panic handling edv doc get", "recover", r)
			err = fmt.Errorf("internal error fetching document")
		}
	}()

	c, err := b.unlockedClient()
	if err != nil {
		return nil, err
	}
	doc, err := c.Get(ctx, data.Get("id").(string))
	if err != nil {
		return nil, err
	}
	return &logical.Response{Data: doc}, nil
}

// docExists checks whether a document already exists for ExistenceCheck,
// deciding whether Vault routes the request to handleDocInsert or
// handleDocUpdate.
func (b *edvBackend) docExists(ctx context.Context, req *logical.Request, data *framework.FieldData) (bool, error) {
	c, err := b.unlockedClient()
	if err != nil {
		return false, nil
	}
	_, err = c.Get(ctx, data.Get("id").(string))
	if err != nil {
		return false, nil
	}
	return true, nil
}

// pathDocQuery returns the path configuration for doc/query: blinded
// attribute lookup.
func (b *edvBackend) pathDocQuery() []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "doc/query",
			Fields: map[string]*framework.FieldSchema{
				"index": {
					Type:        framework.TypeString,
					Description: "HMAC key id the blinded attribute names/values were computed under.",
				},
				"equals": {
					Type:        framework.TypeSlice,
					Description: "List of {name: value} maps to match by equality (mutually exclusive with has).",
				},
				"has": {
					Type:        framework.TypeStringSlice,
					Description: "List of attribute names to match by presence (mutually exclusive with equals).",
				},
				"count": {
					Type:        framework.TypeBool,
					Description: "If true, return a count instead of documents.",
				},
				"limit": {
					Type:        framework.TypeInt,
					Description: "Maximum number of documents to return.",
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.handleDocQuery,
					Summary:  "Run a blinded-attribute query over documents.",
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.handleDocQuery,
					Summary:  "Run a blinded-attribute query over documents.",
				},
			},
			HelpSynopsis:    pathDocQueryHelpSyn,
			HelpDescription: pathDocQueryHelpDesc,
		},
	}
}

// handleDocQuery compiles and executes a blinded-attribute query.
func (b *edvBackend) handleDocQuery(ctx context.Context, req *logical.Request, data *framework.FieldData) (resp *logical.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger().Error("panic handling edv doc query", "recover", r)
			err = fmt.Errorf("internal error running query")
		}
	}()

	c, err := b.unlockedClient()
	if err != nil {
		return nil, err
	}

	query := documents.EdvQuery{
		Index: data.Get("index").(string),
		Count: data.Get("count").(bool),
	}
	if equalsRaw, ok := data.GetOk("equals"); ok {
		if list, ok := equalsRaw.([]interface{}); ok {
			for _, item := range list {
				m, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				eq := make(map[string]string, len(m))
				for k, v := range m {
					if s, ok := v.(string); ok {
						eq[k] = s
					}
				}
				query.Equals = append(query.Equals, eq)
			}
		}
	}
	if has, ok := data.GetOk("has"); ok {
		query.Has = has.([]string)
	}
	if limit, ok := data.GetOk("limit"); ok {
		l := limit.(int)
		if l > 0 {
			query.Limit = &l
		}
	}

	if query.Count {
		n, err := c.Count(ctx, query)
		if err != nil {
			return nil, err
		}
		return &logical.Response{Data: map[string]any{"count": n}}, nil
	}

	result, err := c.Find(ctx, query)
	if err != nil {
		return nil, err
	}
	return &logical.Response{Data: map[string]any{
		"documents": result.Documents,
		"has_more":  result.HasMore,
	}}, nil
}

const pathDocHelpSyn = `Insert, update or fetch an encrypted document.`

const pathDocHelpDesc = `
This endpoint manages a single encrypted document by id. jwe is an opaque
blob, never parsed by this plugin; sequence enforces optimistic
concurrency. A delete tombstones the document rather than physically
removing it; the tombstone is later swept by a background purge.
`

const pathDocQueryHelpSyn = `Run a blinded-attribute query over documents.`

const pathDocQueryHelpDesc = `
This endpoint compiles a structured query over pre-blinded attribute
names/values (equals) or attribute presence (has), both scoped to a single
index (hmac key id), and executes it against the document collection.
`
