// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"
)

// pathDocChunk returns the path configuration for doc/<id>/chunk/<index>:
// storing and fetching one ordered slice of a document's encrypted
// payload.
func (b *edvBackend) pathDocChunk() []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "doc/" + framework.GenericNameRegex("id") + "/chunk/" + framework.GenericNameRegex("index"),
			Fields: map[string]*framework.FieldSchema{
				"id": {
					Type:        framework.TypeString,
					Description: "Document identifier the chunk belongs to.",
				},
				"index": {
					Type:        framework.TypeInt,
					Description: "Zero-based chunk index within the document.",
				},
				"sequence": {
					Type:        framework.TypeInt,
					Description: "Must match the document's current sequence.",
				},
				"offset": {
					Type:        framework.TypeInt,
					Description: "Byte offset of this chunk within the document's full payload.",
				},
				"jwe": {
					Type:        framework.TypeString,
					Description: "Opaque encrypted chunk payload.",
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.handleChunkStore,
					Summary:  "Store a document chunk.",
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.handleChunkStore,
					Summary:  "Store a document chunk.",
				},
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.handleChunkGet,
					Summary:  "Fetch a document chunk.",
				},
			},
			HelpSynopsis:    pathChunkHelpSyn,
			HelpDescription: pathChunkHelpDesc,
		},
	}
}

// handleChunkStore writes a single document chunk.
func (b *edvBackend) handleChunkStore(ctx context.Context, req *logical.Request, data *framework.FieldData) (resp *logical.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger().Error("panic handling edv chunk store", "recover", r)
			err = fmt.Errorf("internal error storing document chunk")
		}
	}()

	c, err := b.unlockedClient()
	if err != nil {
		return nil, err
	}

	chunk := map[string]any{
		"sequence": float64(data.Get("sequence").(int)),
		"index":    data.Get("index").(int),
		"offset":   float64(data.Get("offset").(int)),
		"jwe":      data.Get("jwe").(string),
	}
	rec, err := c.StoreChunk(ctx, data.Get("id").(string), chunk)
	if err != nil {
		return nil, err
	}
	return &logical.Response{Data: rec}, nil
}

// handleChunkGet fetches a single document chunk.
func (b *edvBackend) handleChunkGet(ctx context.Context, req *logical.Request, data *framework.FieldData) (resp *logical.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger().Error("panic handling edv chunk get", "recover", r)
			err = fmt.Errorf("internal error fetching document chunk")
		}
	}()

	c, err := b.unlockedClient()
	if err != nil {
		return nil, err
	}

	rec, err := c.GetChunk(ctx, data.Get("id").(string), data.Get("index").(int))
	if err != nil {
		return nil, err
	}
	return &logical.Response{Data: rec}, nil
}

const pathChunkHelpSyn = `Store or fetch a document's chunked payload.`

const pathChunkHelpDesc = `
This endpoint manages one ordered slice of a document's encrypted payload,
gated on sequence matching the owning document's current sequence.
`
