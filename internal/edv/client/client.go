// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/crypto"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/documents"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/idcodec"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/secrets"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/transport"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

// CreateEdvOpts is the typed parameter record for CreateEdv, in place of a
// freeform option bag.
type CreateEdvOpts struct {
	Config        map[string]any
	Password      string
	CipherVersion secrets.CipherVersion // defaults to secrets.CipherRecommended
}

// CreateEdvResult is what CreateEdv returns: the persisted vault config,
// and (only when a password was supplied) an unlocked Client.
type CreateEdvResult struct {
	Config map[string]any
	Client *Client
}

// Client is an unlocked vault handle combining the key material with a
// Transport and an external transport.EncryptionCore.
type Client struct {
	tr            *vaultTransport
	keys          *secrets.Keys
	cipherVersion secrets.CipherVersion
	core          transport.EncryptionCore
}

func defaultCore(core transport.EncryptionCore) transport.EncryptionCore {
	if core == nil {
		return transport.PassthroughCore{}
	}
	return core
}

// CreateEdv initializes storage, optionally generates (or reuses) a
// password-gated secret, persists the vault config, and hands back an
// unlocked Client when a password was given.
func CreateEdv(ctx context.Context, sc *StorageContext, opts CreateEdvOpts, core transport.EncryptionCore) (*CreateEdvResult, error) {
	if err := sc.Initialize(ctx); err != nil {
		return nil, err
	}

	config := cloneConfig(opts.Config)
	id, _ := config["id"].(string)
	if !idcodec.ValidID(id) {
		return nil, idcodec.IdentifierError(id)
	}

	var keys *secrets.Keys
	cipherVersion := opts.CipherVersion
	if opts.Password != "" {
		if _, ok := config["hmac"]; ok {
			return nil, errors.New(`"config" must not have "hmac" or "keyAgreementKey" if these are to be populated using locally generated secrets.`)
		}
		if _, ok := config["keyAgreementKey"]; ok {
			return nil, errors.New(`"config" must not have "hmac" or "keyAgreementKey" if these are to be populated using locally generated secrets.`)
		}
		if cipherVersion == "" {
			cipherVersion = secrets.CipherRecommended
		}

		k, err := lazyCreateSecret(ctx, sc, id, opts.Password, cipherVersion)
		if err != nil {
			return nil, err
		}
		keys = k

		kakPubID := keys.KeyAgreementKeyID()
		config["hmac"] = map[string]any{"id": keys.Hmac.ID, "type": crypto.HmacKeyType}
		config["keyAgreementKey"] = map[string]any{"id": kakPubID, "type": keys.KeyAgreementKeyType()}
	}

	tr := newVaultTransport(sc, id)
	persisted, err := tr.CreateEdv(ctx, config)
	if err != nil {
		return nil, err
	}

	result := &CreateEdvResult{Config: persisted}
	if keys != nil {
		result.Client = &Client{tr: tr, keys: keys, cipherVersion: keys.CipherVersion, core: defaultCore(core)}
	}
	return result, nil
}

// lazyCreateSecret generates a fresh secret and persists it; if one
// already exists for id, it reuses it provided the password matches and no
// vault config has claimed it yet.
func lazyCreateSecret(ctx context.Context, sc *StorageContext, id, password string, cipherVersion secrets.CipherVersion) (*secrets.Keys, error) {
	gen, err := secrets.Generate(secrets.GenerateOptions{ID: id, Password: password, CipherVersion: cipherVersion})
	if err != nil {
		return nil, err
	}

	if _, err := sc.Secrets.Insert(ctx, gen.Config); err == nil {
		return &gen.Keys, nil
	} else if _, ok := xerrors.IsConstraint(err); !ok {
		return nil, err
	}

	exists, err := sc.VaultConfigs.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, xerrors.NewDuplicateError("Duplicate EDV configuration.")
	}

	existing, err := sc.Secrets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	keys, err := secrets.Decrypt(existing, password)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, fmt.Errorf("Secret already exists for EDV ID (%s) but password to unlock it is invalid.", id)
	}
	return keys, nil
}

// FromLocalSecrets unlocks an existing vault from its stored secret and
// vault configs.
func FromLocalSecrets(ctx context.Context, sc *StorageContext, edvID, password string, core transport.EncryptionCore) (*Client, error) {
	if err := sc.Initialize(ctx); err != nil {
		return nil, err
	}

	var secretConfig, vaultConfig map[string]any
	var secretErr, vaultErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		secretConfig, secretErr = sc.Secrets.Get(ctx, edvID)
	}()
	go func() {
		defer wg.Done()
		vaultConfig, vaultErr = sc.VaultConfigs.Get(ctx, edvID)
	}()
	wg.Wait()
	if secretErr != nil {
		return nil, secretErr
	}
	if vaultErr != nil {
		return nil, vaultErr
	}

	keys, err := secrets.Decrypt(secretConfig, password)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, errors.New("Invalid password.")
	}
	_ = vaultConfig // the vault config is re-fetched on demand via GetConfig; loading it up front only validates it exists.

	tr := newVaultTransport(sc, edvID)
	return &Client{tr: tr, keys: keys, cipherVersion: keys.CipherVersion, core: defaultCore(core)}, nil
}

func cloneConfig(config map[string]any) map[string]any {
	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = v
	}
	return out
}

// CipherVersion reports which key-agreement suite unlocked this client.
func (c *Client) CipherVersion() secrets.CipherVersion {
	return c.cipherVersion
}

// KeyResolver resolves only this vault's own key-agreement key id to its
// exported public form; it never reaches out to any other key source.
func (c *Client) KeyResolver(id string) (string, error) {
	if id != c.keys.KeyAgreementKeyID() {
		return "", fmt.Errorf("client: key %q is not resolvable locally", id)
	}
	return c.keys.PublicKeyMultibase()
}

// Insert delegates to the encryption core's Insert, supplying this
// client's Transport.
func (c *Client) Insert(ctx context.Context, doc map[string]any) error {
	return c.core.Insert(ctx, c.tr, doc)
}

// Update delegates to the encryption core's Update with deleted=false.
func (c *Client) Update(ctx context.Context, doc map[string]any) error {
	return c.core.Update(ctx, c.tr, doc, false)
}

// Delete delegates to the encryption core's Update with deleted=true,
// folded into the Update call's deleted flag instead of a separate
// wrapper type.
func (c *Client) Delete(ctx context.Context, doc map[string]any) error {
	return c.core.Update(ctx, c.tr, doc, true)
}

// Get delegates to the encryption core's Get.
func (c *Client) Get(ctx context.Context, id string) (map[string]any, error) {
	return c.core.Get(ctx, c.tr, id)
}

// GetStream concatenates every chunk of id's document, in index order,
// into a single io.Reader. Chunks are opaque JWE blobs to this layer; it
// neither decodes nor decrypts them.
func (c *Client) GetStream(ctx context.Context, id string) (*bytes.Reader, error) {
	var buf bytes.Buffer
	for index := 0; ; index++ {
		rec, err := c.tr.GetChunk(ctx, id, index)
		if err != nil {
			if xerrors.IsNotFound(err) {
				break
			}
			return nil, err
		}
		chunk, _ := rec["chunk"].(map[string]any)
		jwe, _ := chunk["jwe"].(string)
		buf.WriteString(jwe)
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// FindResult is the page of documents Find returns. HasMore is computed by
// asking the transport for one extra document beyond the caller's limit,
// detecting overflow without a separate count query.
type FindResult struct {
	Documents []map[string]any
	HasMore   bool
}

func toTransportQuery(q documents.EdvQuery) transport.FindQuery {
	limit := 0
	if q.Limit != nil {
		limit = *q.Limit
	}
	return transport.FindQuery{Index: q.Index, Equals: q.Equals, Has: q.Has, Count: q.Count, Limit: limit}
}

// Find delegates to the encryption core's Find, requesting limit+1
// documents (when a limit is set) so HasMore can be computed by trimming
// the surplus rather than issuing a second count query.
func (c *Client) Find(ctx context.Context, query documents.EdvQuery) (*FindResult, error) {
	tq := toTransportQuery(query)
	limit := tq.Limit
	if limit > 0 {
		tq.Limit = limit + 1
	}

	res, err := c.core.Find(ctx, c.tr, tq)
	if err != nil {
		return nil, err
	}

	docs := res.Documents
	hasMore := false
	if limit > 0 && len(docs) > limit {
		hasMore = true
		docs = docs[:limit]
	}
	return &FindResult{Documents: docs, HasMore: hasMore}, nil
}

// Count delegates to the encryption core's Find with Count set.
func (c *Client) Count(ctx context.Context, query documents.EdvQuery) (int, error) {
	query.Count = true
	res, err := c.core.Find(ctx, c.tr, toTransportQuery(query))
	if err != nil {
		return 0, err
	}
	if res.Count == nil {
		return 0, errors.New("client: find did not return a count")
	}
	return *res.Count, nil
}

// GetConfig delegates to the encryption core's GetConfig.
func (c *Client) GetConfig(ctx context.Context) (map[string]any, error) {
	return c.core.GetConfig(ctx, c.tr)
}

// UpdateConfig delegates to the encryption core's UpdateConfig.
func (c *Client) UpdateConfig(ctx context.Context, config map[string]any) (map[string]any, error) {
	return c.core.UpdateConfig(ctx, c.tr, config)
}

// StoreChunk writes a document chunk directly through the Transport (chunk
// payloads are already opaque JWEs prepared by the caller, there is
// nothing for the encryption core to do).
func (c *Client) StoreChunk(ctx context.Context, docID string, chunk map[string]any) (map[string]any, error) {
	return c.tr.StoreChunk(ctx, docID, chunk)
}

// GetChunk reads a single document chunk directly through the Transport.
func (c *Client) GetChunk(ctx context.Context, docID string, index int) (map[string]any, error) {
	return c.tr.GetChunk(ctx, docID, index)
}
