// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package plugin implements a HashiCorp Vault secrets engine exposing the
// Encrypted Data Vault storage core (internal/edv) as a handful of Vault
// paths: edv/config to create a vault, edv/unlock to open it for the life
// of the mount, and edv/doc, edv/doc/query and edv/doc/<id>/chunk/<index>
// for document CRUD. It is a
// demonstration harness over the core library, not the core itself — the
// core never imports this package or the Vault SDK.
package plugin

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/client"
)

// errNotUnlocked is returned when a document path is called before edv/unlock.
var errNotUnlocked = errors.New("vault is not unlocked - call edv/unlock first")

// edvBackend is the framework.Backend wiring this plugin exposes: a cached
// handle (an unlocked *client.Client) guarded by an RWMutex using a
// check-lock-check pattern, invalidated on storage changes rather than
// left to go stale.
type edvBackend struct {
	*framework.Backend

	// clientLock protects sc and unlocked.
	clientLock sync.RWMutex
	sc         *client.StorageContext
	unlocked   *client.Client
}

// Factory creates a new instance of the edvBackend. This is the entry point
// called by Vault when the plugin is loaded.
func Factory(ctx context.Context, conf *logical.BackendConfig) (logical.Backend, error) {
	b := &edvBackend{}

	b.Backend = &framework.Backend{
		BackendType:    logical.TypeLogical,
		Help:           strings.TrimSpace(backendHelp),
		InitializeFunc: b.initialize,
		Invalidate:     b.invalidate,
		Paths: framework.PathAppend(
			b.pathConfig(),
			b.pathUnlock(),
			b.pathDoc(),
			b.pathDocQuery(),
			b.pathDocChunk(),
		),
	}

	if err := b.Setup(ctx, conf); err != nil {
		return nil, err
	}

	return b, nil
}

// initialize is called when the backend is first mounted or Vault starts.
// The storage context is built lazily on first use instead, since no
// request (and therefore no logical.Storage) is available here.
func (b *edvBackend) initialize(ctx context.Context, req *logical.InitializationRequest) error {
	return nil
}

// invalidate is called by Vault when a key in storage is modified,
// including from a standby node mirroring a primary's writes. Any change
// drops the cached unlocked client; the next document request fails with
// errNotUnlocked until edv/unlock is called again.
func (b *edvBackend) invalidate(ctx context.Context, key string) {
	b.clientLock.Lock()
	b.unlocked = nil
	b.clientLock.Unlock()
}

// storageContext returns the backend's StorageContext, lazily wrapping
// req.Storage in a vaultStorage adapter and initializing the core's
// collections on first use. Vault guarantees the same storage view is
// handed to every request against a given mount, so caching it here is
// safe.
func (b *edvBackend) storageContext(ctx context.Context, storage logical.Storage) (*client.StorageContext, error) {
	b.clientLock.RLock()
	if b.sc != nil {
		sc := b.sc
		b.clientLock.RUnlock()
		return sc, nil
	}
	b.clientLock.RUnlock()

	b.clientLock.Lock()
	defer b.clientLock.Unlock()
	if b.sc != nil {
		return b.sc, nil
	}

	sc := client.NewStorageContext(newVaultStorage(storage), b.Logger())
	if err := sc.Initialize(ctx); err != nil {
		return nil, err
	}
	b.sc = sc
	return sc, nil
}

// cachedClient returns the currently unlocked client, if any.
func (b *edvBackend) cachedClient() *client.Client {
	b.clientLock.RLock()
	defer b.clientLock.RUnlock()
	return b.unlocked
}

// setUnlocked caches c as the backend's unlocked client.
func (b *edvBackend) setUnlocked(c *client.Client) {
	b.clientLock.Lock()
	b.unlocked = c
	b.clientLock.Unlock()
}

// unlockedClient returns the cached unlocked client or errNotUnlocked.
func (b *edvBackend) unlockedClient() (*client.Client, error) {
	c := b.cachedClient()
	if c == nil {
		return nil, errNotUnlocked
	}
	return c, nil
}

// backendHelp is the help text shown when running `vault path-help <mount>`.
const backendHelp = `
The Encrypted Data Vault (EDV) secrets engine stores password-protected
documents and their secondary indexes behind Vault's storage barrier.

A vault is created with edv/config, which, given a password, derives and
wraps a fresh key pair. It takes no caller-supplied key references, so a
request without a password fails validation.
edv/unlock opens a previously created vault for the life of the mount.
Once unlocked, edv/doc, edv/doc/query and edv/doc/<id>/chunk/<index>
provide document CRUD, blinded-attribute queries and chunked-payload
storage.

Endpoints:
  edv/config                   - Create an EDV configuration, generating keys
  edv/unlock                   - Unlock a previously created EDV with its password
  edv/doc                      - Insert, update or fetch an encrypted document
  edv/doc/query                - Run a blinded-attribute query over documents
  edv/doc/<id>/chunk/<index>   - Store or fetch a document's chunked payload

For more information, see the plugin documentation.
`
