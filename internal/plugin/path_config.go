// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/client"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/secrets"
)

// pathConfig returns the path configuration for edv/config.
func (b *edvBackend) pathConfig() []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "config",
			Fields: map[string]*framework.FieldSchema{
				"id": {
					Type:        framework.TypeString,
					Description: "Identifier for the EDV vault being created.",
				},
				"controller": {
					Type:        framework.TypeString,
					Description: "Controller identifier (e.g. a DID) that owns this vault.",
				},
				"password": {
					Type:        framework.TypeString,
					Description: "If set, a fresh key pair is derived from this password and the vault is unlocked immediately.",
				},
				"cipher_version": {
					Type:        framework.TypeString,
					Description: `Key-agreement cipher suite: "recommended" (X25519, default) or "fips" (P-256).`,
					Default:     string(secrets.CipherRecommended),
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.handleConfigCreate,
					Summary:  "Create an EDV configuration.",
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.handleConfigCreate,
					Summary:  "Create an EDV configuration.",
				},
			},
			ExistenceCheck:  b.configExists,
			HelpSynopsis:    pathConfigHelpSyn,
			HelpDescription: pathConfigHelpDesc,
		},
	}
}

// pathUnlock returns the path configuration for edv/unlock.
func (b *edvBackend) pathUnlock() []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "unlock",
			Fields: map[string]*framework.FieldSchema{
				"id": {
					Type:        framework.TypeString,
					Description: "Identifier of the EDV vault to unlock.",
				},
				"password": {
					Type:        framework.TypeString,
					Description: "Password the vault was created with.",
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.handleUnlock,
					Summary:  "Unlock a previously created EDV.",
				},
			},
			HelpSynopsis:    pathUnlockHelpSyn,
			HelpDescription: pathUnlockHelpDesc,
		},
	}
}

// handleConfigCreate creates a new EDV configuration, recovering a panic
// here: the core library calls through third-party crypto/codec code whose
// panics must not bring down the Vault plugin process.
func (b *edvBackend) handleConfigCreate(ctx context.Context, req *logical.Request, data *framework.FieldData) (resp *logical.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger().Error("panic handling edv config create", "recover", r)
			err = fmt.Errorf("internal error creating EDV configuration")
		}
	}()

	id := data.Get("id").(string)
	if id == "" {
		return nil, fmt.Errorf("%q is required", "id")
	}
	controller := data.Get("controller").(string)
	password := data.Get("password").(string)
	cipherVersion := secrets.CipherVersion(data.Get("cipher_version").(string))

	sc, err := b.storageContext(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	result, err := client.CreateEdv(ctx, sc, client.CreateEdvOpts{
		Config:        map[string]any{"id": id, "controller": controller, "sequence": float64(0)},
		Password:      password,
		CipherVersion: cipherVersion,
	}, nil)
	if err != nil {
		return nil, err
	}

	if result.Client != nil {
		b.setUnlocked(result.Client)
	}

	return &logical.Response{Data: result.Config}, nil
}

// configExists checks whether an EDV configuration already exists for the
// requested id (for ExistenceCheck).
func (b *edvBackend) configExists(ctx context.Context, req *logical.Request, data *framework.FieldData) (bool, error) {
	id := data.Get("id").(string)
	if id == "" {
		return false, nil
	}
	sc, err := b.storageContext(ctx, req.Storage)
	if err != nil {
		return false, err
	}
	if err := sc.Initialize(ctx); err != nil {
		return false, err
	}
	return sc.VaultConfigs.Exists(ctx, id)
}

// handleUnlock unlocks a previously created EDV, caching the resulting
// client for subsequent document requests on this mount.
func (b *edvBackend) handleUnlock(ctx context.Context, req *logical.Request, data *framework.FieldData) (resp *logical.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger().Error("panic handling edv unlock", "recover", r)
			err = fmt.Errorf("internal error unlocking EDV")
		}
	}()

	id := data.Get("id").(string)
	password := data.Get("password").(string)
	if id == "" || password == "" {
		return nil, fmt.Errorf("%q and %q are required", "id", "password")
	}

	sc, err := b.storageContext(ctx, req.Storage)
	if err != nil {
		return nil, err
	}

	c, err := client.FromLocalSecrets(ctx, sc, id, password, nil)
	if err != nil {
		return nil, err
	}
	b.setUnlocked(c)

	return &logical.Response{Data: map[string]any{"cipher_version": string(c.CipherVersion())}}, nil
}

const pathConfigHelpSyn = `Create an Encrypted Data Vault configuration.`

const pathConfigHelpDesc = `
This endpoint creates a new EDV configuration record. If a password is
supplied, a fresh HMAC blinding key and key-agreement key pair are derived
from it (PBKDF2 over the password, AES-KW wrapping the derived material)
and the vault is unlocked for the life of this mount.

Parameters:
  id              - Identifier for the vault
  controller      - Controller identifier that owns the vault
  password        - Keys are generated from it and the vault unlocked; this
                    path takes no key references, so a request without a
                    password fails validation
  cipher_version   - "recommended" (X25519, default) or "fips" (P-256)
`

const pathUnlockHelpSyn = `Unlock a previously created Encrypted Data Vault.`

const pathUnlockHelpDesc = `
This endpoint unlocks an EDV created earlier (possibly by a prior mount or
process) given its id and password, caching the resulting key material for
document requests on this mount until the next invalidation.
`
