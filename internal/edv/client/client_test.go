// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"testing"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/documents"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/idcodec"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/secrets"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store/memstore"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

func newSC() *StorageContext {
	return NewStorageContext(memstore.New(), nil)
}

// testID returns a well-formed vault/document identifier, distinct per seed
// byte, for use where the test needs a fixed, recognizable id.
func testID(t *testing.T, seed byte) string {
	t.Helper()
	id, err := idcodec.Encode(bytes.Repeat([]byte{seed}, idcodec.RandomIDSize))
	if err != nil {
		t.Fatalf("idcodec.Encode: %v", err)
	}
	return id
}

func newVaultConfig(id string) map[string]any {
	return map[string]any{
		"id":         id,
		"controller": "did:example:controller",
		"sequence":   float64(0),
	}
}

// S1: createEdv with a password generates a fresh secret and an unlocked
// client.
func TestCreateEdvWithPasswordGeneratesSecret(t *testing.T) {
	ctx := context.Background()
	sc := newSC()

	res, err := CreateEdv(ctx, sc, CreateEdvOpts{
		Config:   newVaultConfig(testID(t, 1)),
		Password: "correct horse battery staple",
	}, nil)
	if err != nil {
		t.Fatalf("CreateEdv: %v", err)
	}
	if res.Client == nil {
		t.Fatal("expected an unlocked client")
	}
	if _, ok := res.Config["hmac"].(map[string]any); !ok {
		t.Fatalf("expected hmac reference in persisted config, got %#v", res.Config)
	}
	if res.Client.CipherVersion() != secrets.CipherRecommended {
		t.Fatalf("expected recommended cipher by default, got %q", res.Client.CipherVersion())
	}
}

// S2: createEdv without a password leaves hmac/keyAgreementKey as supplied
// and returns no client.
func TestCreateEdvWithoutPasswordRequiresCallerSuppliedKeys(t *testing.T) {
	ctx := context.Background()
	sc := newSC()

	config := newVaultConfig(testID(t, 2))
	config["hmac"] = map[string]any{"id": "urn:uuid:a", "type": "Sha256HmacKey2019"}
	config["keyAgreementKey"] = map[string]any{"id": "urn:uuid:b", "type": "X25519KeyAgreementKey2019"}

	res, err := CreateEdv(ctx, sc, CreateEdvOpts{Config: config}, nil)
	if err != nil {
		t.Fatalf("CreateEdv: %v", err)
	}
	if res.Client != nil {
		t.Fatal("expected no client without a password")
	}
}

// S3: createEdv rejects a config that already carries hmac/keyAgreementKey
// when a password is also supplied.
func TestCreateEdvRejectsPrepopulatedKeysWithPassword(t *testing.T) {
	ctx := context.Background()
	sc := newSC()

	config := newVaultConfig(testID(t, 3))
	config["hmac"] = map[string]any{"id": "urn:uuid:a", "type": "Sha256HmacKey2019"}

	_, err := CreateEdv(ctx, sc, CreateEdvOpts{Config: config, Password: "pw"}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
}

// S4: calling createEdv twice for the same id with the same password
// fails with a DuplicateError, because the vault config already exists
// by the time the second call finds the secret already stored.
func TestCreateEdvTwiceRejectsDuplicateConfig(t *testing.T) {
	ctx := context.Background()
	sc := newSC()

	id := testID(t, 4)
	first, err := CreateEdv(ctx, sc, CreateEdvOpts{Config: newVaultConfig(id), Password: "pw"}, nil)
	if err != nil {
		t.Fatalf("first CreateEdv: %v", err)
	}

	_, err = CreateEdv(ctx, sc, CreateEdvOpts{Config: newVaultConfig(id), Password: "pw"}, nil)
	if err == nil {
		t.Fatal("expected duplicate EDV configuration error")
	}
	if _, ok := err.(*xerrors.DuplicateError); !ok {
		t.Fatalf("expected *xerrors.DuplicateError, got %T: %v", err, err)
	}
	_ = first
}

// S5: reusing a secret with the wrong password fails distinctly from a
// duplicate configuration.
func TestLazyCreateSecretWrongPasswordFails(t *testing.T) {
	ctx := context.Background()
	sc := newSC()
	if err := sc.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	id := testID(t, 5)
	if _, err := lazyCreateSecret(ctx, sc, id, "correct", secrets.CipherRecommended); err != nil {
		t.Fatalf("first lazyCreateSecret: %v", err)
	}
	if _, err := lazyCreateSecret(ctx, sc, id, "wrong", secrets.CipherRecommended); err == nil {
		t.Fatal("expected an error for the wrong password")
	}
}

// fips cipher version wires the P-256 key agreement path end to end.
func TestCreateEdvFipsCipherVersion(t *testing.T) {
	ctx := context.Background()
	sc := newSC()

	res, err := CreateEdv(ctx, sc, CreateEdvOpts{
		Config:        newVaultConfig(testID(t, 6)),
		Password:      "pw",
		CipherVersion: secrets.CipherFips,
	}, nil)
	if err != nil {
		t.Fatalf("CreateEdv: %v", err)
	}
	if res.Client.CipherVersion() != secrets.CipherFips {
		t.Fatalf("expected fips cipher, got %q", res.Client.CipherVersion())
	}
	pub, err := res.Client.KeyResolver(res.Client.keys.KeyAgreementKeyID())
	if err != nil {
		t.Fatalf("KeyResolver: %v", err)
	}
	if pub == "" {
		t.Fatal("expected a non-empty public key multibase")
	}
}

func unlock(t *testing.T, ctx context.Context, sc *StorageContext, id, password string) *Client {
	t.Helper()
	c, err := FromLocalSecrets(ctx, sc, id, password, nil)
	if err != nil {
		t.Fatalf("FromLocalSecrets: %v", err)
	}
	return c
}

// S6: fromLocalSecrets unlocks a previously created vault and round-trips
// an insert/get.
func TestFromLocalSecretsInsertGet(t *testing.T) {
	ctx := context.Background()
	sc := newSC()

	edvID := testID(t, 6)
	res, err := CreateEdv(ctx, sc, CreateEdvOpts{Config: newVaultConfig(edvID), Password: "pw"}, nil)
	if err != nil {
		t.Fatalf("CreateEdv: %v", err)
	}

	unlocked := unlock(t, ctx, sc, edvID, "pw")
	if unlocked.CipherVersion() != res.Client.CipherVersion() {
		t.Fatal("cipher version should match across lock/unlock")
	}

	docID := testID(t, 1)
	doc := map[string]any{"id": docID, "sequence": float64(0), "jwe": "opaque-jwe-1"}
	if err := unlocked.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := unlocked.Get(ctx, docID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["jwe"] != "opaque-jwe-1" {
		t.Fatalf("unexpected jwe: %#v", got["jwe"])
	}
}

// fromLocalSecrets with the wrong password fails.
func TestFromLocalSecretsWrongPassword(t *testing.T) {
	ctx := context.Background()
	sc := newSC()
	edvID := testID(t, 7)
	if _, err := CreateEdv(ctx, sc, CreateEdvOpts{Config: newVaultConfig(edvID), Password: "pw"}, nil); err != nil {
		t.Fatalf("CreateEdv: %v", err)
	}
	if _, err := FromLocalSecrets(ctx, sc, edvID, "not-pw", nil); err == nil {
		t.Fatal("expected an error")
	}
}

// S7: update then delete round-trips through the client.
func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	sc := newSC()
	edvID := testID(t, 8)
	res, err := CreateEdv(ctx, sc, CreateEdvOpts{Config: newVaultConfig(edvID), Password: "pw"}, nil)
	if err != nil {
		t.Fatalf("CreateEdv: %v", err)
	}
	c := res.Client

	docID := testID(t, 2)
	doc0 := map[string]any{"id": docID, "sequence": float64(0), "jwe": "v0"}
	if err := c.Insert(ctx, doc0); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	doc1 := map[string]any{"id": docID, "sequence": float64(1), "jwe": "v1"}
	if err := c.Update(ctx, doc1); err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc2 := map[string]any{"id": docID, "sequence": float64(2), "jwe": "v2"}
	if err := c.Delete(ctx, doc2); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Delete schedules the tombstone purge in the background (see
	// vaultTransport.Update in transport.go); the record may already be
	// gone or may still be present with _deleted set, depending on
	// whether the purge has run yet.
	rec, err := sc.Documents.Get(ctx, edvID, docID)
	if err != nil {
		if !xerrors.IsNotFound(err) {
			t.Fatalf("expected NotFoundError or a tombstoned record, got %v", err)
		}
	} else if !rec.Deleted() {
		t.Fatalf("expected record to be tombstoned, got %#v", rec)
	}
}

// S8: Find trims the surplus document used to compute HasMore.
func TestFindComputesHasMore(t *testing.T) {
	ctx := context.Background()
	sc := newSC()
	res, err := CreateEdv(ctx, sc, CreateEdvOpts{Config: newVaultConfig(testID(t, 9)), Password: "pw"}, nil)
	if err != nil {
		t.Fatalf("CreateEdv: %v", err)
	}
	c := res.Client

	for i := 0; i < 3; i++ {
		doc := map[string]any{
			"id":       testID(t, byte(i+1)),
			"sequence": float64(0),
			"jwe":      "v",
			"indexed": []map[string]any{{
				"hmac":     map[string]any{"id": "idx1", "type": "Sha256HmacKey2019"},
				"sequence": float64(0),
				"attributes": []map[string]any{{
					"name": "type", "value": "shared",
				}},
			}},
		}
		if err := c.Insert(ctx, doc); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	limit := 2
	result, err := c.Find(ctx, documents.EdvQuery{
		Index:  "idx1",
		Equals: []map[string]string{{"type": "shared"}},
		Limit:  &limit,
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(result.Documents) != limit {
		t.Fatalf("expected %d documents, got %d", limit, len(result.Documents))
	}
	if !result.HasMore {
		t.Fatal("expected HasMore to be true")
	}
}
