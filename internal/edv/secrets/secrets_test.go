// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"testing"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/crypto"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/store/memstore"
)

func TestGenerateDecryptRoundTripRecommended(t *testing.T) {
	res, err := Generate(GenerateOptions{ID: "z123", Password: "pw"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.CipherVersion != CipherRecommended {
		t.Fatalf("CipherVersion = %v, want %v", res.CipherVersion, CipherRecommended)
	}
	if _, ok := res.KeyAgreementKey.(*crypto.X25519Kak); !ok {
		t.Fatalf("KeyAgreementKey type = %T, want *crypto.X25519Kak", res.KeyAgreementKey)
	}
	if _, present := res.Config["secret"].(map[string]any)["wrappedKeyAgreementKey"]; present {
		t.Fatalf("recommended suite must not persist wrappedKeyAgreementKey")
	}

	keys, err := Decrypt(res.Config, "pw")
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if keys == nil {
		t.Fatal("Decrypt() = nil, want non-nil for correct password")
	}
	if keys.CipherVersion != CipherRecommended {
		t.Fatalf("CipherVersion = %v, want %v", keys.CipherVersion, CipherRecommended)
	}
}

func TestGenerateDecryptRoundTripFips(t *testing.T) {
	res, err := Generate(GenerateOptions{ID: "z123", Password: "pw", CipherVersion: CipherFips})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.CipherVersion != CipherFips {
		t.Fatalf("CipherVersion = %v, want %v", res.CipherVersion, CipherFips)
	}
	if _, ok := res.KeyAgreementKey.(*crypto.P256Kak); !ok {
		t.Fatalf("KeyAgreementKey type = %T, want *crypto.P256Kak", res.KeyAgreementKey)
	}
	if _, present := res.Config["secret"].(map[string]any)["wrappedKeyAgreementKey"]; !present {
		t.Fatalf("fips suite must persist wrappedKeyAgreementKey")
	}

	keys, err := Decrypt(res.Config, "pw")
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if keys == nil {
		t.Fatal("Decrypt() = nil, want non-nil for correct password")
	}
	if keys.CipherVersion != CipherFips {
		t.Fatalf("CipherVersion = %v, want %v", keys.CipherVersion, CipherFips)
	}
}

func TestDecryptWrongPasswordReturnsNilNotError(t *testing.T) {
	res, err := Generate(GenerateOptions{ID: "z123", Password: "correct"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	keys, err := Decrypt(res.Config, "wrong")
	if err != nil {
		t.Fatalf("Decrypt() error = %v, want nil error", err)
	}
	if keys != nil {
		t.Fatalf("Decrypt() = %v, want nil for wrong password", keys)
	}
}

func TestStoreInsertGetAndGetByIDIfExists(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memstore.New())

	res, err := Generate(GenerateOptions{ID: "z1", Password: "pw"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := s.Insert(ctx, res.Config); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := s.Insert(ctx, res.Config); err == nil {
		t.Fatal("second Insert() with same id succeeded, want *ConstraintError")
	}

	got, err := s.Get(ctx, "z1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got["id"] != "z1" {
		t.Fatalf("id = %v, want z1", got["id"])
	}

	missing, err := s.GetByIDIfExists(ctx, "z-missing")
	if err != nil {
		t.Fatalf("GetByIDIfExists() error = %v", err)
	}
	if missing != nil {
		t.Fatalf("GetByIDIfExists() = %v, want nil", missing)
	}
}
