// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"bytes"
	"testing"
)

func TestHmacSignVerify(t *testing.T) {
	h, err := GenerateHmac()
	if err != nil {
		t.Fatalf("GenerateHmac() error = %v", err)
	}
	tag := h.Sign([]byte("hello"))
	if !h.Verify([]byte("hello"), tag) {
		t.Fatal("Verify() = false, want true for matching data/tag")
	}
	if h.Verify([]byte("goodbye"), tag) {
		t.Fatal("Verify() = true, want false for mismatched data")
	}
}

func TestHmacImportRoundTrip(t *testing.T) {
	h, err := GenerateHmac()
	if err != nil {
		t.Fatalf("GenerateHmac() error = %v", err)
	}
	raw := h.RawBytes()

	imported, err := ImportHmac(raw)
	if err != nil {
		t.Fatalf("ImportHmac() error = %v", err)
	}
	tag := h.Sign([]byte("payload"))
	if !imported.Verify([]byte("payload"), tag) {
		t.Fatal("imported key failed to verify a tag signed by the original")
	}
}

func TestKekWrapUnwrapRoundTrip(t *testing.T) {
	secret := make([]byte, KekKeySize)
	for i := range secret {
		secret[i] = byte(i)
	}
	kek, err := ImportKek(secret)
	if err != nil {
		t.Fatalf("ImportKek() error = %v", err)
	}

	cek := make([]byte, 32)
	for i := range cek {
		cek[i] = byte(255 - i)
	}

	wrapped, err := kek.WrapKey(cek)
	if err != nil {
		t.Fatalf("WrapKey() error = %v", err)
	}
	if len(wrapped) != len(cek)+8 {
		t.Fatalf("len(wrapped) = %d, want %d", len(wrapped), len(cek)+8)
	}

	unwrapped, ok := kek.UnwrapKey(wrapped)
	if !ok {
		t.Fatal("UnwrapKey() ok = false, want true")
	}
	if !bytes.Equal(unwrapped, cek) {
		t.Fatalf("UnwrapKey() = %x, want %x", unwrapped, cek)
	}
}

func TestKekUnwrapWrongKeyNeverErrors(t *testing.T) {
	secretA := bytes.Repeat([]byte{0xaa}, KekKeySize)
	secretB := bytes.Repeat([]byte{0xbb}, KekKeySize)

	kekA, _ := ImportKek(secretA)
	kekB, _ := ImportKek(secretB)

	wrapped, err := kekA.WrapKey(bytes.Repeat([]byte{0x01}, 32))
	if err != nil {
		t.Fatalf("WrapKey() error = %v", err)
	}

	_, ok := kekB.UnwrapKey(wrapped)
	if ok {
		t.Fatal("UnwrapKey() with the wrong key succeeded")
	}
}

func TestDeriveBitsDeterministicForSameSalt(t *testing.T) {
	salt := bytes.Repeat([]byte{0x42}, Pbkdf2SaltSize)

	r1, err := DeriveBits(Pbkdf2Params{Password: "correct horse", Salt: salt})
	if err != nil {
		t.Fatalf("DeriveBits() error = %v", err)
	}
	r2, err := DeriveBits(Pbkdf2Params{Password: "correct horse", Salt: salt})
	if err != nil {
		t.Fatalf("DeriveBits() error = %v", err)
	}
	if !bytes.Equal(r1.DerivedBits, r2.DerivedBits) {
		t.Fatal("DeriveBits() is not deterministic for the same password/salt")
	}

	r3, err := DeriveBits(Pbkdf2Params{Password: "wrong password", Salt: salt})
	if err != nil {
		t.Fatalf("DeriveBits() error = %v", err)
	}
	if bytes.Equal(r1.DerivedBits, r3.DerivedBits) {
		t.Fatal("DeriveBits() produced identical output for different passwords")
	}
}

func TestDeriveBitsGeneratesSaltWhenNil(t *testing.T) {
	r, err := DeriveBits(Pbkdf2Params{Password: "pw"})
	if err != nil {
		t.Fatalf("DeriveBits() error = %v", err)
	}
	if len(r.Salt) != Pbkdf2SaltSize {
		t.Fatalf("len(Salt) = %d, want %d", len(r.Salt), Pbkdf2SaltSize)
	}
	if r.Iterations != Pbkdf2Iterations {
		t.Fatalf("Iterations = %d, want %d", r.Iterations, Pbkdf2Iterations)
	}
}

func TestX25519KakSharedSecretSymmetric(t *testing.T) {
	alice, err := GenerateX25519Kak()
	if err != nil {
		t.Fatalf("GenerateX25519Kak() error = %v", err)
	}
	bob, err := GenerateX25519Kak()
	if err != nil {
		t.Fatalf("GenerateX25519Kak() error = %v", err)
	}

	secretAB, err := alice.DeriveSecret(bob.PublicKey())
	if err != nil {
		t.Fatalf("alice.DeriveSecret() error = %v", err)
	}
	secretBA, err := bob.DeriveSecret(alice.PublicKey())
	if err != nil {
		t.Fatalf("bob.DeriveSecret() error = %v", err)
	}
	if !bytes.Equal(secretAB, secretBA) {
		t.Fatal("x25519 shared secrets are not symmetric")
	}
}

func TestX25519KakImportRoundTrip(t *testing.T) {
	original, err := GenerateX25519Kak()
	if err != nil {
		t.Fatalf("GenerateX25519Kak() error = %v", err)
	}
	imported, err := ImportX25519Kak(original.secret[:])
	if err != nil {
		t.Fatalf("ImportX25519Kak() error = %v", err)
	}
	if !bytes.Equal(imported.PublicKey(), original.PublicKey()) {
		t.Fatal("ImportX25519Kak() did not reconstruct the original public key")
	}
}

func TestP256KakSharedSecretSymmetric(t *testing.T) {
	alice, err := GenerateP256Kak()
	if err != nil {
		t.Fatalf("GenerateP256Kak() error = %v", err)
	}
	bob, err := GenerateP256Kak()
	if err != nil {
		t.Fatalf("GenerateP256Kak() error = %v", err)
	}

	secretAB, err := alice.DeriveSecret(bob.RawCompressedPublic())
	if err != nil {
		t.Fatalf("alice.DeriveSecret() error = %v", err)
	}
	secretBA, err := bob.DeriveSecret(alice.RawCompressedPublic())
	if err != nil {
		t.Fatalf("bob.DeriveSecret() error = %v", err)
	}
	if !bytes.Equal(secretAB, secretBA) {
		t.Fatal("p-256 shared secrets are not symmetric")
	}
}

func TestP256KakRawPaddedRoundTrip(t *testing.T) {
	original, err := GenerateP256Kak()
	if err != nil {
		t.Fatalf("GenerateP256Kak() error = %v", err)
	}
	padded := original.RawPadded()
	if len(padded) != P256PaddedKeySize {
		t.Fatalf("len(RawPadded()) = %d, want %d", len(padded), P256PaddedKeySize)
	}

	secret, public, err := SplitRawPadded(padded)
	if err != nil {
		t.Fatalf("SplitRawPadded() error = %v", err)
	}

	imported, err := ImportP256Kak(secret, public)
	if err != nil {
		t.Fatalf("ImportP256Kak() error = %v", err)
	}
	if !bytes.Equal(imported.RawCompressedPublic(), original.RawCompressedPublic()) {
		t.Fatal("ImportP256Kak() did not reconstruct the original public key")
	}
}
