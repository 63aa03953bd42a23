// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package secrets implements deriving, wrapping and unwrapping the two
// per-vault keys (the blinded-index HMAC key and the key-agreement key)
// from a user password, and persisting the result as a secret
// configuration record.
package secrets

import (
	"fmt"

	"github.com/hashicorp/go-uuid"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/crypto"
	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/idcodec"
)

// CipherVersion selects the key-agreement suite a secret uses.
type CipherVersion string

const (
	// CipherRecommended uses X25519 for key agreement.
	CipherRecommended CipherVersion = "recommended"
	// CipherFips uses P-256 for key agreement.
	CipherFips CipherVersion = "fips"
)

// SecretVersion is the only supported persisted secret schema version.
const SecretVersion = "1"

const (
	saltSize       = crypto.Pbkdf2SaltSize
	wrappedKeySize = crypto.KekKeySize + 8 // RFC 3394 AES-KW overhead.
	wrappedKakSize = crypto.P256PaddedKeySize + 8
)

// Keys is the pair of sub-keys derived from a password-unlocked secret,
// plus which cipher suite produced them.
type Keys struct {
	Hmac            *crypto.Hmac
	KeyAgreementKey crypto.KeyAgreementKey
	CipherVersion   CipherVersion
}

// KeyAgreementKeyID returns the id assigned to the key-agreement key,
// whichever cipher suite produced it.
func (k Keys) KeyAgreementKeyID() string {
	switch kak := k.KeyAgreementKey.(type) {
	case *crypto.X25519Kak:
		return kak.ID
	case *crypto.P256Kak:
		return kak.ID
	default:
		return ""
	}
}

// KeyAgreementKeyType returns the verification-method type label for the
// key-agreement key, whichever cipher suite produced it.
func (k Keys) KeyAgreementKeyType() string {
	switch k.KeyAgreementKey.(type) {
	case *crypto.X25519Kak:
		return crypto.X25519KeyType
	case *crypto.P256Kak:
		return crypto.P256KeyType
	default:
		return ""
	}
}

// PublicKeyMultibase exports the key-agreement key's public half, the form
// a local-only key resolver hands back to the encryption core.
func (k Keys) PublicKeyMultibase() (string, error) {
	switch kak := k.KeyAgreementKey.(type) {
	case *crypto.X25519Kak:
		return kak.PublicKeyMultibase()
	case *crypto.P256Kak:
		return kak.PublicKeyMultibase()
	default:
		return "", fmt.Errorf("secrets: unknown key agreement key type %T", k.KeyAgreementKey)
	}
}

// GenerateOptions is the input to Generate.
type GenerateOptions struct {
	ID            string
	Password      string
	CipherVersion CipherVersion // defaults to CipherRecommended
}

// GenerateResult is the output of Generate: the usable keys plus the
// record ready to persist via a configstore.Store.
type GenerateResult struct {
	Keys
	Config map[string]any
}

// Generate derives a fresh kdk, wraps it under a PBKDF2-derived kek, and
// (for the fips suite) generates and wraps a P-256 key-agreement keypair.
func Generate(opts GenerateOptions) (*GenerateResult, error) {
	cipherVersion := opts.CipherVersion
	if cipherVersion == "" {
		cipherVersion = CipherRecommended
	}
	if cipherVersion != CipherRecommended && cipherVersion != CipherFips {
		return nil, fmt.Errorf("secrets: unsupported cipher version %q", cipherVersion)
	}

	kdk, err := crypto.GenerateHmac()
	if err != nil {
		return nil, fmt.Errorf("secrets: generate kdk: %w", err)
	}

	derived, err := crypto.DeriveBits(crypto.Pbkdf2Params{Password: opts.Password})
	if err != nil {
		return nil, fmt.Errorf("secrets: derive kek: %w", err)
	}
	kekSecret := derived.DerivedBits
	kek, err := crypto.ImportKek(kekSecret)
	if err != nil {
		crypto.Zero(kekSecret)
		return nil, fmt.Errorf("secrets: import kek: %w", err)
	}
	crypto.Zero(kekSecret)

	kdkBytes := kdk.RawBytes()
	wrappedKey, err := kek.WrapKey(kdkBytes)
	if err != nil {
		crypto.Zero(kdkBytes)
		return nil, fmt.Errorf("secrets: wrap kdk: %w", err)
	}

	secretRec := map[string]any{
		"version": SecretVersion,
	}
	salt, err := idcodec.Encode(derived.Salt)
	if err != nil {
		crypto.Zero(kdkBytes)
		return nil, fmt.Errorf("secrets: encode salt: %w", err)
	}
	secretRec["salt"] = salt
	wrappedKeyEnc, err := idcodec.Encode(wrappedKey)
	if err != nil {
		crypto.Zero(kdkBytes)
		return nil, fmt.Errorf("secrets: encode wrapped key: %w", err)
	}
	secretRec["wrappedKey"] = wrappedKeyEnc

	var p256 *crypto.P256Kak
	if cipherVersion == CipherFips {
		p256, err = crypto.GenerateP256Kak()
		if err != nil {
			crypto.Zero(kdkBytes)
			return nil, fmt.Errorf("secrets: generate p-256 kak: %w", err)
		}
		raw := p256.RawPadded()
		wrappedKak, err := kek.WrapKey(raw)
		crypto.Zero(raw)
		if err != nil {
			crypto.Zero(kdkBytes)
			return nil, fmt.Errorf("secrets: wrap p-256 kak: %w", err)
		}
		wrappedKakEnc, err := idcodec.Encode(wrappedKak)
		if err != nil {
			crypto.Zero(kdkBytes)
			return nil, fmt.Errorf("secrets: encode wrapped kak: %w", err)
		}
		secretRec["wrappedKeyAgreementKey"] = wrappedKakEnc
	}

	keys, err := deriveKeys(kdk, p256, cipherVersion)
	crypto.Zero(kdkBytes)
	if err != nil {
		return nil, err
	}

	hmacID, err := uuidURN()
	if err != nil {
		return nil, err
	}
	kakID, err := uuidURN()
	if err != nil {
		return nil, err
	}
	keys.Hmac.ID = hmacID
	switch k := keys.KeyAgreementKey.(type) {
	case *crypto.X25519Kak:
		k.ID = kakID
	case *crypto.P256Kak:
		k.ID = kakID
	}

	config := map[string]any{
		"id":                opts.ID,
		"hmacId":            hmacID,
		"keyAgreementKeyId": kakID,
		"secret":            secretRec,
		"sequence":          float64(0),
	}

	return &GenerateResult{Keys: *keys, Config: config}, nil
}

// Decrypt reverses Generate given the correct password, returning nil (not
// an error) when the password is wrong: a Kek unwrap failure is a plain
// negative result, never an exception.
func Decrypt(config map[string]any, password string) (*Keys, error) {
	secretRec, ok := config["secret"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secrets: config.secret missing or malformed")
	}
	version, _ := secretRec["version"].(string)
	if version != SecretVersion {
		return nil, fmt.Errorf("secrets: unsupported secret version %q", version)
	}

	saltStr, _ := secretRec["salt"].(string)
	salt, err := idcodec.Decode(saltStr, saltSize)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode salt: %w", err)
	}
	wrappedKeyStr, _ := secretRec["wrappedKey"].(string)
	wrappedKey, err := idcodec.Decode(wrappedKeyStr, wrappedKeySize)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode wrapped key: %w", err)
	}

	derived, err := crypto.DeriveBits(crypto.Pbkdf2Params{Password: password, Salt: salt})
	if err != nil {
		return nil, fmt.Errorf("secrets: derive kek: %w", err)
	}
	kekSecret := derived.DerivedBits
	kek, err := crypto.ImportKek(kekSecret)
	crypto.Zero(kekSecret)
	if err != nil {
		return nil, fmt.Errorf("secrets: import kek: %w", err)
	}

	kdkBytes, ok := kek.UnwrapKey(wrappedKey)
	if !ok {
		return nil, nil
	}

	kdk, err := crypto.ImportHmac(kdkBytes)
	if err != nil {
		crypto.Zero(kdkBytes)
		return nil, fmt.Errorf("secrets: import kdk: %w", err)
	}

	var p256 *crypto.P256Kak
	cipherVersion := CipherRecommended
	if wrappedKakStr, present := secretRec["wrappedKeyAgreementKey"].(string); present {
		cipherVersion = CipherFips
		wrappedKak, err := idcodec.Decode(wrappedKakStr, wrappedKakSize)
		if err != nil {
			crypto.Zero(kdkBytes)
			return nil, fmt.Errorf("secrets: decode wrapped kak: %w", err)
		}
		raw, ok := kek.UnwrapKey(wrappedKak)
		if !ok {
			crypto.Zero(kdkBytes)
			return nil, fmt.Errorf("secrets: invalid stored key agreement key")
		}
		secret, public, err := crypto.SplitRawPadded(raw)
		crypto.Zero(raw)
		if err != nil {
			crypto.Zero(kdkBytes)
			return nil, fmt.Errorf("secrets: invalid stored key agreement key: %w", err)
		}
		p256, err = crypto.ImportP256Kak(secret, public)
		crypto.Zero(secret)
		if err != nil {
			crypto.Zero(kdkBytes)
			return nil, fmt.Errorf("secrets: invalid stored key agreement key: %w", err)
		}
	}

	keys, err := deriveKeys(kdk, p256, cipherVersion)
	crypto.Zero(kdkBytes)
	if err != nil {
		return nil, err
	}

	hmacID, _ := config["hmacId"].(string)
	kakID, _ := config["keyAgreementKeyId"].(string)
	keys.Hmac.ID = hmacID
	switch k := keys.KeyAgreementKey.(type) {
	case *crypto.X25519Kak:
		k.ID = kakID
	case *crypto.P256Kak:
		k.ID = kakID
	}

	return keys, nil
}

// deriveKeys derives the hmac and key-agreement sub-keys: sub-keys are MAC
// outputs of the kdk under fixed labels, except the fips KAK which is
// reconstructed from the already-unwrapped P-256 keypair.
func deriveKeys(kdk *crypto.Hmac, p256 *crypto.P256Kak, cipherVersion CipherVersion) (*Keys, error) {
	hmacSecret := kdk.Sign([]byte("hmac"))
	hmacKey, err := crypto.ImportHmac(hmacSecret)
	crypto.Zero(hmacSecret)
	if err != nil {
		return nil, fmt.Errorf("secrets: derive hmac sub-key: %w", err)
	}

	if p256 != nil {
		return &Keys{Hmac: hmacKey, KeyAgreementKey: p256, CipherVersion: CipherFips}, nil
	}

	kakSecret := kdk.Sign([]byte("keyAgreementKey"))
	x25519Key, err := crypto.ImportX25519Kak(kakSecret)
	crypto.Zero(kakSecret)
	if err != nil {
		return nil, fmt.Errorf("secrets: derive x25519 sub-key: %w", err)
	}
	_ = cipherVersion
	return &Keys{Hmac: hmacKey, KeyAgreementKey: x25519Key, CipherVersion: CipherRecommended}, nil
}

func uuidURN() (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("secrets: generate uuid: %w", err)
	}
	return "urn:uuid:" + id, nil
}
