// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package idcodec implements the identifier and key-material encoding used
// throughout this codebase: "z" + base58(multihash(identity, len, bytes)).
// Vault, document, secret and salt/wrapped-key values all share this
// encoding.
package idcodec

import (
	"fmt"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/xerrors"
)

// RandomIDSize is the fixed size, in bytes, of the random payload behind a
// vault or local document identifier.
const RandomIDSize = 16

// Encode wraps raw bytes in an identity multihash and multibase-encodes the
// result as base58-btc, producing the canonical "z..." form used for vault
// ids, document ids and key-material blobs (salt, wrapped keys).
func Encode(data []byte) (string, error) {
	mh, err := multihash.Encode(data, multihash.IDENTITY)
	if err != nil {
		return "", fmt.Errorf("idcodec: encode multihash: %w", err)
	}
	encoded, err := multibase.Encode(multibase.Base58BTC, mh)
	if err != nil {
		return "", fmt.Errorf("idcodec: encode multibase: %w", err)
	}
	return encoded, nil
}

// Decode reverses Encode, validating that the multibase encoding is
// base58-btc and that the multihash is an identity hash of the expected
// digest length. A length of 0 skips the length check.
func Decode(s string, expectedLength int) ([]byte, error) {
	enc, data, err := multibase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("idcodec: decode multibase: %w", err)
	}
	if enc != multibase.Base58BTC {
		return nil, fmt.Errorf("idcodec: %q is not base58-btc multibase", s)
	}
	decoded, err := multihash.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("idcodec: decode multihash: %w", err)
	}
	if decoded.Code != multihash.IDENTITY {
		return nil, fmt.Errorf("idcodec: %q is not an identity multihash", s)
	}
	if expectedLength > 0 && len(decoded.Digest) != expectedLength {
		return nil, fmt.Errorf("idcodec: %q digest length %d, want %d", s, len(decoded.Digest), expectedLength)
	}
	return decoded.Digest, nil
}

// NewRandomID generates a fresh random 16-byte identifier, encoded per
// Encode, using the supplied random-byte source.
func NewRandomID(randRead func([]byte) error) (string, error) {
	buf := make([]byte, RandomIDSize)
	if err := randRead(buf); err != nil {
		return "", fmt.Errorf("idcodec: generate random id: %w", err)
	}
	return Encode(buf)
}

// ValidID reports whether s is a well-formed base58-multibase, identity
// multihash encoding of exactly RandomIDSize random bytes, as required of
// vault, document and secret identifiers.
func ValidID(s string) bool {
	_, err := Decode(s, RandomIDSize)
	return err == nil
}

// IdentifierError builds the *xerrors.ConstraintError returned for a
// malformed identifier, per the exact wording spec.md requires.
func IdentifierError(id string) error {
	return xerrors.NewConstraintError(
		fmt.Sprintf("Identifier %q must be base58-encoded multibase, multihash array of 16 random bytes.", id),
		nil,
	)
}
