// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"fmt"
	"math/big"

	"github.com/lpassig/vault-plugin-secrets-edv/internal/edv/randsrc"
)

// P256SecretSize is the size, in bytes, of a P-256 private scalar.
const P256SecretSize = 32

// P256CompressedPublicSize is the size, in bytes, of a compressed P-256
// public point.
const P256CompressedPublicSize = 33

// P256RawKeySize is the combined size of P256SecretSize + P256CompressedPublicSize.
const P256RawKeySize = P256SecretSize + P256CompressedPublicSize

// P256PaddedKeySize is the zero-padded buffer size that gets wrapped: the
// 65-byte raw keypair plus 7 trailing zero bytes.
const P256PaddedKeySize = 72

// P256KeyType is the verification-method type for the "fips" cipher suite.
const P256KeyType = "Multikey"

// p256PublicMulticodec is the multicodec varint header for a compressed
// P-256 public key (0x1200), used the same way x25519's headers are used
// in multicodec.go.
var p256PublicMulticodec = []byte{0x80, 0x24}

// P256Kak is a NIST P-256 ECDH key-agreement key: the "fips" cipher suite's
// KAK.
type P256Kak struct {
	ID         string
	priv       *ecdh.PrivateKey
	compressed [P256CompressedPublicSize]byte
}

// GenerateP256Kak generates a fresh P-256 keypair.
func GenerateP256Kak() (*P256Kak, error) {
	var scalar [P256SecretSize]byte
	if err := randsrc.Read(scalar[:]); err != nil {
		return nil, fmt.Errorf("crypto: generate p-256 key: %w", err)
	}
	// A raw random scalar only rarely falls outside the P-256 group order;
	// regenerate on the (vanishingly unlikely) rejection.
	for {
		k, err := ecdh.P256().NewPrivateKey(scalar[:])
		if err == nil {
			return newP256Kak(k)
		}
		if err := randsrc.Read(scalar[:]); err != nil {
			return nil, fmt.Errorf("crypto: generate p-256 key: %w", err)
		}
	}
}

// ImportP256Kak reconstructs a keypair from a raw 32-byte secret scalar and
// its raw 33-byte compressed public point.
func ImportP256Kak(secret, publicKey []byte) (*P256Kak, error) {
	if len(secret) != P256SecretSize {
		return nil, fmt.Errorf("crypto: p-256 secret must be %d bytes, got %d", P256SecretSize, len(secret))
	}
	if len(publicKey) != P256CompressedPublicSize {
		return nil, fmt.Errorf("crypto: p-256 public key must be %d bytes, got %d", P256CompressedPublicSize, len(publicKey))
	}
	priv, err := ecdh.P256().NewPrivateKey(secret)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid p-256 secret: %w", err)
	}
	k := &P256Kak{priv: priv}
	copy(k.compressed[:], publicKey)
	return k, nil
}

func newP256Kak(priv *ecdh.PrivateKey) (*P256Kak, error) {
	compressed, err := compressP256Point(priv.PublicKey().Bytes())
	if err != nil {
		return nil, err
	}
	k := &P256Kak{priv: priv}
	copy(k.compressed[:], compressed)
	return k, nil
}

// DeriveSecret computes the shared secret with a peer's raw 33-byte
// compressed public key via P-256 ECDH.
func (k *P256Kak) DeriveSecret(peerCompressedPublicKey []byte) ([]byte, error) {
	uncompressed, err := decompressP256Point(peerCompressedPublicKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: decompress peer p-256 public key: %w", err)
	}
	peerPub, err := ecdh.P256().NewPublicKey(uncompressed)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid peer p-256 public key: %w", err)
	}
	shared, err := k.priv.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("crypto: p-256 ecdh: %w", err)
	}
	return shared, nil
}

// RawSecret returns a copy of the raw 32-byte private scalar.
func (k *P256Kak) RawSecret() []byte {
	out := make([]byte, P256SecretSize)
	copy(out, k.priv.Bytes())
	return out
}

// RawCompressedPublic returns a copy of the raw 33-byte compressed public
// point.
func (k *P256Kak) RawCompressedPublic() []byte {
	out := make([]byte, P256CompressedPublicSize)
	copy(out, k.compressed[:])
	return out
}

// RawPadded assembles the 72-byte {32-byte secret, 33-byte compressed
// public, 7 zero bytes} buffer wrapped and persisted as
// wrappedKeyAgreementKey.
func (k *P256Kak) RawPadded() []byte {
	buf := make([]byte, P256PaddedKeySize)
	copy(buf[:P256SecretSize], k.priv.Bytes())
	copy(buf[P256SecretSize:P256RawKeySize], k.compressed[:])
	return buf
}

// SplitRawPadded splits a 72-byte padded raw buffer (as produced by
// RawPadded) back into its 32-byte secret and 33-byte compressed public
// halves, ignoring the trailing padding.
func SplitRawPadded(raw []byte) (secret, public []byte, err error) {
	if len(raw) != P256PaddedKeySize {
		return nil, nil, fmt.Errorf("crypto: p-256 raw key blob must be %d bytes, got %d", P256PaddedKeySize, len(raw))
	}
	secret = append([]byte(nil), raw[:P256SecretSize]...)
	public = append([]byte(nil), raw[P256SecretSize:P256RawKeySize]...)
	return secret, public, nil
}

// PublicKeyMultibase exports the compressed public point as a multibase
// string with the p256-pub multicodec header, the Multikey verification
// method's export form.
func (k *P256Kak) PublicKeyMultibase() (string, error) {
	return encodeMulticodecMultibase(p256PublicMulticodec, k.compressed[:])
}

// Zero does nothing: crypto/ecdh.PrivateKey does not expose a way to
// mutate its internal storage, so the private scalar it holds is not
// wiped. Raw-buffer copies (RawSecret, RawPadded) are wiped by their
// holders via Zero(buf).
func (k *P256Kak) Zero() {}

func compressP256Point(uncompressed []byte) ([]byte, error) {
	if len(uncompressed) != 65 || uncompressed[0] != 0x04 {
		return nil, fmt.Errorf("crypto: expected 65-byte uncompressed p-256 point")
	}
	x := new(big.Int).SetBytes(uncompressed[1:33])
	y := new(big.Int).SetBytes(uncompressed[33:65])
	return elliptic.MarshalCompressed(elliptic.P256(), x, y), nil
}

func decompressP256Point(compressed []byte) ([]byte, error) {
	if len(compressed) != P256CompressedPublicSize {
		return nil, fmt.Errorf("crypto: expected %d-byte compressed p-256 point", P256CompressedPublicSize)
	}
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), compressed)
	if x == nil {
		return nil, fmt.Errorf("crypto: invalid compressed p-256 point")
	}
	//nolint:staticcheck // elliptic.Marshal is deprecated but crypto/ecdh has no compressed-point constructor.
	return elliptic.Marshal(elliptic.P256(), x, y), nil
}
