// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

// KeyAgreementKey is the common surface of X25519Kak and P256Kak that
// callers above this package need: deriving a shared secret with a peer's
// raw public key. Higher layers hold one of these without caring which
// cipher suite produced it.
type KeyAgreementKey interface {
	DeriveSecret(peerPublicKey []byte) ([]byte, error)
}
