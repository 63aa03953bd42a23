// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"github.com/multiformats/go-multibase"
)

// encodeMulticodecMultibase prefixes data with a multicodec header and
// multibase-encodes (base58-btc) the result, the export convention the
// x25519-key-agreement-key-2020 and Multikey verification-method suites
// use for publicKeyMultibase / secretKeyMultibase fields.
func encodeMulticodecMultibase(header, data []byte) (string, error) {
	buf := make([]byte, 0, len(header)+len(data))
	buf = append(buf, header...)
	buf = append(buf, data...)
	return multibase.Encode(multibase.Base58BTC, buf)
}
