// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "encoding/json"

// Record is a freeform document record, the storage-layer analogue of a
// PouchDB/CouchDB document: an arbitrary JSON object plus the "_id"/"_rev"
// envelope fields. Documents, configs and chunks are all represented as
// Records at this layer; their typed shapes live in the packages that
// build on top of store.
type Record map[string]any

// ID returns the record's "_id" field, or "" if unset.
func (r Record) ID() string {
	s, _ := r["_id"].(string)
	return s
}

// Rev returns the record's "_rev" field, or "" if unset.
func (r Record) Rev() string {
	s, _ := r["_rev"].(string)
	return s
}

// SetID sets the record's "_id" field.
func (r Record) SetID(id string) { r["_id"] = id }

// SetRev sets the record's "_rev" field.
func (r Record) SetRev(rev string) { r["_rev"] = rev }

// Deleted reports whether the record carries "_deleted": true.
func (r Record) Deleted() bool {
	b, _ := r["_deleted"].(bool)
	return b
}

// Clone deep-copies the record via a JSON round-trip, so callers can safely
// mutate the result without aliasing the original map.
func (r Record) Clone() Record {
	b, err := json.Marshal(r)
	if err != nil {
		// Records are always built from JSON-marshalable values by this
		// package's own callers; a failure here means a caller stuffed an
		// unmarshalable value (a channel, a func) into a Record, which is a
		// programming error, not a runtime condition to recover from.
		panic("store: record is not json-marshalable: " + err.Error())
	}
	var out Record
	if err := json.Unmarshal(b, &out); err != nil {
		panic("store: record round-trip failed: " + err.Error())
	}
	return out
}

// decodeRecord parses a stored JSON blob into a Record.
func decodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// encodeRecord serializes a Record to JSON for storage.
func encodeRecord(r Record) ([]byte, error) {
	return json.Marshal(r)
}
