// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "strings"

// Selector is a small Mango-style query selector: a map of field name to
// either a literal value to match by equality, or one of the operator
// forms this package understands ($gt: nil for existence, $in for
// membership, $all for array containment), plus an optional top-level
// "$or" of alternative Selectors. It is intentionally far smaller than a
// real Mango/Cloudant selector language — just enough to express the
// document and index lookups the rest of this codebase builds.
type Selector map[string]any

// Query pairs a Selector with find options (an index hint and/or limit).
type Query struct {
	Selector Selector
	Options  FindOptions
}

// FindOptions carries the planner hints a find() call accepts. UseIndex is
// advisory only in this implementation (there is no query planner to
// steer), kept so callers can still express an index preference.
type FindOptions struct {
	Limit    int
	UseIndex []string
}

// Matches reports whether record satisfies the selector.
func (s Selector) Matches(record Record) bool {
	for field, want := range s {
		if field == "$or" {
			alts, ok := want.([]Selector)
			if !ok {
				return false
			}
			matched := false
			for _, alt := range alts {
				if alt.Matches(record) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
			continue
		}
		if !matchField(fieldValue(record, field), want) {
			return false
		}
	}
	return true
}

// fieldValue resolves a dotted field path (e.g. "doc.sequence") against a
// record whose nested objects decode as map[string]any, mirroring how a
// Mango-style selector addresses fields inside an embedded document.
func fieldValue(record Record, path string) any {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(record)
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func matchField(got, want any) bool {
	switch w := want.(type) {
	case Op:
		return w.matches(got)
	default:
		return equalJSON(got, want)
	}
}

// Op is an operator applied to a single field, e.g. Gt{}, In{...}, All{...}.
type Op interface {
	matches(got any) bool
}

// Gt is the existence-check operator used as {field: Gt{}} to mean "field
// is set and non-nil" (an `attributes: {$gt: null}` style planner hint).
type Gt struct{}

func (Gt) matches(got any) bool { return got != nil }

// In matches a scalar field equal to one of Values, or an array field that
// intersects Values.
type In struct{ Values []any }

func (in In) matches(got any) bool {
	arr, ok := got.([]any)
	if !ok {
		for _, v := range in.Values {
			if equalJSON(got, v) {
				return true
			}
		}
		return false
	}
	for _, elem := range arr {
		for _, v := range in.Values {
			if equalJSON(elem, v) {
				return true
			}
		}
	}
	return false
}

// All matches an array field that is a superset of Values.
type All struct{ Values []any }

func (a All) matches(got any) bool {
	arr, ok := got.([]any)
	if !ok {
		return false
	}
	for _, v := range a.Values {
		found := false
		for _, elem := range arr {
			if equalJSON(elem, v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func equalJSON(a, b any) bool {
	// Records are decoded from JSON, so numeric fields surface as
	// float64; comparing strings directly and everything else with ==
	// keeps string/float/bool comparisons simple without reflect.DeepEqual.
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == b
}
