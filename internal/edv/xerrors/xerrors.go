// Copyright 2024 The vault-plugin-secrets-edv Authors
// SPDX-License-Identifier: Apache-2.0

// Package xerrors defines the error taxonomy the EDV core uses to
// distinguish uniqueness violations, stale-sequence updates and missing
// records from ordinary failures, so callers can branch on kind instead of
// matching message strings.
package xerrors

import "fmt"

// ConstraintError reports a uniqueness violation: either the implicit _id
// constraint or a blinded-attribute unique constraint already has a match.
type ConstraintError struct {
	Message  string
	Existing any
}

func (e *ConstraintError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "constraint violated"
}

// NewConstraintError builds a ConstraintError carrying the offending record.
func NewConstraintError(message string, existing any) *ConstraintError {
	return &ConstraintError{Message: message, Existing: existing}
}

// DuplicateError is the transport-level translation of a ConstraintError on
// an identifier (vault id, document id) or on a unique blinded attribute.
type DuplicateError struct {
	Message string
}

func (e *DuplicateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "duplicate"
}

// NewDuplicateError builds a DuplicateError with the given message.
func NewDuplicateError(message string) *DuplicateError {
	return &DuplicateError{Message: message}
}

// InvalidStateError reports a sequence-gated update that could not proceed
// because the caller's sequence did not match the stored one (or the target
// did not exist and upsert was not requested).
type InvalidStateError struct {
	Message  string
	Expected any
	Actual   any
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

// NewInvalidStateError builds an InvalidStateError.
func NewInvalidStateError(message string) *InvalidStateError {
	return &InvalidStateError{Message: message}
}

// NewInvalidStateErrorf builds an InvalidStateError carrying expected/actual
// values for debugging. The message is formatted from format and args only;
// expected and actual are stored beside it, not written into it.
func NewInvalidStateErrorf(expected, actual any, format string, args ...any) *InvalidStateError {
	return &InvalidStateError{
		Message:  fmt.Sprintf(format, args...),
		Expected: expected,
		Actual:   actual,
	}
}

// NotFoundError reports that a requested record does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

// TypeError reports an argument shape/type violation. Callers should treat
// it as non-retryable.
type TypeError struct {
	Message string
}

func (e *TypeError) Error() string {
	return e.Message
}

// NewTypeError builds a TypeError.
func NewTypeError(format string, args ...any) *TypeError {
	return &TypeError{Message: fmt.Sprintf(format, args...)}
}

// IsConstraint reports whether err is a *ConstraintError.
func IsConstraint(err error) (*ConstraintError, bool) {
	ce, ok := err.(*ConstraintError)
	return ce, ok
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
