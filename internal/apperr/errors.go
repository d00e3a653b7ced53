// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

// Package apperr defines the error taxonomy shared by every engine component.
//
// Errors carry a Kind (how the caller should react) and a stable Code (what
// happened). Packages declare sentinels with New and attach causes with Wrap;
// errors.Is matches on Code so a wrapped sentinel still compares equal:
//
//	var ErrKeyConflict = apperr.New(apperr.KindConflict, "KEY_CONFLICT", "key version already registered")
//
//	return apperr.Wrap(ErrKeyConflict, fmt.Errorf("version %d", v))
//
//	if errors.Is(err, keys.ErrKeyConflict) { ... }
//	switch apperr.KindOf(err) { case apperr.KindIntegrity: ... }
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the reaction it requires.
type Kind string

const (
	// KindValidation is bad input. Surfaced immediately, no state change.
	KindValidation Kind = "validation"

	// KindConflict is a concurrent operation on the same tenant. Caller may retry later.
	KindConflict Kind = "conflict"

	// KindDependency is an unreachable data source or storage backend.
	KindDependency Kind = "dependency"

	// KindIntegrity is corruption or key loss: checksum mismatch, failed
	// decryption, incompatible artifact format. Requires operator attention.
	KindIntegrity Kind = "integrity"

	// KindPartialApply is a restore that wrote some entities before failing.
	KindPartialApply Kind = "partial_apply"

	// KindNotFound is a missing tenant, backup, restore or key.
	KindNotFound Kind = "not_found"

	// KindInternal is anything unexpected.
	KindInternal Kind = "internal"
)

// Error is a classified engine error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

// New creates a sentinel error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap returns a copy of sentinel with cause attached.
// A nil cause returns the sentinel itself.
func Wrap(sentinel *Error, cause error) *Error {
	if cause == nil {
		return sentinel
	}
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Cause:   cause,
	}
}

// Wrapf is Wrap with a formatted cause.
func Wrapf(sentinel *Error, format string, args ...interface{}) *Error {
	return Wrap(sentinel, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the Code of the first *Error in err's chain, or "INTERNAL".
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// IsExpected reports whether err is a classified failure that callers should
// receive as a result rather than as an error.
func IsExpected(err error) bool {
	k := KindOf(err)
	return k != "" && k != KindInternal
}

// Validation builds an ad-hoc validation error.
func Validation(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}
