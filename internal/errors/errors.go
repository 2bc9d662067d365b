// Package errors provides error handling for bidsmapper.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for template authors
//   - Error marks, so a structured error can still be matched with Is
//
// Usage:
//
//	if err := t.validate(); err != nil {
//	    return errors.Wrap(err, "failed to load template")
//	}
//
//	if errors.Is(err, errors.ErrMalformedTemplate) {
//	    // abort the run
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Mark      = crdb.Mark
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Join      = crdb.Join
)

// Sentinel error kinds. Match them with Is; wrap or Mark them to add context
// while preserving the kind.
var (
	// ErrMalformedTemplate marks a structural template defect. It is fatal:
	// a template that fails validation cannot be partially trusted.
	ErrMalformedTemplate = New("malformed template")

	// ErrNoMatch means no rule can classify a source file. For a validated
	// template this is reported at load time (missing catch-all).
	ErrNoMatch = New("no matching rule")

	// ErrDuplicateIdentity means two different rules resolved to the same
	// output identity within one session.
	ErrDuplicateIdentity = New("duplicate identity")

	// ErrAlreadyMapped means a source file was submitted twice to the same
	// session.
	ErrAlreadyMapped = New("source already mapped")
)

// IsMalformedTemplate checks if an error is or wraps ErrMalformedTemplate.
func IsMalformedTemplate(err error) bool {
	return err != nil && Is(err, ErrMalformedTemplate)
}

// IsNoMatch checks if an error is or wraps ErrNoMatch.
func IsNoMatch(err error) bool {
	return err != nil && Is(err, ErrNoMatch)
}

// IsDuplicateIdentity checks if an error is or wraps ErrDuplicateIdentity.
func IsDuplicateIdentity(err error) bool {
	return err != nil && Is(err, ErrDuplicateIdentity)
}

// MarkMalformed tags err as a malformed-template error without losing its
// message or its own chain.
func MarkMalformed(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrMalformedTemplate)
}
