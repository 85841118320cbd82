// Package errors re-exports github.com/cockroachdb/errors so that every
// skylink package wraps, marks, and inspects errors the same way.
//
//	if err := links.Resolve(ref, target); err != nil {
//	    return errors.Wrapf(err, "evaluate %s", subset)
//	}
//
// Stack traces, hints, and marks survive wrapping; use Is to test against the
// sentinels defined in pkg/domain.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Creation and wrapping.
var (
	New           = crdb.New
	Newf          = crdb.Newf
	Wrap          = crdb.Wrap
	Wrapf         = crdb.Wrapf
	WithStack     = crdb.WithStack
	WithMessage   = crdb.WithMessage
	WithMessagef  = crdb.WithMessagef
	Mark          = crdb.Mark
	CombineErrors = crdb.CombineErrors
)

// User-facing hints and details.
var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

// Inspection.
var (
	Is         = crdb.Is
	IsAny      = crdb.IsAny
	As         = crdb.As
	Unwrap     = crdb.Unwrap
	UnwrapOnce = crdb.UnwrapOnce
	UnwrapAll  = crdb.UnwrapAll
)

// Assertions.
var (
	AssertionFailedf = crdb.AssertionFailedf
)
