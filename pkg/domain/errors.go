package domain

import "skylink/pkg/errors"

// Structural errors reject the offending mutation without any state change.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateID    = errors.New("duplicate id")
	ErrSchemaConflict = errors.New("schema conflict")
	ErrLinkConflict   = errors.New("link conflict")
)

// Steady-state conditions surfaced as inactive layers rather than failures.
var (
	ErrUnreachable   = errors.New("unreachable")
	ErrUnevaluatable = errors.New("unevaluatable")
)

// ErrReconciliation marks layer failures caused by a faulting subscriber or renderer.
var ErrReconciliation = errors.New("reconciliation failed")

// ErrReentrantMutation is returned when a subscriber mutates shared state
// directly during event delivery instead of queueing the mutation.
var ErrReentrantMutation = errors.New("re-entrant mutation during event delivery")

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

// DuplicateIDf wraps ErrDuplicateID with context.
func DuplicateIDf(format string, args ...any) error {
	return errors.Wrapf(ErrDuplicateID, format, args...)
}

// SchemaConflictf wraps ErrSchemaConflict with context.
func SchemaConflictf(format string, args ...any) error {
	return errors.Wrapf(ErrSchemaConflict, format, args...)
}

// LinkConflictf wraps ErrLinkConflict with context.
func LinkConflictf(format string, args ...any) error {
	return errors.Wrapf(ErrLinkConflict, format, args...)
}

// Unreachablef wraps ErrUnreachable with context.
func Unreachablef(format string, args ...any) error {
	return errors.Wrapf(ErrUnreachable, format, args...)
}

// Unevaluatable marks cause as ErrUnevaluatable while keeping it inspectable.
func Unevaluatable(cause error, format string, args ...any) error {
	if cause == nil {
		return errors.Wrapf(ErrUnevaluatable, format, args...)
	}
	return errors.Mark(errors.Wrapf(cause, format, args...), ErrUnevaluatable)
}

// Reconciliation marks cause as ErrReconciliation while keeping it inspectable.
func Reconciliation(cause error, format string, args ...any) error {
	if cause == nil {
		return errors.Wrapf(ErrReconciliation, format, args...)
	}
	return errors.Mark(errors.Wrapf(cause, format, args...), ErrReconciliation)
}

// IsStructural reports whether err rejects a mutation outright.
func IsStructural(err error) bool {
	return errors.IsAny(err, ErrNotFound, ErrDuplicateID, ErrSchemaConflict, ErrLinkConflict)
}
