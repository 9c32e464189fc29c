// Package common defines shared constants and sentinel errors used across
// the offline cache layers. Callers should use errors.Is to match these
// values: expected conditions (miss, locked, not found) are values here,
// never panics.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Draft store / encryption errors.
	ErrDraftLocked  = errors.New("draft is encrypted and the key is locked")
	ErrNoPassphrase = errors.New("no encryption passphrase configured")

	// Sync / queue errors.
	ErrInvalidEntityType   = errors.New("invalid entity type")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrUnknownStrategy     = errors.New("unknown conflict strategy")
	ErrStrategyUnsupported = errors.New("conflict strategy not supported")

	// Classifier errors.
	ErrUnclassified = errors.New("entity type could not be inferred with enough confidence")
)
