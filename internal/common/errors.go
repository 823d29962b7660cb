// Package common defines shared sentinel errors used across the engine's
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Diff errors. ErrUnparseable means a payload could not be interpreted
	// as line-oriented text; it is surfaced, never retried.
	ErrUnparseable = errors.New("unparseable payload")

	// Version store errors.
	ErrEmptyPayload = errors.New("empty payload")

	// Sync surface errors.
	ErrOffline = errors.New("offline")

	// Resolution errors. ErrConcurrentResolution means another resolution
	// for the same resource is mid-pipeline; callers should await, not
	// retry immediately. ErrConflictTerminal guards illegal transitions.
	ErrConcurrentResolution = errors.New("concurrent resolution in progress")
	ErrRequiresManualMerge  = errors.New("requires manual merge")
	ErrConflictTerminal     = errors.New("conflict already terminal")

	// Rule configuration errors.
	ErrInvalidRule = errors.New("invalid rule")

	// Sandbox errors for user-supplied merge procedures. A sandbox failure
	// always falls back to manual review, never to an unvalidated result.
	ErrSandboxTimeout   = errors.New("sandbox timeout")
	ErrSandboxViolation = errors.New("sandbox violation")
)
