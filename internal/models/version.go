package models

import "time"

// Version is an immutable snapshot of a resource's payload. Versions are
// only ever appended; Seq is the store-assigned, per-resource monotonic
// position of the snapshot in the log.
type Version struct {
	// ID is a globally unique identifier for the snapshot.
	ID string

	// ResourceID identifies the syncable unit this snapshot belongs to.
	ResourceID string

	// Author is the user or device that produced the snapshot.
	Author string

	// Origin tells whether the snapshot arrived locally, from the remote
	// side, or was produced by a resolution.
	Origin Origin

	// Seq is the per-resource monotonic sequence assigned on append.
	Seq int64

	// ChangeCount is the number of line changes relative to the previous
	// snapshot of the same resource, for display and scoring.
	ChangeCount int

	// Payload is the opaque snapshot content. The engine treats it as
	// line-oriented text for diffing; it never interprets it otherwise.
	Payload []byte

	// CreatedAt is the append time in UTC.
	CreatedAt time.Time
}
