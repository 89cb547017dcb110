// Package streams defines the append-only log store contract used by the
// publisher and subscriber sides, plus an in-memory implementation.
//
// A stream is addressed by a string id. Appends are idempotent by message
// id, reads are paged forwards from VersionStart or backwards from
// VersionEnd, and Metadata.MaxCount caps how many messages a stream retains.
package streams
