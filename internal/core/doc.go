// Package core provides the file upload state machine.
//
// This package tracks a set of uploads, decides which newly selected files are
// admitted, drives each admitted file through its lifecycle by calling a
// pluggable [Adapter], and reports every transition through [Callbacks]. It has
// no knowledge of HTTP, storage or rendering and can be used by web handlers,
// CLI tools, or tests without modification.
//
// # Lifecycle
//
// Every tracked file is a [Record]. Records move through these states:
//
//	pending -> uploading -> completed | interrupted | error | cancelled
//	interrupted -> uploading (retry)
//
// Admission errors (FILE_EXISTS, TOO_MANY_FILES, and the validation codes
// produced upstream) create records directly in the error state. They are
// terminal. Transport failures are classified by the adapter: a
// [RetryableError] leaves the record interrupted, a [FatalError] leaves it in
// error. Errors of any other type are treated as retryable.
//
// # Admission
//
// Two files are identical when their [IdentityFunc] keys match. The default
// key combines name, byte size and MIME type. Duplicates are filtered before
// the max-files limit is applied, so a duplicate never consumes a slot:
//
//	m := core.NewManager(adapter,
//	    core.WithMaxFiles(5),
//	    core.WithMaxConcurrent(3),
//	)
//	admitted := m.AddFiles(files)
//
// # Cancellation
//
// The [Manager] owns one context.CancelFunc per uploading record. The token
// exists exactly while the record is uploading and is released on every
// settlement path. Once a record is cancelled, a late rejection from the
// adapter is discarded.
//
// # Batch Completion
//
// OnAllFileUploadsComplete is edge-triggered: it fires once each time the set
// goes from having an upload in flight to being non-empty with none in flight.
// [Manager.UploadAll] holds the signal back until its last window settles.
package core
