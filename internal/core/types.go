package core

import (
	"bytes"
	"io"
	"os"
	"time"
)

// Status is the lifecycle state of a Record.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUploading   Status = "uploading"
	StatusInterrupted Status = "interrupted"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transition can leave the status.
// Interrupted records can still be retried and are not terminal.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// ErrorCode identifies why a file was rejected before reaching the adapter.
type ErrorCode string

const (
	ErrFileTooLarge    ErrorCode = "FILE_TOO_LARGE"
	ErrFileInvalidType ErrorCode = "FILE_INVALID_TYPE"
	ErrTooManyFiles    ErrorCode = "TOO_MANY_FILES"
	ErrFileTooSmall    ErrorCode = "FILE_TOO_SMALL"
	ErrFileInvalid     ErrorCode = "FILE_INVALID"
	ErrFileExists      ErrorCode = "FILE_EXISTS"
)

// Payload is an opaque handle on the bytes of a file. Open may be called more
// than once: every attempt, including retries, reads the content from the start.
type Payload interface {
	Open() (io.ReadCloser, error)
}

// BytesPayload holds file content in memory. The reader returned by Open
// also implements io.Seeker.
type BytesPayload []byte

func (p BytesPayload) Open() (io.ReadCloser, error) {
	return bytesReader{bytes.NewReader(p)}, nil
}

type bytesReader struct{ *bytes.Reader }

func (bytesReader) Close() error { return nil }

// PathPayload reads file content from the local filesystem.
type PathPayload string

func (p PathPayload) Open() (io.ReadCloser, error) {
	return os.Open(string(p))
}

// File describes a selected file.
type File struct {
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	MimeType string  `json:"mimeType"`
	Payload  Payload `json:"-"`
}

// Metadata is attached to every adapter call made by a Manager.
type Metadata map[string]any

// Result is produced by a successful adapter call.
type Result struct {
	URL      string         `json:"url"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Record is the in-memory state of one file's upload lifecycle.
type Record struct {
	ID       string    `json:"id"`
	File     File      `json:"file"`
	Progress float64   `json:"progress"`
	Status   Status    `json:"status"`
	Errors   []string  `json:"errors,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	AddedAt  time.Time `json:"addedAt"`
}

// Retryable reports whether the record can be sent through Retry.
func (r Record) Retryable() bool {
	return r.Status == StatusInterrupted
}

// LastError returns the most recent entry of the error history, or "".
func (r Record) LastError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[len(r.Errors)-1]
}

// clone returns a copy that shares no mutable state with r.
func (r Record) clone() Record {
	if r.Errors != nil {
		r.Errors = append([]string(nil), r.Errors...)
	}
	if r.Result != nil {
		res := *r.Result
		r.Result = &res
	}
	return r
}

// Rejection pairs a file with the codes that kept it out of the upload set.
type Rejection struct {
	File  File
	Codes []ErrorCode
}
