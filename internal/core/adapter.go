package core

import "context"

// UploadInput is everything an adapter receives for one upload attempt.
type UploadInput struct {
	File     File
	FileID   string
	Metadata Metadata

	// OnProgress may be called any number of times with a percentage in
	// [0,100]. It is safe to call from any goroutine and after the upload
	// settled; late calls are ignored.
	OnProgress func(percent float64)
}

// Adapter performs the actual transfer. The context is the cancellation
// signal: when it is done the adapter must return promptly.
//
// Failures must be reported as *RetryableError or *FatalError. Any other
// error is treated as retryable.
type Adapter interface {
	Upload(ctx context.Context, in UploadInput) (Result, error)
}

// Canceler is implemented by adapters that want a best-effort notification
// when an in-flight upload is aborted.
type Canceler interface {
	Cancel(ctx context.Context, fileID string) error
}

// Deleter is implemented by adapters that can remove an uploaded file from
// the remote side before the record is dropped locally.
type Deleter interface {
	Delete(ctx context.Context, fileID string) error
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(ctx context.Context, in UploadInput) (Result, error)

func (f AdapterFunc) Upload(ctx context.Context, in UploadInput) (Result, error) {
	return f(ctx, in)
}
