package core

import (
	"log/slog"
	"maps"
)

// DefaultMaxConcurrent is the window size used by UploadAll.
const DefaultMaxConcurrent = 3

type options struct {
	autoUpload    bool
	maxConcurrent int
	maxFiles      int
	metadata      Metadata
	identity      IdentityFunc
	callbacks     Callbacks
	logger        *slog.Logger
}

func defaultOptions() options {
	return options{
		autoUpload:    true,
		maxConcurrent: DefaultMaxConcurrent,
		identity:      DefaultIdentity,
		logger:        slog.Default(),
	}
}

// Option configures a Manager.
type Option func(*options)

// WithAutoUpload controls whether admitted files start uploading right away
// (the default) or wait for StartUpload, UploadFile or UploadAll.
func WithAutoUpload(enabled bool) Option {
	return func(o *options) {
		o.autoUpload = enabled
	}
}

// WithMaxConcurrent sets the UploadAll window size. Values below 1 keep the
// default.
func WithMaxConcurrent(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithMaxFiles caps the number of accepted records. n <= 0 is unbounded.
func WithMaxFiles(n int) Option {
	return func(o *options) {
		o.maxFiles = n
	}
}

// WithMetadata attaches m to every adapter call.
func WithMetadata(m Metadata) Option {
	return func(o *options) {
		o.metadata = maps.Clone(m)
	}
}

// WithIdentity replaces the duplicate detection key.
func WithIdentity(fn IdentityFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.identity = fn
		}
	}
}

// WithCallbacks registers the event callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(o *options) {
		o.callbacks = cb
	}
}

// WithLogger sets the logger used for lifecycle diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
