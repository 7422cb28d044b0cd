package core

import (
	"errors"
	"fmt"
)

// RetryableError reports a transient transport failure: network errors,
// timeouts, 5xx responses, aborted requests. The record becomes interrupted
// and can be retried.
type RetryableError struct {
	Msg string
	Err error
}

func (e *RetryableError) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return "upload failed"
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// FatalError reports a permanent failure: rejected by server validation,
// authentication, 4xx responses. The record moves to error and can only be
// removed.
type FatalError struct {
	Msg string
	Err error
}

func (e *FatalError) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return "upload failed"
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a RetryableError with a message.
func Retryable(msg string, err error) error {
	return &RetryableError{Msg: msg, Err: err}
}

// Fatal wraps err as a FatalError with a message.
func Fatal(msg string, err error) error {
	return &FatalError{Msg: msg, Err: err}
}

// IsFatal reports whether err, or any error it wraps, is a FatalError.
// Errors of unknown type are not fatal: a transient condition must never end
// up in a state the user cannot retry from.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsRetryable is the complement of IsFatal for non-nil errors.
func IsRetryable(err error) bool {
	return err != nil && !IsFatal(err)
}

// classify maps an adapter failure to the status the record settles in.
func classify(err error) Status {
	if IsFatal(err) {
		return StatusError
	}
	return StatusInterrupted
}
