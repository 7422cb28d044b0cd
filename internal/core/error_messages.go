package core

// error_messages.go turns codes and technical errors into text for people.
//
// # Admission Codes
//
// Records rejected before reaching the adapter carry one of the ErrorCode
// values in their error history. MessageFor renders them:
//
//	FILE_TOO_LARGE    - File size exceeds the maximum limit
//	FILE_INVALID_TYPE - File type is not allowed
//	TOO_MANY_FILES    - Too many files selected
//	FILE_TOO_SMALL    - File size is too small
//	FILE_INVALID      - File is invalid
//	FILE_EXISTS       - File already exists
//
// # Support Codes
//
// Technical errors returned to API clients are mapped by MapError to a
// message, a suggested action and a code users can quote to support staff:
//
//	UPL001 - Server busy: too many uploads in flight
//	         Patterns: "too many concurrent uploads"
//	UPL002 - Upload cancelled
//	         Patterns: "upload cancelled", "context canceled"
//	UPL003 - File not tracked
//	         Patterns: "file not found"
//	UPL004 - Remote delete failed
//	         Patterns: "delete failed"
//	SES001 - Session expired
//	         Patterns: "session not found"
//	NET001 - Upload server unreachable
//	         Patterns: "connection refused", "no such host"
//	NET002 - Connection interrupted
//	         Patterns: "connection reset", "broken pipe", "unexpected eof"
//	NET003 - Timed out
//	         Patterns: "timeout", "deadline exceeded"
//	NET004 - Server error
//	         Patterns: "server error"
//	FILE001 - File too large
//	         Patterns: "file too large", "request body too large"
//	FILE002 - File type not allowed
//	         Patterns: "file type"
//	FILE003 - No file in request
//	         Patterns: "no files", "multipart"
//	AUTH001 - Not allowed
//	         Patterns: "unauthorized", "forbidden", "access denied"
//	RATE001 - Too many requests
//	         Patterns: "rate limit"
//
// Anything else maps to ERR000. Check the application logs for the original
// error when users report it.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

var codeMessages = map[ErrorCode]string{
	ErrFileTooLarge:    "File size exceeds the maximum limit",
	ErrFileInvalidType: "File type is not allowed",
	ErrTooManyFiles:    "Too many files selected",
	ErrFileTooSmall:    "File size is too small",
	ErrFileInvalid:     "File is invalid",
	ErrFileExists:      "File already exists",
}

// MessageFor returns the display text for an admission code. Unknown codes
// are returned as they are; an empty code yields a generic message.
func MessageFor(code string) string {
	if msg, ok := codeMessages[ErrorCode(code)]; ok {
		return msg
	}
	if code != "" {
		return code
	}
	return "File validation failed"
}

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgBusy = UserMessage{
		Message: "The server is busy with other uploads",
		Action:  "Please try again in a few moments",
		Code:    "UPL001",
	}
	msgCancelled = UserMessage{
		Message: "The upload was cancelled",
		Action:  "Retry the upload if this was not intended",
		Code:    "UPL002",
	}
	msgUnreachable = UserMessage{
		Message: "Unable to reach the upload server",
		Action:  "Check your connection and try again",
		Code:    "NET001",
	}
	msgInterrupted = UserMessage{
		Message: "The connection was interrupted",
		Action:  "Retry the upload",
		Code:    "NET002",
	}
	msgTimeout = UserMessage{
		Message: "The upload timed out",
		Action:  "Retry the upload or try a smaller file",
		Code:    "NET003",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Choose a smaller file",
		Code:    "FILE001",
	}
	msgNoFiles = UserMessage{
		Message: "No file was found in the request",
		Action:  "Attach at least one file",
		Code:    "FILE003",
	}
	msgForbidden = UserMessage{
		Message: "You are not allowed to upload here",
		Action:  "Check your credentials",
		Code:    "AUTH001",
	}
)

var errorPatterns = []errorPattern{
	{pattern: "too many concurrent uploads", msg: msgBusy},
	{pattern: "upload cancelled", msg: msgCancelled},
	{pattern: "context canceled", msg: msgCancelled},
	{pattern: "file not found", msg: UserMessage{
		Message: "This file is no longer tracked",
		Action:  "Refresh the file list",
		Code:    "UPL003",
	}},
	{pattern: "delete failed", msg: UserMessage{
		Message: "The uploaded file could not be deleted",
		Action:  "Please try again",
		Code:    "UPL004",
	}},
	{pattern: "not pending or interrupted", msg: UserMessage{
		Message: "This file cannot be uploaded in its current state",
		Action:  "Only pending or interrupted files can be uploaded",
		Code:    "UPL005",
	}},
	{pattern: "not interrupted", msg: UserMessage{
		Message: "Only interrupted uploads can be retried",
		Action:  "Refresh the file list",
		Code:    "UPL006",
	}},
	{pattern: "history is not enabled", msg: UserMessage{
		Message: "Upload history is not available on this server",
		Code:    "SES002",
	}},
	{pattern: "session not found", msg: UserMessage{
		Message: "Your upload session has expired",
		Action:  "Reload the page to start a new session",
		Code:    "SES001",
	}},
	{pattern: "connection refused", msg: msgUnreachable},
	{pattern: "no such host", msg: msgUnreachable},
	{pattern: "connection reset", msg: msgInterrupted},
	{pattern: "broken pipe", msg: msgInterrupted},
	{pattern: "unexpected eof", msg: msgInterrupted},
	{pattern: "timeout", msg: msgTimeout},
	{pattern: "deadline exceeded", msg: msgTimeout},
	{pattern: "server error", msg: UserMessage{
		Message: "The upload server failed to store the file",
		Action:  "Retry the upload",
		Code:    "NET004",
	}},
	{pattern: "file too large", msg: msgTooLarge},
	{pattern: "request body too large", msg: msgTooLarge},
	{pattern: "file type", msg: UserMessage{
		Message: "File type is not allowed",
		Action:  "Check the list of accepted file types",
		Code:    "FILE002",
	}},
	{pattern: "no files", msg: msgNoFiles},
	{pattern: "multipart", msg: msgNoFiles},
	{pattern: "unauthorized", msg: msgForbidden},
	{pattern: "forbidden", msg: msgForbidden},
	{pattern: "access denied", msg: msgForbidden},
	{pattern: "rate limit", msg: UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or the ERR000 fallback.
//
// Example:
//
//	msg := MapError(errors.New("dial tcp: connection refused"))
//	// msg.Code == "NET001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError keeps the technical error for logs next to the message shown to
// users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
