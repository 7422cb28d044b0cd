package core

import (
	"errors"
	"testing"
)

func TestMessageFor(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"FILE_TOO_LARGE", "File size exceeds the maximum limit"},
		{"FILE_INVALID_TYPE", "File type is not allowed"},
		{"TOO_MANY_FILES", "Too many files selected"},
		{"FILE_TOO_SMALL", "File size is too small"},
		{"FILE_INVALID", "File is invalid"},
		{"FILE_EXISTS", "File already exists"},
		{"SOMETHING_ELSE", "SOMETHING_ELSE"},
		{"", "File validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := MessageFor(tt.code); got != tt.want {
				t.Errorf("MessageFor(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "limiter timeout maps to busy",
			err:         errors.New("too many concurrent uploads, please try again later"),
			wantCode:    "UPL001",
			wantMessage: "The server is busy with other uploads",
		},
		{
			name:        "cancellation maps correctly",
			err:         errors.New("Upload cancelled"),
			wantCode:    "UPL002",
			wantMessage: "The upload was cancelled",
		},
		{
			name:        "connection refused maps correctly",
			err:         errors.New("dial tcp 127.0.0.1:9000: connect: connection refused"),
			wantCode:    "NET001",
			wantMessage: "Unable to reach the upload server",
		},
		{
			name:        "deadline maps to timeout",
			err:         errors.New("context deadline exceeded"),
			wantCode:    "NET003",
			wantMessage: "The upload timed out",
		},
		{
			name:        "session expiry maps correctly",
			err:         errors.New("session not found: abc"),
			wantCode:    "SES001",
			wantMessage: "Your upload session has expired",
		},
		{
			name:        "rate limit maps correctly",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("HTTP: REQUEST BODY TOO LARGE"),
			wantCode:    "FILE001",
			wantMessage: "File exceeds the maximum size limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("read: connection reset by peer"))

	expected := "The connection was interrupted (Code: NET002). Retry the upload"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", errors.New("file not found: x"), true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := errors.New("forbidden: bad token")
		userErr := NewUserError(techErr)

		if userErr.Error() != "You are not allowed to upload here" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, techErr) {
			t.Error("Unwrap() should return original error")
		}
	})
}
