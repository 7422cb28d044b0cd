// This file contains shared utilities and helper functions used across handlers.
package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/uploadkit/internal/core"
	"github.com/JonMunkholm/uploadkit/internal/session"
)

var (
	errFileNotFound   = errors.New("file not found")
	errNoFiles        = errors.New("no files in request")
	errHistoryOff     = errors.New("upload history is not enabled")
	errNotRestartable = errors.New("file is not pending or interrupted")
	errNotRetryable   = errors.New("file is not interrupted")
)

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// fileRecord returns the {id} record of the request's session.
func fileRecord(r *http.Request) (*session.Session, core.Record, bool) {
	sess := sessionFrom(r.Context())
	rec, ok := sess.Manager.Record(chi.URLParam(r, "id"))
	return sess, rec, ok
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON and writes it with status.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
