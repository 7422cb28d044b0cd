package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/uploadkit/internal/core"
)

func upload(content string) core.UploadInput {
	return core.UploadInput{
		FileID:   "report.pdf-1-abcd",
		File:     core.File{Name: "report.pdf", Size: int64(len(content)), MimeType: "application/pdf", Payload: core.BytesPayload(content)},
		Metadata: core.Metadata{"folder": "q3"},
	}
}

func TestUpload_Success(t *testing.T) {
	var (
		gotFile string
		gotMeta map[string]any
		gotID   string
		gotAuth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		gotFile = string(b)
		gotID = r.FormValue("fileId")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("metadata")), &gotMeta))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://cdn.example/report.pdf","metadata":{"etag":"x1"}}`))
	}))
	defer srv.Close()

	a, err := New(Config{Endpoint: srv.URL, Headers: map[string]string{"Authorization": "Bearer t"}})
	require.NoError(t, err)

	var (
		mu  sync.Mutex
		pct []float64
	)
	in := upload(strings.Repeat("x", 64*1024))
	in.OnProgress = func(p float64) {
		mu.Lock()
		pct = append(pct, p)
		mu.Unlock()
	}

	res, err := a.Upload(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/report.pdf", res.URL)
	assert.Equal(t, "x1", res.Metadata["etag"])
	assert.Len(t, gotFile, 64*1024)
	assert.Equal(t, "report.pdf-1-abcd", gotID)
	assert.Equal(t, "q3", gotMeta["folder"])
	assert.Equal(t, "Bearer t", gotAuth)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, pct)
	assert.Equal(t, float64(100), pct[len(pct)-1])
}

func TestUpload_StatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		fatal   bool
		wantErr string
	}{
		{"bad request", http.StatusBadRequest, "", true, "Upload failed: Bad Request"},
		{"unsupported", http.StatusUnsupportedMediaType, "", true, "Upload failed: Unsupported Media Type"},
		{"server error", http.StatusInternalServerError, "", false, "Server error: Internal Server Error"},
		{"bad gateway", http.StatusBadGateway, "", false, "Server error: Bad Gateway"},
		{"garbage body", http.StatusOK, "<html>", true, "Invalid server response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a, err := New(Config{Endpoint: srv.URL})
			require.NoError(t, err)

			_, err = a.Upload(context.Background(), upload("data"))
			require.Error(t, err)
			assert.Equal(t, tt.fatal, core.IsFatal(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUpload_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	a, err := New(Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = a.Upload(context.Background(), upload("data"))
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err))
	assert.Contains(t, err.Error(), "Upload timeout")
}

func TestUpload_Cancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	a, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err = a.Upload(ctx, upload("data"))
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err))
	assert.Contains(t, err.Error(), "Upload cancelled")
}

func TestUpload_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	a, err := New(Config{Endpoint: endpoint})
	require.NoError(t, err)

	_, err = a.Upload(context.Background(), upload("data"))
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err))
	assert.Contains(t, err.Error(), "Network error occurred")
}

func TestUpload_MissingPayloadIsFatal(t *testing.T) {
	a, err := New(Config{Endpoint: "http://localhost/upload"})
	require.NoError(t, err)

	_, err = a.Upload(context.Background(), core.UploadInput{File: core.File{Name: "x"}})
	assert.True(t, core.IsFatal(err))
}

func TestDelete(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/gone"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasSuffix(r.URL.Path, "/locked"):
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	a, err := New(Config{Endpoint: srv.URL + "/upload", DeleteEndpoint: srv.URL + "/files/"})
	require.NoError(t, err)

	assert.NoError(t, a.Delete(context.Background(), "f1"))
	assert.NoError(t, a.Delete(context.Background(), "gone"))
	assert.ErrorContains(t, a.Delete(context.Background(), "locked"), "Forbidden")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"DELETE /files/f1", "DELETE /files/gone", "DELETE /files/locked"}, paths)
}

func TestUpload_URLFallsBackToEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a, err := New(Config{Endpoint: srv.URL + "/upload/"})
	require.NoError(t, err)

	res, err := a.Upload(context.Background(), upload("data"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/upload/report.pdf-1-abcd", res.URL)
}

func TestNew_RejectsBadEndpoint(t *testing.T) {
	_, err := New(Config{Endpoint: "not a url"})
	assert.Error(t, err)
}
