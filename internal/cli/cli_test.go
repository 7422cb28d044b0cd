package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	charm "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/uploadkit/internal/adapter/mockadapter"
	"github.com/JonMunkholm/uploadkit/internal/core"
)

// cleanEnv clears the variables a developer shell might carry into the tests.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "DB_URL", "UPLOAD_ADAPTER", "UPLOAD_MOCK_PRESET",
		"UPLOAD_ENDPOINT", "UPLOAD_ACCEPT_FILE", "UPLOAD_MAX_FILES", "UPLOAD_METADATA",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

const pdf = "%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n"

func TestUpload_FastPresetCompletes(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.pdf", pdf)
	b := writeFile(t, dir, "b.pdf", pdf+"\n")

	out, _, err := run(t, "upload", "--adapter", "mock", "--preset", "fast", a, b)
	require.NoError(t, err)

	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "mock://uploaded/a.pdf")
	assert.Contains(t, out, "mock://uploaded/b.pdf")
	assert.Contains(t, out, "completed")
}

func TestUpload_RejectedFileFailsRun(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	good := writeFile(t, dir, "a.pdf", pdf)
	bad := writeFile(t, dir, "notes.txt", "plain text notes\n")

	out, _, err := run(t, "upload", "--preset", "fast", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files did not upload")

	assert.Contains(t, out, "mock://uploaded/a.pdf")
	assert.Contains(t, out, "File type is not allowed")
}

func TestUpload_ErrorPresetReportsFailure(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.pdf", pdf)

	out, _, err := run(t, "upload", "--preset", "error", path)
	require.Error(t, err)
	assert.Contains(t, out, "Unsupported file type")
	assert.Contains(t, out, "error")
}

func TestUpload_InterruptedIsRetried(t *testing.T) {
	cleanEnv(t)
	prev := retryBackoff
	retryBackoff = 10 * time.Millisecond
	t.Cleanup(func() { retryBackoff = prev })

	dir := t.TempDir()
	path := writeFile(t, dir, "a.pdf", pdf)

	out, errOut, err := run(t, "upload", "--preset", "interrupted", "--retries", "1", path)
	require.NoError(t, err)
	assert.Contains(t, out, "mock://uploaded/a.pdf")
	assert.Contains(t, errOut, "retrying interrupted uploads")
}

func TestRetryInterrupted_StopsOnCancel(t *testing.T) {
	prev := retryBackoff
	retryBackoff = time.Millisecond
	t.Cleanup(func() { retryBackoff = prev })

	// First attempt drops at 1%, the retry would take ten seconds.
	a := mockadapter.New(mockadapter.Config{
		Scenario:    mockadapter.ScenarioInterrupted,
		Duration:    10 * time.Second,
		Steps:       1000,
		InterruptAt: 1,
	})
	m := core.NewManager(a, core.WithAutoUpload(false))
	t.Cleanup(m.Close)

	recs := m.AddFiles([]core.File{{Name: "a.pdf", Size: 42, MimeType: "application/pdf"}})
	require.Len(t, recs, 1)
	id := recs[0].ID
	m.UploadAll(context.Background())

	rec, _ := m.Record(id)
	require.Equal(t, core.StatusInterrupted, rec.Status)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		retryInterrupted(ctx, m, 3, charm.New(io.Discard))
	}()

	require.Eventually(t, func() bool {
		rec, _ := m.Record(id)
		return rec.Status == core.StatusUploading
	}, time.Second, 2*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retry round ignored cancellation")
	}
	rec, _ = m.Record(id)
	assert.Equal(t, core.StatusInterrupted, rec.Status)
}

func TestUpload_MaxFilesRejectsOverflow(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.pdf", pdf)
	b := writeFile(t, dir, "b.pdf", pdf+"\n")

	out, _, err := run(t, "upload", "--preset", "fast", "--max-files", "1", a, b)
	require.Error(t, err)
	assert.Contains(t, out, "Too many files selected")
}

func TestUpload_MissingFile(t *testing.T) {
	cleanEnv(t)
	_, _, err := run(t, "upload", "--preset", "fast", filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
}

func TestUpload_HTTPAdapterNeedsEndpoint(t *testing.T) {
	cleanEnv(t)
	path := writeFile(t, t.TempDir(), "a.pdf", pdf)

	_, _, err := run(t, "upload", "--adapter", "http", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPLOAD_ENDPOINT")
}

func TestAccept_PrintsDefaults(t *testing.T) {
	cleanEnv(t)
	out, _, err := run(t, "accept")
	require.NoError(t, err)

	assert.Contains(t, out, "application/pdf")
	assert.Contains(t, out, ".pdf")
	assert.Contains(t, out, "text/csv")
	assert.Contains(t, out, "Max files:")
}

func TestAccept_YAMLOutput(t *testing.T) {
	cleanEnv(t)
	out, _, err := run(t, "accept", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "maxFileSize:")
	assert.Contains(t, out, "mimeType: application/pdf")
}

func TestAccept_UnknownOutput(t *testing.T) {
	cleanEnv(t)
	_, _, err := run(t, "accept", "-o", "xml")
	require.Error(t, err)
}

func TestAccept_AcceptFileFlag(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	acceptFile := writeFile(t, dir, "accept.yaml", "accept: [text/plain]\nmaxFiles: 2\n")

	out, _, err := run(t, "--accept", acceptFile, "accept")
	require.NoError(t, err)
	assert.Contains(t, out, "text/plain")
	assert.NotContains(t, out, "application/pdf")
	assert.Contains(t, out, "Max files: 2")
}

func TestAccept_ChecksFiles(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	good := writeFile(t, dir, "a.pdf", pdf)
	bad := writeFile(t, dir, "notes.txt", "plain text notes\n")

	out, _, err := run(t, "accept", good, bad)
	require.NoError(t, err)
	assert.Contains(t, out, "a.pdf")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "File type is not allowed")
}
