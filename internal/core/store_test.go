package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AddAccepted(t *testing.T) {
	s := NewStore(0, nil)

	first := s.AddAccepted(files("a.pdf"))
	require.Len(t, first, 1)
	assert.Equal(t, StatusPending, first[0].Status)
	assert.Zero(t, first[0].Progress)
	assert.True(t, strings.HasPrefix(first[0].ID, "a.pdf-"), "id %q should start with the file name", first[0].ID)

	second := s.AddAccepted(files("a.pdf", "b.pdf"))
	require.Len(t, second, 1, "duplicates are not returned as admitted")
	assert.Equal(t, "b.pdf", second[0].File.Name)

	all := s.Snapshot()
	require.Len(t, all, 3)
	assert.Equal(t, first[0], all[0], "the original record is untouched")
	assert.Equal(t, StatusError, all[1].Status)
	assert.Equal(t, []string{"FILE_EXISTS"}, all[1].Errors)
	assert.NotEqual(t, all[0].ID, all[1].ID)
}

func TestStore_AddRejected(t *testing.T) {
	s := NewStore(0, nil)

	added := s.AddRejected([]Rejection{
		{File: testFile("huge.pdf"), Codes: []ErrorCode{ErrFileTooLarge}},
		{File: testFile("virus.exe"), Codes: []ErrorCode{ErrFileInvalidType, ErrFileTooSmall}},
	})

	require.Len(t, added, 2)
	assert.Equal(t, StatusError, added[0].Status)
	assert.Equal(t, []string{"FILE_INVALID_TYPE", "FILE_TOO_SMALL"}, added[1].Errors)
	assert.Empty(t, s.Accepted())
}

func TestStore_UpdateProgress(t *testing.T) {
	s := NewStore(0, nil)
	id := s.AddAccepted(files("a.pdf"))[0].ID

	assert.False(t, s.UpdateProgress(id, 10), "pending records take no progress")

	s.UpdateStatus(id, StatusUploading, "")

	steps := []struct {
		in   float64
		want float64
	}{
		{25, 25},
		{10, 25},
		{-5, 25},
		{60, 60},
		{250, 100},
	}
	for _, step := range steps {
		s.UpdateProgress(id, step.in)
		rec, _ := s.Get(id)
		if rec.Progress != step.want {
			t.Errorf("after UpdateProgress(%v) progress = %v, want %v", step.in, rec.Progress, step.want)
		}
	}
}

func TestStore_UnknownIDIsNoop(t *testing.T) {
	s := NewStore(0, nil)
	s.AddAccepted(files("a.pdf"))
	before := s.Snapshot()

	assert.False(t, s.UpdateProgress("missing", 50))
	assert.False(t, s.UpdateStatus("missing", StatusCompleted, "boom"))
	_, ok := s.Remove("missing")
	assert.False(t, ok)

	assert.Equal(t, before, s.Snapshot())
}

func TestStore_UpdateStatusAppendsErrors(t *testing.T) {
	s := NewStore(0, nil)
	id := s.AddAccepted(files("a.pdf"))[0].ID

	s.UpdateStatus(id, StatusInterrupted, "network down")
	s.UpdateStatus(id, StatusUploading, "")
	s.UpdateStatus(id, StatusInterrupted, "timeout")

	rec, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusInterrupted, rec.Status)
	assert.Equal(t, []string{"network down", "timeout"}, rec.Errors)
	assert.Equal(t, "timeout", rec.LastError())
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore(0, nil)
	id := s.AddAccepted(files("a.pdf"))[0].ID
	s.UpdateStatus(id, StatusInterrupted, "first")

	snap := s.Snapshot()
	snap[0].Errors[0] = "mutated"
	snap[0].Status = StatusCompleted

	s.UpdateStatus(id, StatusInterrupted, "second")

	rec, _ := s.Get(id)
	assert.Equal(t, []string{"first", "second"}, rec.Errors)
	assert.Equal(t, StatusInterrupted, rec.Status)
	assert.Equal(t, []string{"mutated"}, snap[0].Errors, "old snapshot keeps its own copy")
}

func TestStore_AcceptedAndCompletion(t *testing.T) {
	s := NewStore(2, nil)
	assert.False(t, s.AllComplete(), "an empty set is never complete")

	recs := s.AddAccepted(files("a.pdf", "b.pdf", "c.pdf"))
	require.Len(t, recs, 2)
	assert.Len(t, s.Accepted(), 2)
	assert.Equal(t, 3, s.Len())

	s.UpdateStatus(recs[0].ID, StatusUploading, "")
	assert.True(t, s.Uploading())
	assert.False(t, s.AllComplete())

	s.UpdateStatus(recs[0].ID, StatusCompleted, "")
	assert.True(t, s.AllComplete())

	removed, ok := s.Remove(recs[0].ID)
	require.True(t, ok)
	assert.Equal(t, recs[0].ID, removed.ID)
	assert.Len(t, s.Accepted(), 1)

	s.Clear()
	assert.Zero(t, s.Len())
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my report (1).pdf", "my_report__1_.pdf"},
		{"dir/evil.pdf", "dir_evil.pdf"},
		{"", "file"},
	}

	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
