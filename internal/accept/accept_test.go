package accept

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/uploadkit/internal/core"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{-1, "0 B"},
		{500, "500 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1000000, "976.56 KB"},
		{25 * 1024 * 1024, "25 MB"},
		{3 * 1024 * 1024 * 1024, "3 GB"},
		{5 * 1024 * 1024 * 1024 * 1024, "5120 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatSize(tt.bytes); got != tt.want {
				t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestIconFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"report.PDF", "picture_as_pdf"},
		{"data.csv", "table_chart"},
		{"bundle.zip", "folder_zip"},
		{"notes.txt", "insert_drive_file"},
		{"noext", "insert_drive_file"},
	}

	for _, tt := range tests {
		if got := IconFor(tt.name); got != tt.want {
			t.Errorf("IconFor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestExtensionsAndMimeTypes(t *testing.T) {
	types := []Type{
		{MimeType: "application/pdf"},
		{MimeType: "application/x-ledger", Extensions: []string{".ldg"}},
		{MimeType: "application/unknown"},
	}

	assert.Equal(t, []string{".pdf", ".ldg"}, Extensions(types))
	assert.Equal(t, []string{"application/pdf", "application/x-ledger", "application/unknown"}, MimeTypes(types))
}

func TestTypeForExtension(t *testing.T) {
	assert.Equal(t, "application/pdf", TypeForExtension(".pdf"))
	assert.Equal(t, "image/jpeg", TypeForExtension("JPEG"))
	assert.Equal(t, "image/svg+xml", TypeForExtension(".svg"))
	assert.Empty(t, TypeForExtension(".nope"))
}

func TestValidator_Validate(t *testing.T) {
	v := Validator{
		Accept:      []Type{{MimeType: "application/pdf"}, {MimeType: "image/*"}},
		MaxFileSize: 1000,
		MinFileSize: 10,
	}

	tests := []struct {
		name string
		file core.File
		want []core.ErrorCode
	}{
		{"accepted by mime", core.File{Name: "a.pdf", Size: 100, MimeType: "application/pdf"}, nil},
		{"accepted by wildcard", core.File{Name: "pic", Size: 100, MimeType: "image/png"}, nil},
		{"accepted by extension", core.File{Name: "scan.JPG", Size: 100}, nil},
		{"mime parameters ignored", core.File{Name: "a", Size: 100, MimeType: "application/pdf; charset=binary"}, nil},
		{"wrong type", core.File{Name: "a.exe", Size: 100, MimeType: "application/x-msdownload"}, []core.ErrorCode{core.ErrFileInvalidType}},
		{"too large", core.File{Name: "a.pdf", Size: 1001, MimeType: "application/pdf"}, []core.ErrorCode{core.ErrFileTooLarge}},
		{"too small", core.File{Name: "a.pdf", Size: 9, MimeType: "application/pdf"}, []core.ErrorCode{core.ErrFileTooSmall}},
		{"wrong type and too large", core.File{Name: "a.exe", Size: 5000}, []core.ErrorCode{core.ErrFileInvalidType, core.ErrFileTooLarge}},
		{"no name", core.File{Size: 100, MimeType: "application/pdf"}, []core.ErrorCode{core.ErrFileInvalid}},
		{"negative size", core.File{Name: "a.pdf", Size: -1}, []core.ErrorCode{core.ErrFileInvalid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Validate(tt.file))
		})
	}
}

func TestValidator_EmptyAcceptAllowsAnything(t *testing.T) {
	v := Validator{}
	assert.Nil(t, v.Validate(core.File{Name: "x.bin", Size: 1 << 40}))
}

func TestValidator_Partition(t *testing.T) {
	v := Validator{Accept: DefaultAccept(), MaxFileSize: DefaultMaxFileSize}

	in := []core.File{
		{Name: "a.pdf", Size: 10, MimeType: "application/pdf"},
		{Name: "b.exe", Size: 10},
		{Name: "c.csv", Size: 10, MimeType: "text/csv"},
		{Name: "d.zip", Size: DefaultMaxFileSize + 1, MimeType: "application/zip"},
	}

	accepted, rejected := v.Partition(in)

	require.Len(t, accepted, 2)
	assert.Equal(t, "a.pdf", accepted[0].Name)
	assert.Equal(t, "c.csv", accepted[1].Name)

	require.Len(t, rejected, 2)
	assert.Equal(t, "b.exe", rejected[0].File.Name)
	assert.Equal(t, []core.ErrorCode{core.ErrFileInvalidType}, rejected[0].Codes)
	assert.Equal(t, []core.ErrorCode{core.ErrFileTooLarge}, rejected[1].Codes)
}

func TestParse(t *testing.T) {
	data := []byte(`
accept:
  - application/pdf
  - image/*
  - mimeType: application/x-ledger
    extensions: [ldg, .LEDGER]
maxFileSize: 2048
maxFiles: 3
`)

	cfg, err := Parse(data, Config{MaxFileSize: DefaultMaxFileSize, MinFileSize: 1})
	require.NoError(t, err)

	assert.Equal(t, []Type{
		{MimeType: "application/pdf"},
		{MimeType: "image/*"},
		{MimeType: "application/x-ledger", Extensions: []string{".ldg", ".ledger"}},
	}, cfg.Accept)
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.Equal(t, int64(1), cfg.MinFileSize, "unset fields keep the base value")
	assert.Equal(t, 3, cfg.MaxFiles)

	assert.True(t, cfg.Validator().Allowed(core.File{Name: "books.ledger"}))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"explicit entry without extensions", "accept:\n  - mimeType: application/x-ledger\n"},
		{"explicit entry without mime", "accept:\n  - extensions: [.ldg]\n"},
		{"min above max", "maxFileSize: 10\nminFileSize: 20\n"},
		{"not yaml", "accept: [unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), Config{})
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accept.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accept: [text/csv]\n"), 0o600))

	cfg, err := LoadFile(path, Config{MaxFiles: DefaultMaxFiles})
	require.NoError(t, err)
	assert.Equal(t, []Type{{MimeType: "text/csv"}}, cfg.Accept)
	assert.Equal(t, DefaultMaxFiles, cfg.MaxFiles)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), Config{})
	assert.Error(t, err)
}

func TestDetectMime(t *testing.T) {
	tests := []struct {
		name string
		file string
		head []byte
		want string
	}{
		{"pdf magic", "whatever.bin", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n"), "application/pdf"},
		{"zip magic", "archive", []byte("PK\x03\x04\x14\x00\x00\x00"), "application/zip"},
		{"unknown binary falls back to extension", "data.csv", []byte{0x00, 0x01, 0x02, 0xff}, "text/csv"},
		{"unknown everything", "blob", []byte{0x00, 0x01, 0x02, 0xff}, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMime(tt.file, tt.head))
		})
	}
}
