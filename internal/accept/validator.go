package accept

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/uploadkit/internal/core"
)

// Validator checks selected files against an accept list and size bounds.
// A zero bound disables that check; an empty accept list allows any type.
type Validator struct {
	Accept      []Type
	MaxFileSize int64
	MinFileSize int64
}

// Validate returns the codes that keep f out of the upload set, or nil.
func (v Validator) Validate(f core.File) []core.ErrorCode {
	if strings.TrimSpace(f.Name) == "" || f.Size < 0 {
		return []core.ErrorCode{core.ErrFileInvalid}
	}

	var codes []core.ErrorCode
	if !v.Allowed(f) {
		codes = append(codes, core.ErrFileInvalidType)
	}
	if v.MaxFileSize > 0 && f.Size > v.MaxFileSize {
		codes = append(codes, core.ErrFileTooLarge)
	}
	if v.MinFileSize > 0 && f.Size < v.MinFileSize {
		codes = append(codes, core.ErrFileTooSmall)
	}
	return codes
}

// Allowed reports whether the file matches an accepted type by MIME type,
// wildcard family, or extension.
func (v Validator) Allowed(f core.File) bool {
	if len(v.Accept) == 0 {
		return true
	}

	mime := baseMime(f.MimeType)
	ext := strings.ToLower(filepath.Ext(f.Name))

	for _, t := range v.Accept {
		if matchMime(t.MimeType, mime) {
			return true
		}
		if ext != "" && slices.Contains(t.ExtensionList(), ext) {
			return true
		}
	}
	return false
}

// Partition splits files into those to hand to Manager.AddFiles and the
// rejections for Manager.AddRejected, keeping input order in both.
func (v Validator) Partition(files []core.File) ([]core.File, []core.Rejection) {
	var (
		accepted []core.File
		rejected []core.Rejection
	)
	for _, f := range files {
		if codes := v.Validate(f); len(codes) > 0 {
			rejected = append(rejected, core.Rejection{File: f, Codes: codes})
			continue
		}
		accepted = append(accepted, f)
	}
	return accepted, rejected
}

// DetectMime sniffs the content type from the first bytes of a file. When
// the content is not recognized the extension decides.
func DetectMime(name string, head []byte) string {
	detected := baseMime(mimetype.Detect(head).String())
	if detected != "" && detected != "application/octet-stream" {
		return detected
	}
	if byExt := TypeForExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

// DetectFile sniffs the content type of a local file.
func DetectFile(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect %s: %w", path, err)
	}
	detected := baseMime(mt.String())
	if detected == "application/octet-stream" {
		if byExt := TypeForExtension(filepath.Ext(path)); byExt != "" {
			return byExt, nil
		}
	}
	return detected, nil
}

// Config is the on-disk description of an upload set's constraints.
type Config struct {
	Accept      []Type `yaml:"accept"`
	MaxFileSize int64  `yaml:"maxFileSize"`
	MinFileSize int64  `yaml:"minFileSize"`
	MaxFiles    int    `yaml:"maxFiles"`
}

// Validator returns a validator for the configured constraints.
func (c Config) Validator() Validator {
	return Validator{
		Accept:      c.Accept,
		MaxFileSize: c.MaxFileSize,
		MinFileSize: c.MinFileSize,
	}
}

// LoadFile reads a YAML accept configuration. Fields missing from the file
// keep the values already in base.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read accept config: %w", err)
	}
	return Parse(data, base)
}

// Parse decodes a YAML accept configuration on top of base.
func Parse(data []byte, base Config) (Config, error) {
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse accept config: %w", err)
	}
	if cfg.MinFileSize > 0 && cfg.MaxFileSize > 0 && cfg.MinFileSize > cfg.MaxFileSize {
		return base, fmt.Errorf("parse accept config: minFileSize %d exceeds maxFileSize %d",
			cfg.MinFileSize, cfg.MaxFileSize)
	}
	return cfg, nil
}

func matchMime(pattern, mime string) bool {
	if mime == "" {
		return false
	}
	if family, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(mime, family+"/")
	}
	return pattern == mime
}

func baseMime(m string) string {
	base, _, _ := strings.Cut(m, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
