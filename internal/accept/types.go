// Package accept describes which files an upload set accepts and validates
// selected files against that description before they reach the upload
// manager.
package accept

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxFileSize is 25 MiB.
	DefaultMaxFileSize int64 = 25 * 1024 * 1024

	// DefaultMaxFiles is the default cap on accepted records per session.
	DefaultMaxFiles = 5
)

// ErrNoExtensions is returned when an explicit accept entry lists no
// extensions.
var ErrNoExtensions = errors.New("accept entry needs at least one extension")

// Type is one accepted file type. In YAML it is either a MIME string, whose
// extensions come from ExtensionsMap, or a mapping with an explicit
// extension list:
//
//	- application/pdf
//	- mimeType: application/x-ledger
//	  extensions: [.ldg, .ledger]
type Type struct {
	MimeType   string   `yaml:"mimeType" json:"mimeType"`
	Extensions []string `yaml:"extensions,omitempty" json:"extensions,omitempty"`
}

// UnmarshalYAML accepts both the shorthand and the explicit form.
func (t *Type) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		mime := strings.TrimSpace(value.Value)
		if mime == "" {
			return fmt.Errorf("line %d: empty mime type", value.Line)
		}
		*t = Type{MimeType: strings.ToLower(mime)}
		return nil
	}

	type plain Type
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	if strings.TrimSpace(p.MimeType) == "" {
		return fmt.Errorf("line %d: empty mime type", value.Line)
	}
	if len(p.Extensions) == 0 {
		return fmt.Errorf("line %d: %s: %w", value.Line, p.MimeType, ErrNoExtensions)
	}

	exts := make([]string, 0, len(p.Extensions))
	for _, e := range p.Extensions {
		exts = append(exts, normalizeExt(e))
	}
	*t = Type{MimeType: strings.ToLower(strings.TrimSpace(p.MimeType)), Extensions: exts}
	return nil
}

// ExtensionList returns the explicit extensions, or the built-in ones for
// the MIME type.
func (t Type) ExtensionList() []string {
	if len(t.Extensions) > 0 {
		return t.Extensions
	}
	return ExtensionsMap[t.MimeType]
}

// Extensions flattens the extensions of every accepted type.
func Extensions(types []Type) []string {
	var out []string
	for _, t := range types {
		out = append(out, t.ExtensionList()...)
	}
	return out
}

// MimeTypes returns the MIME type of every accepted type.
func MimeTypes(types []Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.MimeType
	}
	return out
}

// FromMimeTypes builds shorthand entries.
func FromMimeTypes(mimes []string) []Type {
	out := make([]Type, 0, len(mimes))
	for _, m := range mimes {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			out = append(out, Type{MimeType: m})
		}
	}
	return out
}

// DefaultAccept is PDF, CSV and ZIP.
func DefaultAccept() []Type {
	return []Type{
		{MimeType: "application/pdf"},
		{MimeType: "text/csv"},
		{MimeType: "application/zip"},
		{MimeType: "application/x-zip-compressed", Extensions: []string{".zip"}},
	}
}

// ExtensionsMap is the built-in extension set of common MIME types,
// including wildcard families.
var ExtensionsMap = map[string][]string{
	// Images
	"image/png":     {".png"},
	"image/gif":     {".gif"},
	"image/jpeg":    {".jpg", ".jpeg"},
	"image/svg+xml": {".svg"},
	"image/webp":    {".webp"},
	"image/avif":    {".avif"},
	"image/heic":    {".heic", ".heif"},
	"image/bmp":     {".bmp"},

	// Applications
	"application/pdf":    {".pdf"},
	"application/zip":    {".zip"},
	"application/json":   {".json"},
	"application/xml":    {".xml"},
	"application/msword": {".doc"},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {".docx"},
	"application/vnd.ms-excel": {".xls"},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {".xlsx"},
	"application/vnd.ms-powerpoint": {".ppt"},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {".pptx"},
	"application/rtf":                               {".rtf"},
	"application/x-rar":                             {".rar"},
	"application/x-7z-compressed":                   {".7z"},
	"application/x-tar":                             {".tar"},
	"application/vnd.microsoft.portable-executable": {".exe", ".dll"},

	// Text
	"text/css":      {".css"},
	"text/csv":      {".csv"},
	"text/html":     {".html", ".htm"},
	"text/markdown": {".md", ".markdown"},
	"text/plain":    {".txt"},

	// Fonts
	"font/ttf":   {".ttf"},
	"font/otf":   {".otf"},
	"font/woff":  {".woff"},
	"font/woff2": {".woff2"},
	"font/eot":   {".eot"},
	"font/svg":   {".svg"},

	// Video
	"video/mp4":       {".mp4"},
	"video/webm":      {".webm"},
	"video/ogg":       {".ogv"},
	"video/quicktime": {".mov"},
	"video/x-msvideo": {".avi"},

	// Audio
	"audio/mpeg":  {".mp3"},
	"audio/ogg":   {".ogg", ".oga"},
	"audio/wav":   {".wav"},
	"audio/webm":  {".weba"},
	"audio/aac":   {".aac"},
	"audio/flac":  {".flac"},
	"audio/x-m4a": {".m4a"},

	// Wildcards
	"image/*": {".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".bmp", ".avif", ".heic", ".heif"},
	"audio/*": {".mp3", ".wav", ".ogg", ".oga", ".m4a", ".flac", ".aac", ".weba"},
	"video/*": {".mp4", ".webm", ".ogv", ".mov", ".avi"},
	"text/*":  {".txt", ".html", ".htm", ".css", ".csv", ".md", ".markdown"},
	"application/*": {
		".pdf", ".zip", ".json", ".xml", ".doc", ".docx", ".xls", ".xlsx",
		".ppt", ".pptx", ".rtf", ".rar", ".7z", ".tar",
	},
	"font/*": {".ttf", ".otf", ".woff", ".woff2", ".eot"},
}

// byExtension maps an extension back to a concrete MIME type. Keys are
// visited in sorted order so ambiguous extensions (".svg") resolve the same
// way on every run.
var byExtension = func() map[string]string {
	out := make(map[string]string)
	for _, mime := range slices.Sorted(maps.Keys(ExtensionsMap)) {
		if strings.HasSuffix(mime, "/*") {
			continue
		}
		for _, ext := range ExtensionsMap[mime] {
			out[ext] = mime
		}
	}
	return out
}()

// TypeForExtension returns the MIME type registered for ext, or "".
func TypeForExtension(ext string) string {
	return byExtension[normalizeExt(ext)]
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
