package accept

import (
	"path/filepath"
	"strconv"
	"strings"
)

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatSize renders a byte count with base-1024 units and at most two
// decimals, dropping trailing zeros: 1536 is "1.5 KB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}

	v := float64(bytes)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}

	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimSuffix(strings.TrimRight(s, "0"), ".")

	return s + " " + sizeUnits[i]
}

// IconFor returns the material icon name shown next to a file.
func IconFor(name string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "pdf":
		return "picture_as_pdf"
	case "csv":
		return "table_chart"
	case "zip":
		return "folder_zip"
	default:
		return "insert_drive_file"
	}
}
