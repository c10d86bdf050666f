package storage

import (
	"path/filepath"
	"strconv"
	"strings"
)

// SanitizeFileName reduces a client-supplied name to a single safe path
// element. Path separators and control characters are replaced, leading dots
// stripped. Returns "" when nothing usable remains; callers substitute a
// generated id.
func SanitizeFileName(name string) string {
	// Take the base of whatever path the client sent, on either separator.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		case r == '/' || r == '\\' || r == ':':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimLeft(b.String(), ".")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return ""
	}
	return cleaned
}

// NextName derives the auto-rename candidate used when a name is taken:
// report.pdf -> report_1.pdf -> report_2.pdf.
func NextName(name string, attempt int) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return base + "_" + strconv.Itoa(attempt) + ext
}
