package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"unix path", "/etc/passwd", "passwd"},
		{"traversal", "../../etc/passwd", "passwd"},
		{"windows path", `C:\Users\x\doc.txt`, "doc.txt"},
		{"leading dots", "...hidden", "hidden"},
		{"control chars", "a\x00b\x1fc.txt", "a_b_c.txt"},
		{"only dots", "..", ""},
		{"empty", "", ""},
		{"spaces kept", "my report.pdf", "my report.pdf"},
		{"unicode kept", "résumé.pdf", "résumé.pdf"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeFileName(tc.in))
		})
	}
}

func TestNextName(t *testing.T) {
	assert.Equal(t, "report_1.pdf", NextName("report.pdf", 1))
	assert.Equal(t, "report_2.pdf", NextName("report.pdf", 2))
	assert.Equal(t, "archive.tar_1.gz", NextName("archive.tar.gz", 1))
	assert.Equal(t, "noext_3", NextName("noext", 3))
}
