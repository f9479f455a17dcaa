package s3io

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"spaces become underscores", "My Report.pdf", "My_Report.pdf"},
		{"already safe", "notes-2026.v1_final.txt", "notes-2026.v1_final.txt"},
		{"strips unix path", "/etc/passwd/report.pdf", "report.pdf"},
		{"strips windows path", `C:\Users\me\My Report.pdf`, "My_Report.pdf"},
		{"collapses unsafe runs", "a  b???c.pdf", "a_b_c.pdf"},
		{"trims leading dots", "..hidden.pdf", "hidden.pdf"},
		{"unicode collapsed", "résumé.pdf", "r_sum_.pdf"},
		{"empty falls back", "", "file"},
		{"only unsafe falls back", "???", "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.in))
		})
	}
}

func TestSanitizeFileName_MaxLengthPreservesExtension(t *testing.T) {
	long := strings.Repeat("a", 300) + ".pdf"
	got := SanitizeFileName(long)

	require.LessOrEqual(t, len(got), 128)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}

func TestSanitizeFileName_Deterministic(t *testing.T) {
	// The issue-time key and the confirm-time key must be byte-identical.
	for _, name := range []string{"My Report.pdf", "weird  name (1).docx", "απλό.txt"} {
		assert.Equal(t, SanitizeFileName(name), SanitizeFileName(name))
	}
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("550e8400-e29b-41d4-a716-446655440000", SanitizeFileName("My Report.pdf"))
	assert.Equal(t, "v2/uploads/550e8400-e29b-41d4-a716-446655440000/My_Report.pdf", key)
}
