// ABOUTME: Tests for the WORKING.md reader
// ABOUTME: Covers path resolution, markdown rendering and HTML sanitization

package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNotes(t *testing.T, base, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(base, dir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, dir, FileName), []byte(content), 0644))
}

func TestReader_Read(t *testing.T) {
	base := t.TempDir()
	writeNotes(t, base, "kat", "# Current work\n\n- fixing **heartbeats**\n")

	doc, err := NewReader(base).Read("Kat")
	require.NoError(t, err)

	assert.Equal(t, "Kat", doc.AgentName)
	assert.Contains(t, doc.Content, "# Current work")
	assert.Contains(t, doc.HTML, "<h1>Current work</h1>")
	assert.Contains(t, doc.HTML, "<strong>heartbeats</strong>")
}

func TestReader_FlagsOversizedFile(t *testing.T) {
	base := t.TempDir()
	writeNotes(t, base, "kat", "# Big\n"+strings.Repeat("x", maxFileSize))

	doc, err := NewReader(base).Read("kat")
	require.NoError(t, err)
	assert.True(t, doc.Truncated)
	assert.Len(t, doc.Content, maxFileSize)
	assert.True(t, strings.HasPrefix(doc.Content, "# Big\n"))

	writeNotes(t, base, "kat", strings.Repeat("x", maxFileSize))
	doc, err = NewReader(base).Read("kat")
	require.NoError(t, err)
	assert.False(t, doc.Truncated, "a file of exactly the limit is read whole")
	assert.Len(t, doc.Content, maxFileSize)
}

func TestReader_StripsHTML(t *testing.T) {
	base := t.TempDir()
	writeNotes(t, base, "sam", "hello <script>alert(1)</script>\n\n[click](javascript:alert(1))\n")

	doc, err := NewReader(base).Read("sam")
	require.NoError(t, err)

	assert.NotContains(t, doc.HTML, "<script>")
	assert.NotContains(t, doc.HTML, "javascript:")
	assert.Contains(t, doc.Content, "<script>", "raw content is returned as written")
}

func TestReader_NotFound(t *testing.T) {
	_, err := NewReader(t.TempDir()).Read("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReader_DirectoryNamedLikeFile(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "mat", FileName), 0755))

	_, err := NewReader(base).Read("mat")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReader_Path(t *testing.T) {
	r := NewReader("/agents")

	p, err := r.Path("Kat")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/agents", "kat", FileName), p)

	for _, bad := range []string{"", " ", "..", "../etc", `a\b`, "."} {
		_, err := r.Path(bad)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", bad)
	}
}
