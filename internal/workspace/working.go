// ABOUTME: Reads an agent's WORKING.md notes from the shared agents directory
// ABOUTME: Renders the markdown to HTML with raw HTML and unsafe links stripped

package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// FileName is the per-agent notes file.
const FileName = "WORKING.md"

// maxFileSize caps how much of a notes file is read.
const maxFileSize = 1 << 20

// ErrNotFound is returned when the agent has no notes file.
var ErrNotFound = errors.New("WORKING.md not found")

// ErrInvalidName is returned for agent names that cannot map to a directory.
var ErrInvalidName = errors.New("invalid agent name")

// Document is an agent's notes, raw and rendered.
type Document struct {
	AgentName string
	Content   string
	HTML      string
	// Truncated is set when the file exceeded the read limit and only its
	// first part is in Content.
	Truncated bool
}

// Reader resolves <base>/<lowercase agent name>/WORKING.md.
type Reader struct {
	base string
	md   goldmark.Markdown
}

// NewReader creates a reader rooted at base.
func NewReader(base string) *Reader {
	return &Reader{
		base: base,
		// The default renderer omits raw HTML and neutralizes dangerous URLs.
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Path returns the notes path for agent name.
func (r *Reader) Path(name string) (string, error) {
	dir := strings.ToLower(strings.TrimSpace(name))
	if dir == "" || dir == "." || dir == ".." || strings.ContainsAny(dir, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(r.base, dir, FileName), nil
}

// Read loads and renders the notes of agent name.
func (r *Reader) Read(name string) (Document, error) {
	path, err := r.Path(name)
	if err != nil {
		return Document{}, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Document{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Document{}, ErrNotFound
	}

	content, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	truncated := len(content) > maxFileSize
	if truncated {
		content = content[:maxFileSize]
	}

	var html bytes.Buffer
	if err := r.md.Convert(content, &html); err != nil {
		return Document{}, fmt.Errorf("rendering %s: %w", path, err)
	}

	return Document{
		AgentName: name,
		Content:   string(content),
		HTML:      html.String(),
		Truncated: truncated,
	}, nil
}
