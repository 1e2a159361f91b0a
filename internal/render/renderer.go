// Package render exports notes as Markdown or HTML.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/jun/voznota/internal/model"
)

const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Renderer turns a note into a document.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a renderer. Raw HTML in transcripts is escaped, never
// passed through.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)
	return &Renderer{md: md}
}

// Markdown returns the note as a Markdown document.
func (r *Renderer) Markdown(n model.Note) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", oneLine(n.Title))
	fmt.Fprintf(&b, "_%s_\n\n", n.CreatedAt.UTC().Format(time.RFC3339))
	b.WriteString(strings.TrimSpace(n.Text))
	b.WriteString("\n")
	return b.Bytes()
}

// HTML returns the note rendered to an HTML fragment.
func (r *Renderer) HTML(n model.Note) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(r.Markdown(n), &buf); err != nil {
		return nil, fmt.Errorf("render note %s: %w", n.ID, err)
	}
	return buf.Bytes(), nil
}

// ContentType returns the media type for a format, or "" if the format is unknown.
func ContentType(format string) string {
	switch format {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return ""
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
