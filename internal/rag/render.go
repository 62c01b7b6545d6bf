package rag

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown answers to HTML. Raw HTML in answers is
// omitted.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer returns a Renderer with GFM tables and highlighted code blocks.
func NewRenderer() *Renderer {
	return &Renderer{md: goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)}
}

// Render converts markdown to HTML.
func (r *Renderer) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering answer: %w", err)
	}
	return buf.String(), nil
}

var defaultRenderer = sync.OnceValue(NewRenderer)

// RenderHTML converts markdown to HTML with a shared Renderer.
func RenderHTML(markdown string) (string, error) {
	return defaultRenderer().Render(markdown)
}
