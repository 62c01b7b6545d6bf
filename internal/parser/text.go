package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextParser reads plain text files. Form feeds separate pages.
type TextParser struct{}

func NewTextParser() *TextParser { return &TextParser{} }

func (p *TextParser) Extensions() []string { return []string{".txt"} }

func (p *TextParser) Parse(_ context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc := &Document{Path: path}
	for i, page := range strings.Split(string(data), "\f") {
		doc.Pages = append(doc.Pages, Page{Number: i + 1, Text: strings.TrimSpace(page)})
	}
	return doc, nil
}
