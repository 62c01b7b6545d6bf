// Package parser extracts page text, tables and document properties from
// manual files.
package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ziadkadry99/crm-manual-rag/internal/metadata"
)

// ErrUnsupported is returned for files no parser handles.
var ErrUnsupported = errors.New("unsupported document format")

// Page is the text of one page, numbered from 1.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Table is a cell grid found on a page. The first row is the header when
// the source marks one.
type Table struct {
	Page    int        `json:"page"`
	Index   int        `json:"index"`
	Caption string     `json:"caption"`
	Rows    [][]string `json:"rows"`
}

// Document is the parsed content of one file.
type Document struct {
	Path       string            `json:"path"`
	Pages      []Page            `json:"pages"`
	Tables     []Table           `json:"tables,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	Language   string            `json:"language"`
}

// TotalPages returns the page count.
func (d *Document) TotalPages() int { return len(d.Pages) }

// Text joins the non-empty page texts with blank lines.
func (d *Document) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// TotalChars counts the runes of Text.
func (d *Document) TotalChars() int {
	return utf8.RuneCountInString(d.Text())
}

// Parser reads one document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*Document, error)
	Extensions() []string
}

// Registry selects a parser by file extension.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry returns a registry of the given parsers, or of the PDF,
// Markdown and plain-text parsers when none are given.
func NewRegistry(parsers ...Parser) *Registry {
	if len(parsers) == 0 {
		parsers = []Parser{NewPDFParser(), NewMarkdownParser(), NewTextParser()}
	}
	r := &Registry{byExt: make(map[string]Parser)}
	for _, p := range parsers {
		for _, ext := range p.Extensions() {
			r.byExt[strings.ToLower(ext)] = p
		}
	}
	return r
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Parse parses path with the parser registered for its extension.
func (r *Registry) Parse(ctx context.Context, path string) (*Document, error) {
	p, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
	doc, err := p.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	if doc.Language == "" {
		doc.Language = DetectLanguage(doc.Text())
	}
	return doc, nil
}

// DetectLanguage returns korean when text contains Hangul, english otherwise.
func DetectLanguage(text string) string {
	if metadata.HasHangul(text) {
		return metadata.Korean
	}
	return metadata.English
}
