package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfInfoKeys are the document information entries copied to Properties.
var pdfInfoKeys = []string{"Title", "Author", "Subject", "Creator", "Producer", "CreationDate", "ModDate"}

// PDFParser extracts per-page plain text from PDF files. Scanned pages
// without a text layer come back empty.
type PDFParser struct{}

func NewPDFParser() *PDFParser { return &PDFParser{} }

func (p *PDFParser) Extensions() []string { return []string{".pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	doc := &Document{Path: path, Properties: pdfProperties(r)}
	n := r.NumPage()
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			doc.Pages = append(doc.Pages, Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting text of page %d: %w", i, err)
		}
		doc.Pages = append(doc.Pages, Page{Number: i, Text: strings.TrimSpace(text)})
	}
	return doc, nil
}

func pdfProperties(r *pdf.Reader) map[string]string {
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return nil
	}
	props := make(map[string]string)
	for _, k := range pdfInfoKeys {
		if v := strings.TrimSpace(info.Key(k).Text()); v != "" {
			props[strings.ToLower(k)] = v
		}
	}
	if len(props) == 0 {
		return nil
	}
	return props
}
