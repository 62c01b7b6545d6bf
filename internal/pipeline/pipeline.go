// Package pipeline turns manual files into routed vector collections:
// metadata -> parse -> chunk -> save -> embed -> store.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/embeddings"
	"github.com/ziadkadry99/crm-manual-rag/internal/logger"
	"github.com/ziadkadry99/crm-manual-rag/internal/metadata"
	"github.com/ziadkadry99/crm-manual-rag/internal/parser"
	"github.com/ziadkadry99/crm-manual-rag/internal/progress"
	"github.com/ziadkadry99/crm-manual-rag/internal/router"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
	"github.com/ziadkadry99/crm-manual-rag/internal/walker"
)

// ReportFile is the name of the folder processing report.
const ReportFile = "processing_report.json"

// Options control how a document is processed.
type Options struct {
	Strategy         chunker.Strategy
	SaveIntermediate bool
	AddContext       bool
	// BatchSize is the vector store insert batch size.
	BatchSize int
	// Force reprocesses files whose content has not changed.
	Force bool
}

// DefaultOptions processes with the recursive strategy and saves chunk files.
func DefaultOptions() Options {
	return Options{
		Strategy:         chunker.Recursive,
		SaveIntermediate: true,
		BatchSize:        vectordb.DefaultBatchSize,
	}
}

// DocumentStats summarises one processed document.
type DocumentStats struct {
	DocumentID            string  `json:"document_id"`
	SourceFile            string  `json:"source_file"`
	Type                  string  `json:"type"`
	Language              string  `json:"language"`
	TotalPages            int     `json:"total_pages"`
	TotalChunks           int     `json:"total_chunks"`
	TotalChars            int     `json:"total_chars"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	CollectionName        string  `json:"collection_name"`
	Skipped               bool    `json:"skipped,omitempty"`
}

// ReportError records a document that failed in folder mode.
type ReportError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Report is the outcome of a folder run.
type Report struct {
	Timestamp      string          `json:"timestamp"`
	TotalDocuments int             `json:"total_documents"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	Statistics     []DocumentStats `json:"statistics"`
	Errors         []ReportError   `json:"errors"`
}

// TotalChunks sums the chunks of the successful documents.
func (r *Report) TotalChunks() int {
	n := 0
	for _, s := range r.Statistics {
		n += s.TotalChunks
	}
	return n
}

// Config wires the pipeline's collaborators. Parser, Extractor and Chunker
// get defaults when nil; Embedder and Router are required.
type Config struct {
	Parser    *parser.Registry
	Extractor *metadata.Extractor
	Chunker   *chunker.Chunker
	Embedder  embeddings.Embedder
	Router    *router.Router
	OutputDir string
	Include   []string
	Exclude   []string
	Logger    *logger.Logger
	Progress  progress.Reporter
}

// Pipeline processes manuals one at a time.
type Pipeline struct {
	parser    *parser.Registry
	extractor *metadata.Extractor
	chunker   *chunker.Chunker
	embedder  embeddings.Embedder
	router    *router.Router
	outputDir string
	include   []string
	exclude   []string
	log       *logger.Logger
	progress  progress.Reporter
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		parser:    cfg.Parser,
		extractor: cfg.Extractor,
		chunker:   cfg.Chunker,
		embedder:  cfg.Embedder,
		router:    cfg.Router,
		outputDir: cfg.OutputDir,
		include:   cfg.Include,
		exclude:   cfg.Exclude,
		log:       cfg.Logger,
		progress:  cfg.Progress,
	}
	if p.parser == nil {
		p.parser = parser.NewRegistry()
	}
	if p.extractor == nil {
		p.extractor = metadata.NewExtractor(nil)
	}
	if p.chunker == nil {
		p.chunker = chunker.New()
	}
	if p.outputDir == "" {
		p.outputDir = "processed"
	}
	if p.progress == nil {
		p.progress = progress.Nop{}
	}
	return p
}

// OutputDir returns the directory holding chunk files, state and reports.
func (p *Pipeline) OutputDir() string { return p.outputDir }

// ProcessDocument processes one file. An unchanged file that was processed
// before is skipped unless opts.Force is set.
func (p *Pipeline) ProcessDocument(ctx context.Context, path string, opts Options) (*DocumentStats, error) {
	if err := p.router.InitializeCollections(ctx, p.embedder.Dimensions(), false); err != nil {
		return nil, err
	}
	state, err := LoadState(p.outputDir)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	stats, err := p.process(ctx, path, opts, state)
	if err != nil {
		return nil, err
	}
	if err := state.Save(p.outputDir); err != nil {
		return stats, fmt.Errorf("save state: %w", err)
	}
	return stats, nil
}

func (p *Pipeline) process(ctx context.Context, path string, opts Options, state *State) (*DocumentStats, error) {
	start := time.Now()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	hash, err := walker.HashFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if rec, ok := state.Documents[abs]; ok && !opts.Force && !state.IsChanged(abs, hash, opts) {
		stats := rec.Stats
		stats.Skipped = true
		stats.ProcessingTimeSeconds = 0
		p.log.Debugf("Skipping unchanged %s", stats.SourceFile)
		return &stats, nil
	}

	docMeta := p.extractor.ExtractFromFilename(abs)
	p.log.Debugf("%s: id=%s type=%s language=%s", docMeta.SourceFile, docMeta.DocumentID, docMeta.Type, docMeta.Language)

	doc, err := p.parser.Parse(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", docMeta.SourceFile, err)
	}
	fullText := doc.Text()
	content := p.extractor.ExtractFromContent(fullText, &docMeta)
	p.log.Debugf("%s: %d pages, %d sections, %d chars (suggested chunk size %d)", docMeta.SourceFile, doc.TotalPages(), content.SectionCount, content.CharCount,
		chunker.OptimalChunkSize(content.CharCount, docMeta.Language))

	base := docMeta.BaseMetadata()
	chunks, err := p.chunker.ChunkWithContext(fullText, base, opts.Strategy, opts.AddContext)
	if err != nil {
		return nil, fmt.Errorf("chunking %s: %w", docMeta.SourceFile, err)
	}
	for i, t := range doc.Tables {
		md := base.Clone()
		md.Set(chunker.KeyPage, t.Page)
		md.Set(chunker.KeyTableIndex, t.Index)
		md.Set(chunker.KeyChunkIndex, len(chunks)+i)
		tc, err := chunker.ChunkTable(t.Rows, t.Caption, md)
		if err != nil {
			return nil, fmt.Errorf("table %d of %s: %w", t.Index, docMeta.SourceFile, err)
		}
		chunks = append(chunks, tc)
	}
	p.log.Debugf("%s: %d chunks (%s)", docMeta.SourceFile, len(chunks), opts.Strategy)

	// Previous points and the chunk file are only replaced once every chunk
	// has its vector, so a provider failure leaves the last good run intact.
	points, err := p.embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", docMeta.SourceFile, err)
	}
	collection := p.router.CollectionFor(docMeta.Type, docMeta.Language)
	if err := p.router.DeleteDocument(ctx, docMeta.Type, docMeta.Language, docMeta.DocumentID, docMeta.SourceFile); err != nil {
		return nil, fmt.Errorf("removing previous points of %s: %w", docMeta.SourceFile, err)
	}
	if len(points) > 0 {
		if _, err := p.router.AddDocumentChunks(ctx, docMeta.Type, docMeta.Language, points, opts.BatchSize); err != nil {
			return nil, fmt.Errorf("%s: %w", docMeta.SourceFile, err)
		}
	}

	if opts.SaveIntermediate {
		out, err := chunker.SaveChunks(p.outputDir, docMeta.DocumentID, chunks)
		if err != nil {
			return nil, err
		}
		p.log.Debugf("Saved chunks to %s", out)
	}

	stats := DocumentStats{
		DocumentID:            docMeta.DocumentID,
		SourceFile:            docMeta.SourceFile,
		Type:                  docMeta.Type,
		Language:              docMeta.Language,
		TotalPages:            doc.TotalPages(),
		TotalChunks:           len(chunks),
		TotalChars:            utf8.RuneCountInString(fullText),
		ProcessingTimeSeconds: math.Round(time.Since(start).Seconds()*100) / 100,
		CollectionName:        collection,
	}
	state.Documents[abs] = DocumentRecord{
		ContentHash: hash,
		Strategy:    opts.Strategy.String(),
		AddContext:  opts.AddContext,
		Stats:       stats,
	}
	p.log.Infof("Processed %s: %d chunks -> %s", stats.SourceFile, stats.TotalChunks, collection)
	return &stats, nil
}

// embed pairs every chunk with its vector.
func (p *Pipeline) embed(ctx context.Context, chunks []chunker.Chunk) ([]vectordb.Point, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(texts), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	points := make([]vectordb.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectordb.PointFromChunk(c, vectors[i])
	}
	return points, nil
}

// ProcessFolder processes every matching document under dir. A failing
// document is recorded in the report and the run continues. The report is
// written to the output directory.
func (p *Pipeline) ProcessFolder(ctx context.Context, dir string, opts Options) (*Report, error) {
	include := append(append([]string{}, walker.DefaultInclude...), p.include...)
	files, err := walker.Walk(walker.WalkerConfig{RootDir: dir, Include: include, Exclude: p.exclude})
	if err != nil {
		return nil, err
	}

	var docs []walker.FileInfo
	for _, f := range files {
		if p.parser.Supports(f.Path) {
			docs = append(docs, f)
		}
	}

	if err := p.router.InitializeCollections(ctx, p.embedder.Dimensions(), false); err != nil {
		return nil, err
	}
	state, err := LoadState(p.outputDir)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	report := &Report{
		Statistics: []DocumentStats{},
		Errors:     []ReportError{},
	}
	p.log.Infof("Processing %d documents from %s", len(docs), dir)
	p.progress.Start(len(docs))
	for i, f := range docs {
		if err := ctx.Err(); err != nil {
			p.progress.Finish()
			return report, err
		}
		p.progress.Update(i+1, filepath.Base(f.Path))

		stats, err := p.process(ctx, f.Path, opts, state)
		if err != nil {
			p.log.Warnf("Error processing %s: %v", filepath.Base(f.Path), err)
			report.Errors = append(report.Errors, ReportError{File: filepath.Base(f.Path), Error: err.Error()})
			continue
		}
		report.Statistics = append(report.Statistics, *stats)
		if err := state.Save(p.outputDir); err != nil {
			p.progress.Finish()
			return report, fmt.Errorf("save state: %w", err)
		}
	}
	p.progress.Finish()

	report.Timestamp = time.Now().Format("2006-01-02 15:04:05")
	report.Successful = len(report.Statistics)
	report.Failed = len(report.Errors)
	report.TotalDocuments = report.Successful + report.Failed

	if err := writeJSON(filepath.Join(p.outputDir, ReportFile), report); err != nil {
		return report, fmt.Errorf("write report: %w", err)
	}
	return report, nil
}

// ReindexResult summarises a Reindex run.
type ReindexResult struct {
	Documents   int            `json:"documents"`
	Chunks      int            `json:"chunks"`
	Collections map[string]int `json:"collections"`
}

// Reindex loads every chunk file in the output directory and inserts the
// chunks into their partitions again. With recreate, all partitions are
// emptied first; otherwise each document's previous points are replaced.
func (p *Pipeline) Reindex(ctx context.Context, recreate bool, batchSize int) (*ReindexResult, error) {
	if err := p.router.InitializeCollections(ctx, p.embedder.Dimensions(), recreate); err != nil {
		return nil, err
	}

	sets, err := chunker.LoadChunkDir(p.outputDir)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(sets))
	for id := range sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := &ReindexResult{Collections: make(map[string]int)}
	p.progress.Start(len(ids))
	defer p.progress.Finish()
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		p.progress.Update(i+1, id)

		chunks := sets[id]
		if len(chunks) == 0 {
			continue
		}
		md := chunks[0].Metadata
		docType, language := md.String(chunker.KeyType), md.String(chunker.KeyLanguage)

		points, err := p.embed(ctx, chunks)
		if err != nil {
			return result, fmt.Errorf("%s: %w", id, err)
		}
		if !recreate {
			for _, source := range sourceFiles(chunks) {
				if err := p.router.DeleteDocument(ctx, docType, language, id, source); err != nil {
					return result, fmt.Errorf("removing previous points of %s: %w", id, err)
				}
			}
		}
		if _, err := p.router.AddDocumentChunks(ctx, docType, language, points, batchSize); err != nil {
			return result, fmt.Errorf("%s: %w", id, err)
		}
		result.Documents++
		result.Chunks += len(chunks)
		result.Collections[p.router.CollectionFor(docType, language)] += len(chunks)
	}
	return result, nil
}

func sourceFiles(chunks []chunker.Chunk) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range chunks {
		s := c.Metadata.String(chunker.KeySourceFile)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return f.Close()
}
