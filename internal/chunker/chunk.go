package chunker

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Metadata keys every chunk carries.
const (
	KeyDocumentID = "document_id"
	KeyType       = "type"
	KeyLanguage   = "language"
	KeyVersion    = "version"
	KeySourceFile = "source_file"
	KeyChunkIndex = "chunk_index"
)

// Optional metadata keys added by strategies and helpers.
const (
	KeySectionTitle = "section_title"
	KeyContext      = "context"
	KeyChunkStart   = "chunk_start"
	KeyChunkEnd     = "chunk_end"
	KeyContentType  = "content_type"
	KeyTableCaption = "table_caption"
	KeyTableRows    = "table_rows"
	KeyTableCols    = "table_cols"
	KeyPage         = "page"
	KeyTableIndex   = "table_index"
)

// RequiredKeys must be present on every chunk.
var RequiredKeys = []string{KeyDocumentID, KeyType, KeyLanguage, KeyVersion, KeySourceFile, KeyChunkIndex}

// ErrMissingMetadata is returned when a required metadata key is absent.
var ErrMissingMetadata = errors.New("missing required metadata")

// Chunk is one retrievable unit of document text.
type Chunk struct {
	ChunkID    string   `json:"chunk_id"`
	Text       string   `json:"text"`
	Metadata   Metadata `json:"metadata"`
	CharCount  int      `json:"char_count"`
	TokenCount int      `json:"token_count"`
}

// NewChunk builds a chunk, deriving its counts and checking the required
// metadata keys.
func NewChunk(id, text string, md Metadata) (Chunk, error) {
	for _, k := range RequiredKeys {
		if !md.Has(k) {
			return Chunk{}, fmt.Errorf("chunk %s: %w: %s", id, ErrMissingMetadata, k)
		}
	}
	return Chunk{
		ChunkID:    id,
		Text:       text,
		Metadata:   md,
		CharCount:  utf8.RuneCountInString(text),
		TokenCount: EstimateTokens(text),
	}, nil
}

// ChunkID formats the sequential id of a document chunk.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%04d", documentID, index)
}

// TableChunkID formats the id of a table chunk.
func TableChunkID(documentID string, page, tableIndex int) string {
	return fmt.Sprintf("%s_p%d_table%d", documentID, page, tableIndex)
}

// IsCJK reports whether r belongs to a CJK script.
func IsCJK(r rune) bool {
	return unicode.Is(unicode.Hangul, r) ||
		unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r)
}

// runeCost is the estimated token weight of one rune.
func runeCost(r rune) float64 {
	if IsCJK(r) {
		return 0.5
	}
	return 0.25
}

// EstimateTokens approximates the token count of text: about 2 runes per
// token for CJK scripts and 4 runes per token otherwise. It is not a
// tokenizer.
func EstimateTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		if IsCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return int(float64(cjk)/2 + float64(other)/4)
}
