package chunker

import (
	"strings"
)

// ContentTypeTable marks chunks rendered from a table grid.
const ContentTypeTable = "table"

// ChunkTable renders a cell grid as one markdown table chunk. The first row is
// the header. The chunk id is keyed by the page and table_index metadata
// values rather than the per-document counter, and chunk_index mirrors
// table_index.
func ChunkTable(table [][]string, caption string, base Metadata) (Chunk, error) {
	md := base.Clone()
	documentID := md.String(KeyDocumentID)
	if documentID == "" {
		documentID = "doc"
	}
	page, _ := md.Int(KeyPage)
	tableIndex, _ := md.Int(KeyTableIndex)

	cols := 0
	if len(table) > 0 {
		cols = len(table[0])
	}
	if !md.Has(KeyChunkIndex) {
		md.Set(KeyChunkIndex, tableIndex)
	}
	md.Set(KeyContentType, ContentTypeTable)
	md.Set(KeyTableCaption, caption)
	md.Set(KeyTableRows, len(table))
	md.Set(KeyTableCols, cols)

	return NewChunk(TableChunkID(documentID, page, tableIndex), TableMarkdown(table, caption), md)
}

// TableMarkdown formats a grid as a captioned markdown table.
func TableMarkdown(table [][]string, caption string) string {
	if len(table) == 0 {
		return "**" + caption + "**\n(빈 표)"
	}

	var b strings.Builder
	b.WriteString("**" + caption + "**\n\n")
	header := table[0]
	writeRow(&b, header)
	b.WriteString("|" + strings.Repeat("---|", len(header)))
	if len(header) == 0 {
		b.WriteString("|")
	}
	b.WriteString("\n")
	for _, row := range table[1:] {
		writeRow(&b, row)
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
}
