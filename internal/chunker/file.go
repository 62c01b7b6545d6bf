package chunker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ChunkFileSuffix is appended to the document id to name its chunk file.
const ChunkFileSuffix = "_chunks.json"

// ChunkFileName returns the chunk file name for a document.
func ChunkFileName(documentID string) string {
	return documentID + ChunkFileSuffix
}

// SaveChunks writes chunks to dir/{documentID}_chunks.json and returns the path.
func SaveChunks(dir, documentID string, chunks []Chunk) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating chunk directory: %w", err)
	}
	if chunks == nil {
		chunks = []Chunk{}
	}

	path := filepath.Join(dir, ChunkFileName(documentID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating chunk file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(chunks); err != nil {
		return "", fmt.Errorf("writing chunk file: %w", err)
	}
	return path, f.Close()
}

// LoadChunks reads one chunk file.
func LoadChunks(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chunk file: %w", err)
	}
	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parsing chunk file %s: %w", path, err)
	}
	return chunks, nil
}

// LoadChunkDir reads every chunk file in dir, keyed by document id. A missing
// directory yields an empty result.
func LoadChunkDir(dir string) (map[string][]Chunk, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+ChunkFileSuffix))
	if err != nil {
		return nil, fmt.Errorf("listing chunk files: %w", err)
	}
	sort.Strings(paths)

	out := make(map[string][]Chunk, len(paths))
	for _, p := range paths {
		chunks, err := LoadChunks(p)
		if err != nil {
			return nil, err
		}
		id := filepath.Base(p)
		id = id[:len(id)-len(ChunkFileSuffix)]
		out[id] = chunks
	}
	return out, nil
}

// OptimalChunkSize suggests a chunk size for a document of textLength runes.
func OptimalChunkSize(textLength int, language string) int {
	base := 1000
	if language == "english" {
		base = 1500
	}
	switch {
	case textLength < 5000:
		return base / 2
	case textLength > 100000:
		return base * 3 / 2
	default:
		return base
	}
}
