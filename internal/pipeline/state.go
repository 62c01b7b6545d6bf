package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StateFile is the name of the processing state file in the output directory.
const StateFile = "state.json"

// DocumentRecord remembers how a source file was last processed.
type DocumentRecord struct {
	ContentHash string        `json:"content_hash"`
	Strategy    string        `json:"strategy"`
	AddContext  bool          `json:"add_context"`
	Stats       DocumentStats `json:"stats"`
}

// State tracks which files have been processed and their content hashes.
type State struct {
	Documents   map[string]DocumentRecord `json:"documents"`
	LastUpdated time.Time                 `json:"last_updated"`
}

// LoadState reads the state from dir/state.json. A missing file yields an
// empty state.
func LoadState(dir string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(dir, StateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Documents: make(map[string]DocumentRecord)}, nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Documents == nil {
		state.Documents = make(map[string]DocumentRecord)
	}
	return &state, nil
}

// Save writes the state to dir/state.json.
func (s *State) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	s.LastUpdated = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, StateFile), data, 0o644)
}

// IsChanged reports whether path must be processed again: it is unknown, its
// content hash differs, or it was chunked with another strategy or context
// setting than opts asks for.
func (s *State) IsChanged(path, contentHash string, opts Options) bool {
	rec, ok := s.Documents[path]
	if !ok {
		return true
	}
	return rec.ContentHash != contentHash ||
		rec.Strategy != opts.Strategy.String() ||
		rec.AddContext != opts.AddContext
}
