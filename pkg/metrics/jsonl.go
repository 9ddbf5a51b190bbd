package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLStore appends records to a newline-delimited JSON file. It is the
// default store: no external service, trivially greppable.
type JSONLStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONLStore creates the parent directory if needed. The file itself is
// created on first append.
func NewJSONLStore(path string) (*JSONLStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("metrics: create log dir: %w", err)
		}
	}
	return &JSONLStore{path: path}, nil
}

func (s *JSONLStore) Append(rec Pipeline) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("metrics: marshal record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("metrics: open log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("metrics: append record: %w", err)
	}
	return nil
}

func (s *JSONLStore) History() ([]Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Pipeline{}, nil
		}
		return nil, fmt.Errorf("metrics: open log: %w", err)
	}
	defer f.Close()

	var recs []Pipeline
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Pipeline
		if err := json.Unmarshal(line, &rec); err != nil {
			// Skip torn or foreign lines rather than failing the read.
			continue
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("metrics: scan log: %w", err)
	}
	if recs == nil {
		recs = []Pipeline{}
	}
	return recs, nil
}

func (s *JSONLStore) Stats() (map[string]StageStats, error) {
	recs, err := s.History()
	if err != nil {
		return nil, err
	}
	return aggregate(recs), nil
}
