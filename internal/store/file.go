package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"call-quality-go/internal/types"
)

// FileStore keeps every report in one JSON document keyed by job_id. Upsert
// is read-modify-write over the full document, so all writers funnel through
// a single mutex and the document is swapped in with write-to-temp + rename.
// Readers never need the lock: rename is atomic, so a load sees either the
// old snapshot or the new one, never a mix.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Upsert(ctx context.Context, report *types.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		all = make(map[string]types.Report)
	}
	all[report.JobID] = *report
	return s.replace(all)
}

func (s *FileStore) GetAll(ctx context.Context) (map[string]types.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load()
}

func (s *FileStore) Get(ctx context.Context, jobID string) (types.Report, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return types.Report{}, err
	}
	r, ok := all[jobID]
	if !ok {
		return types.Report{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return r, nil
}

func (s *FileStore) GetByEmployee(ctx context.Context, employeeID string) (map[string]types.Report, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterByEmployee(all, employeeID)
}

func (s *FileStore) load() (map[string]types.Report, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read report store: %w", err)
	}
	var all map[string]types.Report
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return all, nil
}

func (s *FileStore) replace(all map[string]types.Report) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".reports-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("swap report store: %w", err)
	}
	return nil
}

// FileAnalysisCache writes one JSON file per scope under a directory, with
// the same atomic-replace discipline as FileStore.
type FileAnalysisCache struct {
	dir string
	mu  sync.Mutex
}

func NewFileAnalysisCache(dir string) *FileAnalysisCache {
	return &FileAnalysisCache{dir: dir}
}

func (c *FileAnalysisCache) scopePath(scope string) string {
	name := strings.ReplaceAll(scope, ":", "_")
	return filepath.Join(c.dir, name+"_analysis.json")
}

func (c *FileAnalysisCache) Put(ctx context.Context, scope string, analysis types.AggregateAnalysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create analysis dir: %w", err)
	}
	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	path := c.scopePath(scope)
	tmp, err := os.CreateTemp(c.dir, ".analysis-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write analysis: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close analysis: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("swap analysis: %w", err)
	}
	return nil
}

func (c *FileAnalysisCache) Get(ctx context.Context, scope string) (types.AggregateAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return types.AggregateAnalysis{}, err
	}
	data, err := os.ReadFile(c.scopePath(scope))
	if err != nil {
		if os.IsNotExist(err) {
			return types.AggregateAnalysis{}, fmt.Errorf("scope %s: %w", scope, ErrNotFound)
		}
		return types.AggregateAnalysis{}, fmt.Errorf("read analysis: %w", err)
	}
	var out types.AggregateAnalysis
	if err := json.Unmarshal(data, &out); err != nil {
		return types.AggregateAnalysis{}, fmt.Errorf("%w: analysis for %s: %v", ErrCorrupt, scope, err)
	}
	return out, nil
}
