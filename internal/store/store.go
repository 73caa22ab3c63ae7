// Package store owns durable report persistence and the per-scope analysis
// cache. Two implementations satisfy the same contracts: a whole-file JSON
// store with atomic replacement and a bbolt-backed embedded store.
package store

import (
	"context"
	"errors"

	"call-quality-go/internal/types"
)

var (
	// ErrNotFound means the store was never initialized, the key is absent,
	// or an employee filter matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrCorrupt means persisted data is unreadable. The encountering
	// operation fails; the store is never silently reset.
	ErrCorrupt = errors.New("store corrupt")
)

// ReportStore is the single shared mutable resource of the pipeline. Upsert
// is serialized through one writer at a time; readers may run concurrently
// and never observe a torn snapshot.
type ReportStore interface {
	Upsert(ctx context.Context, report *types.Report) error
	GetAll(ctx context.Context) (map[string]types.Report, error)
	Get(ctx context.Context, jobID string) (types.Report, error)
	GetByEmployee(ctx context.Context, employeeID string) (map[string]types.Report, error)
}

// AnalysisCache keeps the latest AggregateAnalysis per scope key, overwritten
// wholesale on each write. No history is retained.
type AnalysisCache interface {
	Put(ctx context.Context, scope string, analysis types.AggregateAnalysis) error
	Get(ctx context.Context, scope string) (types.AggregateAnalysis, error)
}

func filterByEmployee(all map[string]types.Report, employeeID string) (map[string]types.Report, error) {
	out := make(map[string]types.Report)
	for id, r := range all {
		if r.EmployeeID == employeeID {
			out[id] = r
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}
