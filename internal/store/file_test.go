package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"call-quality-go/internal/types"
)

func sampleReport(jobID, employeeID string) *types.Report {
	return &types.Report{
		JobID:          jobID,
		EmployeeID:     employeeID,
		SubmissionTime: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Transcript:     "A: hello\nB: hi",
		MetricScores: []types.MetricScore{
			{Metric: "politeness", Score: 4, Rationale: "courteous"},
		},
		Summary: "fine",
	}
}

func TestFileStoreUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "reports.json"))

	if err := s.Upsert(ctx, sampleReport("job-1", "emp-1")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.EmployeeID != "emp-1" || got.Summary != "fine" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if len(got.MetricScores) != 1 || got.MetricScores[0].Metric != "politeness" {
		t.Fatalf("metric scores lost: %+v", got.MetricScores)
	}
}

func TestFileStoreUpsertReplacesExisting(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "reports.json"))

	if err := s.Upsert(ctx, sampleReport("job-1", "emp-1")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	updated := sampleReport("job-1", "emp-1")
	updated.Summary = "revised"
	if err := s.Upsert(ctx, updated); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 report after replace, got %d", len(all))
	}
	if all["job-1"].Summary != "revised" {
		t.Fatalf("Summary = %q, want revised", all["job-1"].Summary)
	}
}

func TestFileStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "reports.json"))

	if _, err := s.GetAll(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAll on empty store: err = %v, want ErrNotFound", err)
	}
	if err := s.Upsert(ctx, sampleReport("job-1", "emp-1")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing job: err = %v, want ErrNotFound", err)
	}
}

func TestFileStoreGetByEmployee(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "reports.json"))

	for i := 0; i < 3; i++ {
		emp := "emp-a"
		if i == 2 {
			emp = "emp-b"
		}
		if err := s.Upsert(ctx, sampleReport(fmt.Sprintf("job-%d", i), emp)); err != nil {
			t.Fatalf("Upsert %d failed: %v", i, err)
		}
	}

	got, err := s.GetByEmployee(ctx, "emp-a")
	if err != nil {
		t.Fatalf("GetByEmployee failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("emp-a reports = %d, want 2", len(got))
	}
	if _, err := s.GetByEmployee(ctx, "emp-z"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown employee: err = %v, want ErrNotFound", err)
	}
}

func TestFileStoreConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "reports.json"))

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Upsert(ctx, sampleReport(fmt.Sprintf("job-%d", i), "emp-1"))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Upsert failed: %v", err)
		}
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != n {
		t.Fatalf("lost writes: have %d reports, want %d", len(all), n)
	}
}

func TestFileStoreCorruptDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reports.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	s := NewFileStore(path)
	if _, err := s.GetAll(ctx); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("GetAll on corrupt file: err = %v, want ErrCorrupt", err)
	}

	// Upsert must refuse rather than silently reset the document.
	if err := s.Upsert(ctx, sampleReport("job-1", "emp-1")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Upsert on corrupt file: err = %v, want ErrCorrupt", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store back: %v", err)
	}
	if string(data) != "{not json" {
		t.Fatalf("corrupt document was rewritten to %q", data)
	}
}

func TestFileAnalysisCacheRoundtrip(t *testing.T) {
	ctx := context.Background()
	c := NewFileAnalysisCache(t.TempDir())

	in := types.AggregateAnalysis{
		Scope:       "employee:emp-1",
		GeneratedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Statistics: map[string]types.MetricStatistics{
			"politeness": {Mean: 4, Median: 4, Min: 4, Max: 4},
		},
	}
	if err := c.Put(ctx, in.Scope, in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := c.Get(ctx, in.Scope)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Scope != in.Scope || got.Statistics["politeness"].Mean != 4 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	if _, err := c.Get(ctx, "global"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing scope: err = %v, want ErrNotFound", err)
	}
}
