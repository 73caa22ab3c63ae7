package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"call-quality-go/internal/types"
)

func openTestBolt(t *testing.T) *BoltStore {
	t.Helper()
	db, err := OpenBolt(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBoltStore(db)
}

func TestBoltStoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := openTestBolt(t)

	in := sampleReport("job-1", "emp-1")
	if err := s.Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.JobID != "job-1" || got.EmployeeID != "emp-1" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if !got.SubmissionTime.Equal(in.SubmissionTime) {
		t.Fatalf("SubmissionTime = %v, want %v", got.SubmissionTime, in.SubmissionTime)
	}
}

func TestBoltStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestBolt(t)

	if _, err := s.GetAll(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAll on empty db: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing job: err = %v, want ErrNotFound", err)
	}
}

func TestBoltStoreGetByEmployee(t *testing.T) {
	ctx := context.Background()
	s := openTestBolt(t)

	if err := s.Upsert(ctx, sampleReport("job-1", "emp-a")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Upsert(ctx, sampleReport("job-2", "emp-b")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := s.GetByEmployee(ctx, "emp-b")
	if err != nil {
		t.Fatalf("GetByEmployee failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("emp-b reports = %d, want 1", len(got))
	}
	if _, ok := got["job-2"]; !ok {
		t.Fatalf("wrong report returned: %v", got)
	}
}

func TestBoltAnalysisCacheRoundtrip(t *testing.T) {
	ctx := context.Background()
	db, err := OpenBolt(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	defer db.Close()
	c := NewBoltAnalysisCache(db)

	in := types.AggregateAnalysis{
		Scope:       "global",
		GeneratedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := c.Put(ctx, in.Scope, in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := c.Get(ctx, "global")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Scope != "global" {
		t.Fatalf("Scope = %q", got.Scope)
	}
	if _, err := c.Get(ctx, "employee:none"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing scope: err = %v, want ErrNotFound", err)
	}
}
