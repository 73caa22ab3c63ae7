package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"call-quality-go/internal/types"
)

var (
	bucketReports  = []byte("reports")
	bucketAnalysis = []byte("analysis")
)

// OpenBolt opens (creating if needed) the embedded key-value database shared
// by BoltStore and BoltAnalysisCache. bbolt allows one writer transaction at
// a time, which is exactly the serialization the store contract requires.
func OpenBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketReports, bucketAnalysis} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return db, nil
}

// BoltStore is the embedded key-value implementation of ReportStore, one
// JSON-encoded report per key.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(db *bolt.DB) *BoltStore {
	return &BoltStore{db: db}
}

func (s *BoltStore) Upsert(ctx context.Context, report *types.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).Put([]byte(report.JobID), data)
	})
}

func (s *BoltStore) GetAll(ctx context.Context) (map[string]types.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]types.Report)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).ForEach(func(k, v []byte) error {
			var r types.Report
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("%w: report %s: %v", ErrCorrupt, k, err)
			}
			out[string(k)] = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *BoltStore) Get(ctx context.Context, jobID string) (types.Report, error) {
	if err := ctx.Err(); err != nil {
		return types.Report{}, err
	}
	var r types.Report
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketReports).Get([]byte(jobID))
		if v == nil {
			return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("%w: report %s: %v", ErrCorrupt, jobID, err)
		}
		return nil
	})
	if err != nil {
		return types.Report{}, err
	}
	return r, nil
}

func (s *BoltStore) GetByEmployee(ctx context.Context, employeeID string) (map[string]types.Report, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterByEmployee(all, employeeID)
}

// BoltAnalysisCache stores the latest analysis per scope in its own bucket.
type BoltAnalysisCache struct {
	db *bolt.DB
}

func NewBoltAnalysisCache(db *bolt.DB) *BoltAnalysisCache {
	return &BoltAnalysisCache{db: db}
}

func (c *BoltAnalysisCache) Put(ctx context.Context, scope string, analysis types.AggregateAnalysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAnalysis).Put([]byte(scope), data)
	})
}

func (c *BoltAnalysisCache) Get(ctx context.Context, scope string) (types.AggregateAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return types.AggregateAnalysis{}, err
	}
	var out types.AggregateAnalysis
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAnalysis).Get([]byte(scope))
		if v == nil {
			return fmt.Errorf("scope %s: %w", scope, ErrNotFound)
		}
		if err := json.Unmarshal(v, &out); err != nil {
			return fmt.Errorf("%w: analysis for %s: %v", ErrCorrupt, scope, err)
		}
		return nil
	})
	if err != nil {
		return types.AggregateAnalysis{}, err
	}
	return out, nil
}
