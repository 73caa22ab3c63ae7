package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"call-quality-go/internal/types"
)

func exportReports() map[string]types.Report {
	return map[string]types.Report{
		"job-2": {
			JobID:          "job-2",
			EmployeeID:     "emp-1",
			SubmissionTime: time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC),
			MetricScores: []types.MetricScore{
				{Metric: "clarity", Score: 4},
				{Metric: "empathy", Score: 5},
			},
			Summary: "good",
		},
		"job-1": {
			JobID:          "job-1",
			EmployeeID:     "emp-2",
			SubmissionTime: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
			MetricScores: []types.MetricScore{
				{Metric: "clarity", Score: 2},
			},
			Summary: "rough",
		},
	}
}

func TestWorkbookReportsSheet(t *testing.T) {
	out, err := Workbook(exportReports(), nil)
	if err != nil {
		t.Fatalf("Workbook failed: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Reports")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	// Union of metrics, sorted, appended to the fixed columns.
	header := rows[0]
	if header[len(header)-2] != "clarity" || header[len(header)-1] != "empathy" {
		t.Fatalf("metric columns = %v", header)
	}
	// Data rows come back in submission-time order.
	if rows[1][0] != "job-1" || rows[2][0] != "job-2" {
		t.Fatalf("row order = %q, %q, want job-1 then job-2", rows[1][0], rows[2][0])
	}
	// job-1 never scored empathy, so that cell is blank.
	if len(rows[1]) > len(header)-1 && rows[1][len(header)-1] != "" {
		t.Fatalf("expected empty empathy cell for job-1, got %q", rows[1][len(header)-1])
	}
}

func TestWorkbookStatisticsSheet(t *testing.T) {
	agg := &types.AggregateAnalysis{
		Scope: "global",
		Statistics: map[string]types.MetricStatistics{
			"clarity": {Mean: 3, Median: 3, Min: 2, Max: 4, P10: 2.2, P90: 3.8, PctAboveThreshold: 0},
		},
	}
	out, err := Workbook(exportReports(), agg)
	if err != nil {
		t.Fatalf("Workbook failed: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Statistics")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "clarity" {
		t.Fatalf("statistics rows = %v", rows)
	}
}

func TestWorkbookEmptyReports(t *testing.T) {
	out, err := Workbook(nil, nil)
	if err != nil {
		t.Fatalf("Workbook failed on empty input: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	f.Close()
}
