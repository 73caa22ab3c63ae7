// Package export writes reports and aggregate statistics into an Excel
// workbook for offline review.
package export

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"call-quality-go/internal/types"
)

const (
	sheetReports    = "Reports"
	sheetStatistics = "Statistics"
)

// Workbook renders one workbook: a Reports sheet with one row per report and
// one column per metric, plus a Statistics sheet when an aggregate is given.
func Workbook(reports map[string]types.Report, aggregate *types.AggregateAnalysis) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetReports); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	ordered := orderReports(reports)
	metrics := metricColumns(ordered)

	header := []string{"job_id", "employee_id", "submission_time", "audio_duration_ms", "metric_set", "summary"}
	header = append(header, metrics...)
	if err := writeRow(f, sheetReports, 1, header); err != nil {
		return nil, err
	}

	for i, r := range ordered {
		row := []interface{}{
			r.JobID,
			r.EmployeeID,
			r.SubmissionTime.Format("2006-01-02 15:04:05"),
			r.AudioDurationMS,
			r.InputMetricSetName,
			r.Summary,
		}
		byMetric := make(map[string]float64, len(r.MetricScores))
		for _, ms := range r.MetricScores {
			byMetric[ms.Metric] = ms.Score
		}
		for _, m := range metrics {
			if score, ok := byMetric[m]; ok {
				row = append(row, score)
			} else {
				row = append(row, "")
			}
		}
		if err := writeAnyRow(f, sheetReports, i+2, row); err != nil {
			return nil, err
		}
	}

	if aggregate != nil {
		if _, err := f.NewSheet(sheetStatistics); err != nil {
			return nil, fmt.Errorf("add statistics sheet: %w", err)
		}
		statHeader := []string{"metric", "mean", "median", "min", "max", "p10", "p90", "pct_above_threshold"}
		if err := writeRow(f, sheetStatistics, 1, statHeader); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(aggregate.Statistics))
		for name := range aggregate.Statistics {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			s := aggregate.Statistics[name]
			row := []interface{}{name, s.Mean, s.Median, s.Min, s.Max, s.P10, s.P90, s.PctAboveThreshold}
			if err := writeAnyRow(f, sheetStatistics, i+2, row); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func orderReports(reports map[string]types.Report) []types.Report {
	out := make([]types.Report, 0, len(reports))
	for _, r := range reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmissionTime.Equal(out[j].SubmissionTime) {
			return out[i].SubmissionTime.Before(out[j].SubmissionTime)
		}
		return out[i].JobID < out[j].JobID
	})
	return out
}

func metricColumns(reports []types.Report) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range reports {
		for _, ms := range r.MetricScores {
			if !seen[ms.Metric] {
				seen[ms.Metric] = true
				out = append(out, ms.Metric)
			}
		}
	}
	sort.Strings(out)
	return out
}

func writeRow(f *excelize.File, sheet string, row int, values []string) error {
	any := make([]interface{}, len(values))
	for i, v := range values {
		any[i] = v
	}
	return writeAnyRow(f, sheet, row, any)
}

func writeAnyRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}
