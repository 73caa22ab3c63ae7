// Package analysis rolls a snapshot of reports up into per-metric
// descriptive statistics and trend series. The rollup is a pure function of
// the snapshot and the threshold: identical inputs always produce identical
// statistics.
package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"call-quality-go/internal/charts"
	"call-quality-go/internal/logger"
	"call-quality-go/internal/types"
)

// DefaultThreshold is the score cutoff for the above-threshold percentage.
const DefaultThreshold = 4.5

// Verdicts for the single-report consistency check.
const (
	VerdictConsistent   = "Consistent Performance"
	VerdictInconsistent = "Inconsistent Performance"
)

// consistencyStdDev is the spread below which a high-scoring report counts
// as consistent.
const consistencyStdDev = 0.5

type Analyzer struct {
	threshold float64
	renderer  *charts.Renderer
}

func New(threshold float64, renderer *charts.Renderer) *Analyzer {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Analyzer{threshold: threshold, renderer: renderer}
}

// Aggregate computes the full analysis for one snapshot of reports. Reports
// are walked in (submission time, job id) order so repeated runs over the
// same snapshot are byte-identical and the trend series reads left to right
// in time.
func (a *Analyzer) Aggregate(ctx context.Context, scope string, reports map[string]types.Report) (types.AggregateAnalysis, error) {
	log := logger.New().WithComponent("analyzer").WithField("scope", scope)
	log.WithField("report_count", len(reports)).Info("aggregating reports")

	perMetric := extractSeries(reports)

	stats := make(map[string]types.MetricStatistics, len(perMetric))
	for metric, series := range perMetric {
		stats[metric] = a.describe(series.Scores)
	}

	if a.renderer != nil {
		// Each goroutine renders into its own slot; the shared map is only
		// written after Wait.
		names := make([]string, 0, len(perMetric))
		for metric := range perMetric {
			names = append(names, metric)
		}
		rendered := make([][]byte, len(names))
		g, _ := errgroup.WithContext(ctx)
		for i, metric := range names {
			i, metric := i, metric
			g.Go(func() error {
				series := perMetric[metric]
				png, err := a.renderer.Line("Trend for "+metric, series.Labels, series.Scores)
				if err != nil {
					return fmt.Errorf("render %s: %w", metric, err)
				}
				rendered[i] = png
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return types.AggregateAnalysis{}, err
		}
		for i, metric := range names {
			series := perMetric[metric]
			series.Chart = rendered[i]
			perMetric[metric] = series
		}
	}

	return types.AggregateAnalysis{
		Scope:       scope,
		GeneratedAt: time.Now().UTC(),
		PerMetric:   perMetric,
		Statistics:  stats,
	}, nil
}

// AnalyzeReport rolls one report up on its own: mean and population standard
// deviation over its metric scores, a consistency verdict, and bar/box charts
// of the score distribution. A report with no scores gets zero statistics and
// the inconsistent verdict.
func (a *Analyzer) AnalyzeReport(report types.Report) (types.ReportAnalysis, error) {
	out := types.ReportAnalysis{
		JobID:   report.JobID,
		Summary: report.Summary,
		Verdict: VerdictInconsistent,
	}
	if len(report.MetricScores) == 0 {
		return out, nil
	}

	labels := make([]string, 0, len(report.MetricScores))
	scores := make([]float64, 0, len(report.MetricScores))
	sum := 0.0
	for _, ms := range report.MetricScores {
		labels = append(labels, ms.Metric)
		scores = append(scores, ms.Score)
		sum += ms.Score
	}
	mean := sum / float64(len(scores))
	varSum := 0.0
	for _, s := range scores {
		d := s - mean
		varSum += d * d
	}
	std := math.Sqrt(varSum / float64(len(scores)))

	out.Mean = mean
	out.StdDev = std
	if mean > a.threshold && std < consistencyStdDev {
		out.Verdict = VerdictConsistent
	}

	if a.renderer != nil {
		bar, err := a.renderer.Bar("Evaluation Metrics", labels, scores)
		if err != nil {
			return types.ReportAnalysis{}, fmt.Errorf("render bar chart: %w", err)
		}
		box, err := a.renderer.Box("Score Distribution", scores)
		if err != nil {
			return types.ReportAnalysis{}, fmt.Errorf("render box plot: %w", err)
		}
		out.BarChart = bar
		out.BoxChart = box
	}
	return out, nil
}

// extractSeries buckets every score under its metric name with a parallel
// point label of "{employee_id}-{job_id[:5]}" (index-based when the report
// has no employee).
func extractSeries(reports map[string]types.Report) map[string]types.MetricSeries {
	ordered := make([]types.Report, 0, len(reports))
	for _, r := range reports {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].SubmissionTime.Equal(ordered[j].SubmissionTime) {
			return ordered[i].SubmissionTime.Before(ordered[j].SubmissionTime)
		}
		return ordered[i].JobID < ordered[j].JobID
	})

	out := make(map[string]types.MetricSeries)
	for i, r := range ordered {
		label := pointLabel(r, i)
		for _, ms := range r.MetricScores {
			series := out[ms.Metric]
			series.Scores = append(series.Scores, ms.Score)
			series.Labels = append(series.Labels, label)
			out[ms.Metric] = series
		}
	}
	return out
}

func pointLabel(r types.Report, index int) string {
	id := r.JobID
	if len(id) > 5 {
		id = id[:5]
	}
	if r.EmployeeID == "" {
		return fmt.Sprintf("report-%d-%s", index, id)
	}
	return r.EmployeeID + "-" + id
}

// describe computes the descriptive statistics for one metric. A metric with
// zero scores yields all zeros.
func (a *Analyzer) describe(scores []float64) types.MetricStatistics {
	if len(scores) == 0 {
		return types.MetricStatistics{}
	}

	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	sum := 0.0
	above := 0
	for _, s := range scores {
		sum += s
		if s >= a.threshold {
			above++
		}
	}

	return types.MetricStatistics{
		Mean:              sum / float64(len(scores)),
		Median:            percentile(sorted, 50),
		Min:               sorted[0],
		Max:               sorted[len(sorted)-1],
		P10:               percentile(sorted, 10),
		P90:               percentile(sorted, 90),
		PctAboveThreshold: 100 * float64(above) / float64(len(scores)),
	}
}

// percentile uses linear interpolation between closest ranks over an
// already-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(rank)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
