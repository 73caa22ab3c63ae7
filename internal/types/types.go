package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Segment is one speaker-attributed span of transcribed speech as produced
// by the diarization/transcription service. Segments are immutable and are
// expected to arrive ordered by StartMS.
type Segment struct {
	SpeakerID string `json:"speaker_id"`
	Text      string `json:"text"`
	StartMS   int64  `json:"start_ms"`
	EndMS     int64  `json:"end_ms"`
}

// MetricScore is one evaluated dimension of a conversation.
type MetricScore struct {
	Metric    string  `json:"metric"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// UnmarshalJSON accepts both the object form {"metric":..,"score":..,"rationale":..}
// and the triple form ["politeness", 4, "stayed calm"] that the judgment
// backend emits interchangeably.
func (m *MetricScore) UnmarshalJSON(data []byte) error {
	type plain MetricScore
	var obj plain
	if err := json.Unmarshal(data, &obj); err == nil && obj.Metric != "" {
		*m = MetricScore(obj)
		return nil
	}

	var triple []json.RawMessage
	if err := json.Unmarshal(data, &triple); err != nil {
		return fmt.Errorf("metric score is neither object nor triple: %w", err)
	}
	if len(triple) < 2 {
		return fmt.Errorf("metric score triple has %d elements, want at least 2", len(triple))
	}
	if err := json.Unmarshal(triple[0], &m.Metric); err != nil {
		return fmt.Errorf("metric name: %w", err)
	}
	if err := json.Unmarshal(triple[1], &m.Score); err != nil {
		return fmt.Errorf("metric score: %w", err)
	}
	if len(triple) > 2 {
		if err := json.Unmarshal(triple[2], &m.Rationale); err != nil {
			return fmt.Errorf("metric rationale: %w", err)
		}
	}
	return nil
}

// Report is the durable output of one evaluation job, keyed by JobID.
// Once written the JobID never changes; the same JobID may only be
// overwritten by a resubmission of the identical job.
type Report struct {
	JobID              string        `json:"job_id"`
	EmployeeID         string        `json:"employee_id,omitempty"`
	SubmissionTime     time.Time     `json:"submission_time"`
	AudioDurationMS    int64         `json:"audio_duration_ms"`
	Transcript         string        `json:"transcript"`
	InputUserGuidance  string        `json:"input_user_guidance"`
	InputMetricSetName string        `json:"input_metric_set_name"`
	PromptPayload      string        `json:"prompt_payload"`
	MetricScores       []MetricScore `json:"metric_scores"`
	Summary            string        `json:"summary"`
}

// MetricSeries holds the ordered data points for one metric across a set of
// reports plus the rendered trend chart. Scores and Labels are parallel.
type MetricSeries struct {
	Scores []float64 `json:"scores"`
	Labels []string  `json:"labels"`
	Chart  []byte    `json:"chart,omitempty"` // PNG, base64 in JSON
}

// MetricStatistics are descriptive statistics over one metric's scores.
// All values are float64; percentiles use linear interpolation.
type MetricStatistics struct {
	Mean              float64 `json:"mean"`
	Median            float64 `json:"median"`
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	P10               float64 `json:"10th_percentile"`
	P90               float64 `json:"90th_percentile"`
	PctAboveThreshold float64 `json:"percentage_above_threshold"`
}

// ReportAnalysis is the single-report rollup: how one call's metric scores
// sit and how consistent they are, plus bar and box renderings of the
// distribution.
type ReportAnalysis struct {
	JobID    string  `json:"job_id"`
	Summary  string  `json:"summary"`
	Mean     float64 `json:"average_score"`
	StdDev   float64 `json:"standard_deviation"`
	Verdict  string  `json:"performance_evaluation"`
	BarChart []byte  `json:"bar_chart,omitempty"` // PNG, base64 in JSON
	BoxChart []byte  `json:"box_chart,omitempty"` // PNG, base64 in JSON
}

// AggregateAnalysis is a recomputable rollup over a snapshot of reports.
// It has no identity of its own: same snapshot plus same threshold always
// yields the same statistics.
type AggregateAnalysis struct {
	Scope       string                      `json:"scope"`
	GeneratedAt time.Time                   `json:"generated_at"`
	PerMetric   map[string]MetricSeries     `json:"metrics_data"`
	Statistics  map[string]MetricStatistics `json:"overall_performance_data"`
}
