// Package processor sequences one evaluation job end to end: audio in,
// durable report out. A job either completes and is persisted atomically or
// fails with a typed error and leaves the store untouched.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"call-quality-go/internal/analysis"
	"call-quality-go/internal/audio"
	"call-quality-go/internal/evaluator"
	"call-quality-go/internal/logger"
	"call-quality-go/internal/notify"
	"call-quality-go/internal/prompt"
	"call-quality-go/internal/store"
	"call-quality-go/internal/transcript"
	"call-quality-go/internal/types"
)

// Evaluator is the judgment-backend boundary the orchestrator depends on.
type Evaluator interface {
	Evaluate(ctx context.Context, prompt string) (evaluator.Judgment, error)
}

// Scope selects which reports an aggregation covers: all of them, or one
// employee's.
type Scope struct {
	EmployeeID string
}

func (s Scope) Key() string {
	if s.EmployeeID == "" {
		return "global"
	}
	return "employee:" + s.EmployeeID
}

// SubmitRequest carries one job's inputs.
type SubmitRequest struct {
	Audio         []byte
	EmployeeID    string
	UserGuidance  string
	MetricSetName string
}

// Service owns the pipeline's injected collaborators. There are no ambient
// singletons: everything the pipeline touches comes in through the
// constructor.
type Service struct {
	pipeline audio.Pipeline
	prompts  *prompt.Builder
	eval     Evaluator
	reports  store.ReportStore
	analyzer *analysis.Analyzer
	cache    store.AnalysisCache
	hub      *notify.Hub
	log      *logger.Logger
}

func NewService(
	pipeline audio.Pipeline,
	prompts *prompt.Builder,
	eval Evaluator,
	reports store.ReportStore,
	analyzer *analysis.Analyzer,
	cache store.AnalysisCache,
	hub *notify.Hub,
) *Service {
	return &Service{
		pipeline: pipeline,
		prompts:  prompts,
		eval:     eval,
		reports:  reports,
		analyzer: analyzer,
		cache:    cache,
		hub:      hub,
		log:      logger.New(),
	}
}

// EvaluateConversation runs one job: transcribe, label, build the prompt,
// evaluate, persist. Any stage failure is terminal for the job, surfaces
// unchanged, and leaves the store unmodified. Nothing is retried here.
func (s *Service) EvaluateConversation(ctx context.Context, req SubmitRequest) (types.Report, error) {
	jobID := uuid.NewString()
	submitted := time.Now().UTC()
	log := s.log.WithComponent("processor").WithField("job_id", jobID)
	log.WithField("employee_id", req.EmployeeID).Info("evaluating conversation audio")

	tr, err := s.pipeline.Transcribe(ctx, req.Audio)
	if err != nil {
		log.WithError(err).Warn("audio pipeline failed")
		return types.Report{}, err
	}

	rendered := transcript.Render(tr.Segments)

	built, err := s.prompts.Build(rendered, req.UserGuidance, req.MetricSetName)
	if err != nil {
		log.WithError(err).Warn("prompt build failed")
		return types.Report{}, err
	}

	judgment, err := s.eval.Evaluate(ctx, built.Prompt)
	if err != nil {
		log.WithError(err).Warn("evaluation failed")
		return types.Report{}, err
	}

	report := types.Report{
		JobID:              jobID,
		EmployeeID:         req.EmployeeID,
		SubmissionTime:     submitted,
		AudioDurationMS:    tr.DurationMS,
		Transcript:         rendered,
		InputUserGuidance:  built.ResolvedGuidance,
		InputMetricSetName: built.ResolvedMetricSet,
		PromptPayload:      built.Prompt,
		MetricScores:       judgment.Report,
		Summary:            judgment.Summary,
	}

	if err := s.reports.Upsert(ctx, &report); err != nil {
		log.WithError(err).Error("report persist failed")
		return types.Report{}, fmt.Errorf("persist report: %w", err)
	}
	log.WithField("metric_count", len(report.MetricScores)).Info("report persisted")

	// Refresh the global rollup off the request path. A failure here only
	// logs; the job itself already succeeded.
	go s.refreshAnalysis(Scope{})

	return report, nil
}

func (s *Service) refreshAnalysis(scope Scope) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.GenerateAnalysis(ctx, scope); err != nil {
		s.log.WithComponent("processor").WithError(err).Warn("background analysis refresh failed")
	}
}

// Report fetches one report by job id.
func (s *Service) Report(ctx context.Context, jobID string) (types.Report, error) {
	return s.reports.Get(ctx, jobID)
}

// ReportAnalysis computes the single-report rollup for a stored report.
func (s *Service) ReportAnalysis(ctx context.Context, jobID string) (types.ReportAnalysis, error) {
	report, err := s.reports.Get(ctx, jobID)
	if err != nil {
		return types.ReportAnalysis{}, err
	}
	return s.analyzer.AnalyzeReport(report)
}

// Reports fetches the full store snapshot.
func (s *Service) Reports(ctx context.Context) (map[string]types.Report, error) {
	return s.reports.GetAll(ctx)
}

// ReportsByEmployee fetches the employee-filtered snapshot.
func (s *Service) ReportsByEmployee(ctx context.Context, employeeID string) (map[string]types.Report, error) {
	return s.reports.GetByEmployee(ctx, employeeID)
}

// GenerateAnalysis recomputes the aggregate for a scope from the current
// store snapshot, caches it under the scope key, and announces it. A failed
// computation leaves any previously cached analysis untouched.
func (s *Service) GenerateAnalysis(ctx context.Context, scope Scope) (types.AggregateAnalysis, error) {
	var (
		reports map[string]types.Report
		err     error
	)
	if scope.EmployeeID == "" {
		reports, err = s.reports.GetAll(ctx)
	} else {
		reports, err = s.reports.GetByEmployee(ctx, scope.EmployeeID)
	}
	if err != nil {
		return types.AggregateAnalysis{}, err
	}

	agg, err := s.analyzer.Aggregate(ctx, scope.Key(), reports)
	if err != nil {
		return types.AggregateAnalysis{}, fmt.Errorf("aggregate %s: %w", scope.Key(), err)
	}

	if err := s.cache.Put(ctx, scope.Key(), agg); err != nil {
		return types.AggregateAnalysis{}, fmt.Errorf("cache analysis %s: %w", scope.Key(), err)
	}

	s.hub.Announce(notify.Announcement{
		Event:   notify.EventNewAnalysis,
		Scope:   scope.Key(),
		Summary: "New analysis generated",
		At:      time.Now().UTC(),
	})
	return agg, nil
}

// CachedAnalysis returns the most recently computed aggregate for a scope.
func (s *Service) CachedAnalysis(ctx context.Context, scope Scope) (types.AggregateAnalysis, error) {
	return s.cache.Get(ctx, scope.Key())
}
