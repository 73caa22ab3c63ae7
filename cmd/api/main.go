package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"call-quality-go/internal/analysis"
	"call-quality-go/internal/audio"
	"call-quality-go/internal/charts"
	"call-quality-go/internal/config"
	"call-quality-go/internal/evaluator"
	"call-quality-go/internal/export"
	"call-quality-go/internal/keywords"
	"call-quality-go/internal/logger"
	"call-quality-go/internal/notify"
	"call-quality-go/internal/processor"
	"call-quality-go/internal/prompt"
	"call-quality-go/internal/store"
	"call-quality-go/internal/types"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "call-quality-go").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	var (
		reports store.ReportStore
		cache   store.AnalysisCache
	)
	switch backend := envOr("STORE_BACKEND", "file"); backend {
	case "bolt":
		db, err := store.OpenBolt(cfg.Storage.BoltPath)
		if err != nil {
			log.WithError(err).Fatal("failed to open bolt store")
		}
		defer db.Close()
		reports = store.NewBoltStore(db)
		cache = store.NewBoltAnalysisCache(db)
		log.WithField("path", cfg.Storage.BoltPath).Info("using bolt report store")
	default:
		reports = store.NewFileStore(cfg.Storage.ReportsPath)
		cache = store.NewFileAnalysisCache(cfg.Storage.AnalysisDir)
		log.WithField("path", cfg.Storage.ReportsPath).Info("using file report store")
	}

	var pipeline audio.Pipeline = audio.NewServiceClient(os.Getenv("TRANSCRIBE_URL"))
	if os.Getenv("USE_MOCK_TRANSCRIBE") == "true" {
		log.Info("mock transcription mode ON")
		pipeline = audio.MockPipeline{}
	}

	gateway := evaluator.NewGateway(
		envOr("OLLAMA_HOST", cfg.Evaluator.Host),
		envOr("LLM_MODEL", cfg.Evaluator.Model),
		cfg.EvaluatorTimeout(),
	)
	builder := prompt.NewBuilder(cfg, keywords.Extract)
	analyzer := analysis.New(cfg.Analysis.ScoreThreshold, charts.NewRenderer())
	hub := notify.NewHub()

	svc := processor.NewService(pipeline, builder, gateway, reports, analyzer, cache, hub)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Info("health check")
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("/evaluate_audio", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "evaluate_audio")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			reqLog.WithError(err).Warn("bad multipart form")
			http.Error(w, "bad multipart form", http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			reqLog.Warn("missing file field")
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		audioBytes, err := io.ReadAll(file)
		if err != nil {
			reqLog.WithError(err).Error("failed to read upload")
			http.Error(w, "failed to read upload", http.StatusInternalServerError)
			return
		}

		req := processor.SubmitRequest{
			Audio:         audioBytes,
			EmployeeID:    r.FormValue("employee_id"),
			UserGuidance:  r.FormValue("user_prompt"),
			MetricSetName: r.FormValue("prompt_name"),
		}
		reqLog = reqLog.WithField("employee_id", req.EmployeeID)

		ctx, cancel := context.WithTimeout(r.Context(), jobTimeout())
		defer cancel()

		start := time.Now()
		report, err := svc.EvaluateConversation(ctx, req)
		reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).Info("job finished")
		if err != nil {
			writeError(w, reqLog, err)
			return
		}
		writeJSON(w, reqLog, report)
	})

	mux.HandleFunc("/get-reports", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "get-reports")
		all, err := svc.Reports(r.Context())
		if err != nil {
			writeError(w, reqLog, err)
			return
		}
		writeJSON(w, reqLog, all)
	})

	mux.HandleFunc("/get-report-id", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "get-report-id")
		jobID := r.URL.Query().Get("job_id")
		if jobID == "" {
			http.Error(w, "missing job_id", http.StatusBadRequest)
			return
		}
		report, err := svc.Report(r.Context(), jobID)
		if err != nil {
			writeError(w, reqLog, err)
			return
		}
		writeJSON(w, reqLog, report)
	})

	mux.HandleFunc("/get-reports-by-employee", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "get-reports-by-employee")
		employeeID := r.URL.Query().Get("employee_id")
		if employeeID == "" {
			http.Error(w, "missing employee_id", http.StatusBadRequest)
			return
		}
		result, err := svc.ReportsByEmployee(r.Context(), employeeID)
		if err != nil {
			writeError(w, reqLog, err)
			return
		}
		writeJSON(w, reqLog, result)
	})

	mux.HandleFunc("/generate-report-analysis", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "generate-report-analysis")
		jobID := r.URL.Query().Get("job_id")
		if jobID == "" {
			http.Error(w, "missing job_id", http.StatusBadRequest)
			return
		}
		out, err := svc.ReportAnalysis(r.Context(), jobID)
		if err != nil {
			writeError(w, reqLog, err)
			return
		}
		writeJSON(w, reqLog, out)
	})

	mux.HandleFunc("/generate-overall-analysis", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "generate-overall-analysis")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		scope := processor.Scope{EmployeeID: r.URL.Query().Get("employee_id")}
		agg, err := svc.GenerateAnalysis(r.Context(), scope)
		if err != nil {
			writeError(w, reqLog, err)
			return
		}
		writeJSON(w, reqLog, agg)
	})

	mux.HandleFunc("/get-overall-analysis", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "get-overall-analysis")
		scope := processor.Scope{EmployeeID: r.URL.Query().Get("employee_id")}
		agg, err := svc.CachedAnalysis(r.Context(), scope)
		if err != nil {
			writeError(w, reqLog, err)
			return
		}
		writeJSON(w, reqLog, agg)
	})

	mux.HandleFunc("/export-reports", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "export-reports")
		all, err := svc.Reports(r.Context())
		if err != nil {
			writeError(w, reqLog, err)
			return
		}
		var aggPtr *types.AggregateAnalysis
		if agg, err := svc.CachedAnalysis(r.Context(), processor.Scope{}); err == nil {
			aggPtr = &agg
		}
		workbook, err := export.Workbook(all, aggPtr)
		if err != nil {
			reqLog.WithError(err).Error("export failed")
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="reports.xlsx"`)
		if _, err := w.Write(workbook); err != nil {
			reqLog.WithError(err).Error("failed to write workbook")
		}
	})

	mux.HandleFunc("/subscribe", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "subscribe")
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		listener := hub.Subscribe()
		defer hub.Unsubscribe(listener)
		reqLog.Info("listener subscribed")
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				reqLog.Info("listener disconnected")
				return
			case a, ok := <-listener.C():
				if !ok {
					return
				}
				payload, err := json.Marshal(a)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", a.Event, payload)
				flusher.Flush()
			}
		}
	})

	addr := fmt.Sprintf(":%s", envOr("PORT", "8080"))
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func writeJSON(w http.ResponseWriter, log *logrus.Entry, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.WithError(err).Error("failed to write response")
	}
}

// writeError maps the pipeline's typed failures onto HTTP status codes.
func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, prompt.ErrUnknownMetricSet):
		status = http.StatusBadRequest
	case errors.Is(err, prompt.ErrTemplateFormat):
		status = http.StatusInternalServerError
	case errors.Is(err, evaluator.ErrUnavailable),
		errors.Is(err, audio.ErrPipelineFailure):
		status = http.StatusBadGateway
	case errors.Is(err, evaluator.ErrMalformedJudgment):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	log.WithError(err).WithField("status", status).Warn("request failed")
	http.Error(w, err.Error(), status)
}

func jobTimeout() time.Duration {
	if v := os.Getenv("JOB_TIMEOUT_SEC"); v != "" {
		var sec int
		if _, err := fmt.Sscanf(v, "%d", &sec); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	return 120 * time.Second
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
