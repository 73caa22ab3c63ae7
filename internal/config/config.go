package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Metric is one evaluation dimension inside a metric set.
type Metric struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// MetricSet is an ordered, named list of evaluation dimensions.
type MetricSet []Metric

// Names returns the metric names in catalog order.
func (s MetricSet) Names() []string {
	out := make([]string, 0, len(s))
	for _, m := range s {
		out = append(out, m.Name)
	}
	return out
}

type Prompt struct {
	// Template uses {transcription}, {metrics} and {user_prompt} placeholders.
	Template         string `yaml:"template"`
	DefaultMetricSet string `yaml:"default_metric_set"`
}

type Analysis struct {
	// ScoreThreshold is the cutoff for percentage-above-threshold stats.
	ScoreThreshold float64 `yaml:"score_threshold"`
}

type Storage struct {
	ReportsPath string `yaml:"reports_path"`
	AnalysisDir string `yaml:"analysis_dir"`
	BoltPath    string `yaml:"bolt_path"`
}

type Evaluator struct {
	Host           string `yaml:"host"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Root struct {
	MetricSets map[string]MetricSet `yaml:"metric_sets"`
	Prompt     Prompt               `yaml:"prompt"`
	Analysis   Analysis             `yaml:"analysis"`
	Storage    Storage              `yaml:"storage"`
	Evaluator  Evaluator            `yaml:"evaluator"`
}

const defaultTemplate = `You are a strict call-center quality evaluator.

Evaluate the following conversation between labeled speakers:
"""{transcription}"""

Score each of these metrics from 1 to 5: {metrics}.
Additional guidance from the reviewer: {user_prompt}.

Return ONLY a JSON object with two keys:
"report": a list of [metric_name, score, rationale] triples in the metric order given,
"summary": a short overall assessment of the call.`

// Default returns the built-in configuration used when no config file is
// present. It mirrors the shipped configs/config.yaml.
func Default() *Root {
	return &Root{
		MetricSets: map[string]MetricSet{
			"customer_service_metrics": {
				{Name: "politeness", Description: "courtesy and tone toward the caller"},
				{Name: "clarity", Description: "how clearly information was conveyed"},
				{Name: "empathy", Description: "acknowledgement of the caller's situation"},
				{Name: "resolution", Description: "whether the issue was actually resolved"},
				{Name: "professionalism", Description: "adherence to company standards"},
			},
			"sales_call_metrics": {
				{Name: "rapport", Description: "relationship building with the prospect"},
				{Name: "needs_discovery", Description: "uncovering the prospect's requirements"},
				{Name: "objection_handling", Description: "responses to pushback"},
				{Name: "closing", Description: "moving the deal forward"},
			},
		},
		Prompt: Prompt{
			Template:         defaultTemplate,
			DefaultMetricSet: "customer_service_metrics",
		},
		Analysis: Analysis{ScoreThreshold: 4.5},
		Storage: Storage{
			ReportsPath: "./reports/all_reports.json",
			AnalysisDir: "./analysis",
			BoltPath:    "./reports/reports.db",
		},
		Evaluator: Evaluator{
			Host:           "http://localhost:11434",
			Model:          "mistral",
			TimeoutSeconds: 60,
		},
	}
}

// Load reads the YAML config from CONFIG_PATH or the usual locations and
// fills gaps from Default(). A missing file is not an error; a present but
// unreadable one is.
func Load() (*Root, error) {
	guesses := []string{
		os.Getenv("CONFIG_PATH"),
		filepath.Join("configs", "config.yaml"),
		"config.yaml",
	}
	for _, p := range guesses {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("open config %s: %w", p, err)
		}
		defer f.Close()
		cfg := Default()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", p, err)
		}
		applyDefaults(cfg)
		return cfg, nil
	}
	return Default(), nil
}

func applyDefaults(cfg *Root) {
	def := Default()
	if len(cfg.MetricSets) == 0 {
		cfg.MetricSets = def.MetricSets
	}
	if cfg.Prompt.Template == "" {
		cfg.Prompt.Template = def.Prompt.Template
	}
	if cfg.Prompt.DefaultMetricSet == "" {
		cfg.Prompt.DefaultMetricSet = def.Prompt.DefaultMetricSet
	}
	if cfg.Analysis.ScoreThreshold == 0 {
		cfg.Analysis.ScoreThreshold = def.Analysis.ScoreThreshold
	}
	if cfg.Storage.ReportsPath == "" {
		cfg.Storage.ReportsPath = def.Storage.ReportsPath
	}
	if cfg.Storage.AnalysisDir == "" {
		cfg.Storage.AnalysisDir = def.Storage.AnalysisDir
	}
	if cfg.Storage.BoltPath == "" {
		cfg.Storage.BoltPath = def.Storage.BoltPath
	}
	if cfg.Evaluator.Host == "" {
		cfg.Evaluator.Host = def.Evaluator.Host
	}
	if cfg.Evaluator.Model == "" {
		cfg.Evaluator.Model = def.Evaluator.Model
	}
	if cfg.Evaluator.TimeoutSeconds == 0 {
		cfg.Evaluator.TimeoutSeconds = def.Evaluator.TimeoutSeconds
	}
}

// EvaluatorTimeout returns the configured evaluator timeout as a duration.
func (r *Root) EvaluatorTimeout() time.Duration {
	return time.Duration(r.Evaluator.TimeoutSeconds) * time.Second
}
