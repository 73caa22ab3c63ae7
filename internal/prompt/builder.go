package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"call-quality-go/internal/config"
	"call-quality-go/internal/logger"
)

var (
	// ErrUnknownMetricSet means the requested metric set is not in the catalog.
	ErrUnknownMetricSet = errors.New("unknown metric set")
	// ErrTemplateFormat means template substitution could not complete.
	ErrTemplateFormat = errors.New("prompt template format error")
)

// Extractor reduces free text to salient phrases. Injected so the NLP
// collaborator stays at the boundary.
type Extractor func(text string) []string

// BuildResult carries the assembled prompt plus the resolved inputs, which
// may differ from the caller's (defaults applied) and are echoed for audit.
type BuildResult struct {
	Prompt            string
	ResolvedGuidance  string
	ResolvedMetricSet string
}

type Builder struct {
	catalog    map[string]config.MetricSet
	template   string
	defaultSet string
	extract    Extractor
}

func NewBuilder(cfg *config.Root, extract Extractor) *Builder {
	return &Builder{
		catalog:    cfg.MetricSets,
		template:   cfg.Prompt.Template,
		defaultSet: cfg.Prompt.DefaultMetricSet,
		extract:    extract,
	}
}

// placeholderRe matches any {placeholder} left over after substitution.
var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

// Build merges the transcript, the named metric set and optional reviewer
// guidance into one evaluation prompt. An empty metricSetName falls back to
// the configured default.
func (b *Builder) Build(transcription, userGuidance, metricSetName string) (BuildResult, error) {
	log := logger.New().WithComponent("prompt-builder")

	if metricSetName == "" {
		metricSetName = b.defaultSet
	}
	set, ok := b.catalog[metricSetName]
	if !ok {
		return BuildResult{}, fmt.Errorf("%w: %q", ErrUnknownMetricSet, metricSetName)
	}
	metricList := strings.Join(set.Names(), ", ")

	guidance := userGuidance
	if guidance == "" {
		// No reviewer guidance: the catalog's own metric list stands in.
		guidance = metricList
	} else if b.extract != nil {
		if phrases := b.extract(guidance); len(phrases) > 0 {
			guidance = strings.Join(phrases, ", ")
		}
	}

	for _, ph := range placeholderRe.FindAllString(b.template, -1) {
		switch ph {
		case "{transcription}", "{metrics}", "{user_prompt}":
		default:
			return BuildResult{}, fmt.Errorf("%w: unresolved placeholder %s", ErrTemplateFormat, ph)
		}
	}

	out := strings.NewReplacer(
		"{transcription}", transcription,
		"{metrics}", metricList,
		"{user_prompt}", guidance,
	).Replace(b.template)

	log.WithField("metric_set", metricSetName).Debug("prompt assembled")
	return BuildResult{
		Prompt:            out,
		ResolvedGuidance:  guidance,
		ResolvedMetricSet: metricSetName,
	}, nil
}
