package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"call-quality-go/internal/logger"
	"call-quality-go/internal/types"
)

var (
	// ErrUnavailable means the judgment backend could not be reached or errored.
	ErrUnavailable = errors.New("evaluation backend unavailable")
	// ErrMalformedJudgment means the backend answered but the response could
	// not be parsed into a report plus summary.
	ErrMalformedJudgment = errors.New("malformed judgment")
)

// Judgment is the typed result of one evaluation call.
type Judgment struct {
	Report  []types.MetricScore `json:"report"`
	Summary string              `json:"summary"`
}

// Gateway talks to an Ollama-style chat backend. It performs exactly one
// call per Evaluate: retry policy belongs to the caller, not here.
type Gateway struct {
	host   string
	model  string
	client *http.Client
}

func NewGateway(host, model string, timeout time.Duration) *Gateway {
	return &Gateway{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Evaluate sends the prompt to the backend and parses its judgment.
func (g *Gateway) Evaluate(ctx context.Context, prompt string) (Judgment, error) {
	log := logger.New().WithComponent("evaluator")

	payload, err := json.Marshal(chatRequest{
		Model:    g.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	if err != nil {
		return Judgment{}, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Judgment{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("chat request failed")
		return Judgment{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Judgment{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithField("http_status", resp.StatusCode).Warn("chat backend error")
		return Judgment{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(body, 200))
	}

	// Some backends answer with the chat envelope, others with the judgment
	// object directly; accept either.
	content := string(body)
	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err == nil && chat.Message.Content != "" {
		content = chat.Message.Content
	}

	judgment, err := parseJudgment(content)
	if err != nil {
		return Judgment{}, err
	}
	log.WithField("metric_count", len(judgment.Report)).Debug("judgment parsed")
	return judgment, nil
}

// parseJudgment handles the backend's duck-typed output: the content may be
// a bare JSON object or prose wrapping one (often inside markdown fences).
// Structured decode is attempted first, then the first balanced JSON object
// is cut out and reparsed.
func parseJudgment(content string) (Judgment, error) {
	candidates := []string{content}
	if cut := extractJSON(content); cut != "" && cut != content {
		candidates = append(candidates, cut)
	}
	for _, c := range candidates {
		var probe struct {
			Report  json.RawMessage `json:"report"`
			Summary *string         `json:"summary"`
		}
		if err := json.Unmarshal([]byte(c), &probe); err != nil {
			continue
		}
		if probe.Report == nil || probe.Summary == nil {
			continue
		}
		var scores []types.MetricScore
		if err := json.Unmarshal(probe.Report, &scores); err != nil {
			return Judgment{}, fmt.Errorf("%w: report field: %v", ErrMalformedJudgment, err)
		}
		return Judgment{Report: scores, Summary: *probe.Summary}, nil
	}
	return Judgment{}, fmt.Errorf("%w: no report/summary object found", ErrMalformedJudgment)
}

// extractJSON finds the first balanced JSON object in a string, stripping
// common markdown fences first.
func extractJSON(s string) string {
	for _, fence := range []string{"```json", "```", "`json", "`"} {
		s = strings.ReplaceAll(s, fence, "")
	}
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
