// Package audio wraps the external transcription + diarization service.
// The service is a black box at this boundary: audio bytes in, ordered
// speaker-attributed segments and a duration out.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"call-quality-go/internal/logger"
	"call-quality-go/internal/types"
)

// ErrPipelineFailure wraps every failure of the external audio pipeline.
var ErrPipelineFailure = errors.New("audio pipeline failure")

// TranscribeResult is the diarizer's output for one recording.
type TranscribeResult struct {
	Segments   []types.Segment `json:"segments"`
	DurationMS int64           `json:"duration_ms"`
}

// Pipeline is the boundary interface the orchestrator depends on.
type Pipeline interface {
	Transcribe(ctx context.Context, audio []byte) (TranscribeResult, error)
}

// ServiceClient drives the publish/poll/download flow of the transcription
// service. Individual HTTP calls retry transient failures with exponential
// backoff; a Failed job status is terminal.
type ServiceClient struct {
	host   string
	client *http.Client
}

func NewServiceClient(host string) *ServiceClient {
	return &ServiceClient{
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type publishResponse struct {
	Code int    `json:"code"`
	Data struct {
		MediaID   string `json:"media_id"`
		Status    string `json:"status"`
		ResultURL string `json:"result_url"`
	} `json:"data"`
	Reason string `json:"reason,omitempty"`
}

type statusResponse struct {
	Code int    `json:"code"`
	Data struct {
		Status    string `json:"status"`
		ResultURL string `json:"result_url"`
	} `json:"data"`
	Reason string `json:"reason,omitempty"`
}

func (c *ServiceClient) Transcribe(ctx context.Context, audio []byte) (TranscribeResult, error) {
	log := logger.New().WithComponent("audio-client")

	mediaID, readyURL, err := c.publish(ctx, audio)
	if err != nil {
		return TranscribeResult{}, fmt.Errorf("%w: %v", ErrPipelineFailure, err)
	}
	if readyURL == "" {
		readyURL, err = c.poll(ctx, mediaID)
		if err != nil {
			return TranscribeResult{}, fmt.Errorf("%w: %v", ErrPipelineFailure, err)
		}
	}

	log.WithField("result_url", readyURL).Info("downloading diarized segments")
	res, err := c.download(ctx, readyURL)
	if err != nil {
		return TranscribeResult{}, fmt.Errorf("%w: %v", ErrPipelineFailure, err)
	}
	return res, nil
}

func (c *ServiceClient) publish(ctx context.Context, audio []byte) (mediaID, readyURL string, err error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", "", err
	}
	if err := w.Close(); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/transcribe", bytes.NewReader(b.Bytes()))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp publishResponse
	if err := c.doJSON(ctx, req, &resp); err != nil {
		return "", "", err
	}
	if resp.Code != 200 {
		return "", "", fmt.Errorf("publish rejected: code=%d reason=%s", resp.Code, resp.Reason)
	}
	if strings.EqualFold(resp.Data.Status, "success") && resp.Data.ResultURL != "" {
		return "", resp.Data.ResultURL, nil
	}
	return resp.Data.MediaID, "", nil
}

func (c *ServiceClient) poll(ctx context.Context, mediaID string) (string, error) {
	base := c.host + "/getstatus"
	for i := 0; i < 40; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(1500 * time.Millisecond):
		}

		u, _ := url.Parse(base)
		q := u.Query()
		q.Set("mediaId", mediaID)
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return "", err
		}
		var s statusResponse
		if err := c.doJSON(ctx, req, &s); err != nil {
			continue
		}
		switch strings.ToLower(s.Data.Status) {
		case "success":
			return s.Data.ResultURL, nil
		case "queued", "processing":
			continue
		case "failed":
			return "", fmt.Errorf("transcription failed: %s", s.Reason)
		}
	}
	return "", fmt.Errorf("transcription timeout for media %s", mediaID)
}

func (c *ServiceClient) download(ctx context.Context, resultURL string) (TranscribeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return TranscribeResult{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return TranscribeResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return TranscribeResult{}, fmt.Errorf("download failed: %s", string(b))
	}
	var out TranscribeResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TranscribeResult{}, fmt.Errorf("segment decode: %w", err)
	}
	return out, nil
}

func (c *ServiceClient) doJSON(ctx context.Context, req *http.Request, target interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 12 * time.Second
	var lastErr error
	op := func() error {
		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			attempt.Body = body
		}
		resp, err := c.client.Do(attempt)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", string(body))
			return lastErr
		}
		if len(body) == 0 {
			lastErr = fmt.Errorf("empty body")
			return lastErr
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(body))
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
