package audio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"call-quality-go/internal/types"
)

func serviceResult() TranscribeResult {
	return TranscribeResult{
		Segments: []types.Segment{
			{SpeakerID: "spk_0", Text: "hello", StartMS: 0, EndMS: 1000},
			{SpeakerID: "spk_1", Text: "hi", StartMS: 1100, EndMS: 2000},
		},
		DurationMS: 2000,
	}
}

// fakeService emulates the publish/poll/download flow; pendingPolls is the
// number of "processing" answers before the job reports success.
func fakeService(t *testing.T, pendingPolls int32) *httptest.Server {
	t.Helper()
	var polls int32
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("publish is not multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]string{"media_id": "m-1", "status": "queued"},
		})
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mediaId") != "m-1" {
			t.Errorf("mediaId = %q", r.URL.Query().Get("mediaId"))
		}
		if atomic.AddInt32(&polls, 1) <= pendingPolls {
			json.NewEncoder(w).Encode(map[string]any{
				"code": 200,
				"data": map[string]string{"status": "processing"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]string{"status": "success", "result_url": srv.URL + "/result"},
		})
	})
	mux.HandleFunc("/result", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(serviceResult())
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribePublishPollDownload(t *testing.T) {
	srv := fakeService(t, 1)
	c := NewServiceClient(srv.URL)

	res, err := c.Transcribe(context.Background(), []byte("fake-wav-bytes"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if len(res.Segments) != 2 || res.DurationMS != 2000 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Segments[0].SpeakerID != "spk_0" || res.Segments[1].SpeakerID != "spk_1" {
		t.Fatalf("speakers mangled: %+v", res.Segments)
	}
}

func TestTranscribeImmediateSuccessSkipsPolling(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]string{"status": "success", "result_url": srv.URL + "/result"},
		})
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		t.Error("poll should not be reached")
	})
	mux.HandleFunc("/result", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(serviceResult())
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c := NewServiceClient(srv.URL)
	res, err := c.Transcribe(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.DurationMS != 2000 {
		t.Fatalf("DurationMS = %d", res.DurationMS)
	}
}

func TestTranscribeFailedJobIsPipelineFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]string{"media_id": "m-1", "status": "queued"},
		})
	})
	mux.HandleFunc("/getstatus", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code":   200,
			"data":   map[string]string{"status": "failed"},
			"reason": "unsupported codec",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewServiceClient(srv.URL)
	_, err := c.Transcribe(context.Background(), []byte("x"))
	if !errors.Is(err, ErrPipelineFailure) {
		t.Fatalf("err = %v, want ErrPipelineFailure", err)
	}
}

func TestTranscribePublishRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 400, "reason": "no audio"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewServiceClient(srv.URL)
	_, err := c.Transcribe(context.Background(), []byte("x"))
	if !errors.Is(err, ErrPipelineFailure) {
		t.Fatalf("err = %v, want ErrPipelineFailure", err)
	}
}

func TestTranscribeCanceledContext(t *testing.T) {
	srv := fakeService(t, 100)
	c := NewServiceClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Transcribe(ctx, []byte("x"))
	if err == nil {
		t.Fatal("Transcribe succeeded with canceled context")
	}
}

func TestMockPipelineHasTwoSpeakers(t *testing.T) {
	res, err := MockPipeline{}.Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("mock Transcribe failed: %v", err)
	}
	speakers := map[string]bool{}
	for _, s := range res.Segments {
		speakers[s.SpeakerID] = true
	}
	if len(res.Segments) != 3 || len(speakers) != 2 {
		t.Fatalf("mock shape = %d segments / %d speakers, want 3/2", len(res.Segments), len(speakers))
	}
	if res.DurationMS != res.Segments[len(res.Segments)-1].EndMS {
		t.Fatalf("DurationMS %d != last segment end %d", res.DurationMS, res.Segments[len(res.Segments)-1].EndMS)
	}
}
