package audio

import (
	"context"

	"call-quality-go/internal/types"
)

// MockPipeline returns a canned two-speaker exchange for offline demos and
// tests (enabled via USE_MOCK_TRANSCRIBE=true).
type MockPipeline struct{}

func (MockPipeline) Transcribe(ctx context.Context, audio []byte) (TranscribeResult, error) {
	if err := ctx.Err(); err != nil {
		return TranscribeResult{}, err
	}
	return TranscribeResult{
		Segments: []types.Segment{
			{SpeakerID: "spk_0", Text: "Hi, I was charged twice for my last order.", StartMS: 0, EndMS: 4200},
			{SpeakerID: "spk_1", Text: "I'm sorry about that, let me check your account.", StartMS: 4300, EndMS: 8100},
			{SpeakerID: "spk_0", Text: "Thank you, I'd like the duplicate refunded.", StartMS: 8200, EndMS: 11600},
		},
		DurationMS: 11600,
	}, nil
}
