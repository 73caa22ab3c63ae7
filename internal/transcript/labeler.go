package transcript

import (
	"strings"

	"call-quality-go/internal/types"
)

// Labels assigns a stable letter label to each distinct speaker in order of
// first appearance: A, B, ... Z, AA, AB, ... The map is built fresh per call
// and is never reused across jobs.
func Labels(segments []types.Segment) map[string]string {
	labels := make(map[string]string)
	for _, seg := range segments {
		if _, ok := labels[seg.SpeakerID]; !ok {
			labels[seg.SpeakerID] = letter(len(labels))
		}
	}
	return labels
}

// Render flattens diarized segments into one labeled transcript, one
// "{label}: {text}" line per segment. The caller guarantees segments are
// ordered by start time; Render does not re-sort. Empty input renders "".
func Render(segments []types.Segment) string {
	if len(segments) == 0 {
		return ""
	}
	labels := Labels(segments)
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		lines = append(lines, labels[seg.SpeakerID]+": "+strings.TrimSpace(seg.Text))
	}
	return strings.Join(lines, "\n")
}

// letter maps 0->A .. 25->Z, 26->AA and so on (bijective base 26).
func letter(n int) string {
	var b []byte
	n++
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
