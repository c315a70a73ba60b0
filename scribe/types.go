package scribe

import (
	"time"

	"github.com/google/uuid"
)

// Job is one finished recording artifact queued for processing.
type Job struct {
	ID     uuid.UUID
	Path   string // absolute path to the WAV artifact
	Base   string // artifact base name, keys the sidecar files
	Queued time.Time
}

// Result is the processed output for one recording, cached in memory and
// mirrored to the sidecar files on disk.
type Result struct {
	Base        string    `json:"base"`
	Transcript  string    `json:"transcript"`
	Summary     string    `json:"summary,omitempty"`
	ProcessedAt time.Time `json:"processedAt"`
}

// event is pushed to websocket subscribers as processing progresses.
type event struct {
	Type      string    `json:"type"` // "queued", "transcribed", "failed"
	Base      string    `json:"base"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}
