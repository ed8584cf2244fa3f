package screenshots

import (
	"time"

	"github.com/focusmon/screenwatch/internal/domain/vision"
)

// ID tipe untuk Screenshot
type ScreenshotID string

// Status enum for processing_status
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further automatic transition happens.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition encodes the forward-only state machine. Reset is the one
// backward move and is only reachable from a terminal state.
func (s Status) CanTransition(to Status) bool {
	if s.Terminal() {
		return to == StatusPending
	}
	switch s {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Aggregate Root: Screenshot
// Only the pipeline-relevant fields; upload metadata (dimensions, format,
// owner) belongs to the ingestion service.
type Screenshot struct {
	ID              ScreenshotID       `json:"id"`
	FilePath        string             `json:"file_path"`
	Status          Status             `json:"processing_status"`
	Analysis        *vision.Annotation `json:"ai_analysis,omitempty"`
	ProcessingError string             `json:"processing_error,omitempty"`
	ProcessedAt     *time.Time         `json:"processed_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}
