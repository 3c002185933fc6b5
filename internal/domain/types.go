package domain

import "time"

// TranscriptionStatus tracks the server-side lifecycle of one transcription job.
type TranscriptionStatus string

const (
	StatusPending    TranscriptionStatus = "pending"
	StatusProcessing TranscriptionStatus = "processing"
	StatusCompleted  TranscriptionStatus = "completed"
	StatusFailed     TranscriptionStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TranscriptionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses by lifecycle progress for staleness comparisons.
func (s TranscriptionStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// EnhancementStatus tracks the optional LLM enhancement sub-lifecycle.
// Empty means the job never opted into enhancement.
type EnhancementStatus string

const (
	EnhancementNone       EnhancementStatus = ""
	EnhancementPending    EnhancementStatus = "pending"
	EnhancementProcessing EnhancementStatus = "processing"
	EnhancementCompleted  EnhancementStatus = "completed"
	EnhancementFailed     EnhancementStatus = "failed"
)

// Transcription is one transcription attempt for one audio file under one
// model. Field names follow the backend's JSON schema.
type Transcription struct {
	ID                string              `json:"id"`
	AudioFileID       string              `json:"audio_file_id"`
	Text              string              `json:"text,omitempty"`
	EnhancedText      string              `json:"enhanced_text,omitempty"`
	Status            TranscriptionStatus `json:"status"`
	Language          string              `json:"language,omitempty"`
	Model             string              `json:"model,omitempty"`
	DurationSeconds   float64             `json:"duration_seconds"`
	CreatedAt         time.Time           `json:"created_at"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
	ErrorMessage      string              `json:"error_message,omitempty"`
	EnhancementStatus EnhancementStatus   `json:"llm_enhancement_status,omitempty"`
}

// Settings contains user-selectable client configuration.
type Settings struct {
	ServerURL         string `json:"serverUrl"`
	DefaultModel      string `json:"defaultModel"`
	Language          string `json:"language"`
	EnableEnhancement bool   `json:"enableEnhancement"`
}
