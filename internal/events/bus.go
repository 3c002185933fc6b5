package events

import (
	"sync"
	"time"

	"whisper-desk/internal/domain"
)

// Type classifies messages pushed to UI subscribers.
type Type string

const (
	TypeJobUpdate        Type = "job-update"
	TypeVariants         Type = "variants"
	TypeDownloadProgress Type = "download-progress"
	TypeCapture          Type = "capture"
	TypeError            Type = "error"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq            int64                    `json:"seq"`
	Timestamp      time.Time                `json:"timestamp"`
	Type           Type                     `json:"type"`
	Job            *domain.Transcription    `json:"job,omitempty"`
	Variants       []domain.Transcription   `json:"variants,omitempty"`
	ActiveID       string                   `json:"activeId,omitempty"`
	Progress       *domain.DownloadProgress `json:"progress,omitempty"`
	CaptureState   string                   `json:"captureState,omitempty"`
	ElapsedSeconds int                      `json:"elapsedSeconds,omitempty"`
	Message        string                   `json:"message,omitempty"`
}

// Bus stores recent events and provides incremental reads so the frontend
// can recover anything it missed.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewBus creates a bounded in-memory event buffer.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
