package capture

import (
	"context"
	"errors"
)

// Audio format produced by capture devices. The backend's Whisper service
// works on 16kHz mono signed 16-bit PCM, so devices capture that directly.
const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
)

// Acquisition failure reasons. Each is distinguishable so the UI can show a
// specific message instead of a generic one.
var (
	ErrPermissionDenied = errors.New("microphone access was denied")
	ErrNoDevice         = errors.New("no microphone device was found")
	ErrDeviceBusy       = errors.New("microphone is in use by another application")
)

// Device grants exclusive microphone access.
type Device interface {
	// Acquire opens the hardware stream. Failures map onto
	// ErrPermissionDenied, ErrNoDevice, or ErrDeviceBusy where the cause
	// is known.
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is one live hardware capture feeding buffered PCM chunks.
type Stream interface {
	// Chunks delivers captured audio at the device's flush interval. The
	// channel is closed after Close.
	Chunks() <-chan []byte
	// Close releases the hardware. Idempotent.
	Close() error
}
