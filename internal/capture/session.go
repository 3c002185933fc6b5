package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the capture session lifecycle stage.
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateRecording State = "recording"
	StateStopped   State = "stopped"
	StateError     State = "error"
)

// ErrCaptureActive is returned when starting while an acquisition is
// outstanding. A second recording is a caller error, never queued.
var ErrCaptureActive = errors.New("a recording is already in progress")

// ErrNotRecording is returned when stopping a session that is not recording.
var ErrNotRecording = errors.New("no recording in progress")

// ErrEmptyRecording is returned when finalization captured zero bytes.
var ErrEmptyRecording = errors.New("recording contains no audio data")

// ErrStreamLost is recorded when the hardware stream ends while recording,
// without Stop or Reset having released it.
var ErrStreamLost = errors.New("microphone stream ended unexpectedly")

// Config bounds one recording run.
type Config struct {
	MaxSeconds   int           // hard recording ceiling, defaults to 30
	TickInterval time.Duration // elapsed-counter resolution, defaults to 1s
}

// Handler receives session callbacks. OnAutoStop reports the result of the
// ceiling-triggered stop, which has no caller to return to.
type Handler struct {
	OnState    func(State)
	OnTick     func(elapsedSeconds int)
	OnAutoStop func(*Artifact, error)
}

// Session is the microphone-capture state machine. It allows at most one
// outstanding hardware acquisition and produces an uploadable WAV artifact.
type Session struct {
	device Device
	cfg    Config
	h      Handler

	mu            sync.Mutex
	state         State
	chunks        [][]byte
	elapsed       int
	stream        Stream
	recCancel     context.CancelFunc
	collectorDone chan struct{}
	artifact      *Artifact
	lastErr       error
}

// NewSession creates an idle capture session around the given device.
func NewSession(device Device, cfg Config, h Handler) *Session {
	if cfg.MaxSeconds <= 0 {
		cfg.MaxSeconds = 30
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Session{
		device: device,
		cfg:    cfg,
		h:      h,
		state:  StateIdle,
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns the recorded seconds of the current or last run.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// LastError returns the acquisition failure that moved the session to the
// error state.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Artifact returns the finalized recording, if one exists.
func (s *Session) Artifact() (*Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact, s.artifact != nil
}

// Start requests exclusive microphone access and begins recording. The
// acquisition failure reason is returned as-is so callers can distinguish
// permission, missing-device, and busy-device cases.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateAcquiring, StateRecording:
		s.mu.Unlock()
		return ErrCaptureActive
	}
	prevArtifact := s.artifact
	s.artifact = nil
	s.chunks = nil
	s.elapsed = 0
	s.lastErr = nil
	s.state = StateAcquiring
	s.mu.Unlock()

	if prevArtifact != nil {
		prevArtifact.Revoke()
	}
	s.emitState(StateAcquiring)

	stream, err := s.device.Acquire(ctx)
	if err != nil {
		s.mu.Lock()
		if s.state == StateAcquiring {
			s.state = StateError
			s.lastErr = err
			s.mu.Unlock()
			s.emitState(StateError)
		} else {
			s.mu.Unlock()
		}
		return err
	}

	s.mu.Lock()
	if s.state != StateAcquiring {
		// Reset intervened during acquisition; release the hardware.
		s.mu.Unlock()
		_ = stream.Close()
		return context.Canceled
	}

	recCtx, cancel := context.WithCancel(context.Background())
	s.stream = stream
	s.recCancel = cancel
	s.collectorDone = make(chan struct{})
	s.state = StateRecording
	collectorDone := s.collectorDone
	s.mu.Unlock()

	s.emitState(StateRecording)
	go s.collect(stream, collectorDone)
	go s.tick(recCtx)
	return nil
}

// Stop ends the recording, releases the hardware stream, and finalizes the
// buffered chunks into a single artifact. Zero captured bytes fail with
// ErrEmptyRecording instead of producing a usable artifact.
func (s *Session) Stop() (*Artifact, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	cancel := s.recCancel
	stream := s.stream
	collectorDone := s.collectorDone
	s.recCancel = nil
	s.stream = nil
	s.mu.Unlock()

	cancel()
	_ = stream.Close()
	<-collectorDone

	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	s.state = StateStopped

	total := 0
	for _, chunk := range s.chunks {
		total += len(chunk)
	}
	if total == 0 {
		s.mu.Unlock()
		s.emitState(StateStopped)
		return nil, ErrEmptyRecording
	}

	pcm := make([]byte, 0, total)
	for _, chunk := range s.chunks {
		pcm = append(pcm, chunk...)
	}
	s.chunks = nil
	s.artifact = newArtifact(pcm)
	artifact := s.artifact
	s.mu.Unlock()

	s.emitState(StateStopped)
	return artifact, nil
}

// Reset returns the session to idle from any state: stops the counter,
// releases hardware resources, discards buffered data, and revokes any
// previously produced artifact.
func (s *Session) Reset() {
	s.mu.Lock()
	cancel := s.recCancel
	stream := s.stream
	artifact := s.artifact
	changed := s.state != StateIdle
	s.recCancel = nil
	s.stream = nil
	s.artifact = nil
	s.chunks = nil
	s.elapsed = 0
	s.lastErr = nil
	s.state = StateIdle
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		_ = stream.Close()
	}
	if artifact != nil {
		artifact.Revoke()
	}
	if changed {
		s.emitState(StateIdle)
	}
}

// collect buffers flushed chunks until the hardware stream closes. A stream
// that ends while the session still owns it means the hardware died
// mid-recording; that moves the session to the error state.
func (s *Session) collect(stream Stream, done chan struct{}) {
	defer close(done)
	for chunk := range stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		buf := make([]byte, len(chunk))
		copy(buf, chunk)

		s.mu.Lock()
		if s.state == StateRecording {
			s.chunks = append(s.chunks, buf)
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	if s.state != StateRecording || s.stream != stream {
		// Stop or Reset released the stream; they own the transition.
		s.mu.Unlock()
		return
	}
	cancel := s.recCancel
	s.recCancel = nil
	s.stream = nil
	s.chunks = nil
	s.state = StateError
	s.lastErr = ErrStreamLost
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = stream.Close()
	s.emitState(StateError)
}

// tick advances the elapsed counter once per interval and forces a stop when
// the ceiling is reached, whether or not the user acts.
func (s *Session) tick(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.state != StateRecording {
				s.mu.Unlock()
				return
			}
			s.elapsed++
			elapsed := s.elapsed
			s.mu.Unlock()

			if s.h.OnTick != nil {
				s.h.OnTick(elapsed)
			}
			if elapsed >= s.cfg.MaxSeconds {
				artifact, err := s.Stop()
				if s.h.OnAutoStop != nil {
					s.h.OnAutoStop(artifact, err)
				}
				return
			}
		}
	}
}

// emitState forwards state changes when a callback is configured.
func (s *Session) emitState(state State) {
	if s.h.OnState != nil {
		s.h.OnState(state)
	}
}
