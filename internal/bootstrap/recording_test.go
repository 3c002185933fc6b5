package bootstrap

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"whisper-desk/internal/api"
	"whisper-desk/internal/capture"
	"whisper-desk/internal/domain"
	"whisper-desk/internal/events"
	"whisper-desk/internal/playback"
)

// chunkDevice hands out streams that deliver one fixed chunk on acquisition.
type chunkDevice struct {
	mu      sync.Mutex
	err     error
	payload []byte
}

type chunkStream struct {
	ch        chan []byte
	closeOnce sync.Once
}

func (d *chunkDevice) Acquire(ctx context.Context) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := &chunkStream{ch: make(chan []byte, 1)}
	if len(d.payload) > 0 {
		s.ch <- d.payload
	}
	return s, nil
}

func (s *chunkStream) Chunks() <-chan []byte { return s.ch }

func (s *chunkStream) Close() error {
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}

func newRecordingApp(device capture.Device) *App {
	app := &App{
		Settings:     domain.Settings{ServerURL: "http://localhost:8000", DefaultModel: "base", Language: "auto"},
		client:       &fakeBackend{},
		bus:          events.NewBus(100),
		arbiter:      playback.NewArbiter(),
		pollInterval: 5 * time.Millisecond,
	}
	app.capture = capture.NewSession(device, capture.Config{TickInterval: time.Millisecond}, app.captureHandler())
	app.registerPlayers()
	return app
}

// TestRecordingFlowProducesNamedArtifact walks start, stop, and the reported
// artifact name through the app surface.
func TestRecordingFlowProducesNamedArtifact(t *testing.T) {
	app := newRecordingApp(&chunkDevice{payload: []byte{1, 2, 3, 4}})

	if err := app.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := app.GetRecordingState().State; got != string(capture.StateRecording) {
		t.Fatalf("state = %s", got)
	}

	state, err := app.StopRecording()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if state.State != string(capture.StateStopped) {
		t.Fatalf("state = %s", state.State)
	}
	if !strings.HasPrefix(state.ArtifactName, "recording-") || !strings.HasSuffix(state.ArtifactName, ".wav") {
		t.Fatalf("artifact name = %q", state.ArtifactName)
	}
}

// TestStartRecordingReportsAcquisitionReason verifies each hardware failure
// is published with its own user-facing message.
func TestStartRecordingReportsAcquisitionReason(t *testing.T) {
	cases := []struct {
		sentinel error
		fragment string
	}{
		{capture.ErrPermissionDenied, "denied"},
		{capture.ErrNoDevice, "No microphone"},
		{capture.ErrDeviceBusy, "in use"},
	}

	for _, tc := range cases {
		app := newRecordingApp(&chunkDevice{err: tc.sentinel})

		if err := app.StartRecording(); !errors.Is(err, tc.sentinel) {
			t.Fatalf("err = %v, want %v", err, tc.sentinel)
		}

		published := app.JobEvents(0)
		found := false
		for _, event := range published {
			if event.Type == events.TypeError && strings.Contains(event.Message, tc.fragment) {
				found = true
			}
		}
		if !found {
			t.Fatalf("no error event containing %q in %+v", tc.fragment, published)
		}

		state := app.GetRecordingState()
		if state.State != string(capture.StateError) || state.Error == "" {
			t.Fatalf("state = %+v", state)
		}
	}
}

// TestCancelRecordingReturnsToIdle verifies cancellation releases everything.
func TestCancelRecordingReturnsToIdle(t *testing.T) {
	app := newRecordingApp(&chunkDevice{payload: []byte{9}})

	if err := app.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	app.CancelRecording()

	state := app.GetRecordingState()
	if state.State != string(capture.StateIdle) || state.ArtifactName != "" {
		t.Fatalf("state = %+v", state)
	}
}

// TestUploadRecordingRequiresArtifact verifies uploading before a finalized
// recording fails without a network call.
func TestUploadRecordingRequiresArtifact(t *testing.T) {
	app := newRecordingApp(&chunkDevice{})

	if _, err := app.UploadRecording(); !errors.Is(err, ErrNoRecordingArtifact) {
		t.Fatalf("err = %v, want ErrNoRecordingArtifact", err)
	}
}

// TestUploadRecordingSubmitsArtifact verifies a finalized recording flows
// through the regular submission path.
func TestUploadRecordingSubmitsArtifact(t *testing.T) {
	backend := &fakeBackend{
		created:     job("t1", "a1", "base", domain.StatusPending),
		modelStatus: api.ModelStatus{IsCached: true},
		getStates: map[string][]domain.Transcription{
			"t1": {job("t1", "a1", "base", domain.StatusCompleted)},
		},
	}
	app := newRecordingApp(&chunkDevice{payload: []byte{1, 2}})
	app.client = backend

	if err := app.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := app.StopRecording(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	created, err := app.UploadRecording()
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if created.ID != "t1" {
		t.Fatalf("created = %+v", created)
	}
	if got := backend.createCalls(); got != 1 {
		t.Fatalf("create calls = %d, want 1", got)
	}
	waitForApp(t, func() bool { return !app.isSubmitting() })
}

// TestPlaybackSurface exercises the source arbitration through app methods.
func TestPlaybackSurface(t *testing.T) {
	app := newRecordingApp(&chunkDevice{})

	if err := app.PlayAudio(string(playback.SourceRemoteAudio)); err != nil {
		t.Fatalf("play: %v", err)
	}
	if got := app.NowPlaying(); got != string(playback.SourceRemoteAudio) {
		t.Fatalf("now playing = %q", got)
	}

	if err := app.PlayAudio(string(playback.SourceRecordedPreview)); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if got := app.NowPlaying(); got != string(playback.SourceRecordedPreview) {
		t.Fatalf("now playing = %q", got)
	}

	app.PlaybackEnded(string(playback.SourceRecordedPreview), "")
	if got := app.NowPlaying(); got != "" {
		t.Fatalf("now playing = %q, want empty", got)
	}

	if err := app.PlayAudio("elevator-music"); err == nil {
		t.Fatal("unknown source must be rejected")
	}
}
