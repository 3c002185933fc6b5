package bootstrap

import (
	"context"
	"errors"
	"fmt"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"whisper-desk/internal/capture"
	"whisper-desk/internal/events"
	"whisper-desk/internal/playback"
)

// RecordingState is the capture snapshot exposed to the UI.
type RecordingState struct {
	State          string `json:"state"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	ArtifactName   string `json:"artifactName,omitempty"`
	Error          string `json:"error,omitempty"`
}

// StartRecording requests microphone access and begins recording. The error
// distinguishes permission, missing-device, and busy-device failures.
func (a *App) StartRecording() error {
	if err := a.capture.Start(context.Background()); err != nil {
		if !errors.Is(err, capture.ErrCaptureActive) {
			a.publishError(captureReason(err))
		}
		return err
	}
	return nil
}

// StopRecording finalizes the recording into an uploadable artifact.
func (a *App) StopRecording() (RecordingState, error) {
	artifact, err := a.capture.Stop()
	if err != nil {
		if errors.Is(err, capture.ErrEmptyRecording) {
			a.publishError("Recording contains no audio. Try again and speak into the microphone.")
		}
		return a.GetRecordingState(), err
	}

	state := a.GetRecordingState()
	state.ArtifactName = artifact.FileName
	return state, nil
}

// CancelRecording discards the session, releasing hardware and invalidating
// any produced artifact.
func (a *App) CancelRecording() {
	a.capture.Reset()
}

// GetRecordingState returns the current capture snapshot.
func (a *App) GetRecordingState() RecordingState {
	state := RecordingState{
		State:          string(a.capture.State()),
		ElapsedSeconds: a.capture.Elapsed(),
	}
	if artifact, ok := a.capture.Artifact(); ok {
		state.ArtifactName = artifact.FileName
	}
	if err := a.capture.LastError(); err != nil {
		state.Error = captureReason(err)
	}
	return state
}

// captureHandler publishes session callbacks as UI events.
func (a *App) captureHandler() capture.Handler {
	return capture.Handler{
		OnState: func(state capture.State) {
			a.publishEvent(events.Event{
				Type:         events.TypeCapture,
				CaptureState: string(state),
			})
		},
		OnTick: func(elapsed int) {
			a.publishEvent(events.Event{
				Type:           events.TypeCapture,
				CaptureState:   string(capture.StateRecording),
				ElapsedSeconds: elapsed,
			})
		},
		OnAutoStop: func(artifact *capture.Artifact, err error) {
			if err != nil {
				a.publishError("Recording stopped at the time limit: " + err.Error())
				return
			}
			a.publishEvent(events.Event{
				Type:         events.TypeCapture,
				CaptureState: string(capture.StateStopped),
				Message:      "Recording stopped at the 30 second limit",
			})
		},
	}
}

// captureReason maps acquisition failures to the fixed set of user-facing
// messages.
func captureReason(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "Microphone access was denied. Allow microphone use and try again."
	case errors.Is(err, capture.ErrNoDevice):
		return "No microphone was found. Connect one and try again."
	case errors.Is(err, capture.ErrDeviceBusy):
		return "The microphone is in use by another application."
	case errors.Is(err, capture.ErrStreamLost):
		return "The microphone stopped unexpectedly. Check the device and try again."
	case errors.Is(err, capture.ErrEmptyRecording):
		return "Recording contains no audio."
	default:
		return fmt.Sprintf("Recording failed: %v", err)
	}
}

// PlayAudio starts one of the three playback sources, stopping whichever was
// playing first.
func (a *App) PlayAudio(source string) error {
	return a.arbiter.Play(playback.Source(source))
}

// StopPlayback halts the active source, if any.
func (a *App) StopPlayback() {
	a.arbiter.Stop()
}

// PlaybackEnded reports that a source finished or failed in the webview so
// no stale playing flag survives.
func (a *App) PlaybackEnded(source string, errorMessage string) {
	a.arbiter.MarkEnded(playback.Source(source))
	if errorMessage != "" {
		a.publishError(fmt.Sprintf("Playback of %s failed: %s", source, errorMessage))
	}
}

// NowPlaying returns the active playback source, or empty when silent.
func (a *App) NowPlaying() string {
	source, playing := a.arbiter.Playing()
	if !playing {
		return ""
	}
	return string(source)
}

// registerPlayers binds the three playback sources to webview-driven
// players. The audio elements live in the frontend; Go commands them through
// runtime events so the arbiter stays the single authority on what plays.
func (a *App) registerPlayers() {
	for _, source := range []playback.Source{
		playback.SourceUploadedPreview,
		playback.SourceRecordedPreview,
		playback.SourceRemoteAudio,
	} {
		a.arbiter.Register(source, &runtimePlayer{app: a, source: source})
	}
}

// runtimePlayer drives one frontend audio element through runtime events.
type runtimePlayer struct {
	app    *App
	source playback.Source
}

// Play instructs the webview to start this source from position zero.
func (p *runtimePlayer) Play() error {
	p.app.emitPlayback("playback:play", p.source)
	return nil
}

// Stop instructs the webview to halt and rewind this source.
func (p *runtimePlayer) Stop() error {
	p.app.emitPlayback("playback:stop", p.source)
	return nil
}

// emitPlayback pushes one playback command to the webview.
func (a *App) emitPlayback(event string, source playback.Source) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, event, string(source))
	}
}
