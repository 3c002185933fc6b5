package playback

import (
	"errors"
	"testing"
)

// countingPlayer records play/stop calls and optionally fails to start.
type countingPlayer struct {
	plays   int
	stops   int
	playErr error
}

func (p *countingPlayer) Play() error {
	if p.playErr != nil {
		return p.playErr
	}
	p.plays++
	return nil
}

func (p *countingPlayer) Stop() error {
	p.stops++
	return nil
}

func newTestArbiter() (*Arbiter, map[Source]*countingPlayer) {
	a := NewArbiter()
	players := map[Source]*countingPlayer{
		SourceUploadedPreview: {},
		SourceRecordedPreview: {},
		SourceRemoteAudio:     {},
	}
	for source, p := range players {
		a.Register(source, p)
	}
	return a, players
}

// TestPlayStopsPreviousSource verifies switching sources halts the one that
// was playing before the next starts.
func TestPlayStopsPreviousSource(t *testing.T) {
	a, players := newTestArbiter()

	if err := a.Play(SourceUploadedPreview); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := a.Play(SourceRemoteAudio); err != nil {
		t.Fatalf("play: %v", err)
	}

	if players[SourceUploadedPreview].stops != 1 {
		t.Fatalf("previous source stops = %d, want 1", players[SourceUploadedPreview].stops)
	}
	source, playing := a.Playing()
	if !playing || source != SourceRemoteAudio {
		t.Fatalf("playing = %s/%v, want %s", source, playing, SourceRemoteAudio)
	}
}

// TestReplaySameSourceRestartsFromZero verifies replaying the active source
// stops it first so playback restarts at the beginning.
func TestReplaySameSourceRestartsFromZero(t *testing.T) {
	a, players := newTestArbiter()

	if err := a.Play(SourceRecordedPreview); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := a.Play(SourceRecordedPreview); err != nil {
		t.Fatalf("replay: %v", err)
	}

	p := players[SourceRecordedPreview]
	if p.stops != 1 || p.plays != 2 {
		t.Fatalf("stops/plays = %d/%d, want 1/2", p.stops, p.plays)
	}
}

// TestStopIsIdempotent verifies repeated stops do not reach the player twice.
func TestStopIsIdempotent(t *testing.T) {
	a, players := newTestArbiter()

	if err := a.Play(SourceUploadedPreview); err != nil {
		t.Fatalf("play: %v", err)
	}
	a.Stop()
	a.Stop()

	if players[SourceUploadedPreview].stops != 1 {
		t.Fatalf("stops = %d, want 1", players[SourceUploadedPreview].stops)
	}
	if _, playing := a.Playing(); playing {
		t.Fatal("arbiter still reports playing after stop")
	}
}

// TestPlayUnknownSourceFails verifies unregistered sources are rejected.
func TestPlayUnknownSourceFails(t *testing.T) {
	a := NewArbiter()
	if err := a.Play(SourceRemoteAudio); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("err = %v, want ErrUnknownSource", err)
	}
}

// TestPlayFailureClearsFlag verifies a start failure never leaves the arbiter
// believing something is playing.
func TestPlayFailureClearsFlag(t *testing.T) {
	a, players := newTestArbiter()
	players[SourceRemoteAudio].playErr = errors.New("decode failed")

	if err := a.Play(SourceUploadedPreview); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := a.Play(SourceRemoteAudio); err == nil {
		t.Fatal("expected play failure")
	}
	if _, playing := a.Playing(); playing {
		t.Fatal("failed start left the playing flag set")
	}
}

// TestMarkEndedClearsOnlyMatchingSource verifies asynchronous completion
// reports are ignored for sources that are not active.
func TestMarkEndedClearsOnlyMatchingSource(t *testing.T) {
	a, _ := newTestArbiter()

	if err := a.Play(SourceRemoteAudio); err != nil {
		t.Fatalf("play: %v", err)
	}
	a.MarkEnded(SourceUploadedPreview)
	if _, playing := a.Playing(); !playing {
		t.Fatal("stale completion cleared the active source")
	}

	a.MarkEnded(SourceRemoteAudio)
	if _, playing := a.Playing(); playing {
		t.Fatal("completion did not clear the active source")
	}
}
