package playback

import (
	"errors"
	"fmt"
	"sync"
)

// Source identifies one of the three independent playback channels.
type Source string

const (
	SourceUploadedPreview Source = "uploaded-preview"
	SourceRecordedPreview Source = "recorded-preview"
	SourceRemoteAudio     Source = "remote-audio"
)

// ErrUnknownSource is returned when playing a source with no registered player.
var ErrUnknownSource = errors.New("no player registered for source")

// Player drives one audio output. Stop halts playback and rewinds to
// position zero; stopping an already stopped player must be harmless.
type Player interface {
	Play() error
	Stop() error
}

// Arbiter enforces a single concurrently playing source. Switching sources
// stops and rewinds the previous one before the next starts.
type Arbiter struct {
	mu      sync.Mutex
	players map[Source]Player
	current Source
	playing bool
}

// NewArbiter creates an arbiter with no registered players.
func NewArbiter() *Arbiter {
	return &Arbiter{players: make(map[Source]Player)}
}

// Register binds a player to a source, replacing any previous binding.
func (a *Arbiter) Register(source Source, p Player) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.players[source] = p
}

// Play starts the given source after stopping whichever source was playing,
// including the same one. A start failure never leaves the playing flag set.
func (a *Arbiter) Play(source Source) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.players[source]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	if a.playing {
		_ = a.players[a.current].Stop()
		a.playing = false
	}

	if err := p.Play(); err != nil {
		return fmt.Errorf("play %s: %w", source, err)
	}

	a.current = source
	a.playing = true
	return nil
}

// Stop halts the active source, if any. Idempotent.
func (a *Arbiter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.playing {
		return
	}
	_ = a.players[a.current].Stop()
	a.playing = false
}

// MarkEnded clears the playing flag after a source finished or failed on its
// own, so asynchronous playback errors never leave a dangling flag.
func (a *Arbiter) MarkEnded(source Source) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.playing && a.current == source {
		a.playing = false
	}
}

// Playing reports the active source.
func (a *Arbiter) Playing() (Source, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.playing
}
