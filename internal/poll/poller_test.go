package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"whisper-desk/internal/domain"
)

const testInterval = 5 * time.Millisecond

// recorder collects handler callbacks for assertions.
type recorder struct {
	mu      sync.Mutex
	updates []domain.Transcription
	errs    int
}

func (r *recorder) handler() Handler {
	return Handler{
		OnUpdate: func(t domain.Transcription) {
			r.mu.Lock()
			r.updates = append(r.updates, t)
			r.mu.Unlock()
		},
		OnError: func(error) {
			r.mu.Lock()
			r.errs++
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() []domain.Transcription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Transcription, len(r.updates))
	copy(out, r.updates)
	return out
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs
}

// scriptedFetcher returns one scripted state per call, repeating the last.
type scriptedFetcher struct {
	mu     sync.Mutex
	states []domain.Transcription
	errs   []error
	calls  int
}

func (f *scriptedFetcher) GetTranscription(ctx context.Context, id string) (domain.Transcription, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()

	if idx < len(f.errs) && f.errs[idx] != nil {
		return domain.Transcription{}, f.errs[idx]
	}
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	return f.states[idx], nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func jobWith(status domain.TranscriptionStatus, text string) domain.Transcription {
	return domain.Transcription{
		ID:          "job-1",
		AudioFileID: "audio-1",
		Model:       "base",
		Status:      status,
		Text:        text,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

// TestTrackEmitsLifecycleAndStops verifies pending, processing, completed
// arrive in order and polling ends on the terminal value.
func TestTrackEmitsLifecycleAndStops(t *testing.T) {
	fetch := &scriptedFetcher{states: []domain.Transcription{
		jobWith(domain.StatusPending, ""),
		jobWith(domain.StatusPending, ""),
		jobWith(domain.StatusProcessing, ""),
		jobWith(domain.StatusCompleted, "hello"),
	}}
	rec := &recorder{}
	p := NewPoller(fetch, testInterval)

	if err := p.Track("job-1", rec.handler()); err != nil {
		t.Fatalf("track: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool {
		updates := rec.snapshot()
		return len(updates) > 0 && updates[len(updates)-1].Status.IsTerminal()
	})

	updates := rec.snapshot()
	last := updates[len(updates)-1]
	if last.Status != domain.StatusCompleted || last.Text != "hello" {
		t.Fatalf("terminal update = %+v, want completed with text hello", last)
	}
	for i := 1; i < len(updates); i++ {
		if updates[i].Status.Rank() < updates[i-1].Status.Rank() {
			t.Fatalf("status went backwards: %s after %s", updates[i].Status, updates[i-1].Status)
		}
	}

	// No fetches are issued once the terminal value was applied.
	calls := fetch.callCount()
	time.Sleep(5 * testInterval)
	if fetch.callCount() != calls {
		t.Fatalf("poller kept fetching after terminal status: %d -> %d", calls, fetch.callCount())
	}
}

// TestTrackDiscardsStaleOutOfOrderResponse checks the sequence guard: a
// response issued earlier but arriving later never overwrites a newer one.
func TestTrackDiscardsStaleOutOfOrderResponse(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	fetch := fetcherFunc(func(ctx context.Context, id string) (domain.Transcription, error) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			<-release
			return jobWith(domain.StatusPending, ""), nil
		default:
			return jobWith(domain.StatusCompleted, "hello"), nil
		}
	})

	rec := &recorder{}
	p := NewPoller(fetch, testInterval)
	if err := p.Track("job-1", rec.handler()); err != nil {
		t.Fatalf("track: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool {
		updates := rec.snapshot()
		return len(updates) == 1 && updates[0].Status == domain.StatusCompleted
	})

	close(release)
	time.Sleep(5 * testInterval)

	updates := rec.snapshot()
	if len(updates) != 1 || updates[0].Status != domain.StatusCompleted {
		t.Fatalf("stale response was applied: %+v", updates)
	}
}

// TestTrackSurvivesTransientErrors verifies fetch failures do not stop the
// poll and are reported separately.
func TestTrackSurvivesTransientErrors(t *testing.T) {
	fetch := &scriptedFetcher{
		states: []domain.Transcription{
			{},
			{},
			jobWith(domain.StatusCompleted, "done"),
		},
		errs: []error{errors.New("boom"), errors.New("boom")},
	}
	rec := &recorder{}
	p := NewPoller(fetch, testInterval)

	if err := p.Track("job-1", rec.handler()); err != nil {
		t.Fatalf("track: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool {
		updates := rec.snapshot()
		return len(updates) > 0 && updates[len(updates)-1].Status == domain.StatusCompleted
	})
	if rec.errorCount() != 2 {
		t.Fatalf("error count = %d, want 2", rec.errorCount())
	}
}

// TestStopDiscardsPendingWork verifies cancellation ends fetching and no
// further updates are delivered.
func TestStopDiscardsPendingWork(t *testing.T) {
	fetch := &scriptedFetcher{states: []domain.Transcription{jobWith(domain.StatusPending, "")}}
	rec := &recorder{}
	p := NewPoller(fetch, testInterval)

	if err := p.Track("job-1", rec.handler()); err != nil {
		t.Fatalf("track: %v", err)
	}
	waitFor(t, func() bool { return len(rec.snapshot()) > 0 })

	p.Stop()
	p.Stop() // idempotent

	calls := fetch.callCount()
	updates := len(rec.snapshot())
	time.Sleep(5 * testInterval)
	if fetch.callCount() > calls+1 {
		t.Fatalf("fetching continued after stop: %d -> %d", calls, fetch.callCount())
	}
	if len(rec.snapshot()) != updates {
		t.Fatalf("updates delivered after stop")
	}
}

// TestTrackIsSingleUse verifies a second Track call is rejected.
func TestTrackIsSingleUse(t *testing.T) {
	fetch := &scriptedFetcher{states: []domain.Transcription{jobWith(domain.StatusCompleted, "")}}
	p := NewPoller(fetch, testInterval)

	if err := p.Track("job-1", Handler{}); err != nil {
		t.Fatalf("track: %v", err)
	}
	defer p.Stop()

	if err := p.Track("job-1", Handler{}); !errors.Is(err, ErrAlreadyTracking) {
		t.Fatalf("second track error = %v, want %v", err, ErrAlreadyTracking)
	}
}

// fetcherFunc adapts a function to the Fetcher interface.
type fetcherFunc func(ctx context.Context, id string) (domain.Transcription, error)

func (f fetcherFunc) GetTranscription(ctx context.Context, id string) (domain.Transcription, error) {
	return f(ctx, id)
}
