package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"whisper-desk/internal/domain"
)

// DefaultInterval is the fixed delay between job status fetches.
const DefaultInterval = 2 * time.Second

// ErrAlreadyTracking is returned when Track is called on a used poller.
var ErrAlreadyTracking = errors.New("poller already tracking a job")

// Fetcher loads the current state of one transcription job.
type Fetcher interface {
	GetTranscription(ctx context.Context, id string) (domain.Transcription, error)
}

// Handler receives poll results. OnUpdate is invoked in application order;
// OnError reports transient fetch failures that do not stop the poll.
type Handler struct {
	OnUpdate func(domain.Transcription)
	OnError  func(error)
}

// Poller tracks a single job until it reaches a terminal status. It is a
// disposable, request-scoped worker: one Track call per instance.
type Poller struct {
	fetch    Fetcher
	interval time.Duration

	started atomic.Bool
	cancel  atomic.Value // context.CancelFunc

	mu       sync.Mutex
	seq      int64
	applied  int64
	lastRank int
	done     bool
}

// NewPoller creates a poller for one job. A non-positive interval selects
// the default.
func NewPoller(fetch Fetcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetch:    fetch,
		interval: interval,
		lastRank: -1,
	}
}

// Track begins polling jobID, issuing the first fetch immediately and then
// one per interval until a terminal status arrives or Stop is called.
// Responses are applied in issue order: a stale response never overwrites a
// newer one.
func (p *Poller) Track(jobID string, h Handler) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyTracking
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel.Store(cancel)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.issue(ctx, jobID, h)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.mu.Lock()
				done := p.done
				p.mu.Unlock()
				if done {
					return
				}
				p.issue(ctx, jobID, h)
			}
		}
	}()

	return nil
}

// Stop cancels tracking and discards any in-flight fetches. It is idempotent
// and safe to call from handler callbacks.
func (p *Poller) Stop() {
	if cancel, ok := p.cancel.Load().(context.CancelFunc); ok && cancel != nil {
		cancel()
	}
}

// issue starts one fetch with its own sequence number. Fetches may overlap;
// the sequence guard in apply keeps application ordered.
func (p *Poller) issue(ctx context.Context, jobID string, h Handler) {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	go func() {
		t, err := p.fetch.GetTranscription(ctx, jobID)
		if err != nil {
			if ctx.Err() == nil && h.OnError != nil {
				h.OnError(err)
			}
			return
		}
		p.apply(ctx, seq, t, h)
	}()
}

// apply commits one fetched result unless it is stale or the poll has ended.
func (p *Poller) apply(ctx context.Context, seq int64, t domain.Transcription, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done || ctx.Err() != nil {
		return
	}
	if seq <= p.applied {
		return
	}
	if t.Status.Rank() < p.lastRank {
		return
	}

	p.applied = seq
	p.lastRank = t.Status.Rank()
	if t.Status.IsTerminal() {
		p.done = true
		p.Stop()
	}

	if h.OnUpdate != nil {
		h.OnUpdate(t)
	}
}
