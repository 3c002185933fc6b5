package progress

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"whisper-desk/internal/domain"
)

// Opener establishes the server's download-progress feed for one model.
type Opener interface {
	OpenDownloadProgress(ctx context.Context, model string) (io.ReadCloser, error)
}

// Handler receives decoded progress events from the stream's read loop.
type Handler struct {
	OnProgress func(domain.DownloadProgress)
}

// Stream consumes one model's download-progress feed. It closes itself on a
// terminal status or transport error; Close is idempotent.
type Stream struct {
	model     string
	body      io.ReadCloser
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// wireEvent is one progress message as emitted by the server. The feed is
// SSE-framed newline-delimited JSON; the "data:" prefix is optional.
type wireEvent struct {
	Status          string   `json:"status"`
	Progress        *float64 `json:"progress"`
	BytesDownloaded int64    `json:"bytes_downloaded"`
	TotalBytes      int64    `json:"total_bytes"`
	ErrorMessage    string   `json:"error_message"`
}

// Open connects to the progress feed for model and starts the read loop.
func Open(ctx context.Context, opener Opener, model string, h Handler) (*Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	body, err := opener.OpenDownloadProgress(streamCtx, model)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Stream{
		model:  model,
		body:   body,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.read(h)
	return s, nil
}

// Model returns the model name this stream reports on.
func (s *Stream) Model() string {
	return s.model
}

// Close tears the stream down. Safe to call multiple times and concurrently
// with the stream closing itself.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.body.Close()
	})
}

// Done is closed once the read loop has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// read decodes progress lines until a terminal status, transport error, or
// Close. Malformed lines are skipped rather than ending the stream.
func (s *Stream) read(h Handler) {
	defer close(s.done)
	defer s.Close()

	scanner := bufio.NewScanner(s.body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		var event wireEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		p := normalize(s.model, event)
		if h.OnProgress != nil {
			h.OnProgress(p)
		}
		if p.Status.IsTerminal() {
			return
		}
	}
}

// normalize maps a wire event onto a DownloadProgress snapshot, clamping
// unknown fields to defaults and percent into [0,100].
func normalize(model string, event wireEvent) domain.DownloadProgress {
	status := domain.DownloadStatus(event.Status)
	if event.Status == "" {
		status = domain.DownloadUnknown
	}

	percent := 0.0
	if event.Progress != nil {
		percent = *event.Progress
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if status.IsTerminal() && status != domain.DownloadError {
		percent = 100
	}

	return domain.DownloadProgress{
		Model:           model,
		Status:          status,
		Percent:         percent,
		BytesDownloaded: event.BytesDownloaded,
		TotalBytes:      event.TotalBytes,
		ErrorMessage:    event.ErrorMessage,
	}
}
