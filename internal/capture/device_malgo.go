package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// DefaultFlushInterval is how often buffered samples are handed to the
// session as one chunk.
const DefaultFlushInterval = time.Second

// MalgoDevice captures microphone audio through miniaudio.
type MalgoDevice struct {
	flushInterval time.Duration
}

// NewMalgoDevice creates the production capture device.
func NewMalgoDevice() *MalgoDevice {
	return &MalgoDevice{flushInterval: DefaultFlushInterval}
}

// Acquire opens the default capture device at 16kHz mono s16.
func (d *MalgoDevice) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, mapMalgoError(err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = Channels
	cfg.SampleRate = SampleRate
	cfg.Alsa.NoMMap = 1

	s := &malgoStream{
		mctx:   mctx,
		chunks: make(chan []byte, 8),
		stop:   make(chan struct{}),
		flush:  d.flushInterval,
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.append(input)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, mapMalgoError(err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, mapMalgoError(err)
	}

	s.device = device
	go s.flushLoop()
	return s, nil
}

// malgoStream flushes callback-buffered PCM to the session at a fixed
// interval.
type malgoStream struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	chunks chan []byte
	stop   chan struct{}
	flush  time.Duration

	mu        sync.Mutex
	pending   []byte
	closeOnce sync.Once
}

// Chunks delivers buffered audio once per flush interval.
func (s *malgoStream) Chunks() <-chan []byte {
	return s.chunks
}

// Close stops the hardware device and releases miniaudio resources.
func (s *malgoStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.device.Uninit()
		_ = s.mctx.Uninit()
		s.mctx.Free()
	})
	return nil
}

// append accumulates samples from the miniaudio data callback.
func (s *malgoStream) append(input []byte) {
	if len(input) == 0 {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, input...)
	s.mu.Unlock()
}

// flushLoop hands accumulated samples to the consumer until Close.
func (s *malgoStream) flushLoop() {
	defer close(s.chunks)

	ticker := time.NewTicker(s.flush)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			// Deliver whatever the callback buffered before Close so the
			// tail of the recording is not lost.
			if chunk := s.take(); len(chunk) > 0 {
				select {
				case s.chunks <- chunk:
				default:
				}
			}
			return
		case <-ticker.C:
			chunk := s.take()
			if len(chunk) == 0 {
				continue
			}
			select {
			case s.chunks <- chunk:
			case <-s.stop:
				return
			}
		}
	}
}

// take swaps out the pending buffer.
func (s *malgoStream) take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunk := s.pending
	s.pending = nil
	return chunk
}

// mapMalgoError folds miniaudio failures onto the fixed acquisition reasons.
// miniaudio reports causes as result-code strings, so matching is textual.
func mapMalgoError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"):
		return ErrPermissionDenied
	case strings.Contains(msg, "no device"), strings.Contains(msg, "device not found"), strings.Contains(msg, "no backend"):
		return ErrNoDevice
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return ErrDeviceBusy
	default:
		return fmt.Errorf("open capture device: %w", err)
	}
}
