package diagnostics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gen2brain/malgo"

	"whisper-desk/internal/domain"
)

const healthTimeout = 5 * time.Second

// Checker validates backend reachability and local capture hardware.
type Checker struct {
	health       func(ctx context.Context, serverURL string) error
	countDevices func() (int, error)
}

// NewChecker builds a checker using real probes.
func NewChecker(health func(ctx context.Context, serverURL string) error) *Checker {
	return &Checker{
		health:       health,
		countDevices: countCaptureDevices,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkServerURL(settings.ServerURL),
		c.checkBackend(settings.ServerURL),
		c.checkMicrophone(),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkServerURL validates the configured backend address.
func (c *Checker) checkServerURL(serverURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "server_url",
		Name: "Server URL",
	}

	trimmed := strings.TrimSpace(serverURL)
	if trimmed == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Server URL is empty."
		item.Hint = "Set the transcription server address in settings."
		return item
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Server URL is not valid: %s", trimmed)
		item.Hint = "Use a full address such as http://localhost:8000."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Configured server: %s", trimmed)
	return item
}

// checkBackend probes the server's health endpoint.
func (c *Checker) checkBackend(serverURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "backend",
		Name: "Transcription server",
	}

	if c.health == nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No health probe configured."
		return item
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	if err := c.health(ctx, serverURL); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Server is not reachable: %v", err)
		item.Hint = "Start the transcription server and verify the configured address."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "Server is reachable and healthy."
	return item
}

// checkMicrophone verifies at least one capture device is present.
func (c *Checker) checkMicrophone() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "microphone",
		Name: "Microphone",
	}

	count, err := c.countDevices()
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot enumerate audio devices: %v", err)
		item.Hint = "Check that an audio backend is available on this system."
		return item
	}
	if count == 0 {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No microphone device was found."
		item.Hint = "Connect a microphone to use voice recording."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Capture devices available: %d", count)
	return item
}

// countCaptureDevices enumerates capture hardware through miniaudio.
func countCaptureDevices() (int, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	devices, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return 0, err
	}
	return len(devices), nil
}

// NewCheckerForTests creates a checker with injectable probes.
func NewCheckerForTests(
	health func(ctx context.Context, serverURL string) error,
	countDevices func() (int, error),
) *Checker {
	return &Checker{
		health:       health,
		countDevices: countDevices,
	}
}
