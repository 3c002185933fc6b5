package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/mimetype"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"whisper-desk/internal/api"
	"whisper-desk/internal/capture"
	"whisper-desk/internal/config"
	"whisper-desk/internal/diagnostics"
	"whisper-desk/internal/domain"
	"whisper-desk/internal/events"
	"whisper-desk/internal/playback"
	"whisper-desk/internal/poll"
	"whisper-desk/internal/progress"
	"whisper-desk/internal/variants"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ErrSubmissionInFlight is returned when a second upload or retranscription
// is requested while one is still pending.
var ErrSubmissionInFlight = errors.New("an upload or re-transcription is already in progress")

// ErrEnhancementInFlight is returned when a second enhancement is requested
// while one is still pending.
var ErrEnhancementInFlight = errors.New("an enhancement is already in progress")

// ErrModelAlreadyTranscribed is returned when a retry targets a model that
// already has a variant for the loaded audio file.
var ErrModelAlreadyTranscribed = errors.New("a transcription with this model already exists for this audio file")

// ErrNoAudioFileLoaded is returned for variant operations before any upload
// or variant load happened.
var ErrNoAudioFileLoaded = errors.New("no audio file is loaded")

// ErrNoRecordingArtifact is returned when uploading before a recording was
// finalized.
var ErrNoRecordingArtifact = errors.New("no finalized recording to upload")

var audioDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio files",
		Pattern:     "*.mp3;*.wav;*.m4a;*.flac;*.ogg;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// backendClient is the slice of the REST client the orchestrator uses.
type backendClient interface {
	CreateTranscription(ctx context.Context, req api.UploadRequest) (domain.Transcription, error)
	GetTranscription(ctx context.Context, id string) (domain.Transcription, error)
	Retranscribe(ctx context.Context, audioFileID, model, language string) (domain.Transcription, error)
	ListVariants(ctx context.Context, audioFileID string) ([]domain.Transcription, error)
	ListHistory(ctx context.Context, limit, offset int) (api.HistoryPage, error)
	DeleteTranscription(ctx context.Context, id string) error
	DeleteAudioFile(ctx context.Context, audioFileID string) error
	Enhance(ctx context.Context, id string) (domain.Transcription, error)
	ModelStatus(ctx context.Context, model string) (api.ModelStatus, error)
	AvailableModels(ctx context.Context) ([]domain.WhisperModelOption, error)
	OpenDownloadProgress(ctx context.Context, model string) (io.ReadCloser, error)
	AudioURL(transcriptionID string) string
}

// App is the screen-level coordinator. It owns the canonical variant state,
// the loading flags, and the lifecycle of every polling, streaming, capture,
// and playback worker.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Diagnostics domain.DiagnosticReport

	client  backendClient
	checker *diagnostics.Checker
	assets  fs.FS
	bus     *events.Bus
	capture *capture.Session
	arbiter *playback.Arbiter

	pollInterval time.Duration

	mu         sync.Mutex
	runtimeCtx context.Context
	set        *variants.Set
	poller     *poll.Poller
	stream     *progress.Stream
	submitting bool
	enhancing  bool
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".whisper-desk", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	checker := diagnostics.NewChecker(func(ctx context.Context, serverURL string) error {
		return api.NewClient(serverURL).Health(ctx)
	})

	app := &App{
		Settings:     settings,
		Store:        store,
		Diagnostics:  checker.Run(settings),
		client:       api.NewClient(settings.ServerURL),
		checker:      checker,
		assets:       assets,
		bus:          events.NewBus(1000),
		arbiter:      playback.NewArbiter(),
		pollInterval: poll.DefaultInterval,
	}
	app.capture = capture.NewSession(capture.NewMalgoDevice(), capture.Config{}, app.captureHandler())
	app.registerPlayers()
	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Whisper Desk",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown tears down every live worker: the poller, the progress stream,
// the capture hardware, and any playing audio source.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	poller := a.poller
	stream := a.stream
	a.poller = nil
	a.stream = nil
	a.runtimeCtx = nil
	a.submitting = false
	a.enhancing = false
	a.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if stream != nil {
		stream.Close()
	}
	a.capture.Reset()
	a.arbiter.Stop()
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns the startup checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	a.mu.Lock()
	a.Settings = settings
	a.Diagnostics = a.checker.Run(settings)
	report := a.Diagnostics
	a.mu.Unlock()
	return report, nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then rebuilds the backend
// client and refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	a.client = api.NewClient(normalized.ServerURL)
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// PickAudioFile opens a native file dialog for audio selection.
func (a *App) PickAudioFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select audio file",
		Filters: audioDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// UploadFile uploads an audio file from disk and starts tracking the created
// transcription job.
func (a *App) UploadFile(path string) (domain.Transcription, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	mimeType := "application/octet-stream"
	if detected, err := mimetype.DetectFile(path); err == nil {
		mimeType = detected.String()
	}

	return a.submit(api.UploadRequest{
		FileName: filepath.Base(path),
		MIMEType: mimeType,
		Content:  f,
	})
}

// UploadRecording uploads the finalized microphone recording.
func (a *App) UploadRecording() (domain.Transcription, error) {
	artifact, ok := a.capture.Artifact()
	if !ok {
		return domain.Transcription{}, ErrNoRecordingArtifact
	}
	reader, err := artifact.Reader()
	if err != nil {
		return domain.Transcription{}, ErrNoRecordingArtifact
	}

	return a.submit(api.UploadRequest{
		FileName: artifact.FileName,
		MIMEType: artifact.MIMEType,
		Content:  reader,
	})
}

// submit runs one upload under the single-submission guard: model download
// check, progress stream, create request, variant upsert, poll start.
func (a *App) submit(req api.UploadRequest) (domain.Transcription, error) {
	a.mu.Lock()
	if a.submitting {
		a.mu.Unlock()
		return domain.Transcription{}, ErrSubmissionInFlight
	}
	a.submitting = true
	settings := a.Settings
	client := a.client
	a.mu.Unlock()

	req.Model = settings.DefaultModel
	req.Language = settings.Language
	req.EnableEnhancement = settings.EnableEnhancement

	a.watchModelDownload(req.Model)

	created, err := client.CreateTranscription(context.Background(), req)
	if err != nil {
		a.clearSubmitting()
		a.publishError(fmt.Sprintf("Upload failed: %s", userMessage(err)))
		return domain.Transcription{}, err
	}

	a.adoptJob(created, true)
	return created, nil
}

// RetranscribeWith creates a new variant of the loaded audio file under a
// different model. A model that already has a variant is rejected before any
// network call.
func (a *App) RetranscribeWith(model string) (domain.Transcription, error) {
	a.mu.Lock()
	if a.set == nil {
		a.mu.Unlock()
		return domain.Transcription{}, ErrNoAudioFileLoaded
	}
	if a.submitting {
		a.mu.Unlock()
		return domain.Transcription{}, ErrSubmissionInFlight
	}
	if a.set.Has(model) {
		a.mu.Unlock()
		return domain.Transcription{}, ErrModelAlreadyTranscribed
	}
	a.submitting = true
	audioFileID := a.set.AudioFileID()
	settings := a.Settings
	client := a.client
	a.mu.Unlock()

	a.watchModelDownload(model)

	created, err := client.Retranscribe(context.Background(), audioFileID, model, settings.Language)
	if err != nil {
		a.clearSubmitting()
		a.publishError(fmt.Sprintf("Re-transcription failed: %s", userMessage(err)))
		return domain.Transcription{}, err
	}

	a.adoptJob(created, false)
	return created, nil
}

// EnhanceTranscription starts LLM enhancement for a completed job. The
// result mutates the same job id in the variant set; it never creates a new
// variant.
func (a *App) EnhanceTranscription(id string) error {
	a.mu.Lock()
	if a.enhancing {
		a.mu.Unlock()
		return ErrEnhancementInFlight
	}
	a.enhancing = true
	client := a.client
	a.mu.Unlock()

	go func() {
		enhanced, err := client.Enhance(context.Background(), id)

		a.mu.Lock()
		a.enhancing = false
		if err == nil && a.set != nil && a.set.AudioFileID() == enhanced.AudioFileID {
			_ = a.set.Upsert(enhanced)
		}
		a.mu.Unlock()

		if err != nil {
			a.publishError(fmt.Sprintf("Enhancement failed: %s", userMessage(err)))
			return
		}
		a.publishJob(enhanced)
	}()

	return nil
}

// LoadVariants reloads every variant of an audio file from the server and
// reconciles the local set. switchTo moves the active pointer when that id
// is present after reconciliation.
func (a *App) LoadVariants(audioFileID, switchTo string) ([]domain.Transcription, error) {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	items, err := client.ListVariants(context.Background(), audioFileID)
	if err != nil {
		a.publishError(fmt.Sprintf("Loading transcriptions failed: %s", userMessage(err)))
		return nil, err
	}

	a.mu.Lock()
	if a.set == nil || a.set.AudioFileID() != audioFileID {
		a.set = variants.NewSet(audioFileID)
	}
	a.set.Reconcile(items, switchTo)
	ordered := a.set.Ordered()
	active, hasActive := a.set.Active()
	a.mu.Unlock()

	a.publishVariants()
	if hasActive && !active.Status.IsTerminal() {
		a.startTracking(active.ID)
	}
	return ordered, nil
}

// ActivateVariant moves the active pointer. Ids outside the set are rejected
// and leave the pointer unchanged.
func (a *App) ActivateVariant(id string) error {
	a.mu.Lock()
	if a.set == nil {
		a.mu.Unlock()
		return ErrNoAudioFileLoaded
	}
	err := a.set.Activate(id)
	a.mu.Unlock()

	if err != nil {
		return err
	}
	a.publishVariants()
	return nil
}

// CurrentVariants returns the ordered view and the active id for the UI.
func (a *App) CurrentVariants() ([]domain.Transcription, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.set == nil {
		return nil, ""
	}
	ordered := a.set.Ordered()
	active, ok := a.set.Active()
	if !ok {
		return ordered, ""
	}
	return ordered, active.ID
}

// GetHistory returns one page of past transcriptions.
func (a *App) GetHistory(limit, offset int) (api.HistoryPage, error) {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	return client.ListHistory(context.Background(), limit, offset)
}

// DeleteTranscription removes one transcription on the server and reloads
// the variant set when it belonged to the loaded audio file.
func (a *App) DeleteTranscription(id string) error {
	a.mu.Lock()
	client := a.client
	var audioFileID string
	if a.set != nil {
		if t, ok := a.set.Get(id); ok {
			audioFileID = t.AudioFileID
		}
	}
	a.mu.Unlock()

	if err := client.DeleteTranscription(context.Background(), id); err != nil {
		return err
	}
	if audioFileID != "" {
		_, err := a.LoadVariants(audioFileID, "")
		return err
	}
	return nil
}

// DeleteAudioFile removes an audio file with all its transcriptions and
// clears the variant set when it was loaded.
func (a *App) DeleteAudioFile(audioFileID string) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	if err := client.DeleteAudioFile(context.Background(), audioFileID); err != nil {
		return err
	}

	a.mu.Lock()
	if a.set != nil && a.set.AudioFileID() == audioFileID {
		a.set = nil
	}
	a.mu.Unlock()
	a.publishVariants()
	return nil
}

// RemoteAudioURL returns the playback URL of a transcription's stored audio.
func (a *App) RemoteAudioURL(transcriptionID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client.AudioURL(transcriptionID)
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []events.Event {
	return a.bus.Since(sinceSeq)
}

// adoptJob installs a freshly created job into the variant state and begins
// polling it. newFile resets the set to the job's audio file.
func (a *App) adoptJob(t domain.Transcription, newFile bool) {
	a.mu.Lock()
	if newFile || a.set == nil || a.set.AudioFileID() != t.AudioFileID {
		a.set = variants.NewSet(t.AudioFileID)
	}
	_ = a.set.Upsert(t)
	_ = a.set.Activate(t.ID)
	a.mu.Unlock()

	a.publishVariants()
	a.publishJob(t)
	a.startTracking(t.ID)
}

// startTracking replaces the active poller with one tracking jobID.
func (a *App) startTracking(jobID string) {
	poller := poll.NewPoller(a.fetcher(), a.pollInterval)

	a.mu.Lock()
	prev := a.poller
	a.poller = poller
	a.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	_ = poller.Track(jobID, poll.Handler{
		OnUpdate: a.applyJobUpdate,
		OnError: func(err error) {
			a.publishError(fmt.Sprintf("Status check failed: %s", userMessage(err)))
		},
	})
}

// applyJobUpdate commits one polled state into the variant set. A terminal
// status ends the submission and leaves the job in the set.
func (a *App) applyJobUpdate(t domain.Transcription) {
	a.mu.Lock()
	if a.set != nil && a.set.AudioFileID() == t.AudioFileID {
		_ = a.set.Upsert(t)
	}
	if t.Status.IsTerminal() {
		a.submitting = false
	}
	a.mu.Unlock()

	a.publishJob(t)
}

// modelStatusTimeout bounds the pre-submission model status check so a
// stalled backend cannot wedge an upload.
const modelStatusTimeout = 5 * time.Second

// watchModelDownload performs the one-shot status check and opens a progress
// stream only when a download is actually running. Any previously open
// stream is closed first. Failures here never block a submission.
func (a *App) watchModelDownload(model string) {
	a.mu.Lock()
	prev := a.stream
	a.stream = nil
	client := a.client
	a.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	statusCtx, cancel := context.WithTimeout(context.Background(), modelStatusTimeout)
	status, err := client.ModelStatus(statusCtx, model)
	cancel()
	if err != nil || !status.DownloadInProgress() {
		return
	}

	stream, err := progress.Open(context.Background(), client, model, progress.Handler{
		OnProgress: func(p domain.DownloadProgress) {
			a.publishEvent(events.Event{
				Type:     events.TypeDownloadProgress,
				Progress: &p,
			})
		},
	})
	if err != nil {
		a.publishError(fmt.Sprintf("Download progress unavailable: %s", userMessage(err)))
		return
	}

	a.mu.Lock()
	a.stream = stream
	a.mu.Unlock()
}

// fetcher exposes the current client as the poller's fetch dependency.
func (a *App) fetcher() poll.Fetcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fetcherFunc{a.client}
}

// fetcherFunc adapts the backend client to the poll.Fetcher interface.
type fetcherFunc struct {
	client backendClient
}

// GetTranscription delegates to the backend client.
func (f fetcherFunc) GetTranscription(ctx context.Context, id string) (domain.Transcription, error) {
	return f.client.GetTranscription(ctx, id)
}

// clearSubmitting drops the in-flight submission flag.
func (a *App) clearSubmitting() {
	a.mu.Lock()
	a.submitting = false
	a.mu.Unlock()
}

// publishJob pushes one job state to the UI.
func (a *App) publishJob(t domain.Transcription) {
	a.publishEvent(events.Event{
		Type: events.TypeJobUpdate,
		Job:  &t,
	})
}

// publishVariants pushes the ordered variant view and active pointer.
func (a *App) publishVariants() {
	a.mu.Lock()
	var ordered []domain.Transcription
	var activeID string
	if a.set != nil {
		ordered = a.set.Ordered()
		if active, ok := a.set.Active(); ok {
			activeID = active.ID
		}
	}
	a.mu.Unlock()

	a.publishEvent(events.Event{
		Type:     events.TypeVariants,
		Variants: ordered,
		ActiveID: activeID,
	})
}

// publishError pushes a user-facing error message.
func (a *App) publishError(message string) {
	a.publishEvent(events.Event{
		Type:    events.TypeError,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event events.Event) {
	published := a.bus.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "app:event", published)
	}
}

// runtimeContext returns the current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// userMessage strips transport noise from backend errors for display.
func userMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// normalizeSettings trims user inputs and applies defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.ServerURL = strings.TrimRight(strings.TrimSpace(settings.ServerURL), "/")
	settings.DefaultModel = strings.TrimSpace(settings.DefaultModel)
	settings.Language = strings.TrimSpace(settings.Language)
	if settings.ServerURL == "" {
		settings.ServerURL = config.DefaultSettings().ServerURL
	}
	if settings.DefaultModel == "" {
		settings.DefaultModel = "base"
	}
	if settings.Language == "" {
		settings.Language = "auto"
	}
	return settings
}
