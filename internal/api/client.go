package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"whisper-desk/internal/domain"
)

const apiPrefix = "/api/v1"

// Client talks to the transcription backend's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{},
	}
}

// UploadRequest carries one audio upload with its transcription options.
type UploadRequest struct {
	FileName          string
	MIMEType          string
	Content           io.Reader
	Language          string
	Model             string
	EnableEnhancement bool
}

// ModelDownloadState is the embedded download snapshot of a model status.
type ModelDownloadState struct {
	Status          string  `json:"status"`
	Progress        float64 `json:"progress"`
	BytesDownloaded int64   `json:"bytes_downloaded"`
	TotalBytes      int64   `json:"total_bytes"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

// ModelStatus is the one-shot answer of the per-model status endpoint.
type ModelStatus struct {
	ModelName        string              `json:"model_name"`
	IsCached         bool                `json:"is_cached"`
	IsLoaded         bool                `json:"is_loaded"`
	DownloadProgress *ModelDownloadState `json:"download_progress,omitempty"`
}

// DownloadInProgress reports whether a download is currently running, which
// is the only condition under which a progress stream is worth opening.
func (s ModelStatus) DownloadInProgress() bool {
	if s.IsCached || s.IsLoaded {
		return false
	}
	return s.DownloadProgress != nil && s.DownloadProgress.Status == "downloading"
}

// HistoryPage is one page of the transcription history listing.
type HistoryPage struct {
	Items  []domain.Transcription `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// CreateTranscription uploads an audio file and starts a transcription job.
// The returned record is in pending or processing state.
func (c *Client) CreateTranscription(ctx context.Context, req UploadRequest) (domain.Transcription, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", req.FileName)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(fw, req.Content); err != nil {
		return domain.Transcription{}, fmt.Errorf("copy audio into form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return domain.Transcription{}, fmt.Errorf("finalize upload form: %w", err)
	}

	params := url.Values{}
	if req.Language != "" && !strings.EqualFold(req.Language, "auto") {
		params.Set("language", req.Language)
	}
	if req.Model != "" {
		params.Set("model", req.Model)
	}
	if req.EnableEnhancement {
		params.Set("enable_llm_enhancement", "true")
	}

	var out domain.Transcription
	err = c.do(ctx, http.MethodPost, apiPrefix+"/transcriptions", params, &body, mw.FormDataContentType(), &out)
	return out, err
}

// GetTranscription fetches the current state of one transcription job.
func (c *Client) GetTranscription(ctx context.Context, id string) (domain.Transcription, error) {
	var out domain.Transcription
	err := c.do(ctx, http.MethodGet, apiPrefix+"/transcriptions/"+url.PathEscape(id), nil, nil, "", &out)
	return out, err
}

// ListHistory returns a paginated slice of past transcriptions.
func (c *Client) ListHistory(ctx context.Context, limit, offset int) (HistoryPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var out HistoryPage
	err := c.do(ctx, http.MethodGet, apiPrefix+"/transcriptions", params, nil, "", &out)
	return out, err
}

// DeleteTranscription removes one transcription and its stored audio.
func (c *Client) DeleteTranscription(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, apiPrefix+"/transcriptions/"+url.PathEscape(id), nil, nil, "", nil)
}

// Retranscribe creates a new transcription of an existing audio file with a
// different model, without re-uploading the audio.
func (c *Client) Retranscribe(ctx context.Context, audioFileID, model, language string) (domain.Transcription, error) {
	params := url.Values{}
	params.Set("model", model)
	if language != "" && !strings.EqualFold(language, "auto") {
		params.Set("language", language)
	}

	var out domain.Transcription
	err := c.do(ctx, http.MethodPost, apiPrefix+"/audio-files/"+url.PathEscape(audioFileID)+"/transcriptions", params, nil, "", &out)
	return out, err
}

// ListVariants returns every transcription recorded for one audio file.
func (c *Client) ListVariants(ctx context.Context, audioFileID string) ([]domain.Transcription, error) {
	var out []domain.Transcription
	err := c.do(ctx, http.MethodGet, apiPrefix+"/audio-files/"+url.PathEscape(audioFileID)+"/transcriptions", nil, nil, "", &out)
	return out, err
}

// DeleteAudioFile removes an audio file and all of its transcriptions.
func (c *Client) DeleteAudioFile(ctx context.Context, audioFileID string) error {
	return c.do(ctx, http.MethodDelete, apiPrefix+"/audio-files/"+url.PathEscape(audioFileID), nil, nil, "", nil)
}

// Enhance runs LLM enhancement on a completed transcription and returns the
// same job record with enhancement fields populated.
func (c *Client) Enhance(ctx context.Context, id string) (domain.Transcription, error) {
	var out domain.Transcription
	err := c.do(ctx, http.MethodPost, apiPrefix+"/transcriptions/"+url.PathEscape(id)+"/enhance", nil, nil, "", &out)
	return out, err
}

// ModelStatus performs the one-shot download/cache status check for a model.
func (c *Client) ModelStatus(ctx context.Context, model string) (ModelStatus, error) {
	var out ModelStatus
	err := c.do(ctx, http.MethodGet, apiPrefix+"/models/status/"+url.PathEscape(model), nil, nil, "", &out)
	return out, err
}

// AvailableModels fetches the server's model catalog.
func (c *Client) AvailableModels(ctx context.Context) ([]domain.WhisperModelOption, error) {
	var out struct {
		Models []struct {
			Code        string `json:"code"`
			Name        string `json:"name"`
			Description string `json:"description"`
			Parameters  string `json:"parameters"`
			Size        string `json:"size"`
		} `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/models/available", nil, nil, "", &out); err != nil {
		return nil, err
	}

	models := make([]domain.WhisperModelOption, 0, len(out.Models))
	for _, m := range out.Models {
		models = append(models, domain.WhisperModelOption{
			Code:        m.Code,
			Name:        m.Name,
			Parameters:  m.Parameters,
			SizeLabel:   m.Size,
			Description: m.Description,
		})
	}
	return models, nil
}

// OpenDownloadProgress opens the server's progress feed for one model.
// The caller owns the returned body and must close it.
func (c *Client) OpenDownloadProgress(ctx context.Context, model string) (io.ReadCloser, error) {
	path := apiPrefix + "/models/download-progress/" + url.PathEscape(model)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build progress request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open progress stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, body),
			Method:     http.MethodGet,
			Path:       path,
		}
	}

	return resp.Body, nil
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, apiPrefix+"/health", nil, nil, "", nil)
}

// AudioURL builds the playback URL for a transcription's stored audio.
func (c *Client) AudioURL(transcriptionID string) string {
	return c.baseURL + apiPrefix + "/transcriptions/" + url.PathEscape(transcriptionID) + "/audio"
}

// do executes one request and decodes the JSON response, normalizing
// non-2xx responses into *Error.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body io.Reader, contentType string, out any) error {
	u := c.baseURL + path
	if len(params) != 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return &Error{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, raw),
			Method:     method,
			Path:       path,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
