package domain

// DownloadStatus is the server-reported state of a model download.
type DownloadStatus string

const (
	DownloadUnknown       DownloadStatus = "unknown"
	DownloadNeedsDownload DownloadStatus = "needs-download"
	DownloadDownloading   DownloadStatus = "downloading"
	DownloadCached        DownloadStatus = "cached"
	DownloadCompleted     DownloadStatus = "completed"
	DownloadDone          DownloadStatus = "done"
	DownloadError         DownloadStatus = "error"
)

// IsTerminal reports whether the status ends a progress stream.
func (s DownloadStatus) IsTerminal() bool {
	switch s {
	case DownloadDone, DownloadCompleted, DownloadCached, DownloadError:
		return true
	default:
		return false
	}
}

// DownloadProgress is an ephemeral progress snapshot for one model download.
// It exists only while a progress stream is open and is never persisted.
type DownloadProgress struct {
	Model           string         `json:"model"`
	Status          DownloadStatus `json:"status"`
	Percent         float64        `json:"percent"`
	BytesDownloaded int64          `json:"bytesDownloaded,omitempty"`
	TotalBytes      int64          `json:"totalBytes,omitempty"`
	ErrorMessage    string         `json:"errorMessage,omitempty"`
}
