package server

import (
	"sort"
	"sync"
	"time"

	"receipt-drop/internal/receipts"
)

// Metrics holds application metrics
type Metrics struct {
	mu sync.RWMutex

	startedAt time.Time

	// Upload metrics
	uploadsTotal        int64
	uploadBytesTotal    int64
	uploadDurationTotal time.Duration
	uploadFailures      map[receipts.Kind]int64

	// Download metrics
	downloadsTotal      int64
	downloadBytesTotal  int64
	downloadErrorsTotal int64

	// System metrics
	requestsTotal    int64
	requestErrors5xx int64
	requestErrors4xx int64
}

// NewMetrics returns zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{
		startedAt:      time.Now(),
		uploadFailures: make(map[receipts.Kind]int64),
	}
}

// RecordUpload records a successful upload
func (m *Metrics) RecordUpload(bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadsTotal++
	m.uploadBytesTotal += bytes
	m.uploadDurationTotal += duration
}

// RecordUploadFailure counts a rejected or failed upload by error kind.
func (m *Metrics) RecordUploadFailure(kind receipts.Kind) {
	if kind == "" {
		kind = receipts.KindInternal
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadFailures[kind]++
}

// RecordDownload records a served receipt file
func (m *Metrics) RecordDownload(bytes int64, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadsTotal++
	m.downloadBytesTotal += bytes
}

// RecordDownloadError records a file that could not be served
func (m *Metrics) RecordDownloadError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadErrorsTotal++
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++

	if statusCode >= 500 {
		m.requestErrors5xx++
	} else if statusCode >= 400 {
		m.requestErrors4xx++
	}
}

// KindCount is one upload failure counter.
type KindCount struct {
	Kind  receipts.Kind `json:"kind"`
	Count int64         `json:"count"`
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	UploadsTotal        int64       `json:"uploads_total"`
	UploadBytesTotal    int64       `json:"upload_bytes_total"`
	UploadFailuresTotal int64       `json:"upload_failures_total"`
	UploadFailures      []KindCount `json:"upload_failures"`
	UploadAvgDurationMs float64     `json:"upload_avg_duration_ms"`

	DownloadsTotal      int64 `json:"downloads_total"`
	DownloadBytesTotal  int64 `json:"download_bytes_total"`
	DownloadErrorsTotal int64 `json:"download_errors_total"`

	RequestsTotal    int64 `json:"requests_total"`
	RequestErrors5xx int64 `json:"request_errors_5xx"`
	RequestErrors4xx int64 `json:"request_errors_4xx"`

	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Snapshot returns a snapshot of current metrics. Failure kinds are sorted
// so the exposition is stable.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		UploadsTotal:        m.uploadsTotal,
		UploadBytesTotal:    m.uploadBytesTotal,
		UploadAvgDurationMs: avgDuration(m.uploadDurationTotal, m.uploadsTotal),
		DownloadsTotal:      m.downloadsTotal,
		DownloadBytesTotal:  m.downloadBytesTotal,
		DownloadErrorsTotal: m.downloadErrorsTotal,
		RequestsTotal:       m.requestsTotal,
		RequestErrors5xx:    m.requestErrors5xx,
		RequestErrors4xx:    m.requestErrors4xx,
		UptimeSeconds:       time.Since(m.startedAt).Seconds(),
	}
	for kind, n := range m.uploadFailures {
		snap.UploadFailures = append(snap.UploadFailures, KindCount{Kind: kind, Count: n})
		snap.UploadFailuresTotal += n
	}
	sort.Slice(snap.UploadFailures, func(i, j int) bool {
		return snap.UploadFailures[i].Kind < snap.UploadFailures[j].Kind
	})
	return snap
}

func avgDuration(total time.Duration, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total.Milliseconds()) / float64(count)
}
