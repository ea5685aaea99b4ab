// prometheus.go - Prometheus text exposition of the server metrics
package server

import (
	"fmt"
	"net/http"
	"strings"

	"receipt-drop/internal/db"
)

// PrometheusHandler serves the current metrics in the Prometheus text format.
func (s *Server) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var breaker *db.BreakerStats
		if b, ok := s.store.(breakerStats); ok {
			st := b.Stats()
			breaker = &st
		}
		body := renderPrometheus(s.metrics.Snapshot(), s.build, breaker)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

type promWriter struct {
	strings.Builder
}

func (p *promWriter) header(name, help, typ string) {
	fmt.Fprintf(&p.Builder, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, typ)
}

func (p *promWriter) sample(name string, value any) {
	fmt.Fprintf(&p.Builder, "%s %v\n", name, value)
}

func renderPrometheus(snap MetricsSnapshot, build Build, breaker *db.BreakerStats) string {
	var out promWriter

	out.header("rd_info", "Application version info", "gauge")
	out.sample(fmt.Sprintf(`rd_info{version="%s",commit="%s"}`, prometheusLabel(build.Version), prometheusLabel(build.Commit)), 1)

	out.header("rd_requests_total", "Total number of HTTP requests", "counter")
	out.sample("rd_requests_total", snap.RequestsTotal)

	out.header("rd_request_errors_total", "HTTP responses with an error status by class", "counter")
	out.sample(`rd_request_errors_total{class="4xx"}`, snap.RequestErrors4xx)
	out.sample(`rd_request_errors_total{class="5xx"}`, snap.RequestErrors5xx)

	out.header("rd_uploads_total", "Receipts stored successfully", "counter")
	out.sample("rd_uploads_total", snap.UploadsTotal)

	out.header("rd_upload_bytes_total", "Bytes of receipt files stored", "counter")
	out.sample("rd_upload_bytes_total", snap.UploadBytesTotal)

	out.header("rd_upload_failures_total", "Rejected or failed uploads by error code", "counter")
	for _, kc := range snap.UploadFailures {
		out.sample(fmt.Sprintf(`rd_upload_failures_total{code="%s"}`, prometheusLabel(string(kc.Kind))), kc.Count)
	}

	out.header("rd_upload_duration_avg_ms", "Mean duration of successful uploads", "gauge")
	out.sample("rd_upload_duration_avg_ms", fmt.Sprintf("%.2f", snap.UploadAvgDurationMs))

	out.header("rd_downloads_total", "Receipt files served", "counter")
	out.sample("rd_downloads_total", snap.DownloadsTotal)

	out.header("rd_download_errors_total", "Receipt files that could not be served", "counter")
	out.sample("rd_download_errors_total", snap.DownloadErrorsTotal)

	if breaker != nil {
		out.header("rd_db_circuit_state", "Database circuit breaker state (0 closed, 1 open, 2 half-open)", "gauge")
		out.sample("rd_db_circuit_state", circuitStateValue(breaker.State))

		out.header("rd_db_circuit_rejected_total", "Database calls rejected while the circuit was open", "counter")
		out.sample("rd_db_circuit_rejected_total", breaker.RejectedRequests)
	}

	out.header("rd_uptime_seconds", "Application uptime in seconds", "counter")
	out.sample("rd_uptime_seconds", fmt.Sprintf("%.0f", snap.UptimeSeconds))

	return out.String()
}

func circuitStateValue(state string) int {
	switch state {
	case db.StateOpen.String():
		return 1
	case db.StateHalfOpen.String():
		return 2
	}
	return 0
}

// prometheusLabel escapes a label value.
func prometheusLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "\\n")
	return value
}
