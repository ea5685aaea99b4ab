package server

import (
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"receipt-drop/internal/blob"
	"receipt-drop/internal/logging"
)

// handleFile handles GET /uploads/<yyyy>/<mm>/<name> by streaming the stored
// object. r.URL.Path is already unescaped, so the key is taken from it rather
// than from the raw route parameter.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := strings.TrimPrefix(r.URL.Path, "/uploads/")

	obj, err := s.blobs.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotExist) || errors.Is(err, blob.ErrInvalidKey) {
			writeJSONError(w, http.StatusNotFound, "File not found", "NOT_FOUND", "")
			return
		}
		logging.FromContext(r.Context()).Error("open stored file", "key", key, "error", err)
		s.metrics.RecordDownloadError()
		writeJSONError(w, http.StatusInternalServerError, "Something went wrong", "INTERNAL_SERVER_ERROR", "")
		return
	}
	defer obj.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, path.Base(obj.Key), obj.ModTime, obj)
	s.metrics.RecordDownload(obj.Size, time.Since(start))
}
