package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"receipt-drop/internal/receipts"
)

const (
	// multipartOverhead is the body allowance on top of the file limit for
	// boundaries and text fields. Bodies above it are cut off unread.
	multipartOverhead int64 = 1 << 20
	// multipartMemory is how much of a form is buffered before spilling to
	// temporary files.
	multipartMemory int64 = 8 << 20
)

type uploadResponse struct {
	Message string           `json:"message"`
	Receipt *receipts.Result `json:"receipt"`
}

type listResponse struct {
	Receipts []receipts.Result `json:"receipts"`
	Count    int               `json:"count"`
}

type getResponse struct {
	Receipt receipts.Result `json:"receipt"`
}

// handleUpload handles POST /api/receipts: a multipart form with the file in
// the "receipt" field and the metadata as text fields.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, receipts.MaxFileBytes+multipartOverhead)

	sub, cleanup, err := readSubmission(r)
	defer cleanup()
	if err != nil {
		s.metrics.RecordUploadFailure(receipts.KindOf(err))
		s.writeError(w, r, err)
		return
	}

	res, err := s.uploader.Upload(r.Context(), sub)
	if err != nil {
		s.metrics.RecordUploadFailure(receipts.KindOf(err))
		s.writeError(w, r, err)
		return
	}

	s.metrics.RecordUpload(res.SizeBytes, time.Since(start))
	writeJSON(w, http.StatusOK, uploadResponse{
		Message: "Receipt uploaded successfully",
		Receipt: res,
	})
}

// readSubmission parses the multipart body. A body that is not multipart or
// carries no "receipt" part yields a submission without a file, which the
// validator reports as MISSING_FILE.
func readSubmission(r *http.Request) (receipts.Submission, func(), error) {
	noop := func() {}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return receipts.Submission{}, noop, &receipts.ValidationError{
				Kind:    receipts.KindFileTooLarge,
				Field:   receipts.FieldReceipt,
				Message: "File size too large. Maximum size is 5MB.",
			}
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			return receipts.Submission{}, noop, &receipts.ValidationError{
				Kind:    receipts.KindMissingFile,
				Field:   receipts.FieldReceipt,
				Message: "Malformed multipart form",
			}
		}
	}
	cleanup := noop
	if r.MultipartForm != nil {
		form := r.MultipartForm
		cleanup = func() { _ = form.RemoveAll() }
	}

	sub := receipts.Submission{
		EmployeeName:  r.FormValue(receipts.FieldEmployeeName),
		Department:    r.FormValue(receipts.FieldDepartment),
		PurchaseDate:  r.FormValue(receipts.FieldPurchaseDate),
		Vendor:        r.FormValue(receipts.FieldVendor),
		Amount:        r.FormValue(receipts.FieldAmount),
		PaymentMethod: r.FormValue(receipts.FieldPaymentMethod),
		Category:      r.FormValue(receipts.FieldCategory),
		ProjectCode:   r.FormValue(receipts.FieldProjectCode),
		Description:   r.FormValue(receipts.FieldDescription),
	}

	file, hdr, err := r.FormFile(receipts.FieldReceipt)
	if err == nil {
		prev := cleanup
		cleanup = func() {
			_ = file.Close()
			prev()
		}
		sub.File = &receipts.Attachment{
			Name:        hdr.Filename,
			ContentType: hdr.Header.Get("Content-Type"),
			Size:        hdr.Size,
			Content:     file,
		}
	}
	return sub, cleanup, nil
}

// handleList handles GET /api/receipts?q=&status=&limit=.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	recs, err := s.store.List(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]receipts.Result, 0, len(recs))
	for _, rec := range recs {
		out = append(out, receipts.Result{Receipt: rec, FileURL: s.uploader.URLFor(rec)})
	}
	writeJSON(w, http.StatusOK, listResponse{Receipts: out, Count: len(out)})
}

func parseListQuery(r *http.Request) (receipts.ListQuery, error) {
	v := r.URL.Query()
	q := receipts.ListQuery{Text: strings.TrimSpace(v.Get("q"))}

	if raw := strings.TrimSpace(v.Get("status")); raw != "" {
		q.Status = receipts.Status(raw)
		if !q.Status.Valid() {
			return q, &receipts.ValidationError{
				Kind:    receipts.KindInvalidQuery,
				Field:   "status",
				Message: "Status must be one of: pending, approved, rejected",
			}
		}
	}

	if raw := strings.TrimSpace(v.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, &receipts.ValidationError{
				Kind:    receipts.KindInvalidQuery,
				Field:   "limit",
				Message: "Limit must be a positive integer",
			}
		}
		q.Limit = n
	}
	return q, nil
}

// handleGet handles GET /api/receipts/{id}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, getResponse{
		Receipt: receipts.Result{Receipt: *rec, FileURL: s.uploader.URLFor(*rec)},
	})
}
