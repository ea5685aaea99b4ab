package server

import (
	"net/http"

	"receipt-drop/internal/receipts"
)

type indexResponse struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
	Upload    uploadContract    `json:"upload"`
}

type uploadContract struct {
	FileField      string   `json:"fileField"`
	MaxFileBytes   int64    `json:"maxFileBytes"`
	AllowedTypes   []string `json:"allowedTypes"`
	Required       []string `json:"requiredFields"`
	Optional       []string `json:"optionalFields"`
	PaymentMethods []string `json:"paymentMethods"`
}

// handleIndex describes the API so a client can discover the upload form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	methods := make([]string, 0, len(receipts.PaymentMethods))
	for _, m := range receipts.PaymentMethods {
		methods = append(methods, string(m))
	}

	writeJSON(w, http.StatusOK, indexResponse{
		Name:    "Receipt Drop API",
		Version: s.build.Version,
		Endpoints: map[string]string{
			"GET /":                  "this document",
			"GET /health":            "component health",
			"GET /ready":             "readiness probe",
			"GET /live":              "liveness probe",
			"GET /metrics":           "Prometheus metrics",
			"POST /api/receipts":     "upload a receipt (multipart/form-data)",
			"GET /api/receipts":      "list receipts (?q=, ?status=, ?limit=)",
			"GET /api/receipts/{id}": "one receipt",
			"GET /uploads/{path}":    "stored receipt file",
		},
		Upload: uploadContract{
			FileField:    receipts.FieldReceipt,
			MaxFileBytes: receipts.MaxFileBytes,
			AllowedTypes: receipts.AllowedMediaTypes(),
			Required: []string{
				receipts.FieldEmployeeName,
				receipts.FieldDepartment,
				receipts.FieldPurchaseDate,
				receipts.FieldVendor,
				receipts.FieldAmount,
				receipts.FieldPaymentMethod,
				receipts.FieldCategory,
			},
			Optional:       []string{receipts.FieldProjectCode, receipts.FieldDescription},
			PaymentMethods: methods,
		},
	})
}
