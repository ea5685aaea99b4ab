package receipts

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxFileBytes is the largest receipt file accepted (5 MB).
const MaxFileBytes int64 = 5 * 1024 * 1024

// DateLayout is the preferred purchaseDate format. RFC 3339 timestamps are
// also accepted.
const DateLayout = "2006-01-02"

// allowedMediaTypes are the declared content types a receipt may have.
var allowedMediaTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"application/pdf": true,
}

// AllowedMediaTypes returns the accepted content types, sorted for display.
func AllowedMediaTypes() []string {
	return []string{"application/pdf", "image/gif", "image/jpeg", "image/png"}
}

// NormalizeMediaType lower-cases a Content-Type and drops its parameters.
func NormalizeMediaType(contentType string) string {
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	return mt
}

// Validate checks a submission in a fixed order and returns the first
// failure as a *ValidationError, or nil when the submission is acceptable.
func Validate(s Submission) error {
	if s.File == nil {
		return &ValidationError{Kind: KindMissingFile, Field: FieldReceipt, Message: "No file uploaded"}
	}
	if !allowedMediaTypes[NormalizeMediaType(s.File.ContentType)] {
		return &ValidationError{
			Kind:    KindInvalidFileType,
			Field:   FieldReceipt,
			Message: "Invalid file type. Only JPEG, PNG, GIF, and PDF files are allowed.",
		}
	}
	if s.File.Size > MaxFileBytes {
		return &ValidationError{
			Kind:    KindFileTooLarge,
			Field:   FieldReceipt,
			Message: "File size too large. Maximum size is 5MB.",
		}
	}

	if err := requireText(FieldEmployeeName, s.EmployeeName, "Employee name is required"); err != nil {
		return err
	}
	if err := requireText(FieldDepartment, s.Department, "Department is required"); err != nil {
		return err
	}
	if strings.TrimSpace(s.PurchaseDate) == "" {
		return missing(FieldPurchaseDate, "Purchase date is required")
	}
	if _, err := ParsePurchaseDate(s.PurchaseDate); err != nil {
		return &ValidationError{Kind: KindInvalidDate, Field: FieldPurchaseDate, Message: "Purchase date must be a valid date (YYYY-MM-DD)"}
	}
	if err := requireText(FieldVendor, s.Vendor, "Vendor name is required"); err != nil {
		return err
	}
	if _, err := ParseAmount(s.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(s.PaymentMethod) == "" {
		return missing(FieldPaymentMethod, "Payment method is required")
	}
	if _, ok := ParsePaymentMethod(s.PaymentMethod); !ok {
		return &ValidationError{
			Kind:    KindInvalidEnum,
			Field:   FieldPaymentMethod,
			Message: "Payment method must be one of: cash, credit card, debit card, bank transfer, other",
		}
	}
	if err := requireText(FieldCategory, s.Category, "Category is required"); err != nil {
		return err
	}
	return nil
}

// Amount bounds. Any amount within them is held exactly by a Decimal128.
const (
	maxAmountLength   = 32
	maxAmountDigits   = 15
	maxAmountDecimals = 2
)

// ParseAmount parses a positive money amount written as plain digits with an
// optional decimal point: at most 15 integer digits and 2 decimals. Signs,
// exponents and separators are rejected.
func ParseAmount(raw string) (decimal.Decimal, error) {
	invalid := &ValidationError{Kind: KindInvalidAmount, Field: FieldAmount, Message: "Please enter a valid amount"}

	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxAmountLength {
		return decimal.Zero, invalid
	}
	whole, frac, _ := strings.Cut(raw, ".")
	if whole+frac == "" || !digitsOnly(whole) || !digitsOnly(frac) {
		return decimal.Zero, invalid
	}
	if len(strings.TrimLeft(whole, "0")) > maxAmountDigits || len(frac) > maxAmountDecimals {
		return decimal.Zero, invalid
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, invalid
	}
	return d, nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParsePurchaseDate accepts YYYY-MM-DD or an RFC 3339 timestamp. The result
// is in UTC.
func ParsePurchaseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func requireText(field, value, msg string) error {
	if strings.TrimSpace(value) == "" {
		return missing(field, msg)
	}
	return nil
}

func missing(field, msg string) *ValidationError {
	return &ValidationError{Kind: KindMissingField, Field: field, Message: msg}
}
