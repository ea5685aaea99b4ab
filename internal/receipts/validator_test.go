package receipts

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validSubmission() Submission {
	return Submission{
		EmployeeName:  "Jane Doe",
		Department:    "Ops",
		PurchaseDate:  "2024-03-01",
		Vendor:        "Staples",
		Amount:        "42.50",
		PaymentMethod: "credit card",
		Category:      "Supplies",
		File: &Attachment{
			Name:        "receipt.jpg",
			ContentType: "image/jpeg",
			Size:        10 * 1024,
			Content:     strings.NewReader("jpeg"),
		},
	}
}

func TestValidate_Accepts(t *testing.T) {
	if err := Validate(validSubmission()); err != nil {
		t.Fatalf("expected valid submission, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Submission)
		wantKind  Kind
		wantField string
	}{
		{"no file", func(s *Submission) { s.File = nil }, KindMissingFile, FieldReceipt},
		{"exe file", func(s *Submission) { s.File.ContentType = "application/x-msdownload" }, KindInvalidFileType, FieldReceipt},
		{"empty content type", func(s *Submission) { s.File.ContentType = "" }, KindInvalidFileType, FieldReceipt},
		{"6MB file", func(s *Submission) { s.File.Size = 6 * 1024 * 1024 }, KindFileTooLarge, FieldReceipt},
		{"blank employee", func(s *Submission) { s.EmployeeName = "   " }, KindMissingField, FieldEmployeeName},
		{"no department", func(s *Submission) { s.Department = "" }, KindMissingField, FieldDepartment},
		{"no purchase date", func(s *Submission) { s.PurchaseDate = "" }, KindMissingField, FieldPurchaseDate},
		{"bad purchase date", func(s *Submission) { s.PurchaseDate = "03/01/2024" }, KindInvalidDate, FieldPurchaseDate},
		{"no vendor", func(s *Submission) { s.Vendor = "" }, KindMissingField, FieldVendor},
		{"negative amount", func(s *Submission) { s.Amount = "-5" }, KindInvalidAmount, FieldAmount},
		{"zero amount", func(s *Submission) { s.Amount = "0" }, KindInvalidAmount, FieldAmount},
		{"non-numeric amount", func(s *Submission) { s.Amount = "abc" }, KindInvalidAmount, FieldAmount},
		{"missing amount", func(s *Submission) { s.Amount = "" }, KindInvalidAmount, FieldAmount},
		{"no payment method", func(s *Submission) { s.PaymentMethod = "" }, KindMissingField, FieldPaymentMethod},
		{"unknown payment method", func(s *Submission) { s.PaymentMethod = "bitcoin" }, KindInvalidEnum, FieldPaymentMethod},
		{"wrong case payment method", func(s *Submission) { s.PaymentMethod = "Credit Card" }, KindInvalidEnum, FieldPaymentMethod},
		{"no category", func(s *Submission) { s.Category = "" }, KindMissingField, FieldCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSubmission()
			tt.mutate(&s)

			err := Validate(s)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if ve.Kind != tt.wantKind || ve.Field != tt.wantField {
				t.Errorf("got %s/%s, want %s/%s", ve.Kind, ve.Field, tt.wantKind, tt.wantField)
			}
			if ve.Message == "" {
				t.Error("empty message")
			}
		})
	}
}

func TestValidate_FirstFailureWins(t *testing.T) {
	s := validSubmission()
	s.File.ContentType = "text/plain"
	s.File.Size = 10 * 1024 * 1024
	s.EmployeeName = ""
	s.Amount = "-1"

	var ve *ValidationError
	if !errors.As(Validate(s), &ve) || ve.Kind != KindInvalidFileType {
		t.Fatalf("expected INVALID_FILE_TYPE first, got %v", ve)
	}

	s = validSubmission()
	s.Vendor = ""
	s.Amount = "nope"
	s.PaymentMethod = "barter"
	if !errors.As(Validate(s), &ve) || ve.Field != FieldVendor {
		t.Fatalf("expected vendor failure first, got %v", ve)
	}
}

func TestValidate_FileExactlyAtLimit(t *testing.T) {
	s := validSubmission()
	s.File.Size = MaxFileBytes
	if err := Validate(s); err != nil {
		t.Fatalf("file at limit rejected: %v", err)
	}
}

func TestValidate_ContentTypeParameters(t *testing.T) {
	s := validSubmission()
	s.File.ContentType = "Application/PDF; name=receipt.pdf"
	if err := Validate(s); err != nil {
		t.Fatalf("expected parameters to be ignored, got %v", err)
	}
}

func TestValidate_AllPaymentMethods(t *testing.T) {
	for _, m := range PaymentMethods {
		s := validSubmission()
		s.PaymentMethod = "  " + string(m) + " "
		if err := Validate(s); err != nil {
			t.Errorf("%q rejected: %v", m, err)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{" 42.50 ", "42.5"},
		{"7", "7"},
		{"0.01", "0.01"},
		{".5", "0.5"},
		{"000120.1", "120.1"},
		{"999999999999999.99", "999999999999999.99"},
	}
	for _, tt := range tests {
		d, err := ParseAmount(tt.raw)
		if err != nil {
			t.Errorf("ParseAmount(%q): %v", tt.raw, err)
			continue
		}
		if d.String() != tt.want {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.raw, d, tt.want)
		}
	}
}

func TestParseAmount_Rejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"0",
		"0.00",
		"-5",
		"+5",
		".",
		"abc",
		"1,000",
		"1e7000",
		"1e2000000",
		"1E2",
		"12.345",
		"0.1234567890123456789012345678901234567",
		"1000000000000000",
		"0000000000000000000000000000000001",
		"NaN",
		"Infinity",
	} {
		_, err := ParseAmount(raw)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Kind != KindInvalidAmount || ve.Field != FieldAmount {
			t.Errorf("ParseAmount(%q) err = %v, want INVALID_AMOUNT", raw, err)
		}
	}
}

func TestParsePurchaseDate(t *testing.T) {
	got, err := ParsePurchaseDate("2024-03-01")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("got %v", got)
	}

	got, err = ParsePurchaseDate("2024-03-01T23:30:00-02:00")
	if err != nil {
		t.Fatal(err)
	}
	if got.Location() != time.UTC || got.Day() != 2 || got.Hour() != 1 {
		t.Errorf("got %v, want 2024-03-02T01:30Z", got)
	}

	if _, err := ParsePurchaseDate("yesterday"); err == nil {
		t.Error("expected error")
	}
}

func TestNormalizeMediaType(t *testing.T) {
	tests := map[string]string{
		"image/JPEG":                 "image/jpeg",
		" application/pdf ; q=1 ":    "application/pdf",
		"":                           "",
		"multipart/form-data; b=xyz": "multipart/form-data",
	}
	for in, want := range tests {
		if got := NormalizeMediaType(in); got != want {
			t.Errorf("NormalizeMediaType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAllowedMediaTypes(t *testing.T) {
	got := AllowedMediaTypes()
	if len(got) != len(allowedMediaTypes) {
		t.Fatalf("AllowedMediaTypes = %v", got)
	}
	for _, mt := range got {
		if !allowedMediaTypes[mt] {
			t.Errorf("%s listed but not allowed", mt)
		}
	}
}
