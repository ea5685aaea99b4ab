package receipts

import (
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the review state of a receipt.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// PaymentMethod is how the purchase was paid.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCreditCard   PaymentMethod = "credit card"
	PaymentDebitCard    PaymentMethod = "debit card"
	PaymentBankTransfer PaymentMethod = "bank transfer"
	PaymentOther        PaymentMethod = "other"
)

// PaymentMethods lists the accepted payment methods in display order.
var PaymentMethods = []PaymentMethod{
	PaymentCash,
	PaymentCreditCard,
	PaymentDebitCard,
	PaymentBankTransfer,
	PaymentOther,
}

// ParsePaymentMethod matches raw against the accepted payment methods.
// Matching is exact after trimming; "Credit Card" is not accepted.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	raw = strings.TrimSpace(raw)
	for _, m := range PaymentMethods {
		if string(m) == raw {
			return m, true
		}
	}
	return "", false
}

// Amount is a money value. It is written to JSON as a number (42.5) where a
// bare decimal.Decimal would be quoted.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount { return Amount{Decimal: d} }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// Receipt is the metadata record persisted for every stored receipt file.
type Receipt struct {
	ID           string `json:"id"`
	FilePath     string `json:"filePath"`
	FileName     string `json:"fileName"`
	ObjectKey    string `json:"objectKey"`
	OriginalName string `json:"originalName"`
	ContentType  string `json:"contentType"`
	SizeBytes    int64  `json:"sizeBytes"`
	Checksum     string `json:"checksum"`

	EmployeeName  string          `json:"employeeName"`
	Department    string          `json:"department"`
	PurchaseDate  time.Time       `json:"purchaseDate"`
	Vendor        string          `json:"vendor"`
	Amount        Amount          `json:"amount"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Category      string          `json:"category"`
	ProjectCode   string          `json:"projectCode,omitempty"`
	Description   string          `json:"description,omitempty"`

	UploadDate time.Time `json:"uploadDate"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Result is what a successful upload returns: the stored record plus the
// public URL of its file.
type Result struct {
	Receipt
	FileURL string `json:"fileUrl"`
}

// Attachment describes the uploaded file as declared by the client.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Submission is one receipt form post: raw string fields and the attached
// file. Fields are validated and parsed by Validate and Upload.
type Submission struct {
	EmployeeName  string
	Department    string
	PurchaseDate  string
	Vendor        string
	Amount        string
	PaymentMethod string
	Category      string
	ProjectCode   string
	Description   string

	File *Attachment
}

// Form field names, shared by the HTTP layer and validation errors.
const (
	FieldReceipt       = "receipt"
	FieldEmployeeName  = "employeeName"
	FieldDepartment    = "department"
	FieldPurchaseDate  = "purchaseDate"
	FieldVendor        = "vendor"
	FieldAmount        = "amount"
	FieldPaymentMethod = "paymentMethod"
	FieldCategory      = "category"
	FieldProjectCode   = "projectCode"
	FieldDescription   = "description"
)

// ListQuery filters record listings. Zero values mean "no filter".
type ListQuery struct {
	Text   string
	Status Status
	Limit  int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// EffectiveLimit clamps q.Limit into [1, MaxListLimit], defaulting to
// DefaultListLimit.
func (q ListQuery) EffectiveLimit() int {
	switch {
	case q.Limit <= 0:
		return DefaultListLimit
	case q.Limit > MaxListLimit:
		return MaxListLimit
	}
	return q.Limit
}
