package receipts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"receipt-drop/internal/logging"
)

// BlobStore persists receipt files by key. Put returns the full location the
// bytes were written to.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// RecordStore persists receipt metadata records.
type RecordStore interface {
	Insert(ctx context.Context, r *Receipt) error
	Get(ctx context.Context, id string) (*Receipt, error)
	List(ctx context.Context, q ListQuery) ([]Receipt, error)
	// HasObject reports whether any record references the object key.
	HasObject(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}

// Uploader runs the upload pipeline: validate, write the file, write the
// record, build the public URL.
type Uploader struct {
	blobs   BlobStore
	records RecordStore
	baseURL string

	now      func() time.Time
	newID    func() string
	newToken func() string
}

// Option customises an Uploader.
type Option func(*Uploader)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) { u.now = now }
}

// WithIDs overrides record id and stored-name token generation.
func WithIDs(newID, newToken func() string) Option {
	return func(u *Uploader) {
		u.newID = newID
		u.newToken = newToken
	}
}

// NewUploader wires an Uploader to its stores. baseURL is the externally
// visible origin used for file URLs.
func NewUploader(blobs BlobStore, records RecordStore, baseURL string, opts ...Option) *Uploader {
	u := &Uploader{
		blobs:   blobs,
		records: records,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
		newID:   uuid.NewString,
		newToken: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// BaseURL returns the origin file URLs are built from.
func (u *Uploader) BaseURL() string { return u.baseURL }

// URLFor returns the public file URL of a stored record.
func (u *Uploader) URLFor(r Receipt) string { return FileURL(u.baseURL, r.ObjectKey) }

// Upload validates sub and, if it is acceptable, stores its file and record.
//
// A file whose record cannot be written is deleted again; if that delete
// fails the file is left behind as an orphan for the Sweeper.
func (u *Uploader) Upload(ctx context.Context, sub Submission) (*Result, error) {
	if err := Validate(sub); err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx)

	now := u.now().UTC()
	name := StoredName(now, u.newToken(), sub.File.Name)
	key := ObjectKey(now, name)

	h := sha256.New()
	n := &byteCounter{}
	body := io.TeeReader(sub.File.Content, io.MultiWriter(h, n))
	location, err := u.blobs.Put(ctx, key, body, sub.File.Size, NormalizeMediaType(sub.File.ContentType))
	if err != nil {
		log.ErrorContext(ctx, "receipt file write failed", "key", key, "error", err)
		return nil, &StorageError{Err: err}
	}

	rec, err := u.buildRecord(sub, now, name, key, location, hex.EncodeToString(h.Sum(nil)), n.n)
	if err != nil {
		u.discard(ctx, key)
		return nil, err
	}

	if err := u.records.Insert(ctx, rec); err != nil {
		log.ErrorContext(ctx, "receipt record write failed", "key", key, "error", err)
		u.discard(ctx, key)
		if KindOf(err) == KindUnavailable {
			return nil, err
		}
		return nil, &PersistenceError{Err: err}
	}

	log.InfoContext(ctx, "receipt stored", "id", rec.ID, "key", key, "bytes", rec.SizeBytes)
	return &Result{Receipt: *rec, FileURL: FileURL(u.baseURL, key)}, nil
}

func (u *Uploader) buildRecord(sub Submission, now time.Time, name, key, location, checksum string, size int64) (*Receipt, error) {
	purchased, err := ParsePurchaseDate(sub.PurchaseDate)
	if err != nil {
		return nil, &ValidationError{Kind: KindInvalidDate, Field: FieldPurchaseDate, Message: "Purchase date must be a valid date (YYYY-MM-DD)"}
	}
	amount, err := ParseAmount(sub.Amount)
	if err != nil {
		return nil, err
	}
	method, _ := ParsePaymentMethod(sub.PaymentMethod)

	return &Receipt{
		ID:           u.newID(),
		FilePath:     location,
		FileName:     name,
		ObjectKey:    key,
		OriginalName: sub.File.Name,
		ContentType:  NormalizeMediaType(sub.File.ContentType),
		SizeBytes:    size,
		Checksum:     checksum,

		EmployeeName:  strings.TrimSpace(sub.EmployeeName),
		Department:    strings.TrimSpace(sub.Department),
		PurchaseDate:  purchased,
		Vendor:        strings.TrimSpace(sub.Vendor),
		Amount:        NewAmount(amount),
		PaymentMethod: method,
		Category:      strings.TrimSpace(sub.Category),
		ProjectCode:   strings.TrimSpace(sub.ProjectCode),
		Description:   strings.TrimSpace(sub.Description),

		UploadDate: now,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// discard removes a file whose record was never written. It uses a fresh
// context so a cancelled request still cleans up.
func (u *Uploader) discard(ctx context.Context, key string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := u.blobs.Delete(cctx, key); err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "orphaned receipt file", "key", key, "error", err)
	}
}

type byteCounter struct{ n int64 }

func (c *byteCounter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
