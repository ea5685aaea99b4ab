package receipts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

var uploadTime = time.Date(2024, 3, 15, 10, 30, 45, 123_000_000, time.UTC)

func newTestUploader(blobs BlobStore, records RecordStore) *Uploader {
	return NewUploader(blobs, records, "http://localhost:3001/",
		WithClock(func() time.Time { return uploadTime }),
		WithIDs(func() string { return "rec-1" }, func() string { return "abcd1234" }),
	)
}

func TestUpload_Success(t *testing.T) {
	blobs, records := newFakeBlobs(), newFakeRecords()
	u := newTestUploader(blobs, records)

	content := strings.Repeat("x", 10*1024)
	sub := validSubmission()
	sub.File.Content = strings.NewReader(content)

	res, err := u.Upload(context.Background(), sub)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	wantKey := "2024/03/2024-03-15T10-30-45-123Z-abcd1234_receipt.jpg"
	if res.ObjectKey != wantKey {
		t.Errorf("ObjectKey = %q, want %q", res.ObjectKey, wantKey)
	}
	if !blobs.has(wantKey) {
		t.Error("file not written")
	}
	if records.count() != 1 {
		t.Errorf("records = %d, want 1", records.count())
	}

	if res.ID != "rec-1" || res.Status != StatusPending {
		t.Errorf("id/status = %s/%s", res.ID, res.Status)
	}
	if res.Amount.String() != "42.5" {
		t.Errorf("amount = %s", res.Amount)
	}
	if res.PaymentMethod != PaymentCreditCard {
		t.Errorf("paymentMethod = %s", res.PaymentMethod)
	}
	if res.SizeBytes != int64(len(content)) {
		t.Errorf("sizeBytes = %d, want %d", res.SizeBytes, len(content))
	}
	sum := sha256.Sum256([]byte(content))
	if res.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("checksum = %s", res.Checksum)
	}
	if res.FilePath != "/uploads/"+wantKey || res.OriginalName != "receipt.jpg" {
		t.Errorf("filePath/originalName = %s/%s", res.FilePath, res.OriginalName)
	}
	if !res.UploadDate.Equal(uploadTime) || !res.CreatedAt.Equal(uploadTime) {
		t.Errorf("timestamps = %v/%v", res.UploadDate, res.CreatedAt)
	}
	if res.FileURL != "http://localhost:3001/uploads/"+wantKey {
		t.Errorf("fileUrl = %s", res.FileURL)
	}
	if !strings.HasSuffix(res.FileURL, "_receipt.jpg") {
		t.Errorf("fileUrl %q does not end in _receipt.jpg", res.FileURL)
	}
	if u.URLFor(res.Receipt) != res.FileURL {
		t.Errorf("URLFor = %s", u.URLFor(res.Receipt))
	}
}

func TestUpload_JSONShape(t *testing.T) {
	u := newTestUploader(newFakeBlobs(), newFakeRecords())
	res, err := u.Upload(context.Background(), validSubmission())
	if err != nil {
		t.Fatal(err)
	}

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if amt, ok := m["amount"].(float64); !ok || amt != 42.5 {
		t.Errorf("amount = %#v, want number 42.5", m["amount"])
	}
	for _, k := range []string{"id", "fileUrl", "status", "uploadDate", "employeeName", "paymentMethod"} {
		if _, ok := m[k]; !ok {
			t.Errorf("missing %q in %s", k, b)
		}
	}
	if _, ok := m["projectCode"]; ok {
		t.Error("empty projectCode should be omitted")
	}
}

func TestUpload_ValidationWritesNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Submission)
		kind   Kind
	}{
		{"negative amount", func(s *Submission) { s.Amount = "-5" }, KindInvalidAmount},
		{"6MB file", func(s *Submission) { s.File.Size = 6 * 1024 * 1024 }, KindFileTooLarge},
		{"exe", func(s *Submission) {
			s.File.Name = "setup.exe"
			s.File.ContentType = "application/octet-stream"
		}, KindInvalidFileType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs, records := newFakeBlobs(), newFakeRecords()
			u := newTestUploader(blobs, records)

			sub := validSubmission()
			tt.mutate(&sub)
			_, err := u.Upload(context.Background(), sub)
			if KindOf(err) != tt.kind {
				t.Fatalf("kind = %s, want %s", KindOf(err), tt.kind)
			}
			if HTTPStatus(err) != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", HTTPStatus(err))
			}
			if blobs.count() != 0 || records.count() != 0 {
				t.Errorf("wrote %d files / %d records", blobs.count(), records.count())
			}
		})
	}
}

func TestUpload_StorageFailure(t *testing.T) {
	blobs, records := newFakeBlobs(), newFakeRecords()
	blobs.putErr = errors.New("disk full")
	u := newTestUploader(blobs, records)

	_, err := u.Upload(context.Background(), validSubmission())
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if HTTPStatus(err) != http.StatusInternalServerError {
		t.Errorf("status = %d", HTTPStatus(err))
	}
	if records.count() != 0 {
		t.Error("record written after storage failure")
	}
}

func TestUpload_PersistenceFailureRemovesFile(t *testing.T) {
	blobs, records := newFakeBlobs(), newFakeRecords()
	records.insertErr = errors.New("constraint violation")
	u := newTestUploader(blobs, records)

	_, err := u.Upload(context.Background(), validSubmission())
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if PublicMessage(err) != "Failed to upload receipt" {
		t.Errorf("message = %q", PublicMessage(err))
	}
	if blobs.count() != 0 {
		t.Error("file left behind after failed record write")
	}
	if len(blobs.deleted) != 1 {
		t.Errorf("deletes = %v", blobs.deleted)
	}
}

func TestUpload_UnavailableDatabase(t *testing.T) {
	blobs, records := newFakeBlobs(), newFakeRecords()
	records.insertErr = &ConnectivityError{Err: errors.New("server selection timeout")}
	u := newTestUploader(blobs, records)

	_, err := u.Upload(context.Background(), validSubmission())
	if KindOf(err) != KindUnavailable {
		t.Fatalf("kind = %s, want %s", KindOf(err), KindUnavailable)
	}
	if HTTPStatus(err) != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", HTTPStatus(err))
	}
	if blobs.count() != 0 {
		t.Error("file left behind")
	}
}

func TestUpload_CleanupFailureKeepsOriginalError(t *testing.T) {
	blobs, records := newFakeBlobs(), newFakeRecords()
	records.insertErr = errors.New("insert failed")
	blobs.deleteErr = errors.New("permission denied")
	u := newTestUploader(blobs, records)

	_, err := u.Upload(context.Background(), validSubmission())
	if KindOf(err) != KindPersistence {
		t.Fatalf("kind = %s, want %s", KindOf(err), KindPersistence)
	}
	if blobs.count() != 1 {
		t.Error("expected orphan to remain when delete fails")
	}
}

func TestUpload_CancelledRequestStillCleansUp(t *testing.T) {
	blobs, records := newFakeBlobs(), newFakeRecords()
	records.insertErr = context.Canceled
	u := newTestUploader(blobs, records)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := u.Upload(ctx, validSubmission()); err == nil {
		t.Fatal("expected error")
	}
	if blobs.count() != 0 {
		t.Error("file left behind after cancelled request")
	}
}

func TestUpload_ConcurrentSameNameDoNotCollide(t *testing.T) {
	blobs, records := newFakeBlobs(), newFakeRecords()
	// Same clock for every upload; only the random token differs.
	u := NewUploader(blobs, records, "http://localhost:3001",
		WithClock(func() time.Time { return uploadTime }))

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := validSubmission()
			_, err := u.Upload(context.Background(), sub)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}
	if blobs.count() != n || records.count() != n {
		t.Fatalf("files=%d records=%d, want %d", blobs.count(), records.count(), n)
	}
}

func TestUploader_BaseURLTrimmed(t *testing.T) {
	u := NewUploader(newFakeBlobs(), newFakeRecords(), "https://api.example.com///")
	if u.BaseURL() != "https://api.example.com" {
		t.Fatalf("BaseURL = %q", u.BaseURL())
	}
}
