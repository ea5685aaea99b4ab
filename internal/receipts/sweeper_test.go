package receipts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSweeper_Run(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	blobs, records := newFakeBlobs(), newFakeRecords()
	ctx := context.Background()

	put := func(key string, age time.Duration) {
		blobs.now = func() time.Time { return now.Add(-age) }
		if _, err := blobs.Put(ctx, key, strings.NewReader("x"), 1, ""); err != nil {
			t.Fatal(err)
		}
	}
	put("2024/03/old-orphan.pdf", 48*time.Hour)
	put("2024/03/old-referenced.pdf", 48*time.Hour)
	put("2024/03/new-orphan.pdf", time.Minute)

	records.records["r1"] = Receipt{ID: "r1", ObjectKey: "2024/03/old-referenced.pdf"}

	s := NewSweeper(SweeperConfig{Enabled: true, Interval: time.Hour, MaxAge: 24 * time.Hour}, blobs, records)
	s.now = func() time.Time { return now }

	deleted, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if blobs.has("2024/03/old-orphan.pdf") {
		t.Error("old orphan not deleted")
	}
	if !blobs.has("2024/03/old-referenced.pdf") {
		t.Error("referenced file deleted")
	}
	if !blobs.has("2024/03/new-orphan.pdf") {
		t.Error("young file deleted")
	}
}

func TestSweeper_LookupErrorSkipsFile(t *testing.T) {
	now := time.Now()
	blobs, records := newFakeBlobs(), newFakeRecords()
	blobs.now = func() time.Time { return now.Add(-72 * time.Hour) }
	if _, err := blobs.Put(context.Background(), "2024/01/a.pdf", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatal(err)
	}
	records.lookupErr = &ConnectivityError{Err: errors.New("down")}

	s := NewSweeper(SweeperConfig{Enabled: true, MaxAge: time.Hour}, blobs, records)
	deleted, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if deleted != 0 || !blobs.has("2024/01/a.pdf") {
		t.Fatal("file deleted although its reference could not be checked")
	}
}

func TestSweeper_DisabledReturnsImmediately(t *testing.T) {
	s := NewSweeper(SweeperConfig{Enabled: false}, newFakeBlobs(), newFakeRecords())

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return for a disabled sweeper")
	}
}

func TestSweeper_StartStopsOnCancel(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	if _, err := blobs.Put(context.Background(), "2024/01/orphan.pdf", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatal(err)
	}

	s := NewSweeper(SweeperConfig{Enabled: true, Interval: time.Hour, MaxAge: time.Hour}, blobs, newFakeRecords())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	// The first sweep runs immediately.
	deadline := time.Now().Add(time.Second)
	for blobs.has("2024/01/orphan.pdf") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if blobs.has("2024/01/orphan.pdf") {
		t.Fatal("initial sweep did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
