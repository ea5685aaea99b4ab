package receipts

import (
	"context"
	"time"

	"receipt-drop/internal/blob"
	"receipt-drop/internal/logging"
)

// WalkableBlobStore is a BlobStore that can enumerate its objects.
type WalkableBlobStore interface {
	BlobStore
	Walk(ctx context.Context, fn func(blob.Entry) error) error
}

// SweeperConfig holds configuration for the orphan sweeper.
type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
	MaxAge   time.Duration
}

// Sweeper deletes stored files that no record references. Only files older
// than MaxAge are considered so in-flight uploads are never touched.
type Sweeper struct {
	cfg     SweeperConfig
	blobs   WalkableBlobStore
	records RecordStore
	now     func() time.Time
}

// NewSweeper creates a Sweeper over the given stores.
func NewSweeper(cfg SweeperConfig, blobs WalkableBlobStore, records RecordStore) *Sweeper {
	return &Sweeper{cfg: cfg, blobs: blobs, records: records, now: time.Now}
}

// Start runs a sweep immediately and then on every interval until ctx is
// cancelled. It returns at once when the sweeper is disabled.
func (s *Sweeper) Start(ctx context.Context) {
	log := logging.FromContext(ctx).With("service", "sweeper")
	if !s.cfg.Enabled {
		log.InfoContext(ctx, "disabled")
		return
	}

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	log.InfoContext(ctx, "starting", "interval", interval.String(), "max_age", s.cfg.MaxAge.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "shutting_down")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Sweeper) runLogged(ctx context.Context) {
	if _, err := s.Run(ctx); err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "sweep failed", "service", "sweeper", "error", err)
	}
}

// Run performs one sweep and returns how many orphaned files were deleted.
// Errors on individual files are logged and skipped.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	log := logging.FromContext(ctx).With("service", "sweeper")
	start := s.now()
	cutoff := start.Add(-s.cfg.MaxAge)

	deleted := 0
	err := s.blobs.Walk(ctx, func(e blob.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.ModTime.Before(cutoff) {
			return nil
		}

		referenced, err := s.records.HasObject(ctx, e.Key)
		if err != nil {
			log.WarnContext(ctx, "lookup failed", "key", e.Key, "error", err)
			return nil
		}
		if referenced {
			return nil
		}

		log.InfoContext(ctx, "deleting orphaned file", "key", e.Key, "age", start.Sub(e.ModTime).String())
		if err := s.blobs.Delete(ctx, e.Key); err != nil {
			log.WarnContext(ctx, "delete failed", "key", e.Key, "error", err)
			return nil
		}
		deleted++
		return nil
	})

	log.InfoContext(ctx, "sweep complete", "deleted", deleted, "duration_ms", s.now().Sub(start).Milliseconds())
	return deleted, err
}
