// Package db persists receipt records. MongoDB is the primary backend;
// PostgreSQL, an embedded bbolt file and an in-memory store implement the
// same Store interface and are chosen by the DATABASE_URL scheme.
package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v4"

	"receipt-drop/internal/logging"
	"receipt-drop/internal/receipts"
)

// Store is a receipt record store with a lifecycle.
type Store interface {
	receipts.RecordStore
	// Backend names the store for health output ("mongodb", "postgres", ...).
	Backend() string
	Close(ctx context.Context) error
}

// OpenOptions controls how Open connects.
type OpenOptions struct {
	// ConnectTimeout bounds the total time spent retrying the initial
	// connection. Zero means a single attempt.
	ConnectTimeout time.Duration
	// MongoDatabase overrides the database name taken from a mongodb URL.
	MongoDatabase string
}

// Open connects to the store named by rawURL, retrying network backends
// with exponential backoff until ConnectTimeout elapses.
func Open(ctx context.Context, rawURL string, opts OpenOptions) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "bolt":
		return OpenBolt(boltPath(u))
	case "mongodb", "mongodb+srv":
		return withRetry(ctx, opts.ConnectTimeout, "mongodb", func(ctx context.Context) (Store, error) {
			return OpenMongo(ctx, rawURL, opts.MongoDatabase)
		})
	case "postgres", "postgresql":
		return withRetry(ctx, opts.ConnectTimeout, "postgres", func(ctx context.Context) (Store, error) {
			return OpenPostgres(ctx, rawURL)
		})
	}
	return nil, fmt.Errorf("unsupported database scheme %q", u.Scheme)
}

// boltPath accepts bolt:///abs/path.db and bolt://relative/path.db.
func boltPath(u *url.URL) string {
	if u.Host == "" {
		return u.Path
	}
	return u.Host + u.Path
}

func withRetry(ctx context.Context, timeout time.Duration, backend string, connect func(context.Context) (Store, error)) (Store, error) {
	log := logging.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = timeout

	var policy backoff.BackOff = b
	if timeout <= 0 {
		policy = &backoff.StopBackOff{}
	}

	var store Store
	attempt := 0
	op := func() error {
		attempt++
		log.InfoContext(ctx, "connecting to database", "backend", backend, "attempt", attempt)
		s, err := connect(ctx)
		if err != nil {
			return err
		}
		store = s
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.WarnContext(ctx, "database connection failed, retrying", "backend", backend, "error", err, "retry_in", wait.String())
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, &receipts.ConnectivityError{Err: fmt.Errorf("connect to %s after %d attempt(s): %w", backend, attempt, err)}
	}
	log.InfoContext(ctx, "connected to database", "backend", backend)
	return store, nil
}

// searchTerms splits a free-text query into lower-case word tokens.
func searchTerms(q string) []string {
	return strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// matchesText reports whether any query term appears as a word in the
// indexed fields of r. This mirrors a text index's any-term semantics.
func matchesText(r *receipts.Receipt, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	words := map[string]bool{}
	for _, field := range []string{r.EmployeeName, r.Vendor, r.Description, r.Category} {
		for _, w := range searchTerms(field) {
			words[w] = true
		}
	}
	for _, t := range terms {
		if words[t] {
			return true
		}
	}
	return false
}

func matchesQuery(r *receipts.Receipt, q receipts.ListQuery, terms []string) bool {
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	return matchesText(r, terms)
}
