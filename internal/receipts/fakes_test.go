package receipts

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"receipt-drop/internal/blob"
)

type fakeBlob struct {
	data    []byte
	modTime time.Time
}

// fakeBlobs is an in-memory WalkableBlobStore.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string]fakeBlob
	now     func() time.Time

	putErr    error
	deleteErr error
	deleted   []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string]fakeBlob{}, now: time.Now}
}

func (f *fakeBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.objects[key]; exists {
		return "", errors.New("object exists")
	}
	f.objects[key] = fakeBlob{data: data, modTime: f.now()}
	return "/uploads/" + key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) Walk(ctx context.Context, fn func(blob.Entry) error) error {
	f.mu.Lock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]blob.Entry, 0, len(keys))
	for _, k := range keys {
		o := f.objects[k]
		entries = append(entries, blob.Entry{Key: k, Size: int64(len(o.data)), ModTime: o.modTime})
	}
	f.mu.Unlock()

	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (f *fakeBlobs) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// fakeRecords is an in-memory RecordStore.
type fakeRecords struct {
	mu      sync.Mutex
	records map[string]Receipt

	insertErr error
	lookupErr error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: map[string]Receipt{}}
}

func (f *fakeRecords) Insert(_ context.Context, r *Receipt) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[r.ID] = *r
	return nil
}

func (f *fakeRecords) Get(_ context.Context, id string) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (f *fakeRecords) List(context.Context, ListQuery) ([]Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Receipt, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRecords) HasObject(_ context.Context, key string) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ObjectKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRecords) Ping(context.Context) error { return nil }

func (f *fakeRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}
