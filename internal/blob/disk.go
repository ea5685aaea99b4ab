package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore keeps objects as files below a root directory. Keys map to
// relative paths, so "2024/03/x.pdf" is stored at <root>/2024/03/x.pdf.
type DiskStore struct {
	root string
}

// NewDiskStore creates root if needed and returns a store over it.
func NewDiskStore(root string) (*DiskStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{root: abs}, nil
}

// Root returns the absolute storage root.
func (d *DiskStore) Root() string { return d.root }

// Location implements Store.
func (d *DiskStore) Location() string { return d.root }

func (d *DiskStore) pathFor(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(cleaned)), nil
}

// Put writes r to the file for key, creating parent directories. An
// existing file is never overwritten. A partially written file is removed.
func (d *DiskStore) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	p, err := d.pathFor(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(p)
		return "", fmt.Errorf("close file: %w", err)
	}
	return p, nil
}

// Delete removes the file for key. Deleting a missing key is not an error.
func (d *DiskStore) Delete(_ context.Context, key string) error {
	p, err := d.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Open opens the file for key. The content type is guessed from the file
// extension.
func (d *DiskStore) Open(_ context.Context, key string) (*Object, error) {
	p, err := d.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, ErrNotExist
	}

	cleaned, _ := CleanKey(key)
	return &Object{
		ReadSeekCloser: f,
		Entry:          Entry{Key: cleaned, Size: info.Size(), ModTime: info.ModTime()},
		ContentType:    mime.TypeByExtension(strings.ToLower(filepath.Ext(p))),
	}, nil
}

// Walk calls fn for every stored file. Returning an error from fn stops the
// walk.
func (d *DiskStore) Walk(ctx context.Context, fn func(Entry) error) error {
	return filepath.WalkDir(d.root, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if de.IsDir() {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		return fn(Entry{Key: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
	})
}

// Ping checks that the root exists and is a directory.
func (d *DiskStore) Ping(_ context.Context) error {
	info, err := os.Stat(d.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("upload dir %s is not a directory", d.root)
	}
	return nil
}
