package receipts

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// timestampLayout is ISO-8601 with millisecond precision, as produced by
// JavaScript's toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Partition returns the UTC year and zero-padded month a file uploaded at t
// is stored under.
func Partition(t time.Time) (year, month string) {
	t = t.UTC()
	return fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month()))
}

// StoredName builds the on-disk name for an upload: a filesystem-safe
// timestamp, a random token and the sanitised original name.
func StoredName(t time.Time, token, original string) string {
	ts := t.UTC().Format(timestampLayout)
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	if token != "" {
		ts += "-" + token
	}
	return ts + "_" + SanitizeFilename(original)
}

// ObjectKey is the slash-separated key of a stored file below the storage
// root: <yyyy>/<mm>/<name>.
func ObjectKey(t time.Time, name string) string {
	year, month := Partition(t)
	return path.Join(year, month, name)
}

// FileURL returns the public URL of the object at key.
func FileURL(baseURL, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(baseURL, "/") + "/uploads/" + strings.Join(segments, "/")
}

// SanitizeFilename removes path separators and control bytes from a client
// file name and bounds its length.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "\x00", "")
	filename = strings.Trim(filename, " .")

	if len(filename) > 200 {
		ext := filepath.Ext(filename)
		if len(ext) > 20 {
			ext = ""
		}
		filename = filename[:200-len(ext)] + ext
	}

	if filename == "" {
		filename = "unnamed"
	}
	return filename
}
