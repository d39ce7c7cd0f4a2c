// Package artifacts persists screenshots and reports produced by a run.
// Keys are slash-separated paths relative to the artifact root, e.g.
// "duplicate-name/03-after-save.png".
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kuitang/modulista-e2e/internal/errs"
)

// Store writes one artifact and returns where it ended up.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// LocalStore writes artifacts below Dir.
type LocalStore struct {
	Dir string
}

// NewLocalStore returns a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir}
}

// Put writes data to Dir/key, creating parent directories as needed.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errs.Wrap(errs.ScreenshotWrite, fmt.Sprintf("create directory for %s", clean), err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", errs.Wrap(errs.ScreenshotWrite, fmt.Sprintf("write %s", clean), err)
	}
	return full, nil
}

// CleanKey normalizes key to a relative slash path that cannot escape the
// artifact root.
func CleanKey(key string) (string, error) {
	k := strings.TrimSpace(strings.ReplaceAll(key, `\`, "/"))
	k = path.Clean("/" + k)
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", errs.New(errs.ScreenshotWrite, fmt.Sprintf("invalid artifact key %q", key))
	}
	return k, nil
}
