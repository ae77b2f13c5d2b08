// Package workspace tracks the scratch files of one request and removes them
// when the request ends.
package workspace

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/rmitchellscott/nixpdf/internal/logging"
	"github.com/rmitchellscott/nixpdf/internal/security"
)

const (
	removeBaseDelay  = 100 * time.Millisecond
	removeMaxRetries = 2
)

// Scope owns every path registered during a request. Release removes all of
// them exactly once, newest first.
type Scope struct {
	tempDir string

	mu       sync.Mutex
	paths    []string
	released bool
}

func NewScope(tempDir string) *Scope {
	return &Scope{tempDir: tempDir}
}

// Track registers path for removal on Release. Paths tracked after Release
// are removed immediately.
func (s *Scope) Track(path string) {
	s.mu.Lock()
	if !s.released {
		s.paths = append(s.paths, path)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if err := Remove(context.Background(), path); err != nil {
		logging.Warnf("[CLEANUP] could not remove late path %q: %v", path, err)
	}
}

// Paths returns a copy of the tracked paths in registration order.
func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// NewPath reserves a unique, tracked path in the temp directory. Nothing is
// created on disk.
func (s *Scope) NewPath(name string) (string, error) {
	path, err := security.SafeJoin(s.tempDir, UniqueName(name))
	if err != nil {
		return "", fmt.Errorf("reserve temp path: %w", err)
	}
	s.Track(path)
	return path, nil
}

// MkdirTemp creates a tracked directory in the temp directory.
func (s *Scope) MkdirTemp(prefix string) (string, error) {
	dir, err := os.MkdirTemp(s.tempDir, prefix+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	s.Track(dir)
	return dir, nil
}

// CreateTemp creates a tracked file in the temp directory.
func (s *Scope) CreateTemp(pattern string) (*os.File, error) {
	f, err := os.CreateTemp(s.tempDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	s.Track(f.Name())
	return f, nil
}

// Release removes every tracked path. It is idempotent, never fails and
// ignores cancellation of ctx so cleanup completes for aborted requests.
func (s *Scope) Release(ctx context.Context) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for i := len(paths) - 1; i >= 0; i-- {
		if err := Remove(ctx, paths[i]); err != nil {
			logging.Warnf("[CLEANUP] could not remove %q: %v", paths[i], err)
		}
	}
}

// Remove deletes a file or directory tree, retrying transient failures with
// a Fibonacci backoff. A path that is already gone counts as removed.
func Remove(ctx context.Context, path string) error {
	backoff := retry.WithMaxRetries(removeMaxRetries, retry.NewFibonacci(removeBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := os.RemoveAll(path); err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

// UniqueName builds "<unix-millis>-<12 hex>-<sanitized name>".
func UniqueName(original string) string {
	id := uuid.New()
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), hex.EncodeToString(id[:6]), security.SanitizeFilename(original))
}

// TempDir is the directory NewPath, MkdirTemp and CreateTemp write into.
func (s *Scope) TempDir() string {
	return filepath.Clean(s.tempDir)
}
