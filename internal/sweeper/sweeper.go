// Package sweeper removes stale entries from the upload and temp
// directories, independent of per-request cleanup.
package sweeper

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/rmitchellscott/nixpdf/internal/logging"
)

// Result summarises one pass.
type Result struct {
	Removed int
	Failed  int
	Bytes   int64
}

type Worker struct {
	fs       afero.Fs
	dirs     []string
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}
}

func NewWorker(fs afero.Fs, dirs []string, interval, maxAge time.Duration) *Worker {
	return &Worker{
		fs:       fs,
		dirs:     dirs,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Start runs a pass immediately, then one every interval until Stop.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.run(w.quit, w.done)
}

// Stop ends the loop and waits for an in-progress pass to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.quit)
	done := w.done
	w.mu.Unlock()

	<-done
}

func (w *Worker) run(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	w.RunOnce()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce removes every top-level entry of each directory whose modification
// time is older than maxAge. Directories are removed recursively. Failures
// are logged and skipped.
func (w *Worker) RunOnce() Result {
	var res Result
	cutoff := w.now().Add(-w.maxAge)
	for _, dir := range w.dirs {
		w.sweepDir(dir, cutoff, &res)
	}
	if res.Removed > 0 || res.Failed > 0 {
		logging.Logf("[SWEEP] removed %d stale entries (%s), %d failed",
			res.Removed, humanize.Bytes(uint64(res.Bytes)), res.Failed)
	}
	return res
}

func (w *Worker) sweepDir(dir string, cutoff time.Time, res *Result) {
	entries, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Debugf("[SWEEP] %s does not exist", dir)
			return
		}
		logging.Warnf("[SWEEP] cannot read %s: %v", dir, err)
		return
	}

	for _, fi := range entries {
		if !fi.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, fi.Name())
		size := fi.Size()
		if fi.IsDir() {
			size = w.treeSize(path)
		}
		if err := w.fs.RemoveAll(path); err != nil {
			logging.Warnf("[SWEEP] could not remove %s: %v", path, err)
			res.Failed++
			continue
		}
		res.Removed++
		res.Bytes += size
	}
}

func (w *Worker) treeSize(root string) int64 {
	var total int64
	_ = afero.Walk(w.fs, root, func(_ string, fi os.FileInfo, err error) error {
		if err == nil && !fi.IsDir() {
			total += fi.Size()
		}
		return nil
	})
	return total
}
