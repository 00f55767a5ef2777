package stitch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Workspace is the per-request staging directory. Every file handed out by Track
// is removed by Release, whichever path the request took.
type Workspace struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	paths    []string
	released bool
}

// NewWorkspace creates <root>/<id>. An empty root uses the system temp directory.
func NewWorkspace(root, id string, logger *slog.Logger) (*Workspace, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "clipstitch")
	}
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return &Workspace{dir: dir, logger: logger}, nil
}

func (w *Workspace) Dir() string { return w.dir }

// Track registers name for removal and returns its path inside the workspace.
func (w *Workspace) Track(name string) string {
	p := filepath.Join(w.dir, name)
	w.mu.Lock()
	w.paths = append(w.paths, p)
	w.mu.Unlock()
	return p
}

// Release deletes tracked files and the workspace directory. It is safe to call
// more than once and never fails; problems are logged.
func (w *Workspace) Release() {
	w.mu.Lock()
	if w.released {
		w.mu.Unlock()
		return
	}
	w.released = true
	paths := w.paths
	w.mu.Unlock()

	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			w.logger.Warn("failed to remove staged file", "path", p, "error", err)
		}
	}
	if err := os.RemoveAll(w.dir); err != nil {
		w.logger.Warn("failed to remove workspace", "dir", w.dir, "error", err)
	}
	w.logger.Debug("workspace released", "dir", w.dir, "files_removed", removed)
}
