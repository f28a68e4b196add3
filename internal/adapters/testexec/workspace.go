package testexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nightlyone/lockfile"
)

const (
	workspacePrefix = "healwright-"
	lockFileName    = ".healwright.lock"
	repoDirName     = "repo"
)

// workspace is a per-job scratch directory. The lock file marks it as in use so the reaper never
// removes a workspace whose owner is still alive.
type workspace struct {
	root string
	lock lockfile.Lockfile
}

func (w *workspace) repoDir() string { return filepath.Join(w.root, repoDirName) }

func newWorkspace(baseDir, jobID string) (*workspace, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace base: %w", err)
	}
	root, err := os.MkdirTemp(baseDir, workspacePrefix+sanitizeID(jobID)+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("resolve workspace path: %w", err)
	}

	lock, err := lockfile.New(filepath.Join(root, lockFileName))
	if err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("create workspace lock: %w", err)
	}
	if err := lock.TryLock(); err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("lock workspace: %w", err)
	}
	return &workspace{root: root, lock: lock}, nil
}

// release unlocks and removes the workspace.
func (w *workspace) release() error {
	unlockErr := w.lock.Unlock()
	if err := os.RemoveAll(w.root); err != nil {
		return errors.Join(unlockErr, fmt.Errorf("remove workspace: %w", err))
	}
	return nil
}

func sanitizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		}
	}
	if len(out) > 36 {
		out = out[:36]
	}
	return string(out)
}

// Cleaner removes workspaces left behind by crashed workers.
type Cleaner struct {
	BaseDir string
}

// CleanOrphans removes workspace directories under BaseDir whose lock is free (or whose owner
// died) and that are older than maxAge. Symlinks and non-directories are never touched.
func (c Cleaner) CleanOrphans(ctx context.Context, maxAge time.Duration) (int64, error) {
	matches, err := filepath.Glob(filepath.Join(c.BaseDir, workspacePrefix+"*"))
	if err != nil {
		return 0, fmt.Errorf("list workspaces: %w", err)
	}

	var removed int64
	for _, dir := range matches {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		info, err := os.Lstat(dir)
		if err != nil || info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
			continue
		}
		if time.Since(info.ModTime()) < maxAge {
			continue
		}
		if !lockReleased(dir) {
			continue
		}
		if err := os.RemoveAll(dir); err == nil {
			removed++
		}
	}
	return removed, nil
}

// lockReleased reports whether the workspace owner is gone. A missing lock file counts as released
// once the age threshold passed. A lock held by this process is live: workers and the reaper share it.
func lockReleased(dir string) bool {
	path, err := filepath.Abs(filepath.Join(dir, lockFileName))
	if err != nil {
		return false
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return true
	}
	lock, err := lockfile.New(path)
	if err != nil {
		return false
	}
	_, err = lock.GetOwner()
	return errors.Is(err, lockfile.ErrDeadOwner) || errors.Is(err, lockfile.ErrInvalidPid)
}
