// Package store holds client-side state: the document list, the chunk
// search results, and the chat transcript with its settings.
//
// Each piece of state is owned by exactly one store; mutations happen
// only through that store's methods and every read returns a snapshot
// that may be stale until the next mutation. The stores are safe for
// concurrent use, since chat turns and fetch commands run on their own
// goroutines while the dashboard reads. Selected parts of the
// state (transcript, settings, selection) are cached as JSON files in
// a state directory; the cache is a convenience, not a durability
// guarantee, and a corrupt or missing file just resets that store to
// its defaults.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked indicates another process holds the state directory.
var ErrLocked = errors.New("state directory is locked by another instance")

const dirPerm = 0o750

// Dir is a locked state directory shared by the stores. A nil *Dir is
// valid and keeps all state in memory only.
type Dir struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// DefaultPath returns the per-user state directory (~/.ragdeck).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ragdeck"), nil
}

// Open creates the state directory if needed and acquires its lock.
// A second concurrent instance gets ErrLocked rather than silently
// corrupting the shared files.
func Open(path string, logger *slog.Logger) (*Dir, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	lock := flock.New(filepath.Join(path, ".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock state directory: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return &Dir{path: path, lock: lock, logger: logger}, nil
}

// Close releases the directory lock.
func (d *Dir) Close() error {
	if d == nil {
		return nil
	}
	return d.lock.Unlock()
}

// Path returns the directory location.
func (d *Dir) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// load reads a JSON state file into v. A missing file is not an
// error; the caller keeps its defaults.
func (d *Dir) load(name string, v any) error {
	if d == nil {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(d.path, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read state %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		// Corrupt cache: log and start fresh.
		d.logger.Warn("discarding corrupt state file", "file", name, "error", err)
		return nil
	}
	return nil
}

// save writes v as JSON via a temp file and rename, so a crash never
// leaves a half-written state file behind.
func (d *Dir) save(name string, v any) {
	if d == nil {
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		d.logger.Warn("encode state failed", "file", name, "error", err)
		return
	}

	target := filepath.Join(d.path, name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		d.logger.Warn("write state failed", "file", name, "error", err)
		return
	}
	if err := os.Rename(tmp, target); err != nil {
		d.logger.Warn("rename state failed", "file", name, "error", err)
	}
}
