// Package changes tracks file mutations made by the assistant so each
// one can later be accepted, rejected, or dismissed. Every tracked
// mutation keeps at most one backup of the file's pre-conversation
// state on disk; rejecting restores from that backup, accepting or
// dismissing discards it.
package changes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	diff "github.com/shogoki/gotextdiff"
	"go.uber.org/zap"

	"github.com/loftlabs/loft/internal/fsutil"
)

// ChangeType describes the net effect of a tracked mutation relative
// to the file's state before the assistant touched it.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeModify ChangeType = "modify"
	ChangeDelete ChangeType = "delete"
)

// PendingChange is one reversible mutation awaiting a user decision.
type PendingChange struct {
	ID         string     `json:"id"`
	Type       ChangeType `json:"type"`
	FilePath   string     `json:"filePath"`
	BackupPath string     `json:"backupPath,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// EntryError reports a single entry that failed during a bulk operation.
type EntryError struct {
	ID       string `json:"id"`
	FilePath string `json:"filePath"`
	Message  string `json:"message"`
}

// BulkResult summarizes a bulk accept, reject, or dismiss.
type BulkResult struct {
	Succeeded []string     `json:"succeeded"`
	Failed    []EntryError `json:"failed"`
}

// Publisher receives the full pending list after every state transition.
type Publisher func([]PendingChange)

// ErrNotFound is returned when no pending change has the given ID.
var ErrNotFound = errors.New("pending change not found")

// Tracker owns the pending-change ledger for one project.
type Tracker struct {
	mu        sync.Mutex
	backupDir string
	entries   map[string]*PendingChange
	byPath    map[string]string // file path -> entry ID
	order     []string          // entry IDs in record order
	publish   Publisher
	log       *zap.SugaredLogger
}

// indexFile is the on-disk ledger index, written next to the backups so
// pending changes survive the process that recorded them.
const indexFile = "pending.json"

// NewTracker creates a tracker whose backups live under backupDir and
// loads any ledger persisted there by an earlier process. The directory
// is created lazily on first Record.
func NewTracker(backupDir string, log *zap.SugaredLogger) *Tracker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	t := &Tracker{
		backupDir: backupDir,
		entries:   make(map[string]*PendingChange),
		byPath:    make(map[string]string),
		log:       log,
	}
	t.loadIndex()
	return t
}

func (t *Tracker) indexPath() string {
	return filepath.Join(t.backupDir, indexFile)
}

func (t *Tracker) loadIndex() {
	data, err := os.ReadFile(t.indexPath())
	if err != nil {
		if !os.IsNotExist(err) {
			t.log.Warnw("failed to read pending-change index", "path", t.indexPath(), "error", err)
		}
		return
	}
	var persisted []PendingChange
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.log.Warnw("ignoring corrupt pending-change index", "path", t.indexPath(), "error", err)
		return
	}
	for i := range persisted {
		entry := persisted[i]
		t.entries[entry.ID] = &entry
		t.byPath[entry.FilePath] = entry.ID
		t.order = append(t.order, entry.ID)
	}
}

// saveLocked persists the ledger. An empty ledger removes the index
// file so a resolved project leaves nothing behind under .loft.
func (t *Tracker) saveLocked() error {
	if len(t.order) == 0 {
		if err := os.Remove(t.indexPath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove pending-change index: %w", err)
		}
		return nil
	}
	data, err := json.MarshalIndent(t.snapshotLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode pending-change index: %w", err)
	}
	if err := os.MkdirAll(t.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := fsutil.AtomicWriteFile(t.indexPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write pending-change index: %w", err)
	}
	return nil
}

func (t *Tracker) removeLocked(id string) {
	entry, ok := t.entries[id]
	if !ok {
		return
	}
	delete(t.entries, id)
	delete(t.byPath, entry.FilePath)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// SetPublisher registers the callback invoked with the full pending
// list after every state transition.
func (t *Tracker) SetPublisher(fn Publisher) {
	t.mu.Lock()
	t.publish = fn
	t.mu.Unlock()
}

// Record registers a mutation about to be applied to filePath and, for
// files that already exist, durably backs up the current content first.
// Callers must invoke Record before touching the file; the mutation may
// only proceed once Record returns nil.
//
// A second mutation to an already-tracked path extends the existing
// entry: the original backup is kept untouched and only the net-effect
// type and timestamp are updated, so each file has at most one live
// backup per conversation.
func (t *Tracker) Record(op ChangeType, filePath string) (err error) {
	t.mu.Lock()
	defer func() {
		if err != nil {
			t.mu.Unlock()
			return
		}
		snapshot := t.snapshotLocked()
		publish := t.publish
		t.mu.Unlock()
		if publish != nil {
			publish(snapshot)
		}
	}()

	if id, ok := t.byPath[filePath]; ok {
		entry := t.entries[id]
		if entry.Type == ChangeCreate && op == ChangeDelete {
			// Deleting a file the assistant itself created nets out
			// to no change; the entry is dropped.
			t.removeLocked(id)
			return t.saveLocked()
		}
		if entry.Type != ChangeCreate {
			if op == ChangeDelete {
				entry.Type = ChangeDelete
			} else {
				entry.Type = ChangeModify
			}
		}
		entry.Timestamp = time.Now()
		return t.saveLocked()
	}

	entry := &PendingChange{
		ID:        uuid.NewString(),
		FilePath:  filePath,
		Timestamp: time.Now(),
	}

	content, readErr := os.ReadFile(filePath)
	switch {
	case os.IsNotExist(readErr):
		entry.Type = ChangeCreate
	case readErr != nil:
		return fmt.Errorf("failed to read %s for backup: %w", filePath, readErr)
	default:
		if op == ChangeDelete {
			entry.Type = ChangeDelete
		} else {
			entry.Type = ChangeModify
		}
		if err := os.MkdirAll(t.backupDir, 0755); err != nil {
			return fmt.Errorf("failed to create backup directory: %w", err)
		}
		backupPath := filepath.Join(t.backupDir, entry.ID+".bak")
		mode := fsutil.FileMode(filePath, 0644)
		if err := fsutil.AtomicWriteFile(backupPath, content, mode); err != nil {
			return fmt.Errorf("failed to back up %s: %w", filePath, err)
		}
		entry.BackupPath = backupPath
	}

	t.entries[entry.ID] = entry
	t.byPath[filePath] = entry.ID
	t.order = append(t.order, entry.ID)
	if serr := t.saveLocked(); serr != nil {
		t.removeLocked(entry.ID)
		return serr
	}
	t.log.Debugw("recorded pending change", "id", entry.ID, "type", entry.Type, "path", filePath)
	return nil
}

// List returns pending changes in the order they were first recorded.
func (t *Tracker) List() []PendingChange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Get returns the pending change with the given ID.
func (t *Tracker) Get(id string) (PendingChange, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[id]
	if !ok {
		return PendingChange{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *entry, nil
}

// Count returns the number of pending changes.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Accept keeps the mutation on disk and discards the backup.
// Accepting twice is not an error beyond the second call reporting
// ErrNotFound; the file itself is never touched.
func (t *Tracker) Accept(id string) error {
	return t.resolve(id, func(entry *PendingChange) error {
		if entry.BackupPath != "" {
			if err := os.Remove(entry.BackupPath); err != nil && !os.IsNotExist(err) {
				t.log.Warnw("failed to remove backup after accept", "id", entry.ID, "error", err)
			}
		}
		return nil
	})
}

// Reject undoes the mutation: a created file is deleted, a modified or
// deleted file is restored from its backup. The entry stays pending if
// the restore fails, so the user can retry or dismiss it.
func (t *Tracker) Reject(id string) error {
	return t.resolve(id, func(entry *PendingChange) error {
		if entry.Type == ChangeCreate {
			if err := os.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove created file %s: %w", entry.FilePath, err)
			}
			return nil
		}

		content, err := os.ReadFile(entry.BackupPath)
		if err != nil {
			return fmt.Errorf("failed to read backup for %s: %w", entry.FilePath, err)
		}
		if err := os.MkdirAll(filepath.Dir(entry.FilePath), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", entry.FilePath, err)
		}
		if err := fsutil.AtomicWriteFile(entry.FilePath, content, fsutil.FileMode(entry.BackupPath, 0644)); err != nil {
			return fmt.Errorf("failed to restore %s: %w", entry.FilePath, err)
		}
		if err := os.Remove(entry.BackupPath); err != nil && !os.IsNotExist(err) {
			t.log.Warnw("failed to remove backup after reject", "id", entry.ID, "error", err)
		}
		return nil
	})
}

// Dismiss drops the entry without touching the file. The backup is
// removed on a best-effort basis; a leftover backup file is harmless.
func (t *Tracker) Dismiss(id string) error {
	return t.resolve(id, func(entry *PendingChange) error {
		if entry.BackupPath != "" {
			if err := os.Remove(entry.BackupPath); err != nil && !os.IsNotExist(err) {
				t.log.Warnw("failed to remove backup after dismiss", "id", entry.ID, "error", err)
			}
		}
		return nil
	})
}

// AcceptAll resolves every pending change via Accept.
func (t *Tracker) AcceptAll() BulkResult { return t.resolveAll(t.Accept) }

// RejectAll resolves every pending change via Reject. Entries whose
// restore fails are reported in the result and stay pending.
func (t *Tracker) RejectAll() BulkResult { return t.resolveAll(t.Reject) }

// DismissAll drops every pending change without touching any files.
func (t *Tracker) DismissAll() BulkResult { return t.resolveAll(t.Dismiss) }

// Diff returns a unified diff from the file's pre-conversation state to
// its current on-disk content.
func (t *Tracker) Diff(id string) (string, error) {
	entry, err := t.Get(id)
	if err != nil {
		return "", err
	}

	var oldContent []byte
	if entry.BackupPath != "" {
		oldContent, err = os.ReadFile(entry.BackupPath)
		if err != nil {
			return "", fmt.Errorf("failed to read backup for %s: %w", entry.FilePath, err)
		}
	}

	newContent, err := os.ReadFile(entry.FilePath)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read %s: %w", entry.FilePath, err)
	}

	return string(diff.Diff(entry.FilePath, oldContent, entry.FilePath, newContent)), nil
}

// resolve runs action on the entry, then removes it from the ledger and
// publishes the updated list. On action failure the entry is retained.
func (t *Tracker) resolve(id string, action func(*PendingChange) error) error {
	t.mu.Lock()
	entry, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := action(entry); err != nil {
		t.mu.Unlock()
		return err
	}

	t.removeLocked(id)
	if err := t.saveLocked(); err != nil {
		t.log.Warnw("failed to persist pending-change ledger", "id", id, "error", err)
	}

	snapshot := t.snapshotLocked()
	publish := t.publish
	t.mu.Unlock()
	if publish != nil {
		publish(snapshot)
	}
	return nil
}

func (t *Tracker) resolveAll(resolve func(string) error) BulkResult {
	t.mu.Lock()
	ids := make([]string, len(t.order))
	copy(ids, t.order)
	paths := make(map[string]string, len(ids))
	for _, id := range ids {
		paths[id] = t.entries[id].FilePath
	}
	t.mu.Unlock()

	var result BulkResult
	for _, id := range ids {
		if err := resolve(id); err != nil {
			result.Failed = append(result.Failed, EntryError{
				ID:       id,
				FilePath: paths[id],
				Message:  err.Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}

func (t *Tracker) snapshotLocked() []PendingChange {
	out := make([]PendingChange, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.entries[id])
	}
	return out
}
