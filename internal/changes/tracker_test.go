package changes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	dir := t.TempDir()
	tracker := NewTracker(filepath.Join(dir, ".loft", "backups"), nil)
	return tracker, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRecordBacksUpExistingFile(t *testing.T) {
	tracker, dir := newTestTracker(t)
	path := filepath.Join(dir, "main.go")
	writeFile(t, path, "original\n")

	if err := tracker.Record(ChangeModify, path); err != nil {
		t.Fatalf("Record: %v", err)
	}

	list := tracker.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 pending change, got %d", len(list))
	}
	entry := list[0]
	if entry.Type != ChangeModify {
		t.Errorf("expected type modify, got %s", entry.Type)
	}
	backup, err := os.ReadFile(entry.BackupPath)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != "original\n" {
		t.Errorf("backup content = %q, want %q", backup, "original\n")
	}
}

func TestRejectRestoresOriginalContent(t *testing.T) {
	tracker, dir := newTestTracker(t)
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "before\n")

	if err := tracker.Record(ChangeModify, path); err != nil {
		t.Fatalf("Record: %v", err)
	}
	writeFile(t, path, "after\n")

	entry := tracker.List()[0]
	if err := tracker.Reject(entry.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != "before\n" {
		t.Errorf("file content = %q, want %q", got, "before\n")
	}
	if tracker.Count() != 0 {
		t.Errorf("expected empty ledger after reject, got %d entries", tracker.Count())
	}
	if _, err := os.Stat(entry.BackupPath); !os.IsNotExist(err) {
		t.Errorf("backup should be removed after reject")
	}
}

func TestRejectCreateDeletesFile(t *testing.T) {
	tracker, dir := newTestTracker(t)
	path := filepath.Join(dir, "new.txt")

	if err := tracker.Record(ChangeCreate, path); err != nil {
		t.Fatalf("Record: %v", err)
	}
	writeFile(t, path, "fresh content\n")

	entry := tracker.List()[0]
	if entry.Type != ChangeCreate {
		t.Fatalf("expected type create, got %s", entry.Type)
	}
	if entry.BackupPath != "" {
		t.Fatalf("create entries should carry no backup, got %s", entry.BackupPath)
	}

	if err := tracker.Reject(entry.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("created file should be deleted after reject")
	}
}

func TestAcceptDiscardsBackupAndKeepsFile(t *testing.T) {
	tracker, dir := newTestTracker(t)
	path := filepath.Join(dir, "notes.md")
	writeFile(t, path, "v1\n")

	if err := tracker.Record(ChangeModify, path); err != nil {
		t.Fatalf("Record: %v", err)
	}
	writeFile(t, path, "v2\n")

	entry := tracker.List()[0]
	if err := tracker.Accept(entry.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "v2\n" {
		t.Errorf("accept must not touch the file, got %q", got)
	}
	if _, err := os.Stat(entry.BackupPath); !os.IsNotExist(err) {
		t.Errorf("backup should be removed after accept")
	}

	// Second resolution of the same ID reports not found.
	if err := tracker.Accept(entry.ID); err == nil {
		t.Errorf("expected error accepting an already-resolved change")
	}
}

func TestSecondMutationExtendsExistingEntry(t *testing.T) {
	tracker, dir := newTestTracker(t)
	path := filepath.Join(dir, "app.go")
	writeFile(t, path, "original\n")

	if err := tracker.Record(ChangeModify, path); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	first := tracker.List()[0]

	writeFile(t, path, "edited once\n")
	if err := tracker.Record(ChangeModify, path); err != nil {
		t.Fatalf("second Record: %v", err)
	}

	list := tracker.List()
	if len(list) != 1 {
		t.Fatalf("expected single entry after second mutation, got %d", len(list))
	}
	if list[0].ID != first.ID {
		t.Errorf("second mutation should reuse entry %s, got %s", first.ID, list[0].ID)
	}
	if list[0].BackupPath != first.BackupPath {
		t.Errorf("second mutation must not replace the backup")
	}

	backup, err := os.ReadFile(list[0].BackupPath)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != "original\n" {
		t.Errorf("backup = %q, want the pre-conversation content", backup)
	}

	// Rejecting after two mutations restores the original state.
	writeFile(t, path, "edited twice\n")
	if err := tracker.Reject(first.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "original\n" {
		t.Errorf("reject restored %q, want %q", got, "original\n")
	}
}

func TestDeleteAfterModifyBecomesDelete(t *testing.T) {
	tracker, dir := newTestTracker(t)
	path := filepath.Join(dir, "old.txt")
	writeFile(t, path, "keep me\n")

	if err := tracker.Record(ChangeModify, path); err != nil {
		t.Fatalf("Record modify: %v", err)
	}
	writeFile(t, path, "changed\n")
	if err := tracker.Record(ChangeDelete, path); err != nil {
		t.Fatalf("Record delete: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	entry := tracker.List()[0]
	if entry.Type != ChangeDelete {
		t.Fatalf("expected net type delete, got %s", entry.Type)
	}

	if err := tracker.Reject(entry.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("deleted file should be restored: %v", err)
	}
	if string(got) != "keep me\n" {
		t.Errorf("restored content = %q, want %q", got, "keep me\n")
	}
}

func TestDismissKeepsFileOnDisk(t *testing.T) {
	tracker, dir := newTestTracker(t)
	path := filepath.Join(dir, "data.json")
	writeFile(t, path, "{}\n")

	if err := tracker.Record(ChangeModify, path); err != nil {
		t.Fatalf("Record: %v", err)
	}
	writeFile(t, path, "{\"a\":1}\n")

	entry := tracker.List()[0]
	if err := tracker.Dismiss(entry.ID); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "{\"a\":1}\n" {
		t.Errorf("dismiss must not touch the file, got %q", got)
	}
	if tracker.Count() != 0 {
		t.Errorf("expected empty ledger after dismiss")
	}
}

func TestRejectWithMissingBackupKeepsEntry(t *testing.T) {
	tracker, dir := newTestTracker(t)
	path := filepath.Join(dir, "broken.txt")
	writeFile(t, path, "content\n")

	if err := tracker.Record(ChangeModify, path); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entry := tracker.List()[0]
	if err := os.Remove(entry.BackupPath); err != nil {
		t.Fatalf("remove backup: %v", err)
	}

	if err := tracker.Reject(entry.ID); err == nil {
		t.Fatalf("expected error when backup is missing")
	}
	if tracker.Count() != 1 {
		t.Errorf("entry should stay pending after a failed reject")
	}
}

func TestBulkRejectReportsPerEntryFailures(t *testing.T) {
	tracker, dir := newTestTracker(t)

	good := filepath.Join(dir, "good.txt")
	bad := filepath.Join(dir, "bad.txt")
	writeFile(t, good, "good v1\n")
	writeFile(t, bad, "bad v1\n")

	for _, p := range []string{good, bad} {
		if err := tracker.Record(ChangeModify, p); err != nil {
			t.Fatalf("Record %s: %v", p, err)
		}
	}
	writeFile(t, good, "good v2\n")
	writeFile(t, bad, "bad v2\n")

	for _, e := range tracker.List() {
		if e.FilePath == bad {
			if err := os.Remove(e.BackupPath); err != nil {
				t.Fatalf("remove backup: %v", err)
			}
		}
	}

	result := tracker.RejectAll()
	if len(result.Succeeded) != 1 {
		t.Errorf("expected 1 success, got %d", len(result.Succeeded))
	}
	if len(result.Failed) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(result.Failed))
	}
	if result.Failed[0].FilePath != bad {
		t.Errorf("failure should name %s, got %s", bad, result.Failed[0].FilePath)
	}

	got, _ := os.ReadFile(good)
	if string(got) != "good v1\n" {
		t.Errorf("good file should be restored, got %q", got)
	}
	if tracker.Count() != 1 {
		t.Errorf("failed entry should remain pending, got %d entries", tracker.Count())
	}
}

func TestDiffShowsOldAndNewContent(t *testing.T) {
	tracker, dir := newTestTracker(t)
	path := filepath.Join(dir, "doc.txt")
	writeFile(t, path, "line one\nline two\n")

	if err := tracker.Record(ChangeModify, path); err != nil {
		t.Fatalf("Record: %v", err)
	}
	writeFile(t, path, "line one\nline 2\n")

	entry := tracker.List()[0]
	out, err := tracker.Diff(entry.ID)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !strings.Contains(out, "-line two") || !strings.Contains(out, "+line 2") {
		t.Errorf("diff missing expected hunks:\n%s", out)
	}
}

func TestPublisherSeesEveryTransition(t *testing.T) {
	tracker, dir := newTestTracker(t)
	var published [][]PendingChange
	tracker.SetPublisher(func(list []PendingChange) {
		published = append(published, list)
	})

	path := filepath.Join(dir, "w.txt")
	writeFile(t, path, "one\n")
	if err := tracker.Record(ChangeModify, path); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entry := tracker.List()[0]
	if err := tracker.Accept(entry.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if len(published) != 2 {
		t.Fatalf("expected 2 publications, got %d", len(published))
	}
	if len(published[0]) != 1 || len(published[1]) != 0 {
		t.Errorf("publications should reflect ledger state: %d then %d entries",
			len(published[0]), len(published[1]))
	}
}

func TestLedgerSurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, ".loft", "backups")
	path := filepath.Join(dir, "app.go")
	writeFile(t, path, "original\n")

	first := NewTracker(backupDir, nil)
	if err := first.Record(ChangeModify, path); err != nil {
		t.Fatalf("Record: %v", err)
	}
	writeFile(t, path, "mutated\n")

	// A fresh tracker over the same backup dir stands in for a new
	// process reviewing the changes later.
	second := NewTracker(backupDir, nil)
	list := second.List()
	if len(list) != 1 {
		t.Fatalf("reloaded tracker sees %d pending changes, want 1", len(list))
	}
	if list[0].FilePath != path || list[0].Type != ChangeModify {
		t.Errorf("reloaded entry = %+v", list[0])
	}

	if err := second.Reject(list[0].ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "original\n" {
		t.Errorf("content = %q, want restored original", got)
	}
	if _, err := os.Stat(filepath.Join(backupDir, indexFile)); !os.IsNotExist(err) {
		t.Errorf("empty ledger should remove the index file, stat err = %v", err)
	}
}

func TestResolvedEntryStaysResolvedAfterRestart(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, ".loft", "backups")
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "a\n")
	writeFile(t, b, "b\n")

	first := NewTracker(backupDir, nil)
	if err := first.Record(ChangeModify, a); err != nil {
		t.Fatalf("Record a: %v", err)
	}
	if err := first.Record(ChangeModify, b); err != nil {
		t.Fatalf("Record b: %v", err)
	}
	if err := first.Accept(first.List()[0].ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	second := NewTracker(backupDir, nil)
	list := second.List()
	if len(list) != 1 {
		t.Fatalf("reloaded tracker sees %d pending changes, want 1", len(list))
	}
	if list[0].FilePath != b {
		t.Errorf("surviving entry = %s, want %s", list[0].FilePath, b)
	}
}

func TestCreateThenDeleteClearsEntry(t *testing.T) {
	tracker, dir := newTestTracker(t)
	path := filepath.Join(dir, "scratch.txt")

	if err := tracker.Record(ChangeCreate, path); err != nil {
		t.Fatalf("Record create: %v", err)
	}
	writeFile(t, path, "temporary\n")

	if err := tracker.Record(ChangeDelete, path); err != nil {
		t.Fatalf("Record delete: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if got := tracker.Count(); got != 0 {
		t.Fatalf("create-then-delete should net out to nothing, got %d entries", got)
	}
}

func TestFailedRecordPublishesNothing(t *testing.T) {
	tracker, dir := newTestTracker(t)
	var published int
	tracker.SetPublisher(func([]PendingChange) { published++ })

	// Reading a directory for backup fails, so Record must error out
	// without a ledger transition.
	if err := tracker.Record(ChangeModify, dir); err == nil {
		t.Fatal("expected Record on a directory to fail")
	}
	if published != 0 {
		t.Errorf("publisher fired %d time(s) for a failed Record", published)
	}
	if tracker.Count() != 0 {
		t.Errorf("failed Record left %d entries", tracker.Count())
	}
}
