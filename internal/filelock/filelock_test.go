package filelock

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileLockTryLockExcludesConcurrentHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md.lock")

	first := NewFileLock(path)
	ok, err := first.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected first TryLock to succeed, got ok=%v err=%v", ok, err)
	}
	defer first.Unlock()

	second := NewFileLock(path)
	ok, err = second.TryLock()
	if err != nil {
		t.Fatalf("unexpected error on second TryLock: %v", err)
	}
	if ok {
		t.Fatal("expected second TryLock to fail while first holds the lock")
	}
}

func TestFileLockUnlockReleasesForNextHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md.lock")

	first := NewFileLock(path)
	if err := first.Lock(); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	second := NewFileLock(path)
	ok, err := second.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected lock to be acquirable after release, got ok=%v err=%v", ok, err)
	}
	second.Unlock()
}

func TestWithExclusiveLockRunsFnAndReleases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md.lock")

	ran := false
	if err := WithExclusiveLock(path, func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("WithExclusiveLock failed: %v", err)
	}
	if !ran {
		t.Fatal("expected fn to run")
	}

	lock := NewFileLock(path)
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected lock to be released after WithExclusiveLock returns, got ok=%v err=%v", ok, err)
	}
	lock.Unlock()
}

func TestWithExclusiveLockReleasesOnPanic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md.lock")

	func() {
		defer func() { _ = recover() }()
		_ = WithExclusiveLock(path, func() error {
			panic("boom")
		})
	}()

	lock := NewFileLock(path)
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected lock to be released even after a panic in fn, got ok=%v err=%v", ok, err)
	}
	lock.Unlock()
}

func TestAtomicWriteProducesReadableFileAndCleansUpTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := AtomicWrite(path, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Fatalf("unexpected content: %q", string(got))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "state.json" {
			t.Fatalf("expected no leftover temp file, found %q", e.Name())
		}
	}
}

func TestAtomicWriteWithBackupPreservesPriorContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := AtomicWrite(path, []byte("v1")); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}
	if err := AtomicWriteWithBackup(path, []byte("v2")); err != nil {
		t.Fatalf("AtomicWriteWithBackup failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil || string(got) != "v2" {
		t.Fatalf("expected current content v2, got %q err=%v", string(got), err)
	}
	backup, err := os.ReadFile(path + ".bak")
	if err != nil || string(backup) != "v1" {
		t.Fatalf("expected backup content v1, got %q err=%v", string(backup), err)
	}
}

func TestAtomicWriteWithBackupSkipsBackupWhenNoPriorFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := AtomicWriteWithBackup(path, []byte("v1")); err != nil {
		t.Fatalf("AtomicWriteWithBackup failed: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Fatalf("expected no backup file when none existed before, stat err = %v", err)
	}
}

func TestLockAndWriteWritesUnderDerivedLockPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md")

	if err := LockAndWrite(path, []byte("content")); err != nil {
		t.Fatalf("LockAndWrite failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil || string(got) != "content" {
		t.Fatalf("expected written content, got %q err=%v", string(got), err)
	}

	lock := NewFileLock(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected derived lock file to be released after LockAndWrite, got ok=%v err=%v", ok, err)
	}
	lock.Unlock()
}

func TestFormatAndParseLockContentRoundtrip(t *testing.T) {
	raw := FormatLockContent(1234)
	lc, err := ParseLockContent(raw)
	if err != nil {
		t.Fatalf("ParseLockContent failed: %v", err)
	}
	if lc.PID != 1234 {
		t.Fatalf("expected pid 1234, got %d", lc.PID)
	}
	if time.Since(lc.Timestamp) > 5*time.Second {
		t.Fatalf("expected a recent timestamp, got %v", lc.Timestamp)
	}
}

func TestParseLockContentRejectsMalformedAndOutOfRange(t *testing.T) {
	cases := []string{
		"not-a-lock",
		"abc:123",
		"1234:not-a-timestamp",
		"0:123456",
		"4194305:123456",
		"1234:-1",
	}
	for _, raw := range cases {
		if _, err := ParseLockContent(raw); err == nil {
			t.Errorf("expected %q to be rejected", raw)
		}
	}
}

func TestLockContentIsStale(t *testing.T) {
	fresh := &LockContent{PID: 1, Timestamp: time.Now()}
	if fresh.IsStale() {
		t.Fatal("expected a fresh lock to not be stale")
	}

	old := &LockContent{PID: 1, Timestamp: time.Now().Add(-2 * StaleThreshold)}
	if !old.IsStale() {
		t.Fatal("expected an old lock to be stale")
	}
}

func TestProcessAliveReportsCurrentProcessAlive(t *testing.T) {
	if !ProcessAlive(os.Getpid()) {
		t.Fatal("expected the current process to be reported alive")
	}
}
