package filelock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// StaleThreshold is the age after which a lock file is considered
// abandoned and safe to remove (spec.md §3, §6, §7).
const StaleThreshold = 7200 * time.Second

// LockContent is the parsed "{pid}:{unix_ts}" payload of a lock file.
type LockContent struct {
	PID       int
	Timestamp time.Time
}

// FormatLockContent renders the owning pid and the current time in the
// spec's "{pid}:{unix_float_ts}" wire format.
func FormatLockContent(pid int) string {
	return fmt.Sprintf("%d:%.6f", pid, float64(time.Now().UnixNano())/1e9)
}

// ParseLockContent validates and parses a lock file's contents. A pid
// outside [1, 4194304] or a timestamp outside (0, now+86400] is rejected
// as corrupt, matching spec.md §6.
func ParseLockContent(raw string) (*LockContent, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed lock content %q", raw)
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("malformed lock pid %q: %w", parts[0], err)
	}
	if pid < 1 || pid > 4194304 {
		return nil, fmt.Errorf("lock pid %d out of range [1, 4194304]", pid)
	}
	tsFloat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed lock timestamp %q: %w", parts[1], err)
	}
	if tsFloat <= 0 || tsFloat > float64(time.Now().Add(86400*time.Second).Unix()) {
		return nil, fmt.Errorf("lock timestamp %v out of range", tsFloat)
	}
	return &LockContent{PID: pid, Timestamp: time.Unix(int64(tsFloat), 0)}, nil
}

// IsStale reports whether the lock content is older than StaleThreshold.
func (lc *LockContent) IsStale() bool {
	return time.Since(lc.Timestamp) > StaleThreshold
}

// ProcessAlive reports whether lc.PID names a live process. It uses
// signal-0 delivery (os.Process.Signal(syscall.Signal(0))) semantics via
// os.FindProcess, which on POSIX always succeeds at FindProcess time, so
// callers should treat a false return as "could not confirm alive" and
// prefer the age-based StaleThreshold check as the primary liveness
// signal across processes and hosts.
func ProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil || proc == nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
