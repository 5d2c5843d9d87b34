package logger

import (
	"container/list"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Filter selects a subset of aggregated entries. Zero values mean
// unfiltered on that dimension (spec.md §4.12 Aggregator).
type Filter struct {
	WorkerID int
	TaskID   string
	Level    string
	Phase    string
	Event    string
	Since    time.Time
	Until    time.Time
	Search   string // case-insensitive substring match against Message
	Limit    int    // 0 = unlimited
}

func (f Filter) matches(e Entry) bool {
	if f.WorkerID != 0 && e.WorkerID != f.WorkerID {
		return false
	}
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if f.Phase != "" && e.Phase != f.Phase {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// maxCachedFiles bounds the aggregator's per-file parse cache (spec.md
// §4.12: LRU eviction, max 100 files).
const maxCachedFiles = 100

type cacheEntry struct {
	modTime int64
	entries []Entry
}

// Aggregator merges every worker-*.jsonl file plus orchestrator.jsonl
// under a log directory, caching per-file parses keyed by path with
// mtime-based invalidation and LRU eviction.
type Aggregator struct {
	logDir string

	mu       sync.Mutex
	cache    map[string]cacheEntry
	lru      *list.List
	lruIndex map[string]*list.Element
}

// NewAggregator returns an Aggregator reading from logDir.
func NewAggregator(logDir string) *Aggregator {
	return &Aggregator{
		logDir:   logDir,
		cache:    make(map[string]cacheEntry),
		lru:      list.New(),
		lruIndex: make(map[string]*list.Element),
	}
}

func (a *Aggregator) sourceFiles() ([]string, error) {
	workerFiles, err := filepath.Glob(filepath.Join(a.logDir, "workers", "worker-*.jsonl"))
	if err != nil {
		return nil, err
	}
	orchestratorLog := filepath.Join(a.logDir, "orchestrator.jsonl")
	if _, err := os.Stat(orchestratorLog); err == nil {
		workerFiles = append(workerFiles, orchestratorLog)
	}
	return workerFiles, nil
}

func (a *Aggregator) readCached(path string) []Entry {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	mtime := info.ModTime().UnixNano()

	a.mu.Lock()
	defer a.mu.Unlock()

	cached, ok := a.cache[path]
	if ok && cached.modTime == mtime {
		a.touch(path)
		return cached.entries
	}

	entries, err := ReadEntries(path)
	if err != nil {
		return nil
	}
	a.cache[path] = cacheEntry{modTime: mtime, entries: entries}
	a.touch(path)
	a.evictIfNeeded()
	return entries
}

func (a *Aggregator) touch(path string) {
	if el, ok := a.lruIndex[path]; ok {
		a.lru.MoveToFront(el)
		return
	}
	a.lruIndex[path] = a.lru.PushFront(path)
}

func (a *Aggregator) evictIfNeeded() {
	for len(a.cache) > maxCachedFiles {
		oldest := a.lru.Back()
		if oldest == nil {
			return
		}
		path := oldest.Value.(string)
		a.lru.Remove(oldest)
		delete(a.lruIndex, path)
		delete(a.cache, path)
	}
}

// Query returns every entry across all log sources matching f, ordered by
// timestamp, with f.Limit applied last if set.
func (a *Aggregator) Query(f Filter) ([]Entry, error) {
	files, err := a.sourceFiles()
	if err != nil {
		return nil, err
	}

	var filtered []Entry
	for _, path := range files {
		for _, e := range a.readCached(path) {
			if f.matches(e) {
				filtered = append(filtered, e)
			}
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	if f.Limit > 0 && len(filtered) > f.Limit {
		filtered = filtered[len(filtered)-f.Limit:]
	}
	return filtered, nil
}

// Tail returns the last n entries matching f, ignoring f.Limit.
func (a *Aggregator) Tail(f Filter, n int) ([]Entry, error) {
	f.Limit = 0
	entries, err := a.Query(f)
	if err != nil {
		return nil, err
	}
	if len(entries) <= n {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}
