// Package portalloc leases ephemeral TCP ports for workers from a
// configured range, tracking allocations in-memory and verifying each
// candidate with a transient bind probe (spec.md §4.11).
package portalloc

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/harrison/zerg/internal/models"
)

const (
	DefaultRangeStart = 49152
	DefaultRangeEnd   = 65535
)

// Allocator leases ports within [RangeStart, RangeEnd] and tracks which
// are currently held, and by which worker.
type Allocator struct {
	RangeStart int
	RangeEnd   int

	mu     sync.Mutex
	leased map[int]int // port -> worker id (0 = unassigned)
	rng    *rand.Rand
}

// New builds an Allocator over [start, end]. A zero range uses the
// package defaults.
func New(start, end int) *Allocator {
	if start == 0 && end == 0 {
		start, end = DefaultRangeStart, DefaultRangeEnd
	}
	return &Allocator{
		RangeStart: start,
		RangeEnd:   end,
		leased:     make(map[int]int),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Allocate leases n unused ports, verifying each with a transient bind
// probe, and returns them unassigned to any worker (workerID 0). It
// raises *models.AllocationError if fewer than n ports are available
// within a 10n attempt budget.
func (a *Allocator) Allocate(n int) ([]int, error) {
	return a.AllocateForWorker(0, n)
}

// AllocateForWorker leases n ports and records them as owned by
// workerID.
func (a *Allocator) AllocateForWorker(workerID, n int) ([]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	candidates := a.shuffledRange()
	budget := 10 * n
	if budget == 0 {
		budget = 10
	}

	var obtained []int
	attempts := 0
	for _, port := range candidates {
		if attempts >= budget || len(obtained) >= n {
			break
		}
		if _, held := a.leased[port]; held {
			continue
		}
		attempts++
		if !probe(port) {
			continue
		}
		a.leased[port] = workerID
		obtained = append(obtained, port)
	}

	if len(obtained) < n {
		for _, port := range obtained {
			delete(a.leased, port)
		}
		return nil, &models.AllocationError{Requested: n, Obtained: len(obtained)}
	}
	return obtained, nil
}

// AllocateAsync offloads the blocking bind probes to a background
// goroutine and returns a channel that yields the result once.
func (a *Allocator) AllocateAsync(ctx context.Context, n int) <-chan asyncResult {
	out := make(chan asyncResult, 1)
	go func() {
		defer close(out)
		ports, err := a.Allocate(n)
		select {
		case out <- asyncResult{Ports: ports, Err: err}:
		case <-ctx.Done():
		}
	}()
	return out
}

type asyncResult struct {
	Ports []int
	Err   error
}

// IsAvailable reports whether port is free: not already leased, and a
// transient bind against it succeeds.
func (a *Allocator) IsAvailable(port int) bool {
	a.mu.Lock()
	_, held := a.leased[port]
	a.mu.Unlock()
	if held {
		return false
	}
	return probe(port)
}

// Release frees a single port.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.leased, port)
}

// ReleaseAll frees every leased port.
func (a *Allocator) ReleaseAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leased = make(map[int]int)
}

// ReleaseForWorker frees the given ports, verifying each is currently
// owned by workerID before releasing it.
func (a *Allocator) ReleaseForWorker(ports []int, workerID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, port := range ports {
		if owner, ok := a.leased[port]; ok && owner == workerID {
			delete(a.leased, port)
		}
	}
}

// LeasedByWorker returns the ports currently owned by workerID.
func (a *Allocator) LeasedByWorker(workerID int) []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []int
	for port, owner := range a.leased {
		if owner == workerID {
			out = append(out, port)
		}
	}
	return out
}

func (a *Allocator) shuffledRange() []int {
	size := a.RangeEnd - a.RangeStart + 1
	candidates := make([]int, size)
	for i := range candidates {
		candidates[i] = a.RangeStart + i
	}
	a.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	return candidates
}

// probe attempts a transient bind on 127.0.0.1:port with SO_REUSEADDR
// (the default behavior of net.Listen on most platforms), releasing the
// listener immediately on success.
func probe(port int) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
