package cache

import (
	"context"
	"sync"
	"time"
)

const (
	// localIdle is how long an untouched local entry survives. Each access
	// renews it.
	localIdle = 60 * time.Second
	// maxRenewals caps how often an entry's expiry may be renewed before it
	// is forcibly dropped, so a hot key cannot stay pinned forever.
	maxRenewals = 100
	// sweepInterval is the eviction scan cadence.
	sweepInterval = time.Second
)

type localEntry struct {
	value    string
	deadline time.Time
	renewals int
}

// local is the in-process tier: a mutex-guarded map with idle expiry.
type local struct {
	mu      sync.RWMutex
	entries map[string]*localEntry

	idle time.Duration
	cap  int

	evicted func(n int64) // optional eviction hook
}

func newLocal() *local {
	return &local{entries: map[string]*localEntry{}, idle: localIdle, cap: maxRenewals}
}

// get returns the entry value and renews its expiry. An entry that has
// exhausted its renewal budget is dropped after this read.
func (l *local) get(key string, now time.Time) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return "", false
	}
	if now.After(e.deadline) {
		delete(l.entries, key)
		return "", false
	}
	e.renewals++
	if e.renewals >= l.cap {
		delete(l.entries, key)
		if l.evicted != nil {
			l.evicted(1)
		}
		return e.value, true
	}
	e.deadline = now.Add(l.idle)
	return e.value, true
}

func (l *local) set(key, value string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = &localEntry{value: value, deadline: now.Add(l.idle)}
}

func (l *local) delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *local) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// sweep drops entries past their deadline and returns how many were removed.
func (l *local) sweep(now time.Time) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for k, e := range l.entries {
		if now.After(e.deadline) {
			delete(l.entries, k)
			n++
		}
	}
	if n > 0 && l.evicted != nil {
		l.evicted(n)
	}
	return n
}

// run sweeps every second until the context is cancelled.
func (l *local) run(ctx context.Context) {
	tk := time.NewTicker(sweepInterval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tk.C:
			l.sweep(now)
		}
	}
}
