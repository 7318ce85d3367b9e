package synchronizer

import (
	"context"
	"slices"
	"sync"
)

// KeyedLock is a set of mutexes keyed by string. Waiters on a key are served in
// arrival order.
type KeyedLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	waiters []chan struct{}
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{entries: make(map[string]*lockEntry)}
}

// Acquire blocks until key is held or ctx ends. The returned func releases it.
func (l *KeyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, busy := l.entries[key]
	if !busy {
		l.entries[key] = &lockEntry{}
		l.mu.Unlock()
		return func() { l.release(key) }, nil
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return func() { l.release(key) }, nil
	case <-ctx.Done():
		l.mu.Lock()
		if i := slices.Index(e.waiters, ch); i >= 0 {
			e.waiters = slices.Delete(e.waiters, i, i+1)
			l.mu.Unlock()
			return nil, ctx.Err()
		}
		l.mu.Unlock()
		// Handed off while giving up: pass it on.
		l.release(key)
		return nil, ctx.Err()
	}
}

func (l *KeyedLock) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		panic("synchronizer: release of unheld key " + key)
	}
	if len(e.waiters) == 0 {
		delete(l.entries, key)
		return
	}
	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	close(next)
}

// Held reports how many keys are currently held
func (l *KeyedLock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
