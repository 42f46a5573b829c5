package service

import "sync"

// pageLocks serializes work per page id. Entries are dropped once no goroutine holds
// or waits for them.
type pageLocks struct {
	mu    sync.Mutex
	locks map[string]*pageLock
}

type pageLock struct {
	mu   sync.Mutex
	refs int
}

func newPageLocks() *pageLocks {
	return &pageLocks{locks: make(map[string]*pageLock)}
}

// Lock blocks until the caller owns key and returns the matching unlock func.
func (l *pageLocks) Lock(key string) func() {
	l.mu.Lock()
	pl, ok := l.locks[key]
	if !ok {
		pl = &pageLock{}
		l.locks[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *pageLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
