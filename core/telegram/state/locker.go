package state

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out one mutex per key and forgets it once no goroutine holds
// or waits on it, so the map stays proportional to in-flight users.
type Locker struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

// NewLocker returns an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[int64]*lockEntry)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (l *Locker) Lock(key int64) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
