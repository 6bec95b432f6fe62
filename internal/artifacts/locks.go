package artifacts

import "sync"

// keyedLocks hands out one RWMutex per client. Entries are dropped when the
// last holder releases, so idle clients cost nothing.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.RWMutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*refLock)}
}

func (k *keyedLocks) acquire(key string) *refLock {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedLocks) release(key string, l *refLock) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock takes the exclusive lock for key and returns its release func.
func (k *keyedLocks) Lock(key string) func() {
	l := k.acquire(key)
	l.Lock()

	return func() {
		l.Unlock()
		k.release(key, l)
	}
}

func (k *keyedLocks) RLock(key string) func() {
	l := k.acquire(key)
	l.RLock()

	return func() {
		l.RUnlock()
		k.release(key, l)
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
