package database

import "sync"

// KeyedLock serializes mutations against a single auction the way a
// SELECT ... FOR UPDATE row lock would on a server database. SQLite has no
// row-level locking, so the per-auction exclusion lives in process memory;
// bids against different auctions stay fully parallel.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{
		locks: make(map[string]*sync.Mutex),
	}
}

// Acquire returns the mutex for key, creating it on first use. Callers lock
// and unlock the returned mutex around their transaction.
func (k *KeyedLock) Acquire(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}
