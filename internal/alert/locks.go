package alert

import "sync"

// cycleLocks is shared by every Service in the process, so two services
// writing the same instrument key never interleave their cycles.
var cycleLocks = newKeyLocker()

// keyLocker serializes read-modify-write cycles per instrument key.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyLocker) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
