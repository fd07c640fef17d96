package memory

import (
	"context"
	"sync"
)

// keyedLocks hands out one exclusive lock per key. Waiting honours ctx.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[any]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[any]*keyLock)}
}

// acquire blocks until key is free or ctx is done and returns the unlock func.
func (k *keyedLocks) acquire(ctx context.Context, key any) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.put(key, l)
		}, nil
	case <-ctx.Done():
		k.put(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedLocks) put(key any, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
