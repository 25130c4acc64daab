package lock

import (
	"context"
	"sync"
	"time"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker serializes holders of the same key inside one process. Entries are
// reference counted and dropped once nobody holds or waits on them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
	wait  time.Duration
}

func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]*keyLock),
		wait:  wait,
	}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	entry := l.acquireRef(key)

	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case entry.ch <- struct{}{}:
	case <-waitCtx.Done():
		l.releaseRef(key)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.releaseRef(key)
		})
	}, nil
}

// Len returns the number of live keys.
func (l *MemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *MemoryLocker) acquireRef(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (l *MemoryLocker) releaseRef(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, key)
	}
}

func HostKey(hostID string) string { return "host:" + hostID }

func BookingKey(bookingID string) string { return "booking:" + bookingID }
