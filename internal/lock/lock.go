// Package lock provides short-lived named locks so one source is never
// checked by two workers (or two processes) at once.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker acquires named locks without blocking. A lock that is not released
// expires after ttl.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	held  map[string]uint64
	until map[string]time.Time
	next  uint64
	now   func() time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]uint64), until: make(map[string]time.Time), now: time.Now}
}

func (l *Local) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[key]; taken && l.now().Before(l.until[key]) {
		return nil, false, nil
	}
	l.next++
	token := l.next
	l.held[key] = token
	l.until[key] = l.now().Add(ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// An expired lock may have been taken over; leave the new holder alone.
			if l.held[key] == token {
				delete(l.held, key)
				delete(l.until, key)
			}
		})
	}, true, nil
}
