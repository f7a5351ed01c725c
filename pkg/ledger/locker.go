package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Locker serializes callers per account id. Different ids never contend.
// Entries are reference counted and removed once no caller holds or waits
// on them.
type Locker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	sem  chan struct{}
	refs int
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{slots: make(map[string]*lockSlot)}
}

// Acquire blocks until the lock for id is held, timeout elapses or ctx is
// done. A timeout returns ErrContention. The returned release func must be
// called exactly once.
func (l *Locker) Acquire(ctx context.Context, id string, timeout time.Duration) (func(), error) {
	slot := l.ref(id)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case slot.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.sem
				l.unref(id)
			})
		}, nil
	case <-expired:
		l.unref(id)
		return nil, fmt.Errorf("account %s: lock not acquired within %s: %w", id, timeout, ErrContention)
	case <-ctx.Done():
		l.unref(id)
		return nil, ctx.Err()
	}
}

// Len returns the number of ids currently held or waited on.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *Locker) ref(id string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[id]
	if !ok {
		slot = &lockSlot{sem: make(chan struct{}, 1)}
		l.slots[id] = slot
	}
	slot.refs++
	return slot
}

func (l *Locker) unref(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[id]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, id)
	}
}
