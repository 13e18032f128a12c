package ledger

import (
	"context"
	"sort"
	"sync"
)

// Locker serializes writers per item. Lock acquires every id in ascending
// order so that two callers locking the same pair cannot deadlock.
type Locker interface {
	Lock(ctx context.Context, ids ...string) (unlock func(), err error)
}

// SortedUnique returns ids sorted ascending with duplicates removed
func SortedUnique(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// LocalLocker is an in-process Locker
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, ids ...string) (func(), error) {
	ordered := SortedUnique(ids)
	held := make([]string, 0, len(ordered))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}

	for _, id := range ordered {
		if err := l.acquire(ctx, id); err != nil {
			release()
			return nil, err
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *LocalLocker) acquire(ctx context.Context, id string) error {
	l.mu.Lock()
	kl, ok := l.locks[id]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[id] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.drop(id, kl)
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *LocalLocker) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.locks[id]
	<-kl.sem
	l.drop(id, kl)
}

// drop must be called with l.mu held
func (l *LocalLocker) drop(id string, kl *keyLock) {
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, id)
	}
}
