package store

import (
	"context"
	"sync"
)

// KeyLock is a set of named mutexes whose acquisition honours context
// cancellation. Idle keys are dropped.
type KeyLock struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewKeyLock returns an empty lock set.
func NewKeyLock() *KeyLock {
	return &KeyLock{slots: make(map[string]*lockSlot)}
}

// Acquire blocks until key is free or ctx ends. The returned release func is
// safe to call more than once.
func (l *KeyLock) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.unref(key, slot)
			})
		}, nil
	case <-ctx.Done():
		l.unref(key, slot)
		return nil, ctx.Err()
	}
}

func (l *KeyLock) unref(key string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

// Len reports the number of keys currently held or awaited.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
