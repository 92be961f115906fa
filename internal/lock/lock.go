// Package lock serializes work per account number inside one process.
package lock

import (
	"context"
	"sort"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// Table hands out one lock per key. Entries live only while someone holds or
// waits on them.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Acquire locks every distinct key in ascending order, so two callers locking
// the same pair in opposite roles cannot deadlock. If ctx ends while waiting,
// locks taken so far are released and ctx.Err() is returned.
func (t *Table) Acquire(ctx context.Context, keys ...string) (func(), error) {
	ordered := dedupSorted(keys)
	held := make([]*entry, 0, len(ordered))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			t.unlock(ordered[i], held[i])
		}
	}

	for _, k := range ordered {
		e, err := t.lock(ctx, k)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, e)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// size is the number of keys currently held or waited on.
func (t *Table) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table) lock(ctx context.Context, key string) (*entry, error) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return e, nil
	case <-ctx.Done():
		t.unref(key, e)
		return nil, ctx.Err()
	}
}

func (t *Table) unlock(key string, e *entry) {
	<-e.sem
	t.unref(key, e)
}

func (t *Table) unref(key string, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, key)
	}
}

func dedupSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
