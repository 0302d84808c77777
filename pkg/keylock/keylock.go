// Package keylock provides mutual exclusion scoped by string keys.
//
// Unrelated keys never contend. A context returned by Lock remembers which
// keys it holds, so a call chain that already owns a key can ask for it again
// without deadlocking itself. Keys requested together are acquired in sorted
// order.
package keylock

import (
	"context"
	"sort"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out per-key mutexes and frees them once nobody references them.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New constructs an empty Locker.
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

type heldKey struct{}

type heldSet struct {
	owner  *Locker
	keys   map[string]struct{}
	parent *heldSet
}

func (h *heldSet) holds(l *Locker, key string) bool {
	for s := h; s != nil; s = s.parent {
		if s.owner != l {
			continue
		}
		if _, ok := s.keys[key]; ok {
			return true
		}
	}
	return false
}

// Lock acquires every key not already held by ctx and returns a context that
// records them together with the release function. Release must be called
// exactly once, by the same call chain.
func (l *Locker) Lock(ctx context.Context, keys ...string) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, _ := ctx.Value(heldKey{}).(*heldSet)

	wanted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if parent.holds(l, key) {
			continue
		}
		wanted = append(wanted, key)
	}
	if len(wanted) == 0 {
		return ctx, func() {}
	}
	sort.Strings(wanted)

	acquired := make([]*entry, 0, len(wanted))
	for _, key := range wanted {
		e := l.ref(key)
		e.mu.Lock()
		acquired = append(acquired, e)
	}

	set := &heldSet{owner: l, keys: make(map[string]struct{}, len(wanted)), parent: parent}
	for _, key := range wanted {
		set.keys[key] = struct{}{}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			for i := len(wanted) - 1; i >= 0; i-- {
				acquired[i].mu.Unlock()
				l.unref(wanted[i])
			}
		})
	}
	return context.WithValue(ctx, heldKey{}, set), release
}

// Holds reports whether ctx currently holds key on l.
func (l *Locker) Holds(ctx context.Context, key string) bool {
	if ctx == nil {
		return false
	}
	set, _ := ctx.Value(heldKey{}).(*heldSet)
	return set.holds(l, key)
}

func (l *Locker) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(l.entries, key)
	}
}

// Size returns the number of keys currently referenced.
func (l *Locker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
