package vote

import "sync"

type pairKey struct {
	Slug  string
	Token string
}

// pairLocks serializes vote attempts per (topic, identity) pair. Entries are
// ref-counted and removed when the last holder releases, so the table stays
// bounded by in-flight attempts rather than by history.
type pairLocks struct {
	mu    sync.Mutex
	locks map[pairKey]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[pairKey]*lockEntry)}
}

// acquire blocks until the pair lock is held and returns the release func.
func (p *pairLocks) acquire(key pairKey) func() {
	p.mu.Lock()
	entry, ok := p.locks[key]
	if !ok {
		entry = &lockEntry{}
		p.locks[key] = entry
	}
	entry.refs++
	p.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		p.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

// size reports the number of live entries. Test hook.
func (p *pairLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
