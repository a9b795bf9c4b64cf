// Package locks provides per-pull-request mutual exclusion for agent runs.
//
// The table is process memory only: entries are added when a PR-comment job
// starts and removed when it finishes or fails. Two agent passes racing on
// the same checkout and git history is the failure mode this prevents.
package locks

import (
	"fmt"
	"sync"
)

// Key identifies one pull request on the source-control host.
type Key struct {
	Org    string
	Repo   string
	Number int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s#%d", k.Org, k.Repo, k.Number)
}

// Table is a set of currently-busy entity keys.
type Table struct {
	mu   sync.Mutex
	held map[Key]struct{}
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{held: make(map[Key]struct{})}
}

// TryAcquire claims a key. Returns false if it is already held.
func (t *Table) TryAcquire(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.held[key]; busy {
		return false
	}
	t.held[key] = struct{}{}
	return true
}

// Release frees a key. Releasing a key that is not held is a no-op, so
// callers can release unconditionally on every exit path.
func (t *Table) Release(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, key)
}

// Len returns the number of keys currently held.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.held)
}
