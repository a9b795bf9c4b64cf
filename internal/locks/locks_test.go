// Package locks_test provides tests for the locks package
package locks_test

import (
	"sync"
	"testing"

	"github.com/cloud-shuttle/muster/internal/locks"
)

func TestTable_AcquireRelease(t *testing.T) {
	table := locks.NewTable()
	key := locks.Key{Org: "cloud-shuttle", Repo: "muster", Number: 42}

	if !table.TryAcquire(key) {
		t.Fatal("first TryAcquire should succeed")
	}
	if table.TryAcquire(key) {
		t.Fatal("second TryAcquire on held key should fail")
	}

	// A different PR on the same repo is a different key.
	other := locks.Key{Org: "cloud-shuttle", Repo: "muster", Number: 43}
	if !table.TryAcquire(other) {
		t.Fatal("different key should acquire independently")
	}

	table.Release(key)
	if !table.TryAcquire(key) {
		t.Fatal("TryAcquire after Release should succeed")
	}
}

func TestTable_ReleaseIdempotent(t *testing.T) {
	table := locks.NewTable()
	key := locks.Key{Org: "o", Repo: "r", Number: 1}

	// Releasing a key that was never held must not panic or block.
	table.Release(key)
	table.Release(key)

	if !table.TryAcquire(key) {
		t.Fatal("key should be free after spurious releases")
	}
}

func TestTable_ConcurrentAcquire(t *testing.T) {
	table := locks.NewTable()
	key := locks.Key{Org: "o", Repo: "r", Number: 7}

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if table.TryAcquire(key) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", winners)
	}

	table.Release(key)
	if !table.TryAcquire(key) {
		t.Error("key should be acquirable after the winner releases")
	}
}
