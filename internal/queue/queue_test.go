// Package queue_test provides tests for the queue package
package queue_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloud-shuttle/muster/internal/queue"
)

func TestPool_BoundedConcurrency(t *testing.T) {
	pool := queue.NewPool(2)
	defer pool.Stop(context.Background())

	var running, peak int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		pool.Enqueue(func() {
			defer wg.Done()
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs did not complete in time")
	}

	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("Expected at most 2 concurrent jobs, observed %d", p)
	}
}

func TestPool_PanicDoesNotBlockQueue(t *testing.T) {
	pool := queue.NewPool(1)
	defer pool.Stop(context.Background())

	completed := make(chan struct{})

	pool.Enqueue(func() { panic("job exploded") })
	pool.Enqueue(func() { close(completed) })

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("job queued behind a panicking job never ran")
	}
}

func TestPool_FIFOAdmission(t *testing.T) {
	pool := queue.NewPool(1)
	defer pool.Stop(context.Background())

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	block := make(chan struct{})
	pool.Enqueue(func() { <-block })

	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		pool.Enqueue(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	close(block)
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("Expected FIFO order, got %v", order)
		}
	}
}

func TestPool_StopWaitsForRunningJobs(t *testing.T) {
	pool := queue.NewPool(2)

	var finished atomic.Bool
	started := make(chan struct{})
	pool.Enqueue(func() {
		close(started)
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
	})

	<-started
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if !finished.Load() {
		t.Error("Stop returned before the running job finished")
	}
}
