package pacing

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"optiongate/internal/domain"
)

func TestQueue_ResultDelivery(t *testing.T) {
	q := New(Config{MinInterval: time.Millisecond})
	defer q.Close()

	v, err := q.Enqueue(func() (any, error) { return 42, nil })
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if v.(int) != 42 {
		t.Errorf("Expected 42, got %v", v)
	}
}

func TestQueue_ErrorReachesOnlyCaller(t *testing.T) {
	q := New(Config{MinInterval: time.Millisecond})
	defer q.Close()

	boom := errors.New("boom")
	_, err := q.Enqueue(func() (any, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	// Lane must keep running after a failure.
	v, err := q.Enqueue(func() (any, error) { return "ok", nil })
	if err != nil || v.(string) != "ok" {
		t.Errorf("Lane stopped after error: v=%v err=%v", v, err)
	}
}

func TestQueue_PanicDoesNotKillLane(t *testing.T) {
	q := New(Config{MinInterval: time.Millisecond})
	defer q.Close()

	_, err := q.Enqueue(func() (any, error) { panic("bad work") })
	if err == nil {
		t.Fatal("Expected error from panicking work")
	}

	if _, err := q.Enqueue(func() (any, error) { return 1, nil }); err != nil {
		t.Errorf("Lane dead after panic: %v", err)
	}
}

func TestQueue_MinimumSpacing(t *testing.T) {
	const interval = 30 * time.Millisecond
	const calls = 5

	q := New(Config{MinInterval: interval})
	defer q.Close()

	var mu sync.Mutex
	var starts []time.Time

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(func() (any, error) {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if len(starts) != calls {
		t.Fatalf("Expected %d executions, got %d", calls, len(starts))
	}
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		// Small allowance for timestamp capture happening inside the work.
		if gap < interval-5*time.Millisecond {
			t.Errorf("Gap %d too small: %v < %v", i, gap, interval)
		}
	}
}

func TestQueue_TotalWallTime(t *testing.T) {
	const interval = 10 * time.Millisecond
	const calls = 20

	q := New(Config{MinInterval: interval})
	defer q.Close()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(func() (any, error) { return nil, nil })
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	if min := (calls - 1) * interval; elapsed < min {
		t.Errorf("Completed %d calls in %v, pacing requires at least %v", calls, elapsed, min)
	}
}

func TestQueue_DropOldestOnOverflow(t *testing.T) {
	q := New(Config{MinInterval: 50 * time.Millisecond, Capacity: 2, EnqueueWait: time.Second})
	defer q.Close()

	block := make(chan struct{})
	go q.Enqueue(func() (any, error) { <-block; return nil, nil })
	time.Sleep(20 * time.Millisecond) // let the blocker reach the lane

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func(n int) {
			_, err := q.Enqueue(func() (any, error) { return n, nil })
			errs <- err
		}(i)
		time.Sleep(5 * time.Millisecond)
	}

	// Third submission overflows a capacity-2 queue: the oldest pending
	// item is evicted, not the newcomer.
	err := <-errs
	if !errors.Is(err, ErrEvicted) {
		t.Fatalf("Expected ErrEvicted for oldest pending caller, got %v", err)
	}

	close(block)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Surviving caller failed: %v", err)
		}
	}
}

func TestQueue_EvictionSparesMutatingWork(t *testing.T) {
	q := New(Config{MinInterval: 50 * time.Millisecond, Capacity: 2, EnqueueWait: time.Second})
	defer q.Close()

	block := make(chan struct{})
	go q.Enqueue(func() (any, error) { <-block; return nil, nil })
	time.Sleep(20 * time.Millisecond)

	orderErr := make(chan error, 1)
	quoteErr := make(chan error, 1)
	go func() {
		_, err := q.EnqueueMutating(func() (any, error) { return "order", nil })
		orderErr <- err
	}()
	time.Sleep(5 * time.Millisecond)
	go func() {
		_, err := q.Enqueue(func() (any, error) { return "quote", nil })
		quoteErr <- err
	}()
	time.Sleep(5 * time.Millisecond)

	// Overflow: the quote, although newer than the order, is the eviction
	// victim because order-mutating work is spared.
	go q.Enqueue(func() (any, error) { return nil, nil })

	select {
	case err := <-quoteErr:
		if !errors.Is(err, ErrEvicted) {
			t.Fatalf("Expected quote eviction, got %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Quote was not evicted")
	}

	close(block)
	if err := <-orderErr; err != nil {
		t.Errorf("Mutating work should survive eviction: %v", err)
	}
}

func TestQueue_CallerTimeout(t *testing.T) {
	q := New(Config{MinInterval: time.Millisecond, EnqueueWait: 30 * time.Millisecond})
	defer q.Close()

	block := make(chan struct{})
	defer close(block)
	go q.Enqueue(func() (any, error) { <-block; return nil, nil })
	time.Sleep(10 * time.Millisecond)

	_, err := q.Enqueue(func() (any, error) { return nil, nil })
	var pt *domain.PacingTimeoutError
	if !errors.As(err, &pt) {
		t.Fatalf("Expected PacingTimeoutError, got %v", err)
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := New(Config{MinInterval: time.Millisecond, Capacity: 20})
	defer q.Close()

	block := make(chan struct{})
	go q.Enqueue(func() (any, error) { <-block; return nil, nil })
	time.Sleep(10 * time.Millisecond)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.Enqueue(func() (any, error) {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil, nil
			})
		}(i)
		time.Sleep(5 * time.Millisecond) // deterministic admission order
	}

	close(block)
	wg.Wait()

	for i, n := range order {
		if n != i {
			t.Fatalf("FIFO violated: %v", order)
		}
	}
}

func TestQueue_Stats(t *testing.T) {
	q := New(Config{MinInterval: time.Millisecond})
	defer q.Close()

	for i := 0; i < 3; i++ {
		q.Enqueue(func() (any, error) { return nil, nil })
	}

	if n := q.CallsLastMinute(); n != 3 {
		t.Errorf("Expected 3 calls in window, got %d", n)
	}
	if d := q.Depth(); d != 0 {
		t.Errorf("Expected empty queue, got depth %d", d)
	}
	if q.MaxPerMinute() != int(time.Minute/time.Millisecond) {
		t.Errorf("Unexpected MaxPerMinute %d", q.MaxPerMinute())
	}
}

func TestQueue_Close(t *testing.T) {
	q := New(Config{MinInterval: time.Millisecond})
	q.Close()

	_, err := q.Enqueue(func() (any, error) { return nil, nil })
	if !errors.Is(err, domain.ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
}

func ExampleQueue() {
	q := New(Config{MinInterval: time.Millisecond})
	defer q.Close()

	v, _ := q.Enqueue(func() (any, error) { return "quote", nil })
	fmt.Println(v)
	// Output: quote
}
