package drain

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBarrier_WaitIdle(t *testing.T) {
	b := New()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("Wait on idle barrier: %v", err)
	}
}

func TestBarrier_WaitResolvesWhenEmpty(t *testing.T) {
	b := New()
	b.Start("a")
	b.Start("b")

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- b.Wait(ctx)
	}()

	b.Finish("b")
	select {
	case err := <-done:
		t.Fatalf("Wait resolved with %v while %q still in flight", err, "a")
	case <-time.After(50 * time.Millisecond):
	}

	b.Finish("a")
	if err := <-done; err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestBarrier_FinishOrderIrrelevant(t *testing.T) {
	b := New()
	for i := 0; i < 10; i++ {
		b.Start(fmt.Sprintf("id-%d", i))
	}
	for i := 9; i >= 0; i-- {
		b.Finish(fmt.Sprintf("id-%d", i))
	}
	if got := b.Pending(); got != 0 {
		t.Fatalf("Pending() = %d, want 0", got)
	}
}

func TestBarrier_FinishUnknownID(t *testing.T) {
	b := New()
	b.Finish("never-started")
	if got := b.Pending(); got != 0 {
		t.Fatalf("Pending() = %d, want 0", got)
	}
}

func TestBarrier_LateStartExtendsWait(t *testing.T) {
	b := New()
	b.Start("first")

	waited := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		waited <- b.Wait(ctx)
	}()
	time.Sleep(20 * time.Millisecond)

	// A response that starts while a drain is pending must also be
	// covered by that drain.
	b.Start("second")
	b.Finish("first")

	select {
	case err := <-waited:
		t.Fatalf("Wait resolved with %v while %q still in flight", err, "second")
	case <-time.After(50 * time.Millisecond):
	}

	b.Finish("second")
	if err := <-waited; err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestBarrier_WaitContextCanceled(t *testing.T) {
	b := New()
	b.Start("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Wait error = %v, want context.DeadlineExceeded", err)
	}
}

func TestBarrier_ConcurrentUse(t *testing.T) {
	b := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("id-%d", i)
			b.Start(id)
			time.Sleep(time.Millisecond)
			b.Finish(id)
		}(i)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("Wait after concurrent use: %v", err)
	}
	if got := b.Pending(); got != 0 {
		t.Fatalf("Pending() = %d, want 0", got)
	}
}
