package gate

import (
	"context"
	"testing"
	"time"
)

func TestGate_LimitsConcurrency(t *testing.T) {
	g := New(2)

	release1, err := g.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("Acquire(a) error = %v", err)
	}
	release2, err := g.Acquire(context.Background(), "b")
	if err != nil {
		t.Fatalf("Acquire(b) error = %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		release3, err := g.Acquire(context.Background(), "c")
		if err != nil {
			return
		}
		close(acquired)
		release3()
	}()

	select {
	case <-acquired:
		t.Fatalf("third Acquire should have blocked while capacity is exhausted")
	case <-time.After(100 * time.Millisecond):
	}

	release1()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("third Acquire never unblocked after a slot freed")
	}
	release2()
}

func TestGate_LatestWinsCancelsOlderWaiterForSameKey(t *testing.T) {
	g := New(1)

	release, err := g.Acquire(context.Background(), "held")
	if err != nil {
		t.Fatalf("Acquire(held) error = %v", err)
	}

	oldErr := make(chan error, 1)
	go func() {
		_, err := g.Acquire(context.Background(), "store-1")
		oldErr <- err
	}()

	// Give the goroutine time to register as a waiter before superseding it.
	time.Sleep(50 * time.Millisecond)

	go func() {
		g.Acquire(context.Background(), "store-1")
	}()

	select {
	case err := <-oldErr:
		if err == nil {
			t.Errorf("expected the superseded waiter to be cancelled, got nil error")
		}
	case <-time.After(time.Second):
		t.Fatalf("superseded waiter was never cancelled")
	}

	release()
}

func TestGate_ChainOfSupersessionLeavesOnlyNewestWaiterRegistered(t *testing.T) {
	g := New(1)

	release, err := g.Acquire(context.Background(), "held")
	if err != nil {
		t.Fatalf("Acquire(held) error = %v", err)
	}

	errA := make(chan error, 1)
	go func() {
		_, err := g.Acquire(context.Background(), "store-1")
		errA <- err
	}()
	time.Sleep(30 * time.Millisecond)

	errB := make(chan error, 1)
	go func() {
		_, err := g.Acquire(context.Background(), "store-1")
		errB <- err
	}()
	time.Sleep(30 * time.Millisecond)

	releaseC := make(chan func(), 1)
	go func() {
		r, err := g.Acquire(context.Background(), "store-1")
		if err == nil {
			releaseC <- r
		}
	}()
	time.Sleep(30 * time.Millisecond)

	// A and B must both have been superseded and cancelled; A's cleanup
	// deleting the map entry must not have clobbered C's registration.
	select {
	case err := <-errA:
		if err == nil {
			t.Errorf("expected waiter A to be cancelled by supersession")
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter A was never cancelled")
	}
	select {
	case err := <-errB:
		if err == nil {
			t.Errorf("expected waiter B to be cancelled by supersession")
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter B was never cancelled")
	}

	release()

	select {
	case r := <-releaseC:
		r()
	case <-time.After(time.Second):
		t.Fatalf("waiter C never acquired the freed slot; its registration may have been lost")
	}
}

func TestGate_WaitersReflectsQueueDepth(t *testing.T) {
	g := New(1)
	release, err := g.Acquire(context.Background(), "holder")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		r, err := g.Acquire(context.Background(), "waiter")
		if err == nil {
			r()
		}
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if g.Waiters() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if g.Waiters() != 1 {
		t.Errorf("Waiters() = %d, want 1 while a slot is held and one goroutine queues", g.Waiters())
	}

	release()
	<-done

	if g.Waiters() != 0 {
		t.Errorf("Waiters() = %d, want 0 once the queue drains", g.Waiters())
	}
}

func TestGate_ReleaseFreesSlotForReuse(t *testing.T) {
	g := New(1)
	release, err := g.Acquire(context.Background(), "first")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()

	done := make(chan error, 1)
	go func() {
		r, err := g.Acquire(context.Background(), "second")
		if err == nil {
			r()
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("second Acquire() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("second Acquire never completed after the first released its slot")
	}
}
