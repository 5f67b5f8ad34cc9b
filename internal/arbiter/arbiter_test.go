package arbiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yukkuri-system/workflow-core/contracts"
)

func TestAcquireRelease_Basic(t *testing.T) {
	a := New(map[contracts.ResourceName]int{"gpu": 2})
	ctx := context.Background()

	if err := a.Acquire(ctx, "s1", map[contracts.ResourceName]int{"gpu": 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cap, ok := a.Capacity("gpu"); !ok || cap != 2 {
		t.Fatalf("expected capacity 2, got %d, %v", cap, ok)
	}
	a.Release("s1")

	if err := a.Acquire(ctx, "s2", map[contracts.ResourceName]int{"gpu": 2}); err != nil {
		t.Fatalf("expected to reacquire after release: %v", err)
	}
}

func TestAcquire_UnknownResource(t *testing.T) {
	a := New(map[contracts.ResourceName]int{"gpu": 2})
	err := a.Acquire(context.Background(), "s1", map[contracts.ResourceName]int{"tpu": 1})
	if !errors.Is(err, contracts.ErrUnknownResource) {
		t.Fatalf("expected ErrUnknownResource, got %v", err)
	}
}

func TestAcquire_Infeasible(t *testing.T) {
	a := New(map[contracts.ResourceName]int{"gpu": 1})
	err := a.Acquire(context.Background(), "s1", map[contracts.ResourceName]int{"gpu": 5})
	if !errors.Is(err, contracts.ErrInfeasible) {
		t.Fatalf("expected ErrInfeasible, got %v", err)
	}
}

func TestAcquire_BlocksUntilReleased(t *testing.T) {
	a := New(map[contracts.ResourceName]int{"gpu": 1})
	ctx := context.Background()

	if err := a.Acquire(ctx, "s1", map[contracts.ResourceName]int{"gpu": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		a.Acquire(ctx, "s2", map[contracts.ResourceName]int{"gpu": 1})
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("expected s2 to block while s1 holds the only unit")
	case <-time.After(50 * time.Millisecond):
	}

	a.Release("s1")

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("expected s2 to acquire after s1 released")
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	a := New(map[contracts.ResourceName]int{"gpu": 1})
	ctx := context.Background()
	a.Acquire(ctx, "s1", map[contracts.ResourceName]int{"gpu": 1})

	cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	err := a.Acquire(cctx, "s2", map[contracts.ResourceName]int{"gpu": 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}
}

func TestAcquire_DeadlockDetected(t *testing.T) {
	a := New(map[contracts.ResourceName]int{"gpu": 1, "cpu": 1})
	ctx := context.Background()

	if err := a.Acquire(ctx, "s1", map[contracts.ResourceName]int{"gpu": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Acquire(ctx, "s2", map[contracts.ResourceName]int{"cpu": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	// The acquirer that would close the cycle fails with ErrDeadlock and, as
	// the engine does for a failed stage, releases what it holds so the
	// other acquirer can proceed.
	go func() {
		defer wg.Done()
		err := a.Acquire(ctx, "s1", map[contracts.ResourceName]int{"cpu": 1})
		if errors.Is(err, contracts.ErrDeadlock) {
			a.Release("s1")
		}
		errs <- err
	}()
	go func() {
		defer wg.Done()
		err := a.Acquire(ctx, "s2", map[contracts.ResourceName]int{"gpu": 1})
		if errors.Is(err, contracts.ErrDeadlock) {
			a.Release("s2")
		}
		errs <- err
	}()
	wg.Wait()
	close(errs)

	var sawDeadlock bool
	for err := range errs {
		if errors.Is(err, contracts.ErrDeadlock) {
			sawDeadlock = true
		}
	}
	if !sawDeadlock {
		t.Fatal("expected at least one acquirer to observe ErrDeadlock")
	}
}

func TestHasCycle(t *testing.T) {
	waitFor := map[string]map[string]bool{
		"a": {"b": true},
		"b": {"c": true},
		"c": {"a": true},
	}
	if !hasCycle(waitFor, "a") {
		t.Fatal("expected cycle a->b->c->a to be detected")
	}

	acyclic := map[string]map[string]bool{
		"a": {"b": true},
		"b": {},
	}
	if hasCycle(acyclic, "a") {
		t.Fatal("expected no cycle in a->b")
	}
}
