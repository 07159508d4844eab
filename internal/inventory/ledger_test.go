package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func intp(v int) *int { return &v }

func TestReserve_ExhaustsExactly(t *testing.T) {
	t.Parallel()

	l := NewMemoryLedger()
	l.SetStock("p1", intp(5))

	ctx := context.Background()
	if err := l.Reserve(ctx, "p1", 3); err != nil {
		t.Fatalf("reserve 3 of 5: %v", err)
	}
	if err := l.Reserve(ctx, "p1", 2); err != nil {
		t.Fatalf("reserve 2 of 2: %v", err)
	}
	if err := l.Reserve(ctx, "p1", 1); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("reserve on empty: got %v, want ErrInsufficientStock", err)
	}
	if s, _ := l.Stock("p1"); s == nil || *s != 0 {
		t.Fatalf("stock=%v, want 0", s)
	}
}

func TestReserve_ConcurrentNeverOversells(t *testing.T) {
	t.Parallel()

	l := NewMemoryLedger()
	l.SetStock("p1", intp(10))

	// 50 goroutines each want 1 unit; exactly 10 may win.
	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Reserve(context.Background(), "p1", 1)
		}()
	}
	wg.Wait()
	close(errs)

	var ok, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 10 || insufficient != 40 {
		t.Fatalf("ok=%d insufficient=%d, want 10/40", ok, insufficient)
	}
	if s, _ := l.Stock("p1"); s == nil || *s != 0 {
		t.Fatalf("stock=%v, want exactly 0", s)
	}
}

func TestReserveRestore_RoundTrip(t *testing.T) {
	t.Parallel()

	l := NewMemoryLedger()
	l.SetStock("p1", intp(7))

	ctx := context.Background()
	for _, n := range []int{1, 3, 7} {
		if err := l.Reserve(ctx, "p1", n); err != nil {
			t.Fatalf("reserve %d: %v", n, err)
		}
		if err := l.Restore(ctx, "p1", n); err != nil {
			t.Fatalf("restore %d: %v", n, err)
		}
		if s, _ := l.Stock("p1"); s == nil || *s != 7 {
			t.Fatalf("after round-trip of %d: stock=%v, want 7", n, s)
		}
	}
}

func TestReserve_UnlimitedStock(t *testing.T) {
	t.Parallel()

	l := NewMemoryLedger()
	l.SetStock("digital", nil)

	ctx := context.Background()
	if err := l.Reserve(ctx, "digital", 1000); err != nil {
		t.Fatalf("unlimited reserve: %v", err)
	}
	if err := l.Restore(ctx, "digital", 1000); err != nil {
		t.Fatalf("unlimited restore: %v", err)
	}
	if s, ok := l.Stock("digital"); !ok || s != nil {
		t.Fatalf("unlimited product should stay unlimited, got %v ok=%v", s, ok)
	}
}

func TestReserve_UnknownProductAndBadQuantity(t *testing.T) {
	t.Parallel()

	l := NewMemoryLedger()
	ctx := context.Background()
	if err := l.Reserve(ctx, "ghost", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	l.SetStock("p1", intp(1))
	if err := l.Reserve(ctx, "p1", 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("got %v, want ErrInvalidQuantity", err)
	}
	if err := l.Restore(ctx, "p1", -2); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("got %v, want ErrInvalidQuantity", err)
	}
}
