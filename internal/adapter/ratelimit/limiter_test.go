package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/thushan-yassen/egressgw/internal/adapter/keystate"
)

func TestTryAcquire_StartsFull(t *testing.T) {
	l := New(keystate.NewStore(), 1.0, 2.0) // burst = 2

	if !l.TryAcquire("k1") {
		t.Fatal("expected first acquire to succeed on a fresh bucket")
	}
	if !l.TryAcquire("k1") {
		t.Fatal("expected second acquire to succeed within burst capacity")
	}
	if l.TryAcquire("k1") {
		t.Fatal("expected third acquire to fail once burst is exhausted")
	}
}

func TestTryAcquire_RefillsOverTime(t *testing.T) {
	l := New(keystate.NewStore(), 10.0, 1.0) // burst = 10, 10 tokens/sec

	for i := 0; i < 10; i++ {
		if !l.TryAcquire("k1") {
			t.Fatalf("expected acquire %d to succeed", i)
		}
	}
	if l.TryAcquire("k1") {
		t.Fatal("expected bucket to be empty")
	}

	time.Sleep(150 * time.Millisecond)

	if !l.TryAcquire("k1") {
		t.Fatal("expected a token to have refilled after 150ms at 10/sec")
	}
}

func TestAvailable_DoesNotConsume(t *testing.T) {
	l := New(keystate.NewStore(), 1.0, 3.0)

	first := l.Available("k1")
	second := l.Available("k1")
	if first != second {
		t.Fatalf("expected Available to be idempotent, got %v then %v", first, second)
	}
}

func TestAcquire_CancelledContext(t *testing.T) {
	l := New(keystate.NewStore(), 0.1, 1.0) // very slow refill

	l.TryAcquire("k1") // drain the single token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Acquire(ctx, "k1"); err == nil {
		t.Fatal("expected context deadline to cancel the blocking acquire")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(keystate.NewStore(), 1.0, 1.0)

	if !l.TryAcquire("a") {
		t.Fatal("expected key a to have its own bucket")
	}
	if !l.TryAcquire("b") {
		t.Fatal("expected key b to have an independent bucket from a")
	}
}
