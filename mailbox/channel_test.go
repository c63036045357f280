package mailbox

import (
	"context"
	"sync"
	"testing"
	"time"
)

const testTimeout = 2 * time.Second

// await fails the test if done is not closed within testTimeout.
func await(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// stillBlocked fails the test if done closes within a short grace period.
func stillBlocked(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
		t.Fatalf("expected %s to block", what)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestNewChannelIsOpenAndEmpty(t *testing.T) {
	ch := New[int]()
	if ch.State() != StateOpen {
		t.Errorf("expected open, got %s", ch.State())
	}
	ch.Shutdown(false)
	if _, ok := ch.Get(); ok {
		t.Error("expected empty channel to report closed after shutdown")
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	ch := New[string]()
	if !ch.Put("frame-1") {
		t.Fatal("expected put on an open empty channel to succeed")
	}
	got, ok := ch.Get()
	if !ok {
		t.Fatal("expected get to succeed")
	}
	if got != "frame-1" {
		t.Errorf("expected frame-1, got %q", got)
	}
}

func TestGetBlocksUntilPut(t *testing.T) {
	ch := New[int]()
	done := make(chan struct{})
	var got int
	go func() {
		defer close(done)
		got, _ = ch.Get()
	}()

	stillBlocked(t, done, "get on empty channel")
	ch.Put(7)
	await(t, done, "get after put")
	if got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

func TestPutBlocksWhileOccupied(t *testing.T) {
	ch := New[int]()
	ch.Put(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Put(2)
	}()

	stillBlocked(t, done, "put on occupied channel")
	if v, _ := ch.Get(); v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
	await(t, done, "put after get")
	if v, _ := ch.Get(); v != 2 {
		t.Errorf("expected 2, got %d", v)
	}
}

func TestGracefulShutdownDrainsResidentItem(t *testing.T) {
	ch := New[int]()
	ch.Put(42)
	ch.Shutdown(false)

	if ch.State() != StateDraining {
		t.Errorf("expected draining, got %s", ch.State())
	}
	if ch.Put(43) {
		t.Error("expected put after graceful shutdown to fail")
	}
	v, ok := ch.Get()
	if !ok || v != 42 {
		t.Fatalf("expected resident item 42, got %d ok=%v", v, ok)
	}
	for i := 0; i < 3; i++ {
		if _, ok := ch.Get(); ok {
			t.Fatal("expected every get after the drain to report closed")
		}
	}
}

func TestImmediateShutdownDiscardsResidentItem(t *testing.T) {
	ch := New[int]()
	ch.Put(42)
	ch.Shutdown(true)

	if ch.State() != StateClosed {
		t.Errorf("expected closed, got %s", ch.State())
	}
	if _, ok := ch.Get(); ok {
		t.Error("expected get after immediate shutdown to report closed")
	}
	if ch.Put(1) {
		t.Error("expected put after immediate shutdown to fail")
	}
}

func TestShutdownUnblocksWaiters(t *testing.T) {
	t.Run("blocked get", func(t *testing.T) {
		ch := New[int]()
		done := make(chan struct{})
		var ok bool
		go func() {
			defer close(done)
			_, ok = ch.Get()
		}()
		stillBlocked(t, done, "get")
		ch.Shutdown(false)
		await(t, done, "get after shutdown")
		if ok {
			t.Error("expected blocked get to report closed")
		}
	})

	t.Run("blocked put", func(t *testing.T) {
		ch := New[int]()
		ch.Put(1)
		done := make(chan struct{})
		ok := true
		go func() {
			defer close(done)
			ok = ch.Put(2)
		}()
		stillBlocked(t, done, "put")
		ch.Shutdown(false)
		await(t, done, "put after shutdown")
		if ok {
			t.Error("expected blocked put to report closed")
		}
		// The first item still drains.
		if v, ok := ch.Get(); !ok || v != 1 {
			t.Errorf("expected resident 1 to drain, got %d ok=%v", v, ok)
		}
	})
}

func TestShutdownIsIdempotentAndMonotone(t *testing.T) {
	tests := []struct {
		name  string
		calls []bool
		want  State
	}{
		{"graceful once", []bool{false}, StateDraining},
		{"graceful twice", []bool{false, false}, StateDraining},
		{"immediate once", []bool{true}, StateClosed},
		{"graceful then immediate", []bool{false, true}, StateClosed},
		{"immediate then graceful", []bool{true, false}, StateClosed},
		{"mixed", []bool{false, true, false, true, false}, StateClosed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ch := New[int]()
			for _, immediate := range tc.calls {
				ch.Shutdown(immediate)
			}
			if got := ch.State(); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestUpgradeToImmediateDropsDrainingItem(t *testing.T) {
	ch := New[int]()
	ch.Put(5)
	ch.Shutdown(false)
	ch.Shutdown(true)
	if _, ok := ch.Get(); ok {
		t.Error("expected upgrade to immediate to discard the resident item")
	}
}

func TestConcurrentTransferNoDuplicationNoFabrication(t *testing.T) {
	const n = 5000
	ch := New[int]()

	go func() {
		for i := 0; i < n; i++ {
			if !ch.Put(i) {
				t.Errorf("unexpected closed put at %d", i)
				return
			}
		}
		ch.Shutdown(false)
	}()

	got := make([]int, 0, n)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			v, ok := ch.Get()
			if !ok {
				return
			}
			got = append(got, v)
		}
	}()
	await(t, done, "consumer")

	if len(got) != n {
		t.Fatalf("expected %d items, got %d", n, len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("expected item %d at position %d, got %d", i, i, v)
		}
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	const producers, perProducer = 4, 500
	ch := New[int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ch.Put(base + i)
			}
		}(p * perProducer)
	}

	var mu sync.Mutex
	seen := make(map[int]int)
	var consumers sync.WaitGroup
	for c := 0; c < 3; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				v, ok := ch.Get()
				if !ok {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	ch.Shutdown(false)
	done := make(chan struct{})
	go func() {
		consumers.Wait()
		close(done)
	}()
	await(t, done, "consumers")

	if len(seen) != producers*perProducer {
		t.Fatalf("expected %d distinct items, got %d", producers*perProducer, len(seen))
	}
	for v, count := range seen {
		if count != 1 {
			t.Errorf("item %d delivered %d times", v, count)
		}
		if v < 0 || v >= producers*perProducer {
			t.Errorf("fabricated item %d", v)
		}
	}
}

func TestShutdownOnDone(t *testing.T) {
	ch := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	ch.ShutdownOnDone(ctx, true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Get()
	}()
	stillBlocked(t, done, "get")
	cancel()
	await(t, done, "get after context cancel")
	if ch.State() != StateClosed {
		t.Errorf("expected closed, got %s", ch.State())
	}
}

func TestShutdownOnDoneStop(t *testing.T) {
	ch := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	stop := ch.ShutdownOnDone(ctx, false)
	if !stop() {
		t.Error("expected stop to report the shutdown as pending")
	}
	cancel()
	if ch.State() != StateOpen {
		t.Errorf("expected channel to stay open after stop, got %s", ch.State())
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateOpen: "open", StateDraining: "draining", StateClosed: "closed", State(9): "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}

func timeAfter() <-chan time.Time { return time.After(testTimeout) }
