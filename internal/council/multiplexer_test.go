package council

import (
	"context"
	"testing"
	"time"

	domain "github.com/modelcouncil/council/pkg/council"
)

func drainAll(t *testing.T, out <-chan domain.Event, timeout time.Duration) []domain.Event {
	t.Helper()
	var events []domain.Event
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-out:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-deadline:
			t.Fatal("timed out draining multiplexer output")
			return nil
		}
	}
}

func TestMultiplexerPreservesAllContentEvents(t *testing.T) {
	mux := NewMultiplexer(4) // small buffer to force backpressure

	ctx := context.Background()
	const n = 50
	go func() {
		for i := 0; i < n; i++ {
			_ = mux.Emit(ctx, domain.ModelResponseEvent("m1", "x"))
		}
		_ = mux.Emit(ctx, domain.CompleteEvent())
		mux.Close()
	}()

	events := drainAll(t, mux.Output(), 2*time.Second)
	count := 0
	for _, e := range events {
		if e.Type == domain.EventModelResponse {
			count++
		}
	}
	if count != n {
		t.Fatalf("delivered %d model_response events, want %d (no silent drops allowed)", count, n)
	}
	if events[len(events)-1].Type != domain.EventComplete {
		t.Fatalf("last event = %q, want complete", events[len(events)-1].Type)
	}
}

func TestMultiplexerPrioritizesLifecycleEvents(t *testing.T) {
	mux := NewMultiplexer(8)
	ctx := context.Background()

	// Fill the low-priority lane with content first.
	for i := 0; i < 8; i++ {
		_ = mux.Emit(ctx, domain.ModelResponseEvent("m1", "x"))
	}
	// Now emit a lifecycle event; it should not be starved behind the backlog.
	_ = mux.Emit(ctx, domain.StageUpdateEvent(domain.StageReview))
	mux.Close()

	events := drainAll(t, mux.Output(), 2*time.Second)
	foundStageUpdateIndex := -1
	for i, e := range events {
		if e.Type == domain.EventStageUpdate {
			foundStageUpdateIndex = i
			break
		}
	}
	if foundStageUpdateIndex == -1 {
		t.Fatal("stage_update event never delivered")
	}
	if foundStageUpdateIndex == len(events)-1 && len(events) > 1 {
		t.Error("stage_update should be interleaved ahead of some backlog, not strictly last")
	}
}

func TestMultiplexerEmitHonorsCancellation(t *testing.T) {
	mux := NewMultiplexer(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Fill the lane so the next send would block, then confirm cancellation unblocks it.
	_ = mux.Emit(context.Background(), domain.ModelResponseEvent("m1", "fill"))
	err := mux.Emit(ctx, domain.ModelResponseEvent("m1", "blocked"))
	if err == nil {
		t.Fatal("expected Emit to return an error for a cancelled context")
	}
}

func TestMultiplexerAssignsMonotonicSequence(t *testing.T) {
	mux := NewMultiplexer(8)
	ctx := context.Background()
	_ = mux.Emit(ctx, domain.StageUpdateEvent(domain.StageFirstOpinions))
	_ = mux.Emit(ctx, domain.ModelResponseEvent("m1", "a"))
	_ = mux.Emit(ctx, domain.ModelResponseEvent("m1", "b"))
	mux.Close()

	events := drainAll(t, mux.Output(), time.Second)
	for i := 1; i < len(events); i++ {
		if events[i].Sequence <= events[i-1].Sequence {
			t.Fatalf("sequence not monotonic at %d: %d <= %d", i, events[i].Sequence, events[i-1].Sequence)
		}
	}
}
