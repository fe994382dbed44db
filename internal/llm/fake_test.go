package llm

import (
	"context"
	"errors"
	"testing"
)

func TestFakeClientStreamsChunksAndCompletes(t *testing.T) {
	c := NewFakeClient("Hel", "lo")

	ch, err := c.Stream(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	text, err := Drain(ch)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if text != "Hello" {
		t.Fatalf("text = %q, want %q", text, "Hello")
	}

	full, err := c.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if full != "Hello" {
		t.Fatalf("Complete() = %q, want %q", full, "Hello")
	}
}

func TestFakeClientFailure(t *testing.T) {
	cause := errors.New("boom")
	c := NewFailingFakeClient(cause)

	if _, err := c.Complete(context.Background(), CompletionRequest{}); !errors.Is(err, cause) {
		t.Fatalf("Complete() err = %v, want %v", err, cause)
	}

	ch, err := c.Stream(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, err := Drain(ch); !errors.Is(err, cause) {
		t.Fatalf("Drain() err = %v, want %v", err, cause)
	}
}

func TestFakeClientStreamRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &FakeClient{Chunks: []string{"a", "b", "c"}, Delay: func() <-chan struct{} {
		cancel()
		return make(chan struct{})
	}}
	ch, _ := c.Stream(ctx, CompletionRequest{})
	_, err := Drain(ch)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Drain() err = %v, want context.Canceled", err)
	}
}
