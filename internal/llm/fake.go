package llm

import (
	"context"
	"errors"
)

// FakeClient is an in-memory Client driven by a scripted chunk sequence
// and/or error, for exercising StageRunner and CouncilOrchestrator without
// a live provider. It is exported (not a _test.go file) so other packages'
// tests can construct scripted councils.
type FakeClient struct {
	// Chunks is streamed verbatim by Stream, each as its own Chunk.
	Chunks []string
	// CompleteText is returned verbatim by Complete when Err is nil.
	CompleteText string
	// Err, if set, is returned as the terminal error from both Stream and
	// Complete.
	Err error
	// Delay, if non-nil, is called before each chunk send, which then blocks
	// until the returned channel fires or ctx is cancelled, for exercising
	// timeout and cancellation paths.
	Delay func() <-chan struct{}
}

// NewFakeClient builds a FakeClient that streams chunks and completes with
// their concatenation, with no error.
func NewFakeClient(chunks ...string) *FakeClient {
	text := ""
	for _, c := range chunks {
		text += c
	}
	return &FakeClient{Chunks: chunks, CompleteText: text}
}

// NewFailingFakeClient builds a FakeClient whose every call fails with err.
func NewFailingFakeClient(err error) *FakeClient {
	if err == nil {
		err = errors.New("fake: unspecified failure")
	}
	return &FakeClient{Err: err}
}

func (f *FakeClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return f.CompleteText, nil
}

func (f *FakeClient) Stream(ctx context.Context, req CompletionRequest) (<-chan Chunk, error) {
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		for _, c := range f.Chunks {
			if f.Delay != nil {
				select {
				case <-ctx.Done():
					ch <- Chunk{Err: ctx.Err()}
					return
				case <-f.Delay():
				}
			}
			select {
			case <-ctx.Done():
				ch <- Chunk{Err: ctx.Err()}
				return
			case ch <- Chunk{Text: c}:
			}
		}
		if f.Err != nil {
			ch <- Chunk{Err: f.Err}
			return
		}
		ch <- Chunk{Done: true}
	}()
	return ch, nil
}
