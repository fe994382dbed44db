package council

import (
	"context"
	"sync"
	"sync/atomic"

	domain "github.com/modelcouncil/council/pkg/council"
)

// DefaultOutputBufferSize is the recommended bound on the multiplexer's
// content-bearing lane (§5: "recommended 128 events").
const DefaultOutputBufferSize = 128

const highPriBuffer = 32

// Multiplexer merges events from many concurrent stage producers onto one
// ordered output channel. It is grounded on the two-lane high/low priority
// design used elsewhere in this codebase for backpressure: lifecycle
// events (stage_update, review, complete, error) take a small
// non-droppable high-priority lane, while streaming content chunks
// (model_response, final_response) take a larger low-priority lane.
//
// Unlike that design, this Multiplexer's low-priority lane never silently
// drops: P4 requires that the concatenation of delivered chunks exactly
// equal the persisted text, so a full buffer here manifests as producer
// suspension (§5 backpressure), not as a dropped event.
type Multiplexer struct {
	highPri chan domain.Event
	lowPri  chan domain.Event
	out     chan domain.Event

	seq    uint64
	closed atomic.Bool
	once   sync.Once
}

// NewMultiplexer builds a Multiplexer and starts its merge loop. bufSize
// bounds the low-priority (content) lane; DefaultOutputBufferSize is used
// if bufSize <= 0.
func NewMultiplexer(bufSize int) *Multiplexer {
	if bufSize <= 0 {
		bufSize = DefaultOutputBufferSize
	}
	m := &Multiplexer{
		highPri: make(chan domain.Event, highPriBuffer),
		lowPri:  make(chan domain.Event, bufSize),
		out:     make(chan domain.Event, bufSize),
	}
	go m.mergeLoop()
	return m
}

// Output returns the ordered, read-only event stream.
func (m *Multiplexer) Output() <-chan domain.Event {
	return m.out
}

func isLifecycle(t domain.EventType) bool {
	switch t {
	case domain.EventStageUpdate, domain.EventReview, domain.EventComplete, domain.EventError:
		return true
	default:
		return false
	}
}

// Emit assigns the next sequence number to e and delivers it on the
// appropriate lane, suspending the caller if that lane is full. It
// returns ctx.Err() if ctx is cancelled before delivery.
func (m *Multiplexer) Emit(ctx context.Context, e domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Sequence = atomic.AddUint64(&m.seq, 1)

	lane := m.lowPri
	if isLifecycle(e.Type) {
		lane = m.highPri
	}

	select {
	case lane <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new events and signals the merge loop to drain
// and exit. It is safe to call multiple times.
func (m *Multiplexer) Close() {
	m.once.Do(func() {
		m.closed.Store(true)
		close(m.highPri)
		close(m.lowPri)
	})
}

// mergeLoop always prefers the high-priority lane, checking it
// non-blockingly first so lifecycle events never wait behind a backlog of
// content chunks, then blocks on whichever lane has something next.
func (m *Multiplexer) mergeLoop() {
	defer close(m.out)

	highOpen, lowOpen := true, true
	for highOpen || lowOpen {
		if highOpen {
			select {
			case e, ok := <-m.highPri:
				if !ok {
					highOpen = false
					continue
				}
				m.out <- e
				continue
			default:
			}
		}

		switch {
		case highOpen && lowOpen:
			select {
			case e, ok := <-m.highPri:
				if !ok {
					highOpen = false
					continue
				}
				m.out <- e
			case e, ok := <-m.lowPri:
				if !ok {
					lowOpen = false
					continue
				}
				m.out <- e
			}
		case highOpen:
			e, ok := <-m.highPri
			if !ok {
				highOpen = false
				continue
			}
			m.out <- e
		case lowOpen:
			e, ok := <-m.lowPri
			if !ok {
				lowOpen = false
				continue
			}
			m.out <- e
		}
	}
}
