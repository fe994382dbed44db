package council

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/modelcouncil/council/internal/observability"
	"github.com/modelcouncil/council/internal/registry"
	"github.com/modelcouncil/council/internal/store"
	domain "github.com/modelcouncil/council/pkg/council"
)

// Deadlines bounds every stage and the overall turn. Zero fields fall back
// to the package defaults.
type Deadlines struct {
	PerCall      time.Duration
	Stage1       time.Duration
	Stage2       time.Duration
	Stage3       time.Duration
	Turn         time.Duration
	OutputBuffer int
}

// DefaultDeadlines returns the defaults named in §5.
func DefaultDeadlines() Deadlines {
	return Deadlines{
		PerCall:      120 * time.Second,
		Stage1:       180 * time.Second,
		Stage2:       120 * time.Second,
		Stage3:       180 * time.Second,
		Turn:         600 * time.Second,
		OutputBuffer: DefaultOutputBufferSize,
	}
}

func (d Deadlines) withDefaults() Deadlines {
	def := DefaultDeadlines()
	if d.PerCall <= 0 {
		d.PerCall = def.PerCall
	}
	if d.Stage1 <= 0 {
		d.Stage1 = def.Stage1
	}
	if d.Stage2 <= 0 {
		d.Stage2 = def.Stage2
	}
	if d.Stage3 <= 0 {
		d.Stage3 = def.Stage3
	}
	if d.Turn <= 0 {
		d.Turn = def.Turn
	}
	if d.OutputBuffer <= 0 {
		d.OutputBuffer = def.OutputBuffer
	}
	return d
}

// Request is one call to run(request) per §4.6.
type Request struct {
	UserMessage    string
	ConversationID string
	SelectedModels []string
}

// TurnResult carries the conversation id used and the outcome of the turn,
// delivered to the caller alongside (not instead of) the event stream.
type TurnResult struct {
	ConversationID string
	Turn           domain.CouncilTurn
	Err            error
}

// Orchestrator is the CouncilOrchestrator (C6): the top-level
// INIT→STAGE1→STAGE2→STAGE3→DONE/FAILED state machine, grounded on the
// teacher's multi-agent orchestrator structural pattern of a capability-
// holding struct whose Process method spawns one driving goroutine and
// returns a channel immediately. The handoff/supervisor machinery that
// struct coordinated is replaced entirely by the linear stage sequence
// below.
type Orchestrator struct {
	registry  *registry.Registry
	store     store.Store
	clients   ClientResolver
	deadlines Deadlines
	tracer    *observability.Tracer
}

// NewOrchestrator builds an Orchestrator from its injected capabilities.
// tracer is shared across every turn this Orchestrator drives; the caller
// owns its lifecycle (construction and eventual shutdown), since a turn has
// no business swapping out the process-wide trace provider.
func NewOrchestrator(reg *registry.Registry, st store.Store, clients ClientResolver, deadlines Deadlines, tracer *observability.Tracer) *Orchestrator {
	return &Orchestrator{registry: reg, store: st, clients: clients, deadlines: deadlines.withDefaults(), tracer: tracer}
}

// Run executes one turn, returning immediately with the ordered event
// stream and a channel that receives exactly one TurnResult once the turn
// concludes (successfully, with a fatal error, or by cancellation). The
// event channel is closed when the multiplexer has delivered every event;
// callers should drain it before reading the result channel to avoid a
// goroutine leak, though reading the result first is also safe since it is
// buffered.
func (o *Orchestrator) Run(ctx context.Context, req Request) (<-chan domain.Event, <-chan TurnResult) {
	mux := NewMultiplexer(o.deadlines.OutputBuffer)
	result := make(chan TurnResult, 1)

	go o.drive(ctx, req, mux, result)

	return mux.Output(), result
}

func (o *Orchestrator) drive(ctx context.Context, req Request, mux *Multiplexer, result chan<- TurnResult) {
	defer mux.Close()

	turnCtx, cancel := context.WithTimeout(ctx, o.deadlines.Turn)
	defer cancel()

	turnID := uuid.NewString()

	// INIT: load or create the conversation, then resolve councilors.
	conv, err := o.loadOrCreate(turnCtx, req.ConversationID)
	if err != nil {
		o.fail(turnCtx, mux, result, req.ConversationID, domain.CouncilTurn{TurnID: turnID}, "", err)
		return
	}

	councilors, unknown := o.registry.Resolve(req.SelectedModels)
	for _, id := range unknown {
		_ = mux.Emit(turnCtx, domain.ErrorEvent(id, "unknown_model"))
	}

	if len(councilors) == 0 {
		o.fail(turnCtx, mux, result, conv.ID, domain.CouncilTurn{TurnID: turnID}, "no councilors resolved", nil)
		return
	}

	runner := NewStageRunner(mux, o.clients, o.deadlines.PerCall, o.tracer)

	turn := domain.CouncilTurn{TurnID: turnID, UserMessage: req.UserMessage, StartedAt: time.Now()}

	// STAGE1
	if err := mux.Emit(turnCtx, domain.StageUpdateEvent(domain.StageFirstOpinions)); err != nil {
		o.routeContextDone(turnCtx, mux, result, conv.ID, turn)
		return
	}
	opinions := runner.RunStage1(turnCtx, councilors, conv.Messages, req.UserMessage, o.deadlines.Stage1)
	turn.Opinions = opinions

	if turnCtx.Err() != nil {
		o.routeContextDone(turnCtx, mux, result, conv.ID, turn)
		return
	}
	if allFailed(opinions) {
		o.fail(turnCtx, mux, result, conv.ID, turn, "", NewTurnError(turnID, ReasonNoOpinions, nil))
		return
	}

	// STAGE2
	if err := mux.Emit(turnCtx, domain.StageUpdateEvent(domain.StageReview)); err != nil {
		o.routeContextDone(turnCtx, mux, result, conv.ID, turn)
		return
	}
	turn.Reviews = runner.RunStage2(turnCtx, req.UserMessage, opinions, o.deadlines.Stage2)

	if turnCtx.Err() != nil {
		o.routeContextDone(turnCtx, mux, result, conv.ID, turn)
		return
	}

	// STAGE3
	if err := mux.Emit(turnCtx, domain.StageUpdateEvent(domain.StageFinalResponse)); err != nil {
		o.routeContextDone(turnCtx, mux, result, conv.ID, turn)
		return
	}
	chairman := o.registry.Chairman()
	finalText, err := runner.RunStage3(turnCtx, chairman, conv.Messages, req.UserMessage, opinions, turn.Reviews, o.deadlines.Stage3)
	if turnCtx.Err() != nil {
		o.routeContextDone(turnCtx, mux, result, conv.ID, turn)
		return
	}
	turn.FinalText = finalText
	if err != nil {
		o.fail(turnCtx, mux, result, conv.ID, turn, "", err)
		return
	}
	turn.FinishedAt = time.Now()

	// DONE: persist atomically, then emit complete.
	userMsg := domain.ChatMessage{Role: domain.RoleUser, Content: req.UserMessage, Timestamp: turn.StartedAt}
	assistantMsg := domain.ChatMessage{Role: domain.RoleAssistant, Content: finalText, Timestamp: turn.FinishedAt}
	if err := o.store.AppendTurn(turnCtx, conv.ID, userMsg, turn, assistantMsg); err != nil {
		o.fail(turnCtx, mux, result, conv.ID, turn, "", NewTurnError(turnID, ReasonStoreFailed, err))
		return
	}

	_ = mux.Emit(turnCtx, domain.CompleteEvent())
	result <- TurnResult{ConversationID: conv.ID, Turn: turn}
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	if conversationID == "" {
		return o.store.Create(ctx)
	}
	conv, err := o.store.Load(ctx, conversationID)
	if err == store.ErrNotFound {
		return o.store.Create(ctx)
	}
	return conv, err
}

func allFailed(opinions []domain.ModelOpinion) bool {
	for _, op := range opinions {
		if !op.Failed() {
			return false
		}
	}
	return true
}

// routeContextDone distinguishes the turn-wide deadline (Tturn, §5) from a
// caller-severed stream: context.DeadlineExceeded is a fatal turn_timeout
// that must still emit a terminal error event and persist any partial
// opinions per P5, while context.Canceled is the caller disconnecting and
// must never persist or emit anything further (P7/S6).
func (o *Orchestrator) routeContextDone(ctx context.Context, mux *Multiplexer, result chan<- TurnResult, conversationID string, turn domain.CouncilTurn) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		o.fail(ctx, mux, result, conversationID, turn, string(ReasonTurnTimeout), NewTurnError(turn.TurnID, ReasonTurnTimeout, ctx.Err()))
		return
	}
	o.cancelled(result, conversationID, turn)
}

// fail converts any fatal condition into the terminal error event and, per
// P5, persists the partial turn if stage 1 produced at least one non-error
// opinion. It never re-raises; the orchestrator's only externally visible
// failure signal is the error Event plus the TurnResult.Err. The terminal
// event is always emitted against a background context, not ctx, since
// ctx may already be the very thing that triggered this failure (a turn
// timeout) and Emit would otherwise race ctx.Done() against delivery.
func (o *Orchestrator) fail(ctx context.Context, mux *Multiplexer, result chan<- TurnResult, conversationID string, turn domain.CouncilTurn, reasonOverride string, cause error) {
	reason := reasonOverride
	if reason == "" && cause != nil {
		if te, ok := IsTurnError(cause); ok {
			reason = string(te.Reason)
		} else {
			reason = cause.Error()
		}
	}
	if reason == "" {
		reason = string(ReasonNoOpinions)
	}

	turn.FinishedAt = time.Now()
	hasOpinion := false
	for _, op := range turn.Opinions {
		if !op.Failed() {
			hasOpinion = true
			break
		}
	}
	if hasOpinion {
		userMsg := domain.ChatMessage{Role: domain.RoleUser, Content: turn.UserMessage, Timestamp: turn.StartedAt}
		assistantMsg := domain.ChatMessage{Role: domain.RoleAssistant, Content: turn.FinalText, Timestamp: turn.FinishedAt}
		_ = o.store.AppendTurn(context.Background(), conversationID, userMsg, turn, assistantMsg)
	}

	_ = mux.Emit(context.Background(), domain.ErrorEvent("", reason))
	result <- TurnResult{ConversationID: conversationID, Turn: turn, Err: cause}
}

// cancelled handles the caller-severed-stream path (P7/S6): no terminal
// event is sent, since mux.Emit has already observed ctx.Done and nothing
// would be delivered; the conversation is left untouched.
func (o *Orchestrator) cancelled(result chan<- TurnResult, conversationID string, turn domain.CouncilTurn) {
	result <- TurnResult{ConversationID: conversationID, Turn: turn, Err: ErrCancelled}
}
