package council

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/modelcouncil/council/internal/llm"
	"github.com/modelcouncil/council/internal/observability"
	domain "github.com/modelcouncil/council/pkg/council"
)

// ClientResolver looks up the llm.Client that serves a given model id.
type ClientResolver func(modelID string) (llm.Client, bool)

// StageRunner executes one stage of the deliberation: fan-out to the
// stage's participants, per-call and stage-level timeouts, and result
// aggregation. Every partial result it produces is also forwarded to the
// Multiplexer as the corresponding Event.
type StageRunner struct {
	mux            *Multiplexer
	clients        ClientResolver
	perCallTimeout time.Duration
	tracer         *observability.Tracer
}

// NewStageRunner builds a StageRunner that forwards events to mux and
// resolves per-model clients via clients. tracer is shared across the
// whole process (built once in bootstrap, not per turn): constructing a
// fresh SDK TracerProvider per turn would repeatedly clobber the global
// provider otel.SetTracerProvider installs and leak the discarded ones.
// tracer may be nil, in which case spans are opened against a no-op
// tracer and cost nothing.
func NewStageRunner(mux *Multiplexer, clients ClientResolver, perCallTimeout time.Duration, tracer *observability.Tracer) *StageRunner {
	if perCallTimeout <= 0 {
		perCallTimeout = 120 * time.Second
	}
	if tracer == nil {
		tracer = observability.NoopTracer()
	}
	return &StageRunner{mux: mux, clients: clients, perCallTimeout: perCallTimeout, tracer: tracer}
}

// RunStage1 fans the stage-1 prompt out to every councilor concurrently,
// forwarding streamed chunks as model_response events and recording one
// ModelOpinion per councilor. It returns once every councilor has
// finished, errored, or stageDeadline elapses.
func (r *StageRunner) RunStage1(ctx context.Context, councilors []domain.ModelDescriptor, history []domain.ChatMessage, userMessage string, stageDeadline time.Duration) []domain.ModelOpinion {
	stageCtx, cancel := context.WithTimeout(ctx, stageDeadline)
	defer cancel()

	messages := Stage1Messages(history, userMessage)
	opinions := make([]domain.ModelOpinion, len(councilors))

	var wg sync.WaitGroup
	for i, d := range councilors {
		wg.Add(1)
		go func(i int, d domain.ModelDescriptor) {
			defer wg.Done()
			opinions[i] = r.runOneOpinion(stageCtx, d, messages)
		}(i, d)
	}
	wg.Wait()

	return opinions
}

func (r *StageRunner) runOneOpinion(stageCtx context.Context, d domain.ModelDescriptor, messages []llm.CompletionMessage) domain.ModelOpinion {
	spanCtx, span := r.tracer.TraceModelCall(stageCtx, "first_opinions", d.ID)
	defer span.End()

	callCtx, cancel := context.WithTimeout(spanCtx, r.perCallTimeout)
	defer cancel()

	client, ok := r.clients(d.ID)
	if !ok {
		reason := "no client configured for model"
		_ = r.mux.Emit(stageCtx, domain.ErrorEvent(d.ID, reason))
		return domain.ModelOpinion{ModelID: d.ID, Error: reason, FinishedAt: time.Now()}
	}

	req := llm.CompletionRequest{Model: d.ID, Messages: messages}
	ch, err := client.Stream(callCtx, req)
	if err != nil {
		reason := string(llm.ClassifyError(err))
		r.tracer.RecordError(span, err)
		_ = r.mux.Emit(stageCtx, domain.ErrorEvent(d.ID, reason))
		return domain.ModelOpinion{ModelID: d.ID, Error: reason, FinishedAt: time.Now()}
	}

	var text string
	for chunk := range ch {
		if chunk.Err != nil {
			reason := string(llm.ClassifyError(chunk.Err))
			r.tracer.RecordError(span, chunk.Err)
			_ = r.mux.Emit(stageCtx, domain.ErrorEvent(d.ID, reason))
			return domain.ModelOpinion{ModelID: d.ID, Error: reason, FinishedAt: time.Now()}
		}
		if chunk.Text != "" {
			text += chunk.Text
			_ = r.mux.Emit(stageCtx, domain.ModelResponseEvent(d.ID, chunk.Text))
		}
	}

	return domain.ModelOpinion{ModelID: d.ID, Text: text, FinishedAt: time.Now()}
}

// CanonicalOrder returns the non-error opinions sorted by model id
// ascending, the stable canonical order used to assign anonymous labels.
func CanonicalOrder(opinions []domain.ModelOpinion) []domain.ModelOpinion {
	var ok []domain.ModelOpinion
	for _, op := range opinions {
		if !op.Failed() {
			ok = append(ok, op)
		}
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].ModelID < ok[j].ModelID })
	return ok
}

// RunStage2 conducts the anonymized peer-review round: every reviewer
// (every model with a non-error stage-1 opinion) receives the same
// anonymized prompt and its reply is parsed via ParseReview. Reviews are
// emitted in arrival order (the spec's permitted ordering choice), not in
// canonical order.
func (r *StageRunner) RunStage2(ctx context.Context, userMessage string, opinions []domain.ModelOpinion, stageDeadline time.Duration) []domain.ReviewResult {
	stageCtx, cancel := context.WithTimeout(ctx, stageDeadline)
	defer cancel()

	canonical := CanonicalOrder(opinions)
	if len(canonical) == 0 {
		return nil
	}

	ids := make([]string, len(canonical))
	texts := make([]string, len(canonical))
	for i, op := range canonical {
		ids[i] = op.ModelID
		texts[i] = op.Text
	}
	labelToModel, _ := BuildLabelMap(ids)
	labels := make([]string, len(ids))
	for i := range ids {
		labels[i] = Label(i)
	}
	messages := Stage2Messages(userMessage, labels, texts)

	results := make(chan domain.ReviewResult, len(canonical))
	var wg sync.WaitGroup
	for _, reviewer := range canonical {
		wg.Add(1)
		go func(reviewerID string) {
			defer wg.Done()
			results <- r.runOneReview(stageCtx, reviewerID, labelToModel, messages)
		}(reviewer.ModelID)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var reviews []domain.ReviewResult
	for rv := range results {
		reviews = append(reviews, rv)
		_ = r.mux.Emit(stageCtx, domain.ReviewEvent(rv.ReviewerModelID, rv.Rankings, rv.ParseOK))
	}
	return reviews
}

func (r *StageRunner) runOneReview(stageCtx context.Context, reviewerID string, labelToModel map[string]string, messages []llm.CompletionMessage) domain.ReviewResult {
	spanCtx, span := r.tracer.TraceModelCall(stageCtx, "review", reviewerID)
	defer span.End()

	callCtx, cancel := context.WithTimeout(spanCtx, r.perCallTimeout)
	defer cancel()

	client, ok := r.clients(reviewerID)
	if !ok {
		return domain.ReviewResult{ReviewerModelID: reviewerID, ParseOK: false, RawText: "no client configured for model"}
	}

	req := llm.CompletionRequest{Model: reviewerID, Messages: messages}
	text, err := client.Complete(callCtx, req)
	if err != nil {
		r.tracer.RecordError(span, err)
		return domain.ReviewResult{ReviewerModelID: reviewerID, ParseOK: false, RawText: err.Error()}
	}

	return ParseReview(reviewerID, labelToModel, text)
}

// RunStage3 streams the chairman's synthesis, forwarding each chunk as a
// final_response event. A stage deadline truncates (rather than fails)
// the synthesis: whatever prefix was produced is still returned.
func (r *StageRunner) RunStage3(ctx context.Context, chairman domain.ModelDescriptor, history []domain.ChatMessage, userMessage string, opinions []domain.ModelOpinion, reviews []domain.ReviewResult, stageDeadline time.Duration) (string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, stageDeadline)
	defer cancel()

	spanCtx, span := r.tracer.TraceModelCall(stageCtx, "final_response", chairman.ID)
	defer span.End()

	client, ok := r.clients(chairman.ID)
	if !ok {
		err := NewTurnError("", ReasonChairmanFailed, nil)
		r.tracer.RecordError(span, err)
		return "", err
	}

	messages := Stage3Messages(history, userMessage, opinions, reviews)
	req := llm.CompletionRequest{Model: chairman.ID, Messages: messages}

	ch, err := client.Stream(spanCtx, req)
	if err != nil {
		wrapped := NewTurnError("", ReasonChairmanFailed, err)
		r.tracer.RecordError(span, wrapped)
		return "", wrapped
	}

	var text string
	for chunk := range ch {
		if chunk.Err != nil {
			if text == "" {
				return "", NewTurnError("", ReasonChairmanFailed, chunk.Err)
			}
			// A deadline truncation after partial output still completes the turn.
			if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
				return text, nil
			}
			// Any other stream error is a chairman failure; the prefix is
			// returned alongside it so the caller can persist it.
			return text, NewTurnError("", ReasonChairmanFailed, chunk.Err)
		}
		if chunk.Text != "" {
			text += chunk.Text
			_ = r.mux.Emit(stageCtx, domain.FinalResponseEvent(chunk.Text))
		}
	}

	return text, nil
}
