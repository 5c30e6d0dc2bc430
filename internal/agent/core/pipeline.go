package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Inbound is a message handed to the pipeline together with what the caller
// already knows about it. Zero fields are filled in during Accumulate.
type Inbound struct {
	ID         string
	Text       string
	Location   string
	ReceivedAt time.Time
}

// Pipeline runs Accumulate, Classify, Route and Dispatch for one message.
// A Pipeline holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	classifier *Classifier
	handlers   map[HandlerID]Handler
	logger     *zap.Logger
	tracer     trace.Tracer
	meter      otelmetric.Meter
	metrics    pipelineMetrics
	now        func() time.Time
	newID      func() string
}

// PipelineOption customises a Pipeline.
type PipelineOption func(*Pipeline)

// WithMeter records pipeline counters on meter instead of the global provider.
func WithMeter(meter otelmetric.Meter) PipelineOption {
	return func(p *Pipeline) { p.meter = meter }
}

// WithTracer starts stage spans on tracer instead of the global provider.
func WithTracer(tracer trace.Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = tracer }
}

// NewPipeline wires a controller. handlers are keyed by their ID; the general
// no-op handler is registered when absent.
func NewPipeline(classifier *Classifier, handlers []Handler, logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[HandlerID]Handler, len(handlers)+1)
	for _, h := range handlers {
		if h != nil {
			byID[h.ID()] = h
		}
	}
	if _, ok := byID[HandlerGeneral]; !ok {
		byID[HandlerGeneral] = GeneralHandler{}
	}
	p := &Pipeline{
		classifier: classifier,
		handlers:   byID,
		logger:     logger.Named("pipeline"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("landlord/internal/agent/core")
	}
	if p.meter == nil {
		p.meter = otel.Meter("landlord/internal/agent/core")
	}
	p.metrics = newPipelineMetrics(p.meter, p.logger)
	return p
}

// Process runs a raw message through the pipeline.
func (p *Pipeline) Process(ctx context.Context, raw string) (*State, error) {
	return p.ProcessMessage(ctx, Inbound{Text: raw})
}

// ProcessMessage runs an inbound message through the pipeline. The returned
// error is always a *ProcessingError and carries the partial state.
func (p *Pipeline) ProcessMessage(ctx context.Context, in Inbound) (*State, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	defer span.End()

	state := NewState(in.Text)
	fail := func(err error) (*State, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.run(ctx, "error")
		p.logger.Error("pipeline run failed", zap.String("message_id", state.String(MetaMessageID)), zap.Error(err))
		return state, err
	}

	if err := p.stage(ctx, "accumulate", state, func(context.Context) error {
		p.accumulate(state, in)
		return nil
	}); err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("message.id", state.String(MetaMessageID)))

	var result ClassificationResult
	if err := p.stage(ctx, "classify", state, func(ctx context.Context) error {
		if p.classifier == nil {
			return errors.New("no classifier configured")
		}
		result = p.classifier.Classify(ctx, state)
		p.metrics.classified(ctx, result.Mode)
		return nil
	}); err != nil {
		return fail(err)
	}

	target := Route(result, state.LatestHuman().Content)
	state.Set(MetaHandler, string(target))
	span.SetAttributes(
		attribute.String("category", string(result.Category)),
		attribute.String("handler", string(target)),
	)
	if target == HandlerTerminate {
		p.logger.Warn("message flagged as malicious",
			zap.String("message_id", state.String(MetaMessageID)),
			zap.String("reason", result.MaliciousReason))
		p.metrics.run(ctx, "terminated")
		span.SetStatus(codes.Ok, "terminated")
		return state, nil
	}

	if err := p.dispatch(ctx, target, state); err != nil {
		return fail(err)
	}

	p.logger.Info("message processed",
		zap.String("message_id", state.String(MetaMessageID)),
		zap.String("category", string(state.Category)),
		zap.String("urgency", state.String(MetaUrgency)),
		zap.String("handler", string(target)))
	p.metrics.run(ctx, "ok")
	span.SetStatus(codes.Ok, "completed")
	return state, nil
}

// accumulate records the turn. Durable storage of the raw message happens in
// the inbox before the pipeline is invoked.
func (p *Pipeline) accumulate(state *State, in Inbound) {
	id := in.ID
	if id == "" {
		id = p.newID()
	}
	received := in.ReceivedAt
	if received.IsZero() {
		received = p.now()
	}
	state.Set(MetaMessageID, id)
	state.Set(MetaReceivedAt, received.UTC().Format(time.RFC3339))
	if loc := strings.TrimSpace(in.Location); loc != "" {
		state.Set(MetaLocation, loc)
	}
}

func (p *Pipeline) dispatch(ctx context.Context, target HandlerID, state *State) error {
	h, ok := p.handlers[target]
	if !ok {
		return &ProcessingError{
			State:   state,
			Stage:   "dispatch",
			Message: fmt.Sprintf("no handler registered for %q", target),
		}
	}
	return p.stage(ctx, "dispatch", state, func(ctx context.Context) error {
		if err := h.Handle(ctx, state); err != nil {
			return err
		}
		p.metrics.handled(ctx, target, state)
		return nil
	})
}

// stage runs fn under its own span. Cancellation is honoured between stages
// only; a panic or returned error becomes a ProcessingError.
func (p *Pipeline) stage(ctx context.Context, name string, state *State, fn func(context.Context) error) (err error) {
	if cerr := ctx.Err(); cerr != nil {
		return &ProcessingError{State: state, Stage: name, Message: "run cancelled", Cause: cerr}
	}
	ctx, span := p.tracer.Start(ctx, "pipeline."+name, trace.WithAttributes(attribute.String("stage", name)))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("stage panicked",
				zap.String("stage", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = &ProcessingError{State: state, Stage: name, Message: "unexpected fault", Cause: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	if ferr := fn(ctx); ferr != nil {
		var pe *ProcessingError
		if errors.As(ferr, &pe) {
			return pe
		}
		return &ProcessingError{State: state, Stage: name, Message: "stage failed", Cause: ferr}
	}
	return nil
}

// WorkerInfo describes the worker an email draft is addressed to.
type WorkerInfo struct {
	Name   string      `json:"name"`
	Type   string      `json:"type"`
	Rating interface{} `json:"rating"`
}

// IssueDetails describes the maintenance issue an email draft is about.
type IssueDetails struct {
	Description string `json:"description"`
	Urgency     string `json:"urgency"`
	Location    string `json:"location"`
	TenantName  string `json:"tenant_name"`
}

func orNA(v interface{}) string {
	if v == nil {
		return "N/A"
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return "N/A"
	}
	return s
}

// DraftRequestText renders worker and issue details into the message handed
// to the email drafter.
func DraftRequestText(w WorkerInfo, issue IssueDetails) string {
	return fmt.Sprintf(`Worker Information:
- Name: %s
- Type: %s
- Rating: %s

Issue Details:
- Description: %s
- Urgency: %s
- Location: %s
- Tenant Name: %s`,
		orNA(w.Name), orNA(w.Type), orNA(w.Rating),
		orNA(issue.Description), orNA(issue.Urgency), orNA(issue.Location), orNA(issue.TenantName))
}

// DraftEmail runs the email drafter directly, bypassing classification.
func (p *Pipeline) DraftEmail(ctx context.Context, w WorkerInfo, issue IssueDetails) (*State, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.draft_email")
	defer span.End()

	state := NewState(DraftRequestText(w, issue))
	p.accumulate(state, Inbound{Location: issue.Location})
	state.Category = CategoryEmailDrafter
	state.Set(MetaCategory, string(CategoryEmailDrafter))
	state.Set(MetaSelectedWorker, w)
	state.Set(MetaIssueDetails, issue)
	state.Set(MetaHandler, string(HandlerEmailDrafter))
	if u := strings.ToLower(strings.TrimSpace(issue.Urgency)); u != "" {
		state.Set(MetaUrgency, string(InferUrgency(u)))
	}

	if err := p.dispatch(ctx, HandlerEmailDrafter, state); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("email draft failed", zap.Error(err))
		return state, err
	}
	span.SetStatus(codes.Ok, "completed")
	return state, nil
}
