package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"github.com/mohammad-safakhou/landlord/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrRefreshInProgress is returned when another refresh holds the lock.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Inbox captures the store methods required by the refresher.
type Inbox interface {
	Enqueue(ctx context.Context, in store.NewMessage) (store.Message, error)
	ListUnprocessed(ctx context.Context, limit int, exclude ...string) ([]store.Message, error)
	MarkProcessed(ctx context.Context, id string, o store.Outcome) error
	MarkFailed(ctx context.Context, id string, cause string) error
}

// Pipeline runs one inbound message.
type Pipeline interface {
	ProcessMessage(ctx context.Context, in core.Inbound) (*core.State, error)
}

// Result is the outcome of one message in a refresh batch.
type Result struct {
	ID        string `json:"id"`
	Original  string `json:"original"`
	Processed string `json:"processed"`
	Category  string `json:"category,omitempty"`
	Urgency   string `json:"urgency,omitempty"`
	Handler   string `json:"handler,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
}

// Options tunes a Processor. Zero values fall back to defaults. BatchSize is
// the page read from the inbox per round, not a cap on one refresh.
type Options struct {
	BatchSize   int
	Concurrency int
	LockTTL     time.Duration
}

// Processor drains the inbox through the pipeline.
type Processor struct {
	inbox       Inbox
	pipeline    Pipeline
	lock        Locker
	logger      *zap.Logger
	tracer      trace.Tracer
	batchSize   int
	concurrency int
	lockTTL     time.Duration
	counter     otelmetric.Int64Counter
}

// NewProcessor constructs a Processor. A nil lock uses an in-process mutex.
func NewProcessor(inbox Inbox, pipeline Pipeline, lock Locker, logger *zap.Logger, opts Options) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lock == nil {
		lock = NewLocalLocker()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	p := &Processor{
		inbox:       inbox,
		pipeline:    pipeline,
		lock:        lock,
		logger:      logger.Named("refresh"),
		tracer:      otel.Tracer("landlord/internal/worker"),
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		lockTTL:     opts.LockTTL,
	}
	var err error
	p.counter, err = otel.Meter("landlord/internal/worker").Int64Counter("refresh_messages_total",
		otelmetric.WithDescription("Inbox messages handled by refresh, by outcome"))
	if err != nil {
		p.logger.Warn("create refresh counter failed", zap.Error(err))
	}
	return p
}

// Refresh drains the inbox in batches until no unprocessed message is left.
// Results keep inbox order. A message whose run fails stays unprocessed,
// has its attempt counted and is not retried within the same refresh.
func (p *Processor) Refresh(ctx context.Context) ([]Result, error) {
	ctx, span := p.tracer.Start(ctx, "refresh.batch")
	defer span.End()

	release, ok, err := p.lock.TryLock(ctx, p.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !ok {
		return nil, ErrRefreshInProgress
	}
	defer release()

	results := []Result{}
	var seen []string
	for {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("refresh interrupted: %w", err)
		}
		msgs, err := p.inbox.ListUnprocessed(ctx, p.batchSize, seen...)
		if err != nil {
			return results, fmt.Errorf("list unprocessed: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
		results = append(results, p.processBatch(ctx, msgs)...)
		// Every id handled here is skipped for the rest of the refresh, so a
		// failed run or a lost MarkProcessed cannot be picked up again.
		for _, msg := range msgs {
			seen = append(seen, msg.ID)
		}
	}
	span.SetAttributes(attribute.Int("refresh.messages", len(results)))
	p.logger.Info("refresh finished", zap.Int("messages", len(results)))
	return results, nil
}

func (p *Processor) processBatch(ctx context.Context, msgs []store.Message) []Result {
	results := make([]Result, len(msgs))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, msg := range msgs {
		g.Go(func() error {
			results[i] = p.processOne(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Processor) processOne(ctx context.Context, msg store.Message) Result {
	res := Result{ID: msg.ID, Original: msg.Content}
	state, err := p.pipeline.ProcessMessage(ctx, core.Inbound{
		ID:         msg.ID,
		Text:       msg.Content,
		Location:   msg.Location,
		ReceivedAt: msg.ReceivedAt,
	})
	// A fresh context so a cancelled request does not lose a finished run.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err != nil {
		p.logger.Warn("message left unprocessed", zap.String("message_id", msg.ID), zap.Error(err))
		if merr := p.inbox.MarkFailed(markCtx, msg.ID, err.Error()); merr != nil {
			p.logger.Warn("record failed attempt", zap.String("message_id", msg.ID), zap.Error(merr))
		}
		p.record(ctx, "failed")
		res.Processed = core.UserMessage
		res.Failed = true
		return res
	}

	res.Processed = reply(state)
	res.Category = string(state.Category)
	res.Urgency = state.String(core.MetaUrgency)
	res.Handler = state.String(core.MetaHandler)

	if err := p.inbox.MarkProcessed(markCtx, msg.ID, store.Outcome{
		Category: res.Category,
		Urgency:  res.Urgency,
		Handler:  res.Handler,
		Response: res.Processed,
	}); err != nil {
		p.logger.Warn("mark processed failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
	p.record(ctx, "processed")
	return res
}

func (p *Processor) record(ctx context.Context, outcome string) {
	if p.counter != nil {
		p.counter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// reply is the last assistant turn, or "" when no handler answered.
func reply(state *core.State) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == core.RoleAssistant {
			return state.Messages[i].Content
		}
	}
	return ""
}
