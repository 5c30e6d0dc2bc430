package core

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// pipelineMetrics holds the controller's instruments. Nil counters record nothing.
type pipelineMetrics struct {
	runs        otelmetric.Int64Counter
	fallbacks   otelmetric.Int64Counter
	handlerRuns otelmetric.Int64Counter
}

func newPipelineMetrics(meter otelmetric.Meter, logger *zap.Logger) pipelineMetrics {
	var m pipelineMetrics
	var err error
	m.runs, err = meter.Int64Counter(
		"pipeline_runs_total",
		otelmetric.WithDescription("Pipeline runs by outcome"),
	)
	if err != nil {
		logger.Warn("create counter failed", zap.String("name", "pipeline_runs_total"), zap.Error(err))
	}
	m.fallbacks, err = meter.Int64Counter(
		"classifier_fallbacks_total",
		otelmetric.WithDescription("Classifier decisions taken without a usable model reply"),
	)
	if err != nil {
		logger.Warn("create counter failed", zap.String("name", "classifier_fallbacks_total"), zap.Error(err))
	}
	m.handlerRuns, err = meter.Int64Counter(
		"handler_runs_total",
		otelmetric.WithDescription("Specialist handler executions"),
	)
	if err != nil {
		logger.Warn("create counter failed", zap.String("name", "handler_runs_total"), zap.Error(err))
	}
	return m
}

func (m pipelineMetrics) run(ctx context.Context, outcome string) {
	if m.runs != nil {
		m.runs.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// classified counts decisions that did not come from a parsed model reply.
func (m pipelineMetrics) classified(ctx context.Context, mode string) {
	reason := ""
	switch mode {
	case ModeParseFallback:
		reason = "malformed"
	case ModeServiceFallback:
		reason = "unavailable"
	}
	if reason == "" || m.fallbacks == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
}

func (m pipelineMetrics) handled(ctx context.Context, handler HandlerID, state *State) {
	if m.handlerRuns != nil {
		m.handlerRuns.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("handler", string(handler)),
			attribute.Bool("degraded", degradedPayload(state)),
		))
	}
}

// degradedPayload reports whether any handler payload in state was produced
// by a fallback.
func degradedPayload(state *State) bool {
	for _, key := range HandlerMetaKeys {
		if d, ok := state.Metadata[key].(interface{ degraded() bool }); ok && d.degraded() {
			return true
		}
	}
	return false
}

func (a AssetAnalysis) degraded() bool       { return a.Degraded }
func (a TaxationAnalysis) degraded() bool    { return a.Degraded }
func (a MaintenanceAnalysis) degraded() bool { return a.Degraded }
func (d EmailDraft) degraded() bool          { return d.Degraded }
