package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/landlord/internal/prompts"
	"go.uber.org/zap"
)

// Handler is a specialist stage. Expected external failures are absorbed into
// degraded payloads; a returned error means a fault in the handler itself.
type Handler interface {
	ID() HandlerID
	Handle(ctx context.Context, state *State) error
}

// Deps bundles what every specialist needs.
type Deps struct {
	LLM       Completer
	Prompts   *prompts.Registry
	Augmentor *Augmentor
	Logger    *zap.Logger
	Timeout   time.Duration
}

type specialist struct {
	id        HandlerID
	prompt    string
	tools     []Tool
	llm       Completer
	prompts   *prompts.Registry
	augmentor *Augmentor
	logger    *zap.Logger
	timeout   time.Duration
}

func newSpecialist(id HandlerID, prompt string, d Deps, tools []Tool) specialist {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := d.Prompts
	if reg == nil {
		reg = prompts.Default()
	}
	aug := d.Augmentor
	if aug == nil {
		aug = NewAugmentor(logger, 0)
	}
	return specialist{
		id:        id,
		prompt:    prompt,
		tools:     tools,
		llm:       d.LLM,
		prompts:   reg,
		augmentor: aug,
		logger:    logger.Named(string(id)),
		timeout:   d.Timeout,
	}
}

func (s specialist) ID() HandlerID { return s.id }

// answer is a specialist's completion outcome. err is set when the completion
// failed and the handler should fall back to its degraded payload.
type answer struct {
	reply string
	err   error
}

// ask augments input with the handler's tools and sends the rendered prompt.
// A returned error is a prompt fault; completion failures travel in answer.
func (s specialist) ask(ctx context.Context, vars map[string]string) (answer, error) {
	vars["Message"] = s.augmentor.Augment(ctx, vars["Message"], s.tools)
	p, err := s.prompts.Render(s.prompt, vars)
	if err != nil {
		return answer{}, err
	}
	if s.llm == nil {
		return answer{err: Unavailable(errors.New("no completion client configured"))}, nil
	}
	callCtx, cancel := stageContext(ctx, s.timeout)
	defer cancel()
	reply, callErr := s.llm.Complete(callCtx, []Turn{
		{Role: RoleSystem, Content: p.System},
		{Role: RoleHuman, Content: p.User},
	})
	if callErr == nil && strings.TrimSpace(reply) == "" {
		callErr = Malformed(errors.New("empty reply"))
	}
	if callErr != nil {
		s.logger.Warn("completion failed, using fallback payload", zap.Error(callErr))
	}
	return answer{reply: reply, err: callErr}, nil
}

// decodeReply fills dst from the JSON object in reply. It reports false when
// the reply carries no decodable object.
func decodeReply(reply string, dst interface{}) bool {
	return decodeJSONObject(reply, dst) == nil
}

// AssetAnalysis is stored under MetaAssetAnalysis.
type AssetAnalysis struct {
	Analysis        string      `json:"analysis"`
	Recommendations []string    `json:"recommendations"`
	EstimatedValue  string      `json:"estimated_value,omitempty"`
	Confidence      interface{} `json:"confidence,omitempty"`
	Degraded        bool        `json:"degraded"`
}

func assetFallback() AssetAnalysis {
	return AssetAnalysis{
		Analysis:        "Unable to analyze asset information right now. Your request has been recorded.",
		Recommendations: []string{"Contact support for assistance"},
		Confidence:      0,
		Degraded:        true,
	}
}

// AssetHandler answers property and valuation questions.
type AssetHandler struct{ specialist }

// NewAssetHandler builds the asset specialist. tools augment the input.
func NewAssetHandler(d Deps, tools ...Tool) *AssetHandler {
	return &AssetHandler{newSpecialist(HandlerAsset, prompts.Asset, d, tools)}
}

func (h *AssetHandler) Handle(ctx context.Context, state *State) error {
	ans, err := h.ask(ctx, map[string]string{"Message": state.LatestHuman().Content})
	if err != nil {
		return err
	}
	reply := ans.reply
	var analysis AssetAnalysis
	if ans.err != nil {
		analysis = assetFallback()
		reply = analysis.Analysis
	} else if !decodeReply(reply, &analysis) {
		analysis = AssetAnalysis{Analysis: reply}
	}
	state.Append(RoleAssistant, reply)
	state.Set(MetaAssetAnalysis, analysis)
	return nil
}

// TaxationAnalysis is stored under MetaTaxationAnalysis.
type TaxationAnalysis struct {
	Summary            string   `json:"summary"`
	TaxImplications    []string `json:"tax_implications"`
	Recommendations    []string `json:"recommendations"`
	EstimatedLiability string   `json:"estimated_liability,omitempty"`
	Degraded           bool     `json:"degraded"`
}

func taxationFallback() TaxationAnalysis {
	return TaxationAnalysis{
		Summary:            "Unable to generate the tax report right now. Your request has been recorded.",
		TaxImplications:    []string{"Contact tax advisor for assistance"},
		Recommendations:    []string{"Schedule consultation"},
		EstimatedLiability: "Unknown",
		Degraded:           true,
	}
}

// TaxationHandler produces tax reports and persists them.
type TaxationHandler struct {
	specialist
	reports ReportStore
}

// NewTaxationHandler builds the taxation specialist. reports may be nil.
func NewTaxationHandler(d Deps, reports ReportStore, tools ...Tool) *TaxationHandler {
	return &TaxationHandler{specialist: newSpecialist(HandlerTaxation, prompts.Taxation, d, tools), reports: reports}
}

func (h *TaxationHandler) Handle(ctx context.Context, state *State) error {
	ans, err := h.ask(ctx, map[string]string{
		"Message":       state.LatestHuman().Content,
		"FinancialData": "Not provided",
	})
	if err != nil {
		return err
	}
	reply := ans.reply
	var analysis TaxationAnalysis
	if ans.err != nil {
		analysis = taxationFallback()
		reply = analysis.Summary
	} else if !decodeReply(reply, &analysis) {
		analysis = TaxationAnalysis{Summary: reply}
	}
	state.Append(RoleAssistant, reply)
	state.Set(MetaTaxationAnalysis, analysis)

	if h.reports != nil {
		id, err := h.reports.SaveTaxReport(context.WithoutCancel(ctx), state.String(MetaMessageID), analysis)
		if err != nil {
			h.logger.Warn("persist tax report failed", zap.Error(err))
		} else {
			state.Set(MetaReportID, id)
		}
	}
	return nil
}

// EmailDraft is stored under MetaEmailDraft.
type EmailDraft struct {
	Draft    string `json:"draft"`
	Degraded bool   `json:"degraded"`
}

// EmailDraftHandler writes an email to a maintenance worker.
type EmailDraftHandler struct{ specialist }

// NewEmailDraftHandler builds the email drafting specialist.
func NewEmailDraftHandler(d Deps, tools ...Tool) *EmailDraftHandler {
	return &EmailDraftHandler{newSpecialist(HandlerEmailDrafter, prompts.EmailDrafter, d, tools)}
}

func (h *EmailDraftHandler) Handle(ctx context.Context, state *State) error {
	text := state.LatestHuman().Content
	ans, err := h.ask(ctx, map[string]string{"Message": text})
	if err != nil {
		return err
	}
	draft := EmailDraft{Draft: strings.TrimSpace(ans.reply)}
	if ans.err != nil {
		draft = EmailDraft{Draft: fallbackEmail(text), Degraded: true}
	}
	state.Append(RoleAssistant, draft.Draft)
	state.Set(MetaEmailDraft, draft)
	return nil
}

func fallbackEmail(details string) string {
	return fmt.Sprintf(`Subject: Maintenance request

Hello,

We have a maintenance issue at one of our properties and would like to arrange a visit.

%s

Please reply with your earliest availability and an estimated cost.

Best regards,
Property Management

(This draft was generated from a template because the writing assistant is unavailable.)`, strings.TrimSpace(details))
}

// GeneralHandler is the no-op stage for messages that need no specialist.
type GeneralHandler struct{}

func (GeneralHandler) ID() HandlerID { return HandlerGeneral }

func (GeneralHandler) Handle(context.Context, *State) error {
	return nil
}
