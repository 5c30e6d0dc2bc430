package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/landlord/internal/prompts"
	"go.uber.org/zap"
)

// Classifier modes recorded under MetaClassifierMode.
const (
	ModeModel           = "model"
	ModeParseFallback   = "parse_fallback"
	ModeServiceFallback = "service_fallback"
)

// ClassificationResult is the classifier's decision for one message.
type ClassificationResult struct {
	Category        Category `json:"category"`
	Urgency         Urgency  `json:"urgency"`
	Malicious       bool     `json:"is_malicious"`
	MaliciousReason string   `json:"malicious_reason,omitempty"`
	Mode            string   `json:"mode"`
}

// Classifier labels the latest message with a category and urgency. It always
// resolves to a decision: parse failures and service failures fall back to
// deterministic defaults.
type Classifier struct {
	llm     Completer
	prompts *prompts.Registry
	store   ClassificationLog
	logger  *zap.Logger
	timeout time.Duration
}

// NewClassifier builds a Classifier. store may be nil, in which case nothing is persisted.
func NewClassifier(llm Completer, reg *prompts.Registry, store ClassificationLog, logger *zap.Logger, timeout time.Duration) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prompts.Default()
	}
	return &Classifier{llm: llm, prompts: reg, store: store, logger: logger.Named("classifier"), timeout: timeout}
}

type classifierPayload struct {
	Category        string `json:"category"`
	IsMalicious     bool   `json:"is_malicious"`
	MaliciousReason string `json:"malicious_reason"`
}

// Classify resolves the latest message, merges the result into state and
// records it in the classification log.
func (c *Classifier) Classify(ctx context.Context, state *State) ClassificationResult {
	text := state.LatestHuman().Content
	result := c.resolve(ctx, text)

	state.Category = result.Category
	state.Set(MetaCategory, string(result.Category))
	state.Set(MetaUrgency, string(result.Urgency))
	state.Set(MetaMalicious, result.Malicious)
	state.Set(MetaMaliciousReason, result.MaliciousReason)
	state.Set(MetaClassifierMode, result.Mode)

	c.persist(ctx, text, result)
	return result
}

func (c *Classifier) resolve(ctx context.Context, text string) ClassificationResult {
	reply, err := c.complete(ctx, text)
	if err != nil {
		kind := FailureKind(err)
		if errors.Is(kind, ErrMalformedResponse) {
			c.logger.Warn("classifier reply malformed", zap.Error(err))
			return parseFallback()
		}
		c.logger.Warn("completion service unavailable, using keyword heuristic", zap.Error(err))
		return ClassificationResult{
			Category: HeuristicCategory(text),
			Urgency:  UrgencyIntermediate,
			Mode:     ModeServiceFallback,
		}
	}

	result, err := ParseClassification(reply)
	if err != nil {
		c.logger.Warn("parse classifier reply", zap.Error(err), zap.String("reply", reply))
		return parseFallback()
	}
	c.logger.Debug("classified",
		zap.String("category", string(result.Category)),
		zap.String("urgency", string(result.Urgency)),
		zap.Bool("malicious", result.Malicious))
	return result
}

func (c *Classifier) complete(ctx context.Context, text string) (string, error) {
	if c.llm == nil {
		return "", Unavailable(errors.New("no completion client configured"))
	}
	p, err := c.prompts.Render(prompts.Classifier, map[string]string{"Message": text})
	if err != nil {
		return "", fmt.Errorf("render classifier prompt: %w", err)
	}
	callCtx, cancel := stageContext(ctx, c.timeout)
	defer cancel()
	return c.llm.Complete(callCtx, []Turn{
		{Role: RoleSystem, Content: p.System},
		{Role: RoleHuman, Content: p.User},
	})
}

func (c *Classifier) persist(ctx context.Context, text string, result ClassificationResult) {
	if c.store == nil {
		return
	}
	rec := ClassificationRecord{MessageContent: text, Flag: result.Category, Urgency: result.Urgency}
	if err := c.store.InsertClassification(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warn("persist classification failed", zap.Error(err))
	}
}

func parseFallback() ClassificationResult {
	return ClassificationResult{
		Category: CategoryGeneral,
		Urgency:  UrgencyLow,
		Mode:     ModeParseFallback,
	}
}

// ParseClassification decodes a classifier reply. Category is normalised into
// the enumeration; urgency is inferred from the raw reply text.
func ParseClassification(reply string) (ClassificationResult, error) {
	var payload classifierPayload
	if err := decodeJSONObject(reply, &payload); err != nil {
		return ClassificationResult{}, err
	}
	if strings.TrimSpace(payload.Category) == "" {
		return ClassificationResult{}, Malformed(errors.New("category missing"))
	}
	return ClassificationResult{
		Category:        ParseCategory(payload.Category),
		Urgency:         InferUrgency(reply),
		Malicious:       payload.IsMalicious,
		MaliciousReason: payload.MaliciousReason,
		Mode:            ModeModel,
	}, nil
}

// decodeJSONObject decodes the first JSON object embedded in s into dst.
// Code fences and prose on either side are ignored, braces in trailing text
// included.
func decodeJSONObject(s string, dst interface{}) error {
	var first error
	for i := strings.Index(s, "{"); i >= 0; {
		var raw json.RawMessage
		err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&raw)
		if err == nil {
			if err := json.Unmarshal(raw, dst); err != nil {
				return Malformed(err)
			}
			return nil
		}
		if first == nil {
			first = err
		}
		next := strings.Index(s[i+1:], "{")
		if next < 0 {
			break
		}
		i += next + 1
	}
	if first == nil {
		first = errors.New("no JSON object in reply")
	}
	return Malformed(first)
}

// stageContext detaches from caller cancellation so a started call runs to
// completion or to its own deadline.
func stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, timeout)
}
