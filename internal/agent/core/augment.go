package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Augmentor enriches free text with the output of external tools.
//
// Every tool receives the original text, never another tool's output, so each
// block stays attributable to exactly one tool and the result does not depend
// on execution order. Tools run concurrently; blocks are emitted in the order
// of the tool list.
type Augmentor struct {
	logger  *zap.Logger
	timeout time.Duration
}

// NewAugmentor returns an Augmentor. A zero timeout disables the per-tool deadline.
func NewAugmentor(logger *zap.Logger, timeout time.Duration) *Augmentor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Augmentor{logger: logger.Named("augmentor"), timeout: timeout}
}

type toolOutcome struct {
	result string
	err    error
}

// Augment runs each tool against text and appends labelled blocks. Failures
// become error blocks and never abort. With no tool output at all the input is
// returned unchanged.
func (a *Augmentor) Augment(ctx context.Context, text string, tools []Tool) string {
	if len(tools) == 0 {
		return text
	}
	outcomes := make([]toolOutcome, len(tools))
	var g errgroup.Group
	for i, tool := range tools {
		if tool == nil {
			continue
		}
		g.Go(func() error {
			outcomes[i] = a.run(ctx, tool, text)
			return nil
		})
	}
	_ = g.Wait()

	var blocks []string
	for i, tool := range tools {
		if tool == nil {
			continue
		}
		out := outcomes[i]
		switch {
		case out.err != nil:
			a.logger.Warn("tool failed", zap.String("tool", tool.Name()), zap.Error(out.err))
			blocks = append(blocks, fmt.Sprintf("Error from %s:\n%v", tool.Name(), out.err))
		case strings.TrimSpace(out.result) != "":
			blocks = append(blocks, fmt.Sprintf("Information from %s:\n%s", tool.Name(), out.result))
		}
	}
	if len(blocks) == 0 {
		return text
	}
	return text + "\n\n" + strings.Join(blocks, "\n\n")
}

func (a *Augmentor) run(ctx context.Context, tool Tool, text string) (out toolOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = toolOutcome{err: fmt.Errorf("tool panicked: %v", r)}
		}
	}()
	callCtx := context.WithoutCancel(ctx)
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, a.timeout)
		defer cancel()
	}
	res, err := tool.Run(callCtx, text)
	return toolOutcome{result: res, err: err}
}
