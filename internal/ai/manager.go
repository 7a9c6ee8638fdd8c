package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

type ManagerConfig struct {
	StepsTimeout  time.Duration
	AnswerTimeout time.Duration
}

// Manager runs the two reasoning stages against a streaming generator.
type Manager struct {
	generator IGenerator
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, cfg ManagerConfig) *Manager {
	return &Manager{
		generator: generator,
		cfg:       cfg,
	}
}

// Steps asks the model to decompose the query. An empty slice is a valid
// result.
func (m *Manager) Steps(ctx context.Context, mode Mode, query string, notes string) ([]model.ReasoningStep, error) {
	if m.generator == nil {
		return nil, ErrUnavailable
	}
	output, err := m.generateText(ctx, m.cfg.StepsTimeout, buildStepsPrompt(mode, query, notes))
	if err != nil {
		return nil, err
	}
	steps, err := parseSteps(output)
	if err != nil {
		logutil.GetLogger(ctx).Error("parse cot steps failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, err
	}
	logutil.GetLogger(ctx).Info("cot steps generated", zap.String("mode", string(mode)), zap.Int("steps", len(steps)))
	return steps, nil
}

// Answer synthesizes the final answer. The model output is consumed as a
// stream and only returned once it is complete and parses.
func (m *Manager) Answer(ctx context.Context, mode Mode, query string, notes string, steps []model.ReasoningStep) (*model.Answer, error) {
	if m.generator == nil {
		return nil, ErrUnavailable
	}
	output, err := m.generateText(ctx, m.cfg.AnswerTimeout, buildAnswerPrompt(mode, query, notes, steps))
	if err != nil {
		return nil, err
	}
	answer, err := parseAnswer(output)
	if err != nil {
		logutil.GetLogger(ctx).Error("parse answer failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, err
	}
	return answer, nil
}

func (m *Manager) generateText(ctx context.Context, timeout time.Duration, prompt string) (string, error) {
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var sb strings.Builder
	for chunk, err := range m.generator.GenerateStream(ctx, prompt) {
		if err != nil {
			return "", stageError(parent, ctx, err)
		}
		sb.WriteString(chunk)
	}
	if err := ctx.Err(); err != nil {
		return "", stageError(parent, ctx, err)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", appErr.BadResponse(appErr.ServiceLLM, "empty ai response")
	}
	return text, nil
}

// stageError separates a caller that went away from a stage that ran out of
// time.
func stageError(parent, stage context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %v", appErr.ErrStreamAborted, parent.Err())
	}
	if errors.Is(stage.Err(), context.DeadlineExceeded) {
		return appErr.NewUpstreamError(appErr.ServiceLLM, appErr.UpstreamTimeout, err)
	}
	return appErr.Upstream(appErr.ServiceLLM, err)
}
