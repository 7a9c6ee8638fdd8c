package ai

import (
	"encoding/json"
	"strings"

	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

type stepsOutput struct {
	Steps *[]model.ReasoningStep `json:"steps"`
}

type answerOutput struct {
	Answer    *string `json:"answer"`
	Reasoning string  `json:"reasoning"`
}

// decodeObject parses model output as a JSON object. Code fences are stripped
// and, when the whole text is not JSON, the span between the first '{' and
// the last '}' is tried.
func decodeObject(output string, dst interface{}) error {
	clean := strings.TrimSpace(output)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	if err := json.Unmarshal([]byte(clean), dst); err == nil {
		return nil
	}
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return appErr.BadResponse(appErr.ServiceLLM, "no json object in model output")
	}
	if err := json.Unmarshal([]byte(clean[start:end+1]), dst); err != nil {
		return appErr.BadResponse(appErr.ServiceLLM, "parse model output: %v", err)
	}
	return nil
}

func parseSteps(output string) ([]model.ReasoningStep, error) {
	var out stepsOutput
	if err := decodeObject(output, &out); err != nil {
		return nil, err
	}
	if out.Steps == nil {
		return nil, appErr.BadResponse(appErr.ServiceLLM, "model output has no steps field")
	}
	steps := make([]model.ReasoningStep, 0, len(*out.Steps))
	for _, step := range *out.Steps {
		step.Step = strings.TrimSpace(step.Step)
		step.Reasoning = strings.TrimSpace(step.Reasoning)
		if step.Step == "" {
			continue
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseAnswer(output string) (*model.Answer, error) {
	var out answerOutput
	if err := decodeObject(output, &out); err != nil {
		return nil, err
	}
	if out.Answer == nil || strings.TrimSpace(*out.Answer) == "" {
		return nil, appErr.BadResponse(appErr.ServiceLLM, "model output has no answer")
	}
	return &model.Answer{
		Answer:    strings.TrimSpace(*out.Answer),
		Reasoning: strings.TrimSpace(out.Reasoning),
	}, nil
}
