package ai

import (
	"fmt"
	"strings"

	"github.com/xxxsen/clinrag/internal/model"
)

type Mode string

const (
	ModeGeneral Mode = "general"
	ModePatient Mode = "patient"
)

const stepsFormat = `{"steps": [{"step": "<short description of the step>", "reasoning": "<why this step is needed>"}]}`

const answerFormat = `{"answer": "<the answer to the query>", "reasoning": "<the reasoning for the answer>"}`

const generalStepsTemplate = `You are an AI assistant for doctors and clinical researchers.
Break the medical query below into the ordered reasoning steps needed to answer it.
- Keep each step short and concrete.
- Return an empty list when the query needs no decomposition.
- Output ONLY a JSON object in this format, no extra text:
%s

QUERY:
%s`

const patientStepsTemplate = `You are an AI assistant for doctors and clinical researchers.
Break the query about a specific patient into the ordered reasoning steps needed to answer it from the patient notes.
- Keep each step short and concrete.
- Refer to the notes when a step depends on them.
- Return an empty list when the query needs no decomposition.
- Output ONLY a JSON object in this format, no extra text:
%s

PATIENT NOTES:
%s

QUERY:
%s`

const generalAnswerTemplate = `You are an AI assistant for doctors and clinical researchers.
Your task is to answer complex medical queries including summarization, biomarkers extraction, medical question answering, deidentification, etc.
%s
QUERY:
%s

Your response MUST be a valid JSON object in this format, with no other text or formatting:
%s`

const patientAnswerTemplate = `You are an AI assistant for doctors and clinical researchers.
Your task is to answer complex medical queries about a specific patient.
You must answer the query based on the provided patient notes.

PATIENT NOTES:
%s
%s
QUERY:
%s

Your response MUST be a valid JSON object in this format, with no other text or formatting:
%s`

func buildStepsPrompt(mode Mode, query, notes string) string {
	if mode == ModePatient {
		return fmt.Sprintf(patientStepsTemplate, stepsFormat, notes, query)
	}
	return fmt.Sprintf(generalStepsTemplate, stepsFormat, query)
}

func buildAnswerPrompt(mode Mode, query, notes string, steps []model.ReasoningStep) string {
	stepsBlock := formatSteps(steps)
	if mode == ModePatient {
		return fmt.Sprintf(patientAnswerTemplate, notes, stepsBlock, query, answerFormat)
	}
	return fmt.Sprintf(generalAnswerTemplate, stepsBlock, query, answerFormat)
}

func formatSteps(steps []model.ReasoningStep) string {
	if len(steps) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\nFollow these reasoning steps:\n")
	for i, step := range steps {
		fmt.Fprintf(&sb, "%d. %s", i+1, step.Step)
		if step.Reasoning != "" {
			fmt.Fprintf(&sb, " (%s)", step.Reasoning)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
