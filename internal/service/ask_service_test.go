package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/clinrag/internal/ai"
	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
	"github.com/xxxsen/clinrag/internal/vectorindex"
)

type askFixture struct {
	svc      *AskService
	pages    *PageService
	store    *fakePageStore
	reasoner *scriptedReasoner
	embedder *fakeEmbedder
}

func newAskFixture(reasoner *scriptedReasoner) *askFixture {
	index := &fakeIndex{hits: []vectorindex.Hit{
		hit(42, "n1", 0.9, baseTime),
		hit(42, "n2", 0.8, baseTime),
		hit(7, "n3", 0.7, baseTime),
	}}
	embedder := &fakeEmbedder{}
	retrieval := NewRetrievalService(embedder, index, newFakePatients(patient(42), patient(7)), testRetrievalConfig())
	store := newFakePageStore()
	pages := NewPageService(store)
	return &askFixture{
		svc:      NewAskService(retrieval, reasoner, pages, 100),
		pages:    pages,
		store:    store,
		reasoner: reasoner,
		embedder: embedder,
	}
}

func collect(t *testing.T, stream *EventStream) []Event {
	t.Helper()
	events := make([]Event, 0)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func requireSingleTerminal(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)
	terminals := 0
	for i, ev := range events {
		if ev.Type == EventAnswer || ev.Type == EventError {
			terminals++
			require.Equal(t, len(events)-1, i, "terminal event must be last")
		}
	}
	require.Equal(t, 1, terminals)
}

func TestStreamStepsThenAnswer(t *testing.T) {
	reasoner := &scriptedReasoner{
		steps:  []model.ReasoningStep{{Step: "review labs", Reasoning: "r1"}, {Step: "check meds", Reasoning: "r2"}},
		answer: &model.Answer{Answer: "pneumonia", Reasoning: "x-ray"},
	}
	f := newAskFixture(reasoner)
	stream, err := f.svc.Stream(context.Background(), testSession(), AskRequest{Query: "What is the diagnosis?", PatientID: int64Ptr(42)})
	require.NoError(t, err)
	events := collect(t, stream)
	requireSingleTerminal(t, events)

	require.Len(t, events, 4)
	require.Equal(t, EventPageID, events[0].Type)
	require.Equal(t, EventStep, events[1].Type)
	require.Equal(t, EventStep, events[2].Type)
	require.Equal(t, EventAnswer, events[3].Type)
	require.Equal(t, "pneumonia", events[3].Content.(*model.Answer).Answer)

	pageID := events[0].Content.(PageIDContent).PageID
	page, err := f.pages.Get(context.Background(), testSession(), pageID)
	require.NoError(t, err)
	require.Equal(t, "pneumonia", page.QueryAnswers[0].Answer.Answer)
	require.Len(t, page.QueryAnswers[0].Query.Steps, 2)

	require.Equal(t, []ai.Mode{ai.ModePatient}, reasoner.modes)
	require.Contains(t, reasoner.notes[0], "text of n1")
	require.NotContains(t, reasoner.notes[0], "text of n3")
	require.Equal(t, reasoner.steps, reasoner.gotSteps)
}

func TestStreamZeroStepsProceedsToAnswer(t *testing.T) {
	reasoner := &scriptedReasoner{steps: []model.ReasoningStep{}, answer: &model.Answer{Answer: "a"}}
	f := newAskFixture(reasoner)
	stream, err := f.svc.Stream(context.Background(), testSession(), AskRequest{Query: "q"})
	require.NoError(t, err)
	events := collect(t, stream)
	requireSingleTerminal(t, events)
	require.Len(t, events, 2)
	require.Equal(t, EventAnswer, events[1].Type)
	require.Equal(t, []ai.Mode{ai.ModeGeneral}, reasoner.modes)
	require.Equal(t, 0, f.embedder.calls)
}

func TestStreamErrorLeavesAnswerUnset(t *testing.T) {
	tests := []struct {
		name     string
		reasoner *scriptedReasoner
		embedErr error
		kind     string
	}{
		{
			name:     "answer timeout",
			reasoner: &scriptedReasoner{steps: []model.ReasoningStep{{Step: "s"}}, answerErr: appErr.NewUpstreamError(appErr.ServiceLLM, appErr.UpstreamTimeout, context.DeadlineExceeded)},
			kind:     "upstream_timeout",
		},
		{
			name:     "steps bad response",
			reasoner: &scriptedReasoner{stepsErr: appErr.BadResponse(appErr.ServiceLLM, "no json")},
			kind:     "upstream_bad_response",
		},
		{
			name:     "embedding down",
			reasoner: &scriptedReasoner{answer: &model.Answer{Answer: "a"}},
			embedErr: appErr.NewUpstreamError(appErr.ServiceEmbedding, appErr.UpstreamUnavailable, errors.New("down")),
			kind:     "upstream_unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAskFixture(tt.reasoner)
			f.embedder.err = tt.embedErr
			stream, err := f.svc.Stream(context.Background(), testSession(), AskRequest{Query: "q", PatientID: int64Ptr(42)})
			require.NoError(t, err)
			events := collect(t, stream)
			requireSingleTerminal(t, events)
			last := events[len(events)-1]
			require.Equal(t, EventError, last.Type)
			require.Equal(t, tt.kind, last.Content.(ErrorContent).Kind)
			for _, ev := range events {
				require.NotEqual(t, EventAnswer, ev.Type)
			}

			pageID := events[0].Content.(PageIDContent).PageID
			page, err := f.pages.Get(context.Background(), testSession(), pageID)
			require.NoError(t, err)
			require.Nil(t, page.QueryAnswers[0].Answer)
		})
	}
}

func TestStreamCloseDiscardsAnswer(t *testing.T) {
	reasoner := &scriptedReasoner{
		steps:      []model.ReasoningStep{},
		answer:     &model.Answer{Answer: "late"},
		answerWait: make(chan struct{}),
	}
	f := newAskFixture(reasoner)
	stream, err := f.svc.Stream(context.Background(), testSession(), AskRequest{Query: "q"})
	require.NoError(t, err)

	first := <-stream.Events()
	require.Equal(t, EventPageID, first.Type)
	stream.Close()
	for range stream.Events() {
	}

	pageID := first.Content.(PageIDContent).PageID
	page, err := f.pages.Get(context.Background(), testSession(), pageID)
	require.NoError(t, err)
	require.Nil(t, page.QueryAnswers[0].Answer)
}

func TestStreamValidation(t *testing.T) {
	f := newAskFixture(&scriptedReasoner{})
	_, err := f.svc.Stream(context.Background(), testSession(), AskRequest{Query: ""})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = f.svc.Stream(context.Background(), testSession(), AskRequest{Query: string(make([]byte, 101))})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = f.svc.Stream(context.Background(), Session{}, AskRequest{Query: "q"})
	require.ErrorIs(t, err, appErr.ErrUnauthorized)
}

func TestStreamUnknownPageIsSingleError(t *testing.T) {
	f := newAskFixture(&scriptedReasoner{answer: &model.Answer{Answer: "a"}})
	stream, err := f.svc.Stream(context.Background(), testSession(), AskRequest{Query: "q", PageID: "missing"})
	require.NoError(t, err)
	events := collect(t, stream)
	require.Len(t, events, 1)
	require.Equal(t, EventError, events[0].Type)
	require.Equal(t, "not_found", events[0].Content.(ErrorContent).Kind)
}

func TestFollowUpReusesAppendedEntry(t *testing.T) {
	reasoner := &scriptedReasoner{steps: []model.ReasoningStep{}, answer: &model.Answer{Answer: "none known"}}
	f := newAskFixture(reasoner)
	ctx := context.Background()
	page, err := f.pages.Create(ctx, testSession(), "What is the diagnosis?", int64Ptr(42))
	require.NoError(t, err)
	_, _, err = f.pages.Append(ctx, testSession(), page.ID, "Any allergies?", nil)
	require.NoError(t, err)

	stream, err := f.svc.Stream(ctx, testSession(), AskRequest{Query: "Any allergies?", PageID: page.ID})
	require.NoError(t, err)
	events := collect(t, stream)
	requireSingleTerminal(t, events)
	require.Len(t, events, 1)
	require.Equal(t, EventAnswer, events[0].Type)

	got, err := f.pages.Get(ctx, testSession(), page.ID)
	require.NoError(t, err)
	require.Len(t, got.QueryAnswers, 2)
	require.Equal(t, "none known", got.QueryAnswers[1].Answer.Answer)
	require.Equal(t, []ai.Mode{ai.ModePatient}, reasoner.modes)
}

func TestFollowUpAppendsNewQuestion(t *testing.T) {
	reasoner := &scriptedReasoner{steps: []model.ReasoningStep{}, answer: &model.Answer{Answer: "ok"}}
	f := newAskFixture(reasoner)
	ctx := context.Background()
	page, err := f.pages.Create(ctx, testSession(), "first", nil)
	require.NoError(t, err)

	result, err := f.svc.GenerateAnswer(ctx, testSession(), AskRequest{Query: "second", PageID: page.ID})
	require.NoError(t, err)
	require.Equal(t, 1, result.Index)

	got, err := f.pages.Get(ctx, testSession(), page.ID)
	require.NoError(t, err)
	require.Len(t, got.QueryAnswers, 2)
	require.Nil(t, got.QueryAnswers[0].Answer)
	require.Equal(t, "ok", got.QueryAnswers[1].Answer.Answer)
}

func TestGenerateStepsStopsAtSteps(t *testing.T) {
	reasoner := &scriptedReasoner{steps: []model.ReasoningStep{}, answer: &model.Answer{Answer: "unused"}}
	f := newAskFixture(reasoner)
	ctx := context.Background()
	result, err := f.svc.GenerateSteps(ctx, testSession(), AskRequest{Query: "q", PatientID: int64Ptr(42)})
	require.NoError(t, err)
	require.Empty(t, result.Steps)

	page, err := f.pages.Get(ctx, testSession(), result.PageID)
	require.NoError(t, err)
	require.Nil(t, page.QueryAnswers[0].Answer)
	require.Nil(t, reasoner.gotSteps)
}

func TestGenerateAnswerUsesSuppliedSteps(t *testing.T) {
	reasoner := &scriptedReasoner{answer: &model.Answer{Answer: "a"}}
	f := newAskFixture(reasoner)
	steps := []model.ReasoningStep{{Step: "given", Reasoning: "by caller"}}
	result, err := f.svc.GenerateAnswer(context.Background(), testSession(), AskRequest{Query: "q", Steps: steps})
	require.NoError(t, err)
	require.Equal(t, "a", result.Answer.Answer)
	require.Equal(t, steps, reasoner.gotSteps)
	require.Equal(t, 0, reasoner.stepCalls)
}
