package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xxxsen/clinrag/internal/ai"
	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

// Reasoner runs the two generation stages. ai.Manager implements it.
type Reasoner interface {
	Steps(ctx context.Context, mode ai.Mode, query string, notes string) ([]model.ReasoningStep, error)
	Answer(ctx context.Context, mode ai.Mode, query string, notes string, steps []model.ReasoningStep) (*model.Answer, error)
}

type AskRequest struct {
	Query     string                `json:"query"`
	PatientID *int64                `json:"patient_id,omitempty"`
	PageID    string                `json:"page_id,omitempty"`
	Steps     []model.ReasoningStep `json:"steps,omitempty"`
}

type StepsResult struct {
	PageID string                `json:"page_id"`
	Index  int                   `json:"index"`
	Steps  []model.ReasoningStep `json:"steps"`
}

type AnswerResult struct {
	PageID string                `json:"page_id"`
	Index  int                   `json:"index"`
	Steps  []model.ReasoningStep `json:"steps,omitempty"`
	Answer *model.Answer         `json:"answer"`
}

type AskService struct {
	retrieval     *RetrievalService
	reasoner      Reasoner
	pages         *PageService
	maxInputChars int
}

func NewAskService(retrieval *RetrievalService, reasoner Reasoner, pages *PageService, maxInputChars int) *AskService {
	return &AskService{retrieval: retrieval, reasoner: reasoner, pages: pages, maxInputChars: maxInputChars}
}

// askTarget is the page entry a request writes to.
type askTarget struct {
	pageID    string
	index     int
	created   bool
	patientID *int64
}

func (s *AskService) validate(sess Session, req *AskRequest) error {
	if err := sess.validate(); err != nil {
		return err
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return fmt.Errorf("%w: query is required", appErr.ErrInvalid)
	}
	if s.maxInputChars > 0 && utf8.RuneCountInString(req.Query) > s.maxInputChars {
		return fmt.Errorf("%w: query exceeds %d characters", appErr.ErrInvalid, s.maxInputChars)
	}
	return nil
}

// target finds or creates the page entry for the request. Without a page id
// a new page is created. With one, the last entry is reused when it holds the
// same unanswered question, which is what a prior append leaves behind;
// otherwise the question is appended. Follow-ups inherit the patient of the
// first entry.
func (s *AskService) target(ctx context.Context, sess Session, req AskRequest) (*askTarget, error) {
	if req.PageID == "" {
		page, err := s.pages.Create(ctx, sess, req.Query, req.PatientID)
		if err != nil {
			return nil, err
		}
		return &askTarget{pageID: page.ID, index: 0, created: true, patientID: req.PatientID}, nil
	}
	page, err := s.pages.Get(ctx, sess, req.PageID)
	if err != nil {
		return nil, err
	}
	patientID := req.PatientID
	if patientID == nil && len(page.QueryAnswers) > 0 {
		patientID = page.QueryAnswers[0].Query.PatientID
	}
	last := len(page.QueryAnswers) - 1
	if last >= 0 {
		qa := page.QueryAnswers[last]
		if qa.Answer == nil && qa.Query.Query == req.Query {
			if qa.Query.PatientID != nil {
				patientID = qa.Query.PatientID
			}
			return &askTarget{pageID: page.ID, index: last, patientID: patientID}, nil
		}
	}
	_, index, err := s.pages.Append(ctx, sess, req.PageID, req.Query, patientID)
	if err != nil {
		return nil, err
	}
	return &askTarget{pageID: page.ID, index: index, patientID: patientID}, nil
}

// notesFor retrieves patient notes. General questions run without retrieval.
func (s *AskService) notesFor(ctx context.Context, query string, patientID *int64) (ai.Mode, string, error) {
	if patientID == nil {
		return ai.ModeGeneral, "", nil
	}
	set, err := s.retrieval.Retrieve(ctx, query, Scope{PatientID: patientID}, 0)
	if err != nil {
		return "", "", err
	}
	return ai.ModePatient, s.retrieval.FormatContext(set.Results), nil
}

// GenerateSteps only decomposes the query. A zero-step result ends here; the
// caller decides whether to ask for an answer.
func (s *AskService) GenerateSteps(ctx context.Context, sess Session, req AskRequest) (*StepsResult, error) {
	if err := s.validate(sess, &req); err != nil {
		return nil, err
	}
	t, err := s.target(ctx, sess, req)
	if err != nil {
		return nil, err
	}
	mode, notes, err := s.notesFor(ctx, req.Query, t.patientID)
	if err != nil {
		return nil, err
	}
	steps, err := s.reasoner.Steps(ctx, mode, req.Query, notes)
	if err != nil {
		return nil, err
	}
	if _, err := s.pages.AttachSteps(ctx, sess, t.pageID, t.index, steps); err != nil {
		return nil, err
	}
	return &StepsResult{PageID: t.pageID, Index: t.index, Steps: steps}, nil
}

// GenerateAnswer answers directly. Supplied steps are embedded in the prompt;
// without them no step stage runs.
func (s *AskService) GenerateAnswer(ctx context.Context, sess Session, req AskRequest) (*AnswerResult, error) {
	if err := s.validate(sess, &req); err != nil {
		return nil, err
	}
	t, err := s.target(ctx, sess, req)
	if err != nil {
		return nil, err
	}
	mode, notes, err := s.notesFor(ctx, req.Query, t.patientID)
	if err != nil {
		return nil, err
	}
	answer, err := s.reasoner.Answer(ctx, mode, req.Query, notes, req.Steps)
	if err != nil {
		return nil, err
	}
	if _, err := s.pages.AttachAnswer(ctx, sess, t.pageID, t.index, answer, req.Steps); err != nil {
		return nil, err
	}
	return &AnswerResult{PageID: t.pageID, Index: t.index, Steps: req.Steps, Answer: answer}, nil
}

// Stream runs the canonical flow: page bookkeeping, retrieval, steps, then
// the answer, which is persisted before it is emitted. Validation errors are
// returned directly; everything after that arrives as one error event.
// Zero generated steps go straight to the answer.
func (s *AskService) Stream(ctx context.Context, sess Session, req AskRequest) (*EventStream, error) {
	if err := s.validate(sess, &req); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	stream := newEventStream(cancel)
	go s.run(ctx, sess, req, stream)
	return stream, nil
}

func (s *AskService) run(ctx context.Context, sess Session, req AskRequest, stream *EventStream) {
	logger := sess.logger(ctx)
	t, err := s.target(ctx, sess, req)
	if err != nil {
		stream.fail(err)
		return
	}
	logger = logger.With(zap.String("page_id", t.pageID), zap.Int("index", t.index))
	if t.created {
		if !stream.emit(Event{Type: EventPageID, Content: PageIDContent{PageID: t.pageID, Index: t.index}}) {
			stream.fail(appErr.ErrStreamAborted)
			return
		}
	}
	mode, notes, err := s.notesFor(ctx, req.Query, t.patientID)
	if err != nil {
		logger.Error("retrieve context failed", zap.Error(err))
		stream.fail(err)
		return
	}
	steps := req.Steps
	if steps == nil {
		steps, err = s.reasoner.Steps(ctx, mode, req.Query, notes)
		if err != nil {
			logger.Error("generate steps failed", zap.Error(err))
			stream.fail(err)
			return
		}
	}
	for _, step := range steps {
		if !stream.emit(Event{Type: EventStep, Content: step}) {
			stream.fail(appErr.ErrStreamAborted)
			return
		}
	}
	answer, err := s.reasoner.Answer(ctx, mode, req.Query, notes, steps)
	if err != nil {
		logger.Error("generate answer failed", zap.Error(err))
		stream.fail(err)
		return
	}
	if ctx.Err() != nil {
		logger.Info("caller gone, answer discarded")
		stream.fail(fmt.Errorf("%w: %v", appErr.ErrStreamAborted, ctx.Err()))
		return
	}
	if _, err := s.pages.AttachAnswer(ctx, sess, t.pageID, t.index, answer, steps); err != nil {
		logger.Error("persist answer failed", zap.Error(err))
		stream.fail(err)
		return
	}
	logger.Info("answer streamed", zap.Int("steps", len(steps)))
	stream.finish(Event{Type: EventAnswer, Content: answer})
}
