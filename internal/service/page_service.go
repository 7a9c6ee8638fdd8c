package service

import (
	"context"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
	"github.com/xxxsen/clinrag/internal/pkg/timeutil"
)

type PageService struct {
	store PageStore
	now   func() int64
}

func NewPageService(store PageStore) *PageService {
	return &PageService{store: store, now: timeutil.NowUnix}
}

// Create starts a page whose single entry is the first query.
func (s *PageService) Create(ctx context.Context, sess Session, query string, patientID *int64) (*model.Page, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.ErrInvalid
	}
	now := s.now()
	page := &model.Page{
		ID:     newID(),
		UserID: sess.UserID,
		QueryAnswers: []model.QueryAnswer{
			{Query: model.Query{Query: query, PatientID: patientID}, IsFirst: true},
		},
		Version: 1,
		Ctime:   now,
		Mtime:   now,
	}
	if err := s.store.Create(ctx, page); err != nil {
		return nil, err
	}
	sess.logger(ctx).Info("page created", zap.String("page_id", page.ID))
	return page, nil
}

// Append adds a follow-up entry and returns the page with its index.
func (s *PageService) Append(ctx context.Context, sess Session, pageID, question string, patientID *int64) (*model.Page, int, error) {
	question = strings.TrimSpace(question)
	if question == "" || pageID == "" {
		return nil, 0, appErr.ErrInvalid
	}
	var index int
	page, err := s.mutate(ctx, sess, pageID, func(page *model.Page) (bool, error) {
		page.QueryAnswers = append(page.QueryAnswers, model.QueryAnswer{
			Query: model.Query{Query: question, PatientID: patientID},
		})
		index = len(page.QueryAnswers) - 1
		return true, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return page, index, nil
}

func (s *PageService) Get(ctx context.Context, sess Session, pageID string) (*model.Page, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	if pageID == "" {
		return nil, appErr.ErrInvalid
	}
	return s.store.GetByID(ctx, sess.UserID, pageID)
}

func (s *PageService) ListHistory(ctx context.Context, sess Session) ([]model.Page, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	return s.store.ListByUser(ctx, sess.UserID)
}

// AttachAnswer sets or overwrites the answer at index. steps, when not nil,
// replace the steps stored on the query. Writing the same payload twice
// leaves the page untouched the second time.
func (s *PageService) AttachAnswer(ctx context.Context, sess Session, pageID string, index int, answer *model.Answer, steps []model.ReasoningStep) (*model.Page, error) {
	if answer == nil || strings.TrimSpace(answer.Answer) == "" {
		return nil, appErr.ErrInvalid
	}
	return s.mutate(ctx, sess, pageID, func(page *model.Page) (bool, error) {
		if index < 0 || index >= len(page.QueryAnswers) {
			return false, appErr.ErrInvalid
		}
		qa := &page.QueryAnswers[index]
		changed := false
		if qa.Answer == nil || *qa.Answer != *answer {
			value := *answer
			qa.Answer = &value
			changed = true
		}
		if steps != nil && !sameSteps(qa.Query.Steps, steps) {
			qa.Query.Steps = append([]model.ReasoningStep(nil), steps...)
			changed = true
		}
		return changed, nil
	})
}

// AttachSteps stores generated steps without touching the answer.
func (s *PageService) AttachSteps(ctx context.Context, sess Session, pageID string, index int, steps []model.ReasoningStep) (*model.Page, error) {
	if steps == nil {
		steps = []model.ReasoningStep{}
	}
	return s.mutate(ctx, sess, pageID, func(page *model.Page) (bool, error) {
		if index < 0 || index >= len(page.QueryAnswers) {
			return false, appErr.ErrInvalid
		}
		qa := &page.QueryAnswers[index]
		if sameSteps(qa.Query.Steps, steps) {
			return false, nil
		}
		qa.Query.Steps = append([]model.ReasoningStep(nil), steps...)
		return true, nil
	})
}

// sameSteps treats nil and empty as equal: stores drop empty step lists.
func sameSteps(a, b []model.ReasoningStep) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// mutate reads the page, applies fn and writes it back under a version
// check. A conflict is retried once on a fresh read.
func (s *PageService) mutate(ctx context.Context, sess Session, pageID string, fn func(page *model.Page) (bool, error)) (*model.Page, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	const attempts = 2
	var err error
	for i := 0; i < attempts; i++ {
		var page *model.Page
		page, err = s.store.GetByID(ctx, sess.UserID, pageID)
		if err != nil {
			return nil, err
		}
		changed, ferr := fn(page)
		if ferr != nil {
			return nil, ferr
		}
		if !changed {
			return page, nil
		}
		page.Mtime = s.now()
		err = s.store.Replace(ctx, page, page.Version)
		if err == nil {
			return page, nil
		}
		if !appErr.IsConflict(err) {
			return nil, err
		}
		sess.logger(ctx).Warn("page write conflict", zap.String("page_id", pageID), zap.Int("attempt", i+1))
	}
	return nil, err
}
