package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/xxxsen/clinrag/internal/ai"
	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
	"github.com/xxxsen/clinrag/internal/vectorindex"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	calls int
	tasks []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tasks = append(f.tasks, taskType)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, float32(len(text))}, nil
}

func (f *fakeEmbedder) ModelName() string {
	return "fake"
}

var _ ai.IEmbedder = (*fakeEmbedder)(nil)

// fakeIndex returns a fixed hit list, optionally failing the first calls.
type fakeIndex struct {
	mu       sync.Mutex
	hits     []vectorindex.Hit
	errs     []error
	filter   bool
	calls    int
	lastTopK int
	lastFilt *vectorindex.Filter
	upserts  map[string]vectorindex.Metadata
}

func (f *fakeIndex) Upsert(ctx context.Context, id string, vec []float32, meta vectorindex.Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upserts == nil {
		f.upserts = make(map[string]vectorindex.Metadata)
	}
	f.upserts[id] = meta
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, vec []float32, topK int, filter *vectorindex.Filter) ([]vectorindex.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastTopK = topK
	f.lastFilt = filter
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([]vectorindex.Hit, 0, len(f.hits))
	for _, hit := range f.hits {
		if filter != nil && filter.PatientID != nil && hit.Metadata.PatientID != *filter.PatientID {
			continue
		}
		out = append(out, hit)
	}
	vectorindex.SortHits(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeIndex) SupportsFilter() bool {
	return f.filter
}

type fakePatients struct {
	patients map[int64]*model.Patient
	err      error
}

func newFakePatients(patients ...*model.Patient) *fakePatients {
	f := &fakePatients{patients: make(map[int64]*model.Patient)}
	for _, p := range patients {
		f.patients[p.PatientID] = p
	}
	return f
}

func (f *fakePatients) GetByID(ctx context.Context, patientID int64) (*model.Patient, error) {
	p, ok := f.patients[patientID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return p, nil
}

func (f *fakePatients) GetNote(ctx context.Context, patientID int64, noteID string) (*model.ClinicalNote, error) {
	p, ok := f.patients[patientID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	for i := range p.Notes {
		if p.Notes[i].NoteID == noteID {
			note := p.Notes[i]
			return &note, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakePatients) ExistingIDs(ctx context.Context, patientIDs []int64) (map[int64]bool, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]bool)
	for _, id := range patientIDs {
		if _, ok := f.patients[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakePatients) ListNotes(ctx context.Context, after model.NoteKey, limit int) ([]model.ClinicalNote, error) {
	all := make([]model.ClinicalNote, 0)
	for _, p := range f.patients {
		for _, note := range p.Notes {
			note.PatientID = p.PatientID
			all = append(all, note)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].PatientID != all[j].PatientID {
			return all[i].PatientID < all[j].PatientID
		}
		return all[i].NoteID < all[j].NoteID
	})
	out := make([]model.ClinicalNote, 0, limit)
	for _, note := range all {
		if note.PatientID < after.PatientID || (note.PatientID == after.PatientID && note.NoteID <= after.NoteID) {
			continue
		}
		out = append(out, note)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePatients) Summary(ctx context.Context) (*model.DatabaseSummary, error) {
	summary := &model.DatabaseSummary{TotalPatients: int64(len(f.patients))}
	for _, p := range f.patients {
		summary.TotalNotes += int64(len(p.Notes))
		summary.TotalQAPairs += int64(len(p.QAPairs))
	}
	return summary, nil
}

// fakePageStore keeps cloned pages and enforces the version check.
type fakePageStore struct {
	mu        sync.Mutex
	pages     map[string]*model.Page
	replaces  int
	conflicts int
	// beforeReplace runs once per Replace call before the version check.
	beforeReplace func(store *fakePageStore, page *model.Page)
}

func newFakePageStore() *fakePageStore {
	return &fakePageStore{pages: make(map[string]*model.Page)}
}

func (f *fakePageStore) Create(ctx context.Context, page *model.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pages[page.ID]; ok {
		return appErr.ErrConflict
	}
	f.pages[page.ID] = page.Clone()
	return nil
}

func (f *fakePageStore) GetByID(ctx context.Context, userID, pageID string) (*model.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page, ok := f.pages[pageID]
	if !ok || page.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	return page.Clone(), nil
}

func (f *fakePageStore) ListByUser(ctx context.Context, userID string) ([]model.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Page, 0)
	for _, page := range f.pages {
		if page.UserID == userID {
			out = append(out, *page.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ctime != out[j].Ctime {
			return out[i].Ctime > out[j].Ctime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakePageStore) Replace(ctx context.Context, page *model.Page, expectVersion int64) error {
	if hook := f.beforeReplace; hook != nil {
		f.beforeReplace = nil
		hook(f, page)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	stored, ok := f.pages[page.ID]
	if !ok || stored.UserID != page.UserID {
		return appErr.ErrNotFound
	}
	if stored.Version != expectVersion {
		f.conflicts++
		return appErr.ErrConflict
	}
	page.Version = expectVersion + 1
	f.pages[page.ID] = page.Clone()
	return nil
}

// scriptedReasoner returns canned steps and answer.
type scriptedReasoner struct {
	mu         sync.Mutex
	steps      []model.ReasoningStep
	stepsErr   error
	answer     *model.Answer
	answerErr  error
	answerWait chan struct{}
	stepCalls  int
	notes      []string
	gotSteps   []model.ReasoningStep
	modes      []ai.Mode
}

func (r *scriptedReasoner) Steps(ctx context.Context, mode ai.Mode, query string, notes string) ([]model.ReasoningStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepCalls++
	r.modes = append(r.modes, mode)
	r.notes = append(r.notes, notes)
	if r.stepsErr != nil {
		return nil, r.stepsErr
	}
	return r.steps, nil
}

func (r *scriptedReasoner) Answer(ctx context.Context, mode ai.Mode, query string, notes string, steps []model.ReasoningStep) (*model.Answer, error) {
	if r.answerWait != nil {
		select {
		case <-r.answerWait:
		case <-ctx.Done():
			return nil, appErr.ErrStreamAborted
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gotSteps = steps
	if r.answerErr != nil {
		return nil, r.answerErr
	}
	answer := *r.answer
	return &answer, nil
}

type fakeNER struct {
	mu    sync.Mutex
	calls []string
	fail  string
}

func (f *fakeNER) Extract(ctx context.Context, noteID string, text string) (*model.NoteEntities, error) {
	f.mu.Lock()
	f.calls = append(f.calls, noteID)
	f.mu.Unlock()
	if noteID == f.fail {
		return nil, appErr.NewUpstreamError(appErr.ServiceNER, appErr.UpstreamUnavailable, errors.New("down"))
	}
	return &model.NoteEntities{NoteID: noteID, Text: text, Entities: []model.Entity{}}, nil
}

func hit(pid int64, noteID string, score float64, ts time.Time) vectorindex.Hit {
	return vectorindex.Hit{
		ID:    vectorindex.NoteVectorID(pid, noteID),
		Score: score,
		Metadata: vectorindex.Metadata{
			PatientID: pid,
			NoteID:    noteID,
			NoteType:  "progress",
			Timestamp: ts,
			Text:      "text of " + noteID,
		},
	}
}

func patient(pid int64, noteIDs ...string) *model.Patient {
	p := &model.Patient{PatientID: pid}
	for i, id := range noteIDs {
		p.Notes = append(p.Notes, model.ClinicalNote{
			PatientID: pid,
			NoteID:    id,
			Timestamp: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
			NoteType:  "progress",
			Text:      "note " + id,
		})
	}
	return p
}

func int64Ptr(v int64) *int64 {
	return &v
}

func testSession() Session {
	return Session{UserID: "u1", RequestID: "r1"}
}

func testRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                5,
		CohortTopK:          100,
		CohortOverfetch:     4,
		PostFilterOverfetch: 10,
		SearchTimeout:       time.Second,
		RetryBackoff:        time.Millisecond,
		ContextTokenLimit:   0,
	}
}
