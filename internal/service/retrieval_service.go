package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/clinrag/internal/ai"
	"github.com/xxxsen/clinrag/internal/model"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
	"github.com/xxxsen/clinrag/internal/vectorindex"
)

const (
	summaryTextChars  = 500
	contextSeparator  = "\n---\n"
	emptyContextNotes = "No relevant patient notes found."
)

type RetrievalConfig struct {
	TopK                int
	CohortTopK          int
	CohortOverfetch     int
	PostFilterOverfetch int
	SearchTimeout       time.Duration
	RetryBackoff        time.Duration
	ContextTokenLimit   int
}

// Scope selects patient mode when PatientID is set, cohort mode otherwise.
type Scope struct {
	PatientID *int64
}

func (s Scope) cohort() bool {
	return s.PatientID == nil
}

type RetrievalService struct {
	embedder ai.IEmbedder
	index    vectorindex.Index
	patients PatientStore
	budget   *ai.TokenBudget
	cfg      RetrievalConfig
}

func NewRetrievalService(embedder ai.IEmbedder, index vectorindex.Index, patients PatientStore, cfg RetrievalConfig) *RetrievalService {
	if cfg.CohortOverfetch <= 0 {
		cfg.CohortOverfetch = 1
	}
	if cfg.PostFilterOverfetch <= 0 {
		cfg.PostFilterOverfetch = 1
	}
	return &RetrievalService{
		embedder: embedder,
		index:    index,
		patients: patients,
		budget:   ai.NewTokenBudget(cfg.ContextTokenLimit),
		cfg:      cfg,
	}
}

// Retrieve embeds the query once and searches the index. topK bounds the
// number of notes in both modes. Cohort mode over-fetches from the whole
// index and adds the grouped view.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, scope Scope, topK int) (*model.RetrievalSet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.ErrInvalid
	}
	if topK <= 0 {
		topK = s.cfg.TopK
		if scope.cohort() {
			topK = s.cfg.CohortTopK
		}
	}
	logger := logutil.GetLogger(ctx).With(zap.Bool("cohort", scope.cohort()), zap.Int("top_k", topK))
	if scope.PatientID != nil {
		logger = logger.With(zap.Int64("patient_id", *scope.PatientID))
	}

	vec, err := s.embedder.Embed(ctx, query, ai.TaskQuery)
	if err != nil {
		logger.Error("embed query failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", appErr.ErrRetrieval, err)
	}

	var hits []vectorindex.Hit
	if scope.cohort() {
		hits, err = s.search(ctx, vec, topK*s.cfg.CohortOverfetch, nil)
	} else {
		hits, err = s.searchPatient(ctx, vec, topK, *scope.PatientID)
	}
	if err != nil {
		logger.Error("vector search failed", zap.Error(err))
		return nil, err
	}
	vectorindex.SortHits(hits)

	hits, err = s.dropUnknownPatients(ctx, hits)
	if err != nil {
		return nil, err
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	set := &model.RetrievalSet{Results: toResults(hits)}
	if scope.cohort() {
		set.Groups = GroupByPatient(set.Results)
	}
	logger.Info("retrieval finished", zap.Int("results", len(set.Results)), zap.Int("groups", len(set.Groups)))
	return set, nil
}

func (s *RetrievalService) searchPatient(ctx context.Context, vec []float32, topK int, patientID int64) ([]vectorindex.Hit, error) {
	if s.index.SupportsFilter() {
		return s.search(ctx, vec, topK, &vectorindex.Filter{PatientID: &patientID})
	}
	hits, err := s.search(ctx, vec, topK*s.cfg.PostFilterOverfetch, nil)
	if err != nil {
		return nil, err
	}
	filtered := hits[:0]
	for _, hit := range hits {
		if hit.Metadata.PatientID == patientID {
			filtered = append(filtered, hit)
		}
	}
	return filtered, nil
}

// search retries a failed index call once after the configured backoff.
// Invalid requests and a caller that went away are never retried.
func (s *RetrievalService) search(ctx context.Context, vec []float32, topK int, filter *vectorindex.Filter) ([]vectorindex.Hit, error) {
	hits, err := s.searchOnce(ctx, vec, topK, filter)
	if err == nil {
		return hits, nil
	}
	if errors.Is(err, appErr.ErrInvalid) {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrStreamAborted, ctx.Err())
	}
	logutil.GetLogger(ctx).Warn("vector search failed, retrying", zap.Duration("backoff", s.cfg.RetryBackoff), zap.Error(err))
	timer := time.NewTimer(s.cfg.RetryBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", appErr.ErrStreamAborted, ctx.Err())
	case <-timer.C:
	}
	return s.searchOnce(ctx, vec, topK, filter)
}

func (s *RetrievalService) searchOnce(ctx context.Context, vec []float32, topK int, filter *vectorindex.Filter) ([]vectorindex.Hit, error) {
	if s.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
	}
	hits, err := s.index.Search(ctx, vec, topK, filter)
	if errors.Is(err, appErr.ErrInvalid) {
		return nil, err
	}
	if err != nil {
		return nil, appErr.Upstream(appErr.ServiceVectorIndex, err)
	}
	return hits, nil
}

func (s *RetrievalService) dropUnknownPatients(ctx context.Context, hits []vectorindex.Hit) ([]vectorindex.Hit, error) {
	if len(hits) == 0 {
		return hits, nil
	}
	seen := make(map[int64]struct{}, len(hits))
	ids := make([]int64, 0, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.Metadata.PatientID]; ok {
			continue
		}
		seen[hit.Metadata.PatientID] = struct{}{}
		ids = append(ids, hit.Metadata.PatientID)
	}
	existing, err := s.patients.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("check patients: %w", err)
	}
	kept := hits[:0]
	for _, hit := range hits {
		if !existing[hit.Metadata.PatientID] {
			logutil.GetLogger(ctx).Warn("drop hit of unknown patient",
				zap.Int64("patient_id", hit.Metadata.PatientID),
				zap.String("note_id", hit.Metadata.NoteID))
			continue
		}
		kept = append(kept, hit)
	}
	return kept, nil
}

func toResults(hits []vectorindex.Hit) []model.RetrievalResult {
	results := make([]model.RetrievalResult, 0, len(hits))
	for i, hit := range hits {
		results = append(results, model.RetrievalResult{
			PatientID:       hit.Metadata.PatientID,
			NoteID:          hit.Metadata.NoteID,
			EncounterID:     hit.Metadata.EncounterID,
			NoteType:        hit.Metadata.NoteType,
			Timestamp:       hit.Metadata.Timestamp,
			NoteText:        hit.Metadata.Text,
			SimilarityScore: hit.Score,
			Rank:            i + 1,
		})
	}
	return results
}

// GroupByPatient groups a flat result list by patient, keeping first-seen
// patient order and the per-note order inside each group. The sum of
// TotalNotes always equals len(results).
func GroupByPatient(results []model.RetrievalResult) []model.PatientGroup {
	groups := make([]model.PatientGroup, 0)
	index := make(map[int64]int)
	for _, r := range results {
		pos, ok := index[r.PatientID]
		if !ok {
			pos = len(groups)
			index[r.PatientID] = pos
			groups = append(groups, model.PatientGroup{PatientID: r.PatientID})
		}
		g := &groups[pos]
		g.TotalNotes++
		g.NotesSummary = append(g.NotesSummary, model.NoteSummary{
			NoteID:          r.NoteID,
			NoteType:        r.NoteType,
			Timestamp:       r.Timestamp,
			NoteText:        truncateRunes(r.NoteText, summaryTextChars),
			SimilarityScore: r.SimilarityScore,
		})
	}
	return groups
}

// FormatContext renders retrieved notes into the block placed in prompts,
// stopping once the token budget is spent.
func (s *RetrievalService) FormatContext(results []model.RetrievalResult) string {
	if len(results) == 0 {
		return emptyContextNotes
	}
	limit := s.budget.Limit()
	blocks := make([]string, 0, len(results))
	used := 0
	for _, r := range results {
		block := fmt.Sprintf("Note Type: %s\nDate: %s\nContent: %s\nRelevance Score: %.3f\n",
			r.NoteType, r.Timestamp.Format("2006-01-02 15:04:05"), r.NoteText, r.SimilarityScore)
		if limit <= 0 {
			blocks = append(blocks, block)
			continue
		}
		cost := s.budget.Count(block)
		if used+cost > limit {
			if len(blocks) == 0 {
				blocks = append(blocks, s.budget.Fit(block, limit))
			}
			break
		}
		used += cost
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, contextSeparator)
}

func truncateRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
