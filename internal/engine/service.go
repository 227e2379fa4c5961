package engine

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"resume-search/internal/ingest"
	"resume-search/internal/overlap"
	"resume-search/internal/search"
	"resume-search/internal/storage"
)

// IngestionResult is the caller-facing outcome of one upload.
type IngestionResult struct {
	Status           storage.ParsingStatus `json:"status"`
	ResumeID         string                `json:"resume_id,omitempty"`
	Reason           string                `json:"reason,omitempty"`
	ProcessingTimeMS float64               `json:"processing_time_ms"`
	Err              error                 `json:"-"`
}

// CandidateStore persists account-lifecycle changes. *storage.DB satisfies it.
type CandidateStore interface {
	SetCandidateActive(ctx context.Context, candidateID string, active bool) error
}

// Service is the function-level surface of the engine. External transports
// (HTTP, CLI, ...) call into it; it owns no wire protocol of its own.
type Service struct {
	pipeline   *ingest.Pipeline
	index      *search.Index
	overlap    *overlap.Engine
	history    *search.HistoryRecorder
	candidates CandidateStore
	logger     zerolog.Logger
}

// NewService wires the facade. candidates may be nil when running without
// persistence.
func NewService(
	pipeline *ingest.Pipeline,
	index *search.Index,
	overlapEngine *overlap.Engine,
	history *search.HistoryRecorder,
	candidates CandidateStore,
	logger zerolog.Logger,
) *Service {
	return &Service{
		pipeline:   pipeline,
		index:      index,
		overlap:    overlapEngine,
		history:    history,
		candidates: candidates,
		logger:     logger,
	}
}

// ProcessUpload runs the full ingestion pipeline for one document.
func (s *Service) ProcessUpload(ctx context.Context, filename string, content []byte, candidateID string) IngestionResult {
	res := s.pipeline.Run(ctx, ingest.Job{
		Filename:    filename,
		Content:     content,
		CandidateID: candidateID,
	})
	out := IngestionResult{
		Status:           res.Status,
		Reason:           res.Reason,
		ProcessingTimeMS: float64(res.Elapsed.Microseconds()) / 1000,
		Err:              res.Err,
	}
	if res.Status == storage.ParsingParsed {
		out.ResumeID = res.ResumeID
	}
	return out
}

// SearchBySkills matches candidates whose skill sets intersect the query.
// Inactive candidates are excluded unless activeOnly is explicitly false.
func (s *Service) SearchBySkills(ctx context.Context, skills []string, activeOnly bool, userID string) ([]search.CandidateRef, error) {
	return s.index.SearchBySkills(ctx, skills, activeOnly, userID)
}

// SearchFullText matches candidates over their resume text.
func (s *Service) SearchFullText(ctx context.Context, query string, activeOnly bool, userID string) ([]search.CandidateRef, error) {
	return s.index.SearchFullText(ctx, query, activeOnly, userID)
}

// GetColleagues returns the candidates whose work experience overlapped the
// given candidate's at the same company. Like every query, the lookup is
// appended to the search history.
func (s *Service) GetColleagues(ctx context.Context, candidateID string, userID string) ([]search.CandidateRef, error) {
	if candidateID == "" {
		return nil, search.ErrQuery
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := s.overlap.ColleaguesOf(candidateID)
	refs := s.index.CandidateRefs(ids)

	if s.history != nil {
		payload, err := json.Marshal(map[string]string{"candidate_id": candidateID})
		if err == nil {
			s.history.Record(userID, storage.SearchColleague, string(payload))
		}
	}
	return refs, nil
}

// SetCandidateActive mirrors the account lifecycle into the engine. The index
// filter takes effect immediately even if persistence is unavailable.
func (s *Service) SetCandidateActive(ctx context.Context, candidateID string, active bool) error {
	s.index.SetActive(candidateID, active)
	if s.candidates == nil {
		return nil
	}
	if err := s.candidates.SetCandidateActive(ctx, candidateID, active); err != nil {
		return err
	}
	s.logger.Info().Str("candidate_id", candidateID).Bool("active", active).Msg("candidate lifecycle updated")
	return nil
}

// OverlapsAt exposes the raw colleague edges for one company.
func (s *Service) OverlapsAt(company string) []overlap.Pair {
	return s.overlap.OverlapsAt(company)
}

// TopSkills returns the most common skills across all indexed resumes.
func (s *Service) TopSkills(limit int) []search.SkillCount {
	return s.index.TopSkills(limit)
}
