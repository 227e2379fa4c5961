package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"resume-search/internal/overlap"
	"resume-search/internal/search"
	"resume-search/internal/storage"
)

// SnapshotSource reads the persisted ingestion state. *storage.DB satisfies it.
type SnapshotSource interface {
	ListCurrentResumes(ctx context.Context) ([]storage.CurrentIngestion, error)
	ListWorkExperiences(ctx context.Context) ([]storage.WorkExperience, error)
}

// Warmup rebuilds the in-memory search index and overlap engine from the
// persisted snapshot. Called once at startup before queries are served.
// Returns the number of resumes loaded.
func Warmup(ctx context.Context, src SnapshotSource, index *search.Index, overlapEngine *overlap.Engine, logger zerolog.Logger) (int, error) {
	current, err := src.ListCurrentResumes(ctx)
	if err != nil {
		return 0, fmt.Errorf("load current resumes: %w", err)
	}
	for i := range current {
		resume := current[i].Resume
		if err := index.Upsert(current[i].Candidate, &resume); err != nil {
			return 0, fmt.Errorf("index resume %s: %w", resume.ID, err)
		}
	}

	stints, err := src.ListWorkExperiences(ctx)
	if err != nil {
		return 0, fmt.Errorf("load work experiences: %w", err)
	}
	// Rows arrive grouped by candidate; flush each group as one replace.
	var (
		candidateID string
		group       []storage.WorkExperience
	)
	flush := func() {
		if candidateID != "" {
			overlapEngine.ReplaceCandidate(candidateID, group)
		}
	}
	for _, w := range stints {
		if w.CandidateID != candidateID {
			flush()
			candidateID = w.CandidateID
			group = group[:0]
		}
		group = append(group, w)
	}
	flush()

	logger.Info().
		Int("resumes", len(current)).
		Int("work_experiences", len(stints)).
		Msg("in-memory state rebuilt from storage")
	return len(current), nil
}
