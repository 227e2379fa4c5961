package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"resume-search/internal/document"
	"resume-search/internal/extract"
	"resume-search/internal/metrics"
	"resume-search/internal/overlap"
	"resume-search/internal/search"
	"resume-search/internal/storage"
)

// Stage names the ingestion state machine's states:
// RECEIVED -> VALIDATED -> STORED -> EXTRACTED -> STRUCTURED -> {PARSED | FAILED}.
type Stage string

const (
	StageReceived   Stage = "RECEIVED"
	StageValidated  Stage = "VALIDATED"
	StageStored     Stage = "STORED"
	StageExtracted  Stage = "EXTRACTED"
	StageStructured Stage = "STRUCTURED"
)

// searchVectorCap bounds the indexed text per document so index and overlap
// computations stay CPU-bounded and non-blocking.
const searchVectorCap = 200_000

// indexMaxAttempts and indexBackoff bound the local retry of transient
// index write conflicts.
const (
	indexMaxAttempts = 3
	indexBackoff     = 25 * time.Millisecond
)

// Job is one upload to ingest. CandidateName and Location are optional
// identity hints supplied by the caller.
type Job struct {
	Filename      string
	Content       []byte
	CandidateID   string
	CandidateName string
	Location      string
}

// StageTiming is the observed duration of one completed stage.
type StageTiming struct {
	Stage   Stage
	Elapsed time.Duration
}

// Result is the terminal outcome of one ingestion pipeline.
type Result struct {
	Status      storage.ParsingStatus
	ResumeID    string
	FailedStage Stage
	Reason      string
	Timings     []StageTiming
	Elapsed     time.Duration
	Resume      *storage.Resume
	Experiences []storage.WorkExperience
	Err         error
}

// Repository persists ingestion outcomes. *storage.DB satisfies it; a nil
// repository runs the pipeline purely in memory.
type Repository interface {
	SaveIngestion(ctx context.Context, candidate storage.Candidate, resume *storage.Resume, experiences []storage.WorkExperience) error
}

// Pipeline orchestrates validate -> store -> extract -> structure for one
// document, then hands the result to the search index and overlap engine.
// Pipelines for different candidates run independently; ingestions for the
// same candidate are serialized so a re-upload waits for any in-flight run
// to reach a terminal state.
type Pipeline struct {
	store      document.StorageWriter
	extractor  document.TextExtractor
	structurer extract.FactExtractor
	index      *search.Index
	overlap    *overlap.Engine
	repo       Repository
	logger     zerolog.Logger

	candMu    sync.Mutex
	candLocks map[string]*sync.Mutex
}

func NewPipeline(
	store document.StorageWriter,
	extractor document.TextExtractor,
	structurer extract.FactExtractor,
	index *search.Index,
	overlapEngine *overlap.Engine,
	repo Repository,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		store:      store,
		extractor:  extractor,
		structurer: structurer,
		index:      index,
		overlap:    overlapEngine,
		repo:       repo,
		logger:     logger,
		candLocks:  make(map[string]*sync.Mutex),
	}
}

// Run executes the state machine for one upload and returns its terminal
// result. It never retries a failed document; retry is the caller's policy.
// Re-running for the same candidate supersedes the active resume rather
// than duplicating it.
func (p *Pipeline) Run(ctx context.Context, job Job) Result {
	lock := p.candidateLock(job.CandidateID)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()
	res := Result{Status: storage.ParsingPending, ResumeID: uuid.New().String()}

	// VALIDATED. A rejected file produces no side effects at all: nothing
	// is stored, extracted or recorded.
	stageStart := time.Now()
	if v := document.Validate(job.Filename, int64(len(job.Content))); !v.OK {
		base := ErrInvalidFileType
		if v.Reason == document.RejectEmptyFile || v.Reason == document.RejectOversized {
			base = ErrInvalidFileSize
		}
		res.Status = storage.ParsingFailed
		res.FailedStage = StageValidated
		res.Reason = string(v.Reason)
		res.Err = &PipelineError{Stage: StageValidated, CandidateID: job.CandidateID, Err: base, Detail: v.Offending}
		res.Elapsed = time.Since(started)
		metrics.IngestionsTotal.WithLabelValues(string(storage.ParsingFailed)).Inc()
		p.logger.Warn().Str("filename", job.Filename).Str("reason", res.Reason).Msg("upload rejected")
		return res
	}
	p.observe(&res, StageValidated, stageStart)

	// STORED
	stageStart = time.Now()
	storedAt, err := p.store.Store(ctx, job.Filename, job.Content)
	if err != nil {
		return p.fail(ctx, job, &res, started, StageStored, err)
	}
	p.observe(&res, StageStored, stageStart)

	// EXTRACTED. Runs over the upload bytes the pipeline already holds, so
	// the stored copy's backend (local path, object store) is irrelevant
	// here. Empty text is a soft failure, not an error.
	stageStart = time.Now()
	text, err := p.extractor.Extract(ctx, job.Filename, job.Content)
	if err != nil {
		return p.fail(ctx, job, &res, started, StageExtracted, err)
	}
	if strings.TrimSpace(text) == "" {
		return p.fail(ctx, job, &res, started, StageExtracted, ErrEmptyExtractedText)
	}
	p.observe(&res, StageExtracted, stageStart)

	// STRUCTURED
	stageStart = time.Now()
	facts, err := p.structurer.Structure(ctx, text)
	if err != nil {
		return p.fail(ctx, job, &res, started, StageStructured, err)
	}
	p.observe(&res, StageStructured, stageStart)

	resume, experiences, candidate := p.assemble(job, text, facts, res.ResumeID)

	// Hand off to the shared indices, then persist. Transient index write
	// conflicts are retried locally with backoff before giving up.
	if err := p.indexWithRetry(candidate, resume); err != nil {
		return p.fail(ctx, job, &res, started, StageStructured, err)
	}
	p.overlap.ReplaceCandidate(job.CandidateID, experiences)

	if p.repo != nil {
		if err := p.repo.SaveIngestion(ctx, candidate, resume, experiences); err != nil {
			wrapped := fmt.Errorf("%w: %v", document.ErrStorageFailure, err)
			return p.fail(ctx, job, &res, started, StageStructured, wrapped)
		}
	}

	res.Status = storage.ParsingParsed
	res.Resume = resume
	res.Experiences = experiences
	res.Elapsed = time.Since(started)
	metrics.IngestionsTotal.WithLabelValues(string(storage.ParsingParsed)).Inc()
	p.logger.Info().
		Str("candidate_id", job.CandidateID).
		Str("resume_id", res.ResumeID).
		Str("stored_at", storedAt).
		Int("skills", len(resume.Skills)).
		Int("work_experiences", len(experiences)).
		Dur("elapsed", res.Elapsed).
		Msg("resume parsed")
	return res
}

// assemble builds the Resume, WorkExperience set and Candidate snapshot from
// extracted facts.
func (p *Pipeline) assemble(job Job, text string, facts extract.Facts, resumeID string) (*storage.Resume, []storage.WorkExperience, storage.Candidate) {
	if len(text) > searchVectorCap {
		text = text[:searchVectorCap]
	}

	resume := &storage.Resume{
		ID:            resumeID,
		CandidateID:   job.CandidateID,
		ParsingStatus: storage.ParsingParsed,
		Skills:        facts.Skills,
		Education:     facts.Education,
		SearchVector:  text,
		ExtractedAt:   time.Now(),
		IsCurrent:     true,
	}

	experiences := make([]storage.WorkExperience, 0, len(facts.WorkExperiences))
	var currentCompany string
	var totalYears float64
	now := time.Now()
	for _, stint := range facts.WorkExperiences {
		exp := storage.WorkExperience{
			ID:          uuid.New().String(),
			CandidateID: job.CandidateID,
			Company:     stint.Company,
			Department:  stint.Department,
			StartDate:   stint.StartDate,
			EndDate:     stint.EndDate,
		}
		end := now
		if exp.EndDate != nil {
			end = *exp.EndDate
		} else {
			currentCompany = exp.Company
		}
		totalYears += end.Sub(exp.StartDate).Hours() / (24 * 365)
		experiences = append(experiences, exp)
	}

	candidate := storage.Candidate{
		ID:                   job.CandidateID,
		Name:                 job.CandidateName,
		CurrentCompany:       currentCompany,
		TotalExperienceYears: totalYears,
		Location:             job.Location,
		IsActive:             true,
	}
	return resume, experiences, candidate
}

func (p *Pipeline) indexWithRetry(candidate storage.Candidate, resume *storage.Resume) error {
	var err error
	for attempt := 0; attempt < indexMaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.IndexWriteRetriesTotal.Inc()
			time.Sleep(indexBackoff << (attempt - 1))
		}
		if err = p.index.Upsert(candidate, resume); err == nil {
			return nil
		}
		if !errors.Is(err, search.ErrWriteConflict) {
			return err
		}
	}
	return &PipelineError{Stage: StageStructured, CandidateID: candidate.ID, Err: ErrIndexWriteConflict, Detail: err.Error()}
}

// fail short-circuits the pipeline to FAILED, recording stage, reason and
// elapsed time. The FAILED resume is persisted with its reason retained; it
// never supersedes a previously parsed resume.
func (p *Pipeline) fail(ctx context.Context, job Job, res *Result, started time.Time, stage Stage, cause error) Result {
	res.Status = storage.ParsingFailed
	res.FailedStage = stage
	res.Reason = cause.Error()
	res.Elapsed = time.Since(started)
	if pe := (*PipelineError)(nil); !errors.As(cause, &pe) {
		cause = &PipelineError{Stage: stage, CandidateID: job.CandidateID, Err: cause}
	}
	res.Err = cause

	failed := &storage.Resume{
		ID:            res.ResumeID,
		CandidateID:   job.CandidateID,
		ParsingStatus: storage.ParsingFailed,
		Skills:        []string{},
		Education:     []storage.EducationEntry{},
		FailureReason: res.Reason,
		ExtractedAt:   time.Now(),
	}
	res.Resume = failed

	if p.repo != nil {
		candidate := storage.Candidate{ID: job.CandidateID, Name: job.CandidateName, Location: job.Location, IsActive: true}
		if err := p.repo.SaveIngestion(ctx, candidate, failed, nil); err != nil {
			p.logger.Error().Err(err).Str("resume_id", res.ResumeID).Msg("failed resume not persisted")
		}
	}

	metrics.IngestionsTotal.WithLabelValues(string(storage.ParsingFailed)).Inc()
	p.logger.Warn().
		Str("candidate_id", job.CandidateID).
		Str("stage", string(stage)).
		Str("reason", res.Reason).
		Dur("elapsed", res.Elapsed).
		Msg("ingestion failed")
	return *res
}

func (p *Pipeline) observe(res *Result, stage Stage, start time.Time) {
	elapsed := time.Since(start)
	res.Timings = append(res.Timings, StageTiming{Stage: stage, Elapsed: elapsed})
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (p *Pipeline) candidateLock(candidateID string) *sync.Mutex {
	p.candMu.Lock()
	defer p.candMu.Unlock()
	lock, ok := p.candLocks[candidateID]
	if !ok {
		lock = &sync.Mutex{}
		p.candLocks[candidateID] = lock
	}
	return lock
}
