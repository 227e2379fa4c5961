package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-search/internal/document"
	"resume-search/internal/extract"
	"resume-search/internal/overlap"
	"resume-search/internal/search"
	"resume-search/internal/storage"
)

type fakeStore struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeStore) Store(ctx context.Context, filename string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "/uploads/" + filename, nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(ctx context.Context, filename string, content []byte) (string, error) {
	return f.text, f.err
}

type savedIngestion struct {
	candidate   storage.Candidate
	resume      *storage.Resume
	experiences []storage.WorkExperience
}

type fakeRepo struct {
	mu    sync.Mutex
	saves []savedIngestion
	err   error
}

func (f *fakeRepo) SaveIngestion(ctx context.Context, candidate storage.Candidate, resume *storage.Resume, experiences []storage.WorkExperience) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saves = append(f.saves, savedIngestion{candidate: candidate, resume: resume, experiences: experiences})
	return nil
}

func (f *fakeRepo) all() []savedIngestion {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]savedIngestion, len(f.saves))
	copy(out, f.saves)
	return out
}

type pipelineFixture struct {
	pipeline *Pipeline
	store    *fakeStore
	repo     *fakeRepo
	index    *search.Index
	overlap  *overlap.Engine
}

func newFixture(t *testing.T, extractor document.TextExtractor) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		store:   &fakeStore{},
		repo:    &fakeRepo{},
		index:   search.NewIndex(nil, zerolog.Nop()),
		overlap: overlap.NewEngine(zerolog.Nop()),
	}
	f.pipeline = NewPipeline(f.store, extractor, extract.NewRegexStructurer(), f.index, f.overlap, f.repo, zerolog.Nop())
	return f
}

const resumeText = `Senior backend engineer skilled in Python, Go and SQL.
MIT, Bachelor of Science, Computer Science, 2015
Acme Corp, 2016-01 - 2020-06
Globex, 2020-07 - present
`

func TestPipeline_HappyPath(t *testing.T) {
	f := newFixture(t, &fakeExtractor{text: resumeText})

	res := f.pipeline.Run(context.Background(), Job{
		Filename:      "resume.pdf",
		Content:       []byte("%PDF-1.4"),
		CandidateID:   "c1",
		CandidateName: "Ada",
	})

	require.NoError(t, res.Err)
	assert.Equal(t, storage.ParsingParsed, res.Status)
	assert.NotEmpty(t, res.ResumeID)
	require.NotNil(t, res.Resume)
	assert.Subset(t, res.Resume.Skills, []string{"go", "python", "sql"})
	assert.True(t, res.Resume.IsCurrent)
	require.Len(t, res.Experiences, 2)

	// Every completed stage was timed.
	stages := make([]Stage, 0, len(res.Timings))
	for _, tm := range res.Timings {
		stages = append(stages, tm.Stage)
	}
	assert.Equal(t, []Stage{StageValidated, StageStored, StageExtracted, StageStructured}, stages)

	// Persisted once, with the candidate snapshot derived from the facts.
	saves := f.repo.all()
	require.Len(t, saves, 1)
	assert.Equal(t, "Globex", saves[0].candidate.CurrentCompany, "open-ended stint sets the current company")
	assert.Greater(t, saves[0].candidate.TotalExperienceYears, 7.0)
	require.Len(t, saves[0].resume.Education, 1)
	assert.Equal(t, "MIT", saves[0].resume.Education[0].Institution)

	// Searchable immediately after the pipeline returns.
	refs, err := f.index.SearchBySkills(context.Background(), []string{"go"}, true, "u1")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "c1", refs[0].CandidateID)
}

func TestPipeline_RejectedUploadHasNoSideEffects(t *testing.T) {
	f := newFixture(t, &fakeExtractor{text: resumeText})

	res := f.pipeline.Run(context.Background(), Job{
		Filename:    "resume.txt",
		Content:     []byte("plain text"),
		CandidateID: "c1",
	})

	assert.Equal(t, storage.ParsingFailed, res.Status)
	assert.Equal(t, StageValidated, res.FailedStage)
	assert.ErrorIs(t, res.Err, ErrInvalidFileType)
	assert.Equal(t, 0, f.store.calls, "nothing is stored for a rejected upload")
	assert.Empty(t, f.repo.all(), "nothing is persisted for a rejected upload")

	refs, err := f.index.SearchBySkills(context.Background(), []string{"go"}, true, "u1")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestPipeline_OversizedUploadRejected(t *testing.T) {
	f := newFixture(t, &fakeExtractor{text: resumeText})

	res := f.pipeline.Run(context.Background(), Job{
		Filename:    "resume.pdf",
		Content:     make([]byte, document.MaxFileSize+1),
		CandidateID: "c1",
	})

	assert.Equal(t, storage.ParsingFailed, res.Status)
	assert.Equal(t, StageValidated, res.FailedStage)
	assert.ErrorIs(t, res.Err, ErrInvalidFileSize)
	assert.Equal(t, 0, f.store.calls)
}

func TestPipeline_EmptyTextIsSoftFailure(t *testing.T) {
	f := newFixture(t, &fakeExtractor{text: "   \n\t "})

	res := f.pipeline.Run(context.Background(), Job{
		Filename:    "resume.pdf",
		Content:     []byte("%PDF-1.4"),
		CandidateID: "c1",
	})

	assert.Equal(t, storage.ParsingFailed, res.Status)
	assert.Equal(t, StageExtracted, res.FailedStage)
	assert.ErrorIs(t, res.Err, ErrEmptyExtractedText)

	// The FAILED resume is persisted with its reason, but never as current.
	saves := f.repo.all()
	require.Len(t, saves, 1)
	assert.Equal(t, storage.ParsingFailed, saves[0].resume.ParsingStatus)
	assert.Contains(t, saves[0].resume.FailureReason, "no extractable text")
	assert.False(t, saves[0].resume.IsCurrent)

	refs, err := f.index.SearchBySkills(context.Background(), []string{"go"}, true, "u1")
	require.NoError(t, err)
	assert.Empty(t, refs, "a failed document is never indexed")
}

func TestPipeline_ExtractionErrorFails(t *testing.T) {
	cause := &document.ExtractionError{Reason: document.ExtractionCorrupt, Name: "resume.pdf", Err: errors.New("malformed xref")}
	f := newFixture(t, &fakeExtractor{err: cause})

	res := f.pipeline.Run(context.Background(), Job{
		Filename:    "resume.pdf",
		Content:     []byte("%PDF-1.4"),
		CandidateID: "c1",
	})

	assert.Equal(t, storage.ParsingFailed, res.Status)
	assert.Equal(t, StageExtracted, res.FailedStage)
	assert.ErrorIs(t, res.Err, document.ErrExtractionFailure)
}

func TestPipeline_PersistFailureFailsTheRun(t *testing.T) {
	f := newFixture(t, &fakeExtractor{text: resumeText})
	f.repo.err = errors.New("connection refused")

	res := f.pipeline.Run(context.Background(), Job{
		Filename:    "resume.pdf",
		Content:     []byte("%PDF-1.4"),
		CandidateID: "c1",
	})

	assert.Equal(t, storage.ParsingFailed, res.Status)
	assert.ErrorIs(t, res.Err, document.ErrStorageFailure)
}

func TestPipeline_ReingestSupersedes(t *testing.T) {
	extractor := &fakeExtractor{text: "Expert in Java.\nAcme Corp, 2016-01 - 2020-06\n"}
	f := newFixture(t, extractor)

	first := f.pipeline.Run(context.Background(), Job{
		Filename: "v1.pdf", Content: []byte("%PDF-1.4"), CandidateID: "c1",
	})
	require.Equal(t, storage.ParsingParsed, first.Status)

	extractor.text = "Expert in Rust.\nGlobex, 2021-01 - present\n"
	second := f.pipeline.Run(context.Background(), Job{
		Filename: "v2.pdf", Content: []byte("%PDF-1.4"), CandidateID: "c1",
	})
	require.Equal(t, storage.ParsingParsed, second.Status)
	assert.NotEqual(t, first.ResumeID, second.ResumeID)

	// Only the newest resume is reachable through search.
	refs, err := f.index.SearchBySkills(context.Background(), []string{"java"}, true, "u1")
	require.NoError(t, err)
	assert.Empty(t, refs)
	refs, err = f.index.SearchBySkills(context.Background(), []string{"rust"}, true, "u1")
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	// Old stints left the overlap engine with the superseded resume.
	f.overlap.Add(storage.WorkExperience{
		ID: "w-x", CandidateID: "c2", Company: "Acme Corp",
		StartDate: second.Experiences[0].StartDate,
	})
	assert.Empty(t, f.overlap.OverlapsAt("Acme Corp"))
}

func TestPipeline_SameCandidateRunsSerialized(t *testing.T) {
	f := newFixture(t, &fakeExtractor{text: resumeText})

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := f.pipeline.Run(context.Background(), Job{
				Filename: "resume.pdf", Content: []byte("%PDF-1.4"), CandidateID: "c1",
			})
			assert.Equal(t, storage.ParsingParsed, res.Status)
		}()
	}
	wg.Wait()

	assert.Len(t, f.repo.all(), n)
	refs, err := f.index.SearchBySkills(context.Background(), []string{"go"}, true, "u1")
	require.NoError(t, err)
	assert.Len(t, refs, 1, "one current resume per candidate regardless of re-uploads")
}
