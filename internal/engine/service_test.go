package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-search/internal/extract"
	"resume-search/internal/ingest"
	"resume-search/internal/overlap"
	"resume-search/internal/search"
	"resume-search/internal/storage"
)

type memStore struct{}

func (memStore) Store(ctx context.Context, filename string, content []byte) (string, error) {
	return "/uploads/" + filename, nil
}

// scriptedExtractor returns canned text per filename.
type scriptedExtractor struct {
	texts map[string]string
}

func (s *scriptedExtractor) Extract(ctx context.Context, filename string, content []byte) (string, error) {
	return s.texts[filename], nil
}

type capturingHistory struct {
	mu      sync.Mutex
	records []storage.SearchHistory
}

func (c *capturingHistory) AppendSearchHistory(ctx context.Context, record storage.SearchHistory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return nil
}

func (c *capturingHistory) all() []storage.SearchHistory {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]storage.SearchHistory, len(c.records))
	copy(out, c.records)
	return out
}

func newTestService(t *testing.T, texts map[string]string) (*Service, *capturingHistory, *search.HistoryRecorder) {
	t.Helper()
	histStore := &capturingHistory{}
	recorder := search.NewHistoryRecorder(histStore, 32, zerolog.Nop())
	index := search.NewIndex(recorder, zerolog.Nop())
	overlapEngine := overlap.NewEngine(zerolog.Nop())
	pipeline := ingest.NewPipeline(
		memStore{},
		&scriptedExtractor{texts: texts},
		extract.NewRegexStructurer(),
		index,
		overlapEngine,
		nil,
		zerolog.Nop(),
	)
	return NewService(pipeline, index, overlapEngine, recorder, nil, zerolog.Nop()), histStore, recorder
}

func TestService_UploadThenSearchAndColleagues(t *testing.T) {
	svc, histStore, recorder := newTestService(t, map[string]string{
		"ada.pdf": "Backend developer, Go and PostgreSQL.\nAcme Corp, 2018-01 - 2020-01\n",
		"ben.pdf": "Data engineer, Python and Kafka.\nAcme Corp, 2019-01 - 2021-01\n",
		"cid.pdf": "SRE, Kubernetes and Terraform.\nAcme Corp, 2022-01 - present\n",
	})

	for _, up := range []struct{ file, id string }{
		{"ada.pdf", "ada"}, {"ben.pdf", "ben"}, {"cid.pdf", "cid"},
	} {
		res := svc.ProcessUpload(context.Background(), up.file, []byte("%PDF-1.4"), up.id)
		require.NoError(t, res.Err)
		require.Equal(t, storage.ParsingParsed, res.Status)
		assert.NotEmpty(t, res.ResumeID)
		assert.Greater(t, res.ProcessingTimeMS, 0.0, "processing time is reported per upload")
	}

	refs, err := svc.SearchBySkills(context.Background(), []string{"go"}, true, "recruiter-1")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "ada", refs[0].CandidateID)

	refs, err = svc.SearchFullText(context.Background(), "data engineer", true, "recruiter-1")
	require.NoError(t, err)
	require.NotEmpty(t, refs)
	assert.Equal(t, "ben", refs[0].CandidateID)

	// Ada and Ben overlapped at Acme; Cid joined after both left.
	colleagues, err := svc.GetColleagues(context.Background(), "ada", "recruiter-1")
	require.NoError(t, err)
	require.Len(t, colleagues, 1)
	assert.Equal(t, "ben", colleagues[0].CandidateID)

	colleagues, err = svc.GetColleagues(context.Background(), "cid", "recruiter-1")
	require.NoError(t, err)
	assert.Empty(t, colleagues)

	pairs := svc.OverlapsAt("Acme Corp")
	require.Len(t, pairs, 1)
	assert.Equal(t, "ada", pairs[0].CandidateA)
	assert.Equal(t, "ben", pairs[0].CandidateB)

	top := svc.TopSkills(10)
	assert.NotEmpty(t, top)

	// Every query left an audit record, in order.
	recorder.Close()
	records := histStore.all()
	require.Len(t, records, 4)
	assert.Equal(t, storage.SearchSkill, records[0].SearchType)
	assert.Equal(t, storage.SearchFullText, records[1].SearchType)
	assert.Equal(t, storage.SearchColleague, records[2].SearchType)
	assert.Equal(t, "recruiter-1", records[0].UserID)

	var criteria map[string]string
	require.NoError(t, json.Unmarshal([]byte(records[2].Query), &criteria))
	assert.Equal(t, "ada", criteria["candidate_id"])
}

func TestService_RejectedUploadReportsReason(t *testing.T) {
	svc, _, recorder := newTestService(t, nil)
	defer recorder.Close()

	res := svc.ProcessUpload(context.Background(), "resume.exe", []byte("MZ"), "c1")
	assert.Equal(t, storage.ParsingFailed, res.Status)
	assert.Empty(t, res.ResumeID)
	assert.NotEmpty(t, res.Reason)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, ingest.ErrInvalidFileType)
}

func TestService_LifecycleHidesInactiveCandidates(t *testing.T) {
	svc, _, recorder := newTestService(t, map[string]string{
		"ada.pdf": "Go developer.\n",
	})
	defer recorder.Close()

	res := svc.ProcessUpload(context.Background(), "ada.pdf", []byte("%PDF-1.4"), "ada")
	require.Equal(t, storage.ParsingParsed, res.Status)

	require.NoError(t, svc.SetCandidateActive(context.Background(), "ada", false))
	refs, err := svc.SearchBySkills(context.Background(), []string{"go"}, true, "recruiter-1")
	require.NoError(t, err)
	assert.Empty(t, refs)

	// Explicit opt-in still finds the candidate.
	refs, err = svc.SearchBySkills(context.Background(), []string{"go"}, false, "recruiter-1")
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	require.NoError(t, svc.SetCandidateActive(context.Background(), "ada", true))
	refs, err = svc.SearchBySkills(context.Background(), []string{"go"}, true, "recruiter-1")
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestService_GetColleaguesRequiresCandidate(t *testing.T) {
	svc, _, recorder := newTestService(t, nil)
	defer recorder.Close()

	_, err := svc.GetColleagues(context.Background(), "", "recruiter-1")
	assert.ErrorIs(t, err, search.ErrQuery)
}
