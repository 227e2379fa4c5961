package search

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"resume-search/internal/storage"
)

var (
	// ErrWriteConflict is transient: another writer holds the candidate's
	// slot. Callers retry with backoff.
	ErrWriteConflict = errors.New("index write conflict")
	// ErrQuery means the criteria were malformed (e.g. empty).
	ErrQuery = errors.New("malformed query")
)

// CandidateRef is one ranked search hit.
type CandidateRef struct {
	CandidateID string  `json:"candidate_id"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
}

// SkillCount is one entry of the popular-skills aggregate.
type SkillCount struct {
	Skill string `json:"skill"`
	Count int    `json:"count"`
}

type indexedResume struct {
	resumeID string
	skills   map[string]struct{}
	terms    map[string]int
	total    int
}

// Index is the in-memory inverted index over skills and resume full text.
// One current resume per candidate; Upsert replaces the candidate's postings
// atomically, so readers see either the old resume or the new one, never a
// half-applied mix. The index is an explicitly owned structure passed by
// reference to pipeline workers, not ambient global state.
type Index struct {
	mu         sync.RWMutex
	inFlight   map[string]bool
	docs       map[string]*indexedResume
	candidates map[string]storage.Candidate
	history    *HistoryRecorder
	logger     zerolog.Logger
}

func NewIndex(history *HistoryRecorder, logger zerolog.Logger) *Index {
	return &Index{
		inFlight:   make(map[string]bool),
		docs:       make(map[string]*indexedResume),
		candidates: make(map[string]storage.Candidate),
		history:    history,
		logger:     logger,
	}
}

// Upsert indexes the candidate's current resume, replacing any previous one.
// Returns ErrWriteConflict if another writer is mid-flight for the same
// candidate; the conflict is transient and safe to retry.
func (ix *Index) Upsert(candidate storage.Candidate, resume *storage.Resume) error {
	ix.mu.Lock()
	if ix.inFlight[candidate.ID] {
		ix.mu.Unlock()
		return ErrWriteConflict
	}
	ix.inFlight[candidate.ID] = true
	ix.mu.Unlock()

	// Tokenizing happens outside the lock; only the swap below is guarded.
	doc := buildPostings(resume)

	ix.mu.Lock()
	ix.candidates[candidate.ID] = candidate
	ix.docs[candidate.ID] = doc
	delete(ix.inFlight, candidate.ID)
	ix.mu.Unlock()

	ix.logger.Debug().Str("candidate_id", candidate.ID).Str("resume_id", resume.ID).Msg("resume indexed")
	return nil
}

// SetActive mirrors the account lifecycle into the index so activeOnly
// filtering stays accurate.
func (ix *Index) SetActive(candidateID string, active bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if c, ok := ix.candidates[candidateID]; ok {
		c.IsActive = active
		ix.candidates[candidateID] = c
	}
}

// SearchBySkills ranks candidates by the size of the intersection between
// their skill set and the query set, ties broken by total experience years
// descending, then candidate id ascending. activeOnly defaults to true at
// the facade; inactive candidates must be requested explicitly.
func (ix *Index) SearchBySkills(ctx context.Context, skills []string, activeOnly bool, userID string) ([]CandidateRef, error) {
	query := normalizeSkills(skills)
	if len(query) == 0 {
		return nil, ErrQuery
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	refs := make([]CandidateRef, 0)
	exp := make(map[string]float64)
	for id, doc := range ix.docs {
		cand, ok := ix.candidates[id]
		if !ok || (activeOnly && !cand.IsActive) {
			continue
		}
		matched := 0
		for _, s := range query {
			if _, ok := doc.skills[s]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		refs = append(refs, CandidateRef{CandidateID: id, Name: cand.Name, Score: float64(matched)})
		exp[id] = cand.TotalExperienceYears
	}
	ix.mu.RUnlock()

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Score != refs[j].Score {
			return refs[i].Score > refs[j].Score
		}
		if exp[refs[i].CandidateID] != exp[refs[j].CandidateID] {
			return exp[refs[i].CandidateID] > exp[refs[j].CandidateID]
		}
		return refs[i].CandidateID < refs[j].CandidateID
	})

	ix.recordHistory(userID, storage.SearchSkill, map[string]interface{}{
		"skills":      query,
		"active_only": activeOnly,
	})
	return refs, nil
}

// SearchFullText ranks candidates over their resume search vector. The score
// is dominated by the count of distinct matched terms and refined by term
// frequency, so ranking is monotonic in matched-term count and deterministic
// for identical inputs.
func (ix *Index) SearchFullText(ctx context.Context, query string, activeOnly bool, userID string) ([]CandidateRef, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, ErrQuery
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	refs := make([]CandidateRef, 0)
	for id, doc := range ix.docs {
		cand, ok := ix.candidates[id]
		if !ok || (activeOnly && !cand.IsActive) {
			continue
		}
		matched := 0
		tf := 0
		for _, t := range terms {
			if n := doc.terms[t]; n > 0 {
				matched++
				tf += n
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) + float64(tf)/float64(1+doc.total)
		refs = append(refs, CandidateRef{CandidateID: id, Name: cand.Name, Score: score})
	}
	ix.mu.RUnlock()

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Score != refs[j].Score {
			return refs[i].Score > refs[j].Score
		}
		return refs[i].CandidateID < refs[j].CandidateID
	})

	ix.recordHistory(userID, storage.SearchFullText, map[string]interface{}{
		"query":       query,
		"active_only": activeOnly,
	})
	return refs, nil
}

// CandidateRefs resolves candidate ids to refs, preserving input order.
// Unknown ids are returned with an empty name rather than dropped.
func (ix *Index) CandidateRefs(ids []string) []CandidateRef {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	refs := make([]CandidateRef, 0, len(ids))
	for _, id := range ids {
		ref := CandidateRef{CandidateID: id}
		if c, ok := ix.candidates[id]; ok {
			ref.Name = c.Name
		}
		refs = append(refs, ref)
	}
	return refs
}

// TopSkills returns the most common skills across indexed resumes.
func (ix *Index) TopSkills(limit int) []SkillCount {
	ix.mu.RLock()
	counts := make(map[string]int)
	for _, doc := range ix.docs {
		for s := range doc.skills {
			counts[s]++
		}
	}
	ix.mu.RUnlock()

	out := make([]SkillCount, 0, len(counts))
	for s, n := range counts {
		out = append(out, SkillCount{Skill: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Skill < out[j].Skill
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// recordHistory never blocks and never fails the originating query.
func (ix *Index) recordHistory(userID string, searchType storage.SearchType, criteria map[string]interface{}) {
	if ix.history == nil {
		return
	}
	payload, err := json.Marshal(criteria)
	if err != nil {
		ix.logger.Warn().Err(err).Msg("search history payload not serializable")
		return
	}
	ix.history.Record(userID, searchType, string(payload))
}

func buildPostings(resume *storage.Resume) *indexedResume {
	doc := &indexedResume{
		resumeID: resume.ID,
		skills:   make(map[string]struct{}, len(resume.Skills)),
		terms:    make(map[string]int),
	}
	for _, s := range resume.Skills {
		doc.skills[strings.ToLower(s)] = struct{}{}
	}
	for _, t := range tokenize(resume.SearchVector) {
		doc.terms[t]++
		doc.total++
	}
	return doc
}

func normalizeSkills(skills []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
