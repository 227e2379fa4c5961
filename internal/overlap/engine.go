package overlap

import (
	"container/heap"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"resume-search/internal/storage"
)

// Pair is one colleague edge: two candidates whose stints at the same
// company overlapped during [Start, End]. CandidateA < CandidateB always.
type Pair struct {
	CandidateA string    `json:"candidate_a"`
	CandidateB string    `json:"candidate_b"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Engine holds work experiences grouped per company and derives colleague
// relationships on demand. Groups are independently locked: one writer per
// company at a time, many concurrent readers, and never a global lock across
// companies. Colleague sets are a read-through view recomputed per query
// scoped to the affected company, not a maintained cache.
type Engine struct {
	mu          sync.RWMutex
	groups      map[string]*companyGroup
	byCandidate map[string]map[string]bool
	now         func() time.Time
	logger      zerolog.Logger
}

type companyGroup struct {
	mu     sync.RWMutex
	stints []storage.WorkExperience
}

func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		groups:      make(map[string]*companyGroup),
		byCandidate: make(map[string]map[string]bool),
		now:         time.Now,
		logger:      logger,
	}
}

// Add inserts one work experience. Only the stint's company group is
// touched; other companies' derived overlaps are unaffected.
func (e *Engine) Add(w storage.WorkExperience) {
	key := companyKey(w.Company)

	e.mu.Lock()
	group, ok := e.groups[key]
	if !ok {
		group = &companyGroup{}
		e.groups[key] = group
	}
	if e.byCandidate[w.CandidateID] == nil {
		e.byCandidate[w.CandidateID] = make(map[string]bool)
	}
	e.byCandidate[w.CandidateID][key] = true
	e.mu.Unlock()

	group.mu.Lock()
	group.stints = append(group.stints, w)
	group.mu.Unlock()
}

// ReplaceCandidate swaps all of a candidate's stints for the given set.
// Used on re-ingestion so a superseded resume's stints disappear with it.
// Each affected company's stint set is removed and re-inserted inside a
// single lock window, so a concurrent reader sees the candidate's old stints
// or the new ones, never a half-applied gap in between.
func (e *Engine) ReplaceCandidate(candidateID string, stints []storage.WorkExperience) {
	incoming := make(map[string][]storage.WorkExperience)
	for _, s := range stints {
		key := companyKey(s.Company)
		incoming[key] = append(incoming[key], s)
	}

	e.mu.Lock()
	affected := make(map[string]*companyGroup, len(incoming))
	for key := range e.byCandidate[candidateID] {
		if g, ok := e.groups[key]; ok {
			affected[key] = g
		}
	}
	for key := range incoming {
		group, ok := e.groups[key]
		if !ok {
			group = &companyGroup{}
			e.groups[key] = group
		}
		affected[key] = group
	}
	if len(incoming) == 0 {
		delete(e.byCandidate, candidateID)
	} else {
		membership := make(map[string]bool, len(incoming))
		for key := range incoming {
			membership[key] = true
		}
		e.byCandidate[candidateID] = membership
	}
	e.mu.Unlock()

	for key, group := range affected {
		group.mu.Lock()
		kept := group.stints[:0]
		for _, s := range group.stints {
			if s.CandidateID != candidateID {
				kept = append(kept, s)
			}
		}
		group.stints = append(kept, incoming[key]...)
		group.mu.Unlock()
	}
}

// OverlapsAt returns every pair of candidates whose stints at the company
// overlap in time, sorted by (candidate_a, candidate_b, start). An open end
// date is treated as "now" at query time. Department is informational and
// not part of the overlap key.
func (e *Engine) OverlapsAt(company string) []Pair {
	return e.overlaps(company, "")
}

// OverlapsWithin is OverlapsAt scoped to a single department.
func (e *Engine) OverlapsWithin(company, department string) []Pair {
	return e.overlaps(company, department)
}

func (e *Engine) overlaps(company, department string) []Pair {
	e.mu.RLock()
	group, ok := e.groups[companyKey(company)]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	group.mu.RLock()
	stints := make([]storage.WorkExperience, 0, len(group.stints))
	for _, s := range group.stints {
		if department != "" && !strings.EqualFold(s.Department, department) {
			continue
		}
		stints = append(stints, s)
	}
	group.mu.RUnlock()

	return sweep(stints, e.now())
}

// ColleaguesOf returns the sorted set of candidates who share an
// overlapping stint with the given candidate at any company. The result is
// recomputed from the candidate's company groups on every call.
func (e *Engine) ColleaguesOf(candidateID string) []string {
	e.mu.RLock()
	groups := make([]*companyGroup, 0, len(e.byCandidate[candidateID]))
	for key := range e.byCandidate[candidateID] {
		if g, ok := e.groups[key]; ok {
			groups = append(groups, g)
		}
	}
	e.mu.RUnlock()

	now := e.now()
	colleagues := make(map[string]bool)
	for _, group := range groups {
		group.mu.RLock()
		var mine, theirs []storage.WorkExperience
		for _, s := range group.stints {
			if s.CandidateID == candidateID {
				mine = append(mine, s)
			} else {
				theirs = append(theirs, s)
			}
		}
		for _, m := range mine {
			for _, t := range theirs {
				if intervalsOverlap(m, t, now) {
					colleagues[t.CandidateID] = true
				}
			}
		}
		group.mu.RUnlock()
	}

	out := make([]string, 0, len(colleagues))
	for id := range colleagues {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// sweep finds all pairwise interval overlaps in O(n log n + k): stints are
// sorted by start date and swept with an active set keyed by end date, so a
// new stint only pairs with stints still active at its start.
func sweep(stints []storage.WorkExperience, now time.Time) []Pair {
	if len(stints) < 2 {
		return nil
	}

	sorted := make([]storage.WorkExperience, len(stints))
	copy(sorted, stints)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].StartDate.Equal(sorted[j].StartDate) {
			return sorted[i].StartDate.Before(sorted[j].StartDate)
		}
		return sorted[i].CandidateID < sorted[j].CandidateID
	})

	var pairs []Pair
	active := &endHeap{}
	seen := make(map[[2]string]bool)

	for _, s := range sorted {
		sEnd := effectiveEnd(s, now)
		// Stints that ended before this one started can never overlap
		// anything later either, since starts are non-decreasing.
		for active.Len() > 0 && (*active)[0].end.Before(s.StartDate) {
			heap.Pop(active)
		}
		for _, a := range *active {
			if a.candidateID == s.CandidateID {
				continue
			}
			p := Pair{
				CandidateA: a.candidateID,
				CandidateB: s.CandidateID,
				Start:      s.StartDate, // max of the two starts
				End:        minTime(a.end, sEnd),
			}
			if p.CandidateA > p.CandidateB {
				p.CandidateA, p.CandidateB = p.CandidateB, p.CandidateA
			}
			key := [2]string{p.CandidateA, p.CandidateB}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, p)
		}
		heap.Push(active, activeStint{candidateID: s.CandidateID, end: sEnd})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].CandidateA != pairs[j].CandidateA {
			return pairs[i].CandidateA < pairs[j].CandidateA
		}
		if pairs[i].CandidateB != pairs[j].CandidateB {
			return pairs[i].CandidateB < pairs[j].CandidateB
		}
		return pairs[i].Start.Before(pairs[j].Start)
	})
	return pairs
}

// intervalsOverlap applies the closed-interval test s1 <= e2 && s2 <= e1
// with open ends resolved to now.
func intervalsOverlap(a, b storage.WorkExperience, now time.Time) bool {
	aEnd := effectiveEnd(a, now)
	bEnd := effectiveEnd(b, now)
	return !a.StartDate.After(bEnd) && !b.StartDate.After(aEnd)
}

func effectiveEnd(w storage.WorkExperience, now time.Time) time.Time {
	if w.EndDate == nil {
		return now
	}
	return *w.EndDate
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func companyKey(company string) string {
	return strings.ToLower(strings.TrimSpace(company))
}

type activeStint struct {
	candidateID string
	end         time.Time
}

type endHeap []activeStint

func (h endHeap) Len() int            { return len(h) }
func (h endHeap) Less(i, j int) bool  { return h[i].end.Before(h[j].end) }
func (h endHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *endHeap) Push(x interface{}) { *h = append(*h, x.(activeStint)) }
func (h *endHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
