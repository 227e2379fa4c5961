package overlap

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-search/internal/storage"
)

func date(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month) *time.Time {
	d := date(y, m)
	return &d
}

func stint(candidate, company, department string, start time.Time, end *time.Time) storage.WorkExperience {
	return storage.WorkExperience{
		ID:          candidate + "-" + company,
		CandidateID: candidate,
		Company:     company,
		Department:  department,
		StartDate:   start,
		EndDate:     end,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(zerolog.Nop())
	e.now = func() time.Time { return date(2024, time.June) }
	return e
}

func TestOverlapsAt_BasicOverlap(t *testing.T) {
	e := newTestEngine(t)
	e.Add(stint("alice", "Acme", "", date(2019, time.January), datePtr(2020, time.January)))
	e.Add(stint("bob", "Acme", "", date(2019, time.June), datePtr(2020, time.June)))

	pairs := e.OverlapsAt("Acme")
	require.Len(t, pairs, 1)
	p := pairs[0]
	assert.Equal(t, "alice", p.CandidateA)
	assert.Equal(t, "bob", p.CandidateB)
	assert.Equal(t, date(2019, time.June), p.Start, "overlap starts at the later start")
	assert.Equal(t, date(2020, time.January), p.End, "overlap ends at the earlier end")
}

func TestOverlapsAt_NoOverlapWhenDisjoint(t *testing.T) {
	e := newTestEngine(t)
	e.Add(stint("alice", "Acme", "", date(2018, time.January), datePtr(2019, time.January)))
	e.Add(stint("bob", "Acme", "", date(2019, time.June), datePtr(2020, time.June)))

	assert.Empty(t, e.OverlapsAt("Acme"))
}

func TestOverlapsAt_DifferentCompaniesNeverOverlap(t *testing.T) {
	e := newTestEngine(t)
	e.Add(stint("alice", "Acme", "", date(2019, time.January), datePtr(2020, time.January)))
	e.Add(stint("bob", "Globex", "", date(2019, time.January), datePtr(2020, time.January)))

	assert.Empty(t, e.OverlapsAt("Acme"))
	assert.Empty(t, e.OverlapsAt("Globex"))
}

func TestOverlapsAt_CompanyNameCaseInsensitive(t *testing.T) {
	e := newTestEngine(t)
	e.Add(stint("alice", "Acme Corp", "", date(2019, time.January), datePtr(2020, time.January)))
	e.Add(stint("bob", "ACME CORP", "", date(2019, time.June), datePtr(2020, time.June)))

	assert.Len(t, e.OverlapsAt("acme corp"), 1)
}

func TestOverlapsAt_OpenEndedStintOverlapsNow(t *testing.T) {
	e := newTestEngine(t)
	e.Add(stint("alice", "Acme", "", date(2022, time.January), nil))
	e.Add(stint("bob", "Acme", "", date(2023, time.March), nil))

	pairs := e.OverlapsAt("Acme")
	require.Len(t, pairs, 1)
	assert.Equal(t, date(2023, time.March), pairs[0].Start)
	assert.Equal(t, date(2024, time.June), pairs[0].End, "open ends resolve to now at query time")
}

func TestOverlapsAt_PairsAreNormalizedAndSorted(t *testing.T) {
	e := newTestEngine(t)
	// Insert in reverse id order; pairs still come out with a < b.
	e.Add(stint("zed", "Acme", "", date(2019, time.January), datePtr(2021, time.January)))
	e.Add(stint("mia", "Acme", "", date(2019, time.January), datePtr(2021, time.January)))
	e.Add(stint("ana", "Acme", "", date(2019, time.January), datePtr(2021, time.January)))

	pairs := e.OverlapsAt("Acme")
	require.Len(t, pairs, 3)
	for _, p := range pairs {
		assert.Less(t, p.CandidateA, p.CandidateB)
	}
	assert.Equal(t, "ana", pairs[0].CandidateA)
	assert.Equal(t, "mia", pairs[0].CandidateB)
	assert.Equal(t, "ana", pairs[1].CandidateA)
	assert.Equal(t, "zed", pairs[1].CandidateB)
	assert.Equal(t, "mia", pairs[2].CandidateA)
	assert.Equal(t, "zed", pairs[2].CandidateB)
}

func TestOverlapsAt_SameCandidateTwiceNeverPairsWithItself(t *testing.T) {
	e := newTestEngine(t)
	e.Add(stint("alice", "Acme", "Platform", date(2018, time.January), datePtr(2019, time.June)))
	e.Add(storage.WorkExperience{
		ID: "alice-acme-2", CandidateID: "alice", Company: "Acme",
		StartDate: date(2019, time.January), EndDate: datePtr(2020, time.January),
	})

	assert.Empty(t, e.OverlapsAt("Acme"))
}

func TestOverlapsWithin_DepartmentScope(t *testing.T) {
	e := newTestEngine(t)
	e.Add(stint("alice", "Acme", "Platform", date(2019, time.January), datePtr(2020, time.January)))
	e.Add(stint("bob", "Acme", "Sales", date(2019, time.January), datePtr(2020, time.January)))
	e.Add(stint("carol", "Acme", "platform", date(2019, time.June), datePtr(2020, time.June)))

	// Company-wide, department is informational only.
	assert.Len(t, e.OverlapsAt("Acme"), 3)

	pairs := e.OverlapsWithin("Acme", "Platform")
	require.Len(t, pairs, 1)
	assert.Equal(t, "alice", pairs[0].CandidateA)
	assert.Equal(t, "carol", pairs[0].CandidateB)
}

func TestColleaguesOf(t *testing.T) {
	e := newTestEngine(t)
	e.Add(stint("c1", "Acme", "", date(2018, time.January), datePtr(2020, time.January)))
	e.Add(stint("c2", "Acme", "", date(2019, time.January), datePtr(2021, time.January)))
	e.Add(stint("c3", "Acme", "", date(2022, time.January), nil))

	assert.Equal(t, []string{"c2"}, e.ColleaguesOf("c1"))
	assert.Equal(t, []string{"c1"}, e.ColleaguesOf("c2"))
	assert.Empty(t, e.ColleaguesOf("c3"), "c3 joined after both left")
	assert.Empty(t, e.ColleaguesOf("nobody"))
}

func TestColleaguesOf_AcrossCompanies(t *testing.T) {
	e := newTestEngine(t)
	e.Add(stint("c1", "Acme", "", date(2015, time.January), datePtr(2017, time.January)))
	e.Add(stint("c1", "Globex", "", date(2017, time.February), datePtr(2019, time.January)))
	e.Add(stint("c2", "Acme", "", date(2016, time.January), datePtr(2018, time.January)))
	e.Add(stint("c3", "Globex", "", date(2018, time.January), datePtr(2020, time.January)))

	assert.Equal(t, []string{"c2", "c3"}, e.ColleaguesOf("c1"))
}

func TestReplaceCandidate_SupersedesStints(t *testing.T) {
	e := newTestEngine(t)
	e.Add(stint("alice", "Acme", "", date(2019, time.January), datePtr(2020, time.January)))
	e.Add(stint("bob", "Acme", "", date(2019, time.June), datePtr(2020, time.June)))
	require.Len(t, e.OverlapsAt("Acme"), 1)

	// A new resume says alice was at Globex instead.
	e.ReplaceCandidate("alice", []storage.WorkExperience{
		stint("alice", "Globex", "", date(2019, time.January), datePtr(2020, time.January)),
	})

	assert.Empty(t, e.OverlapsAt("Acme"))
	assert.Empty(t, e.ColleaguesOf("bob"))
}

func TestReplaceCandidate_ReadersNeverSeeHalfAppliedSwap(t *testing.T) {
	e := newTestEngine(t)
	aliceStints := []storage.WorkExperience{
		stint("alice", "Acme", "", date(2019, time.January), datePtr(2020, time.January)),
	}
	e.Add(aliceStints[0])
	e.Add(stint("bob", "Acme", "", date(2019, time.June), datePtr(2020, time.June)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			e.ReplaceCandidate("alice", aliceStints)
		}
	}()

	// Replacing with an unchanged stint set must be invisible to readers:
	// bob's colleague set may never be observed empty mid-swap.
	gaps := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			if len(e.ColleaguesOf("bob")) == 0 {
				gaps++
			}
		}
	}
	assert.Zero(t, gaps, "colleague set vanished during replace")

	assert.Equal(t, []string{"alice"}, e.ColleaguesOf("bob"))
	assert.Len(t, e.OverlapsAt("Acme"), 1)
}

func TestSweep_BoundaryTouchCountsAsOverlap(t *testing.T) {
	e := newTestEngine(t)
	// Closed intervals: sharing a single day is an overlap.
	e.Add(stint("alice", "Acme", "", date(2019, time.January), datePtr(2019, time.June)))
	e.Add(stint("bob", "Acme", "", date(2019, time.June), datePtr(2020, time.January)))

	pairs := e.OverlapsAt("Acme")
	require.Len(t, pairs, 1)
	assert.Equal(t, date(2019, time.June), pairs[0].Start)
	assert.Equal(t, date(2019, time.June), pairs[0].End)
}
