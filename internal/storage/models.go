package storage

import "time"

// ParsingStatus is the lifecycle state of a Resume. A resume is created
// PENDING, transitions exactly once to PARSED or FAILED, and is immutable
// afterwards; a re-upload creates a new resume that supersedes the old one.
type ParsingStatus string

const (
	ParsingPending ParsingStatus = "PENDING"
	ParsingParsed  ParsingStatus = "PARSED"
	ParsingFailed  ParsingStatus = "FAILED"
)

// SearchType classifies entries in the search history log.
type SearchType string

const (
	SearchSkill     SearchType = "SKILL"
	SearchFullText  SearchType = "FULLTEXT"
	SearchColleague SearchType = "COLLEAGUE"
)

// Candidate is the identity root. Resumes and work experiences are owned by
// their candidate; IsActive is toggled by the account lifecycle, never here.
type Candidate struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	CurrentCompany       string  `json:"current_company"`
	TotalExperienceYears float64 `json:"total_experience_years"`
	Location             string  `json:"location"`
	IsActive             bool    `json:"is_active"`
}

// EducationEntry is one education record in document order.
type EducationEntry struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Field       string `json:"field"`
	Year        int    `json:"year"`
}

// Resume is the extraction result of one uploaded document.
// Invariant: ParsingStatus == PARSED implies Skills, Education and
// SearchVector are populated; FAILED implies FailureReason is retained.
type Resume struct {
	ID            string           `json:"id"`
	CandidateID   string           `json:"candidate_id"`
	ParsingStatus ParsingStatus    `json:"parsing_status"`
	Skills        []string         `json:"skills"`
	Education     []EducationEntry `json:"education"`
	SearchVector  string           `json:"search_vector"`
	FailureReason string           `json:"failure_reason,omitempty"`
	ExtractedAt   time.Time        `json:"extracted_at"`
	IsCurrent     bool             `json:"is_current"`
}

// WorkExperience is one employment stint. A nil EndDate means the stint is
// ongoing. Invariant: StartDate <= EndDate when EndDate is set.
type WorkExperience struct {
	ID          string     `json:"id"`
	CandidateID string     `json:"candidate_id"`
	Company     string     `json:"company"`
	Department  string     `json:"department,omitempty"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// IsCurrent reports whether the stint has no end date.
func (w *WorkExperience) IsCurrent() bool {
	return w.EndDate == nil
}

// SearchHistory is one append-only audit record. Written once, never
// updated or deleted.
type SearchHistory struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	SearchType SearchType `json:"search_type"`
	Query      string     `json:"query"`
	SearchedAt time.Time  `json:"searched_at"`
}
