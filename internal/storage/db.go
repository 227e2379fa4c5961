package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
)

type DB struct {
	connection *sql.DB
	logger     zerolog.Logger
}

func NewDB(dataSourceName string, logger zerolog.Logger) (*DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}

	// Connection pool tuning
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &DB{connection: db, logger: logger}, nil
}

func (db *DB) Close() {
	if err := db.connection.Close(); err != nil {
		db.logger.Error().Err(err).Msg("closing database connection")
	}
}

// InitSchema creates the tables and indexes used by the engine.
// work_experiences carries a composite index matching the overlap sweep's
// access pattern; resumes.search_vector is GIN-indexed for full-text lookups.
func (db *DB) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candidates (
			id                     TEXT PRIMARY KEY,
			name                   TEXT NOT NULL,
			current_company        TEXT NOT NULL DEFAULT '',
			total_experience_years DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (total_experience_years >= 0),
			location               TEXT NOT NULL DEFAULT '',
			is_active              BOOLEAN NOT NULL DEFAULT TRUE,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS resumes (
			id             TEXT PRIMARY KEY,
			candidate_id   TEXT NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
			parsing_status TEXT NOT NULL,
			skills         JSONB NOT NULL DEFAULT '[]',
			education      JSONB NOT NULL DEFAULT '[]',
			search_vector  TSVECTOR,
			search_text    TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			extracted_at   TIMESTAMPTZ,
			is_current     BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resumes_search_vector ON resumes USING GIN (search_vector)`,
		`CREATE INDEX IF NOT EXISTS idx_resumes_candidate ON resumes (candidate_id, is_current)`,
		`CREATE TABLE IF NOT EXISTS work_experiences (
			id           TEXT PRIMARY KEY,
			candidate_id TEXT NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
			company      TEXT NOT NULL,
			department   TEXT NOT NULL DEFAULT '',
			start_date   DATE NOT NULL,
			end_date     DATE,
			CHECK (end_date IS NULL OR start_date <= end_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_work_experiences_overlap
			ON work_experiences (company, start_date, end_date, candidate_id)`,
		`CREATE TABLE IF NOT EXISTS search_history (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			search_type TEXT NOT NULL,
			query       TEXT NOT NULL,
			searched_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_history_user
			ON search_history (user_id, search_type, searched_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.connection.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema init failed: %w", err)
		}
	}
	return nil
}

const (
	upsertCandidateSQL = `
		INSERT INTO candidates (id, name, current_company, total_experience_years, location, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    current_company = EXCLUDED.current_company,
			    total_experience_years = EXCLUDED.total_experience_years,
			    location = EXCLUDED.location,
			    updated_at = NOW()`

	ensureCandidateSQL = `
		INSERT INTO candidates (id, name, location, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (id) DO NOTHING`
)

// SaveIngestion persists the outcome of one ingestion pipeline in a single
// transaction: the candidate is upserted, any previous current resume is
// superseded, and the candidate's work experiences are replaced.
func (db *DB) SaveIngestion(ctx context.Context, candidate Candidate, resume *Resume, experiences []WorkExperience) error {
	tx, err := db.connection.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Only a successful parse carries authoritative candidate aggregates.
	// A FAILED ingestion must not overwrite name, current company or
	// experience years from the last successful parse; it only ensures the
	// row its resume references exists.
	if resume.ParsingStatus == ParsingParsed {
		_, err = tx.ExecContext(ctx, upsertCandidateSQL,
			candidate.ID, candidate.Name, candidate.CurrentCompany,
			candidate.TotalExperienceYears, candidate.Location, candidate.IsActive,
		)
	} else {
		_, err = tx.ExecContext(ctx, ensureCandidateSQL,
			candidate.ID, candidate.Name, candidate.Location,
		)
	}
	if err != nil {
		return fmt.Errorf("write candidate: %w", err)
	}

	if resume.IsCurrent {
		_, err = tx.ExecContext(ctx,
			`UPDATE resumes SET is_current = FALSE WHERE candidate_id = $1 AND is_current`,
			resume.CandidateID,
		)
		if err != nil {
			return fmt.Errorf("supersede resume: %w", err)
		}
	}

	skills, err := json.Marshal(resume.Skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}
	education, err := json.Marshal(resume.Education)
	if err != nil {
		return fmt.Errorf("marshal education: %w", err)
	}

	// search_text keeps the raw capped text so the in-memory index can be
	// rebuilt after a restart; search_vector serves SQL-side full-text.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO resumes (id, candidate_id, parsing_status, skills, education, search_vector, search_text, failure_reason, extracted_at, is_current)
		VALUES ($1, $2, $3, $4, $5, to_tsvector('english', $6), $6, $7, $8, $9)`,
		resume.ID, resume.CandidateID, resume.ParsingStatus, skills, education,
		resume.SearchVector, resume.FailureReason, resume.ExtractedAt, resume.IsCurrent,
	)
	if err != nil {
		return fmt.Errorf("insert resume: %w", err)
	}

	if resume.ParsingStatus == ParsingParsed {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM work_experiences WHERE candidate_id = $1`, resume.CandidateID)
		if err != nil {
			return fmt.Errorf("replace work experiences: %w", err)
		}
		for _, exp := range experiences {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO work_experiences (id, candidate_id, company, department, start_date, end_date)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				exp.ID, exp.CandidateID, exp.Company, exp.Department, exp.StartDate, exp.EndDate,
			)
			if err != nil {
				return fmt.Errorf("insert work experience: %w", err)
			}
		}
	}

	return tx.Commit()
}

// AppendSearchHistory writes one audit record. The table is append-only;
// callers treat failures as non-fatal.
func (db *DB) AppendSearchHistory(ctx context.Context, record SearchHistory) error {
	_, err := db.connection.ExecContext(ctx, `
		INSERT INTO search_history (id, user_id, search_type, query, searched_at)
		VALUES ($1, $2, $3, $4, $5)`,
		record.ID, record.UserID, record.SearchType, record.Query, record.SearchedAt,
	)
	return err
}

// SetCandidateActive flips the account lifecycle flag. The candidate row is
// kept; history referencing it stays valid.
func (db *DB) SetCandidateActive(ctx context.Context, candidateID string, active bool) error {
	res, err := db.connection.ExecContext(ctx,
		`UPDATE candidates SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, candidateID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (db *DB) GetCandidate(ctx context.Context, id string) (*Candidate, error) {
	c := &Candidate{}
	err := db.connection.QueryRowContext(ctx, `
		SELECT id, name, current_company, total_experience_years, location, is_active
		FROM candidates WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.CurrentCompany, &c.TotalExperienceYears, &c.Location, &c.IsActive)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CurrentResume returns the candidate's active resume, or sql.ErrNoRows.
func (db *DB) CurrentResume(ctx context.Context, candidateID string) (*Resume, error) {
	r := &Resume{}
	var skills, education []byte
	var extractedAt sql.NullTime
	err := db.connection.QueryRowContext(ctx, `
		SELECT id, candidate_id, parsing_status, skills, education, search_text, failure_reason, extracted_at, is_current
		FROM resumes WHERE candidate_id = $1 AND is_current`, candidateID,
	).Scan(&r.ID, &r.CandidateID, &r.ParsingStatus, &skills, &education, &r.SearchVector, &r.FailureReason, &extractedAt, &r.IsCurrent)
	if err != nil {
		return nil, err
	}
	if extractedAt.Valid {
		r.ExtractedAt = extractedAt.Time
	}
	if err := json.Unmarshal(skills, &r.Skills); err != nil {
		return nil, fmt.Errorf("unmarshal skills: %w", err)
	}
	if err := json.Unmarshal(education, &r.Education); err != nil {
		return nil, fmt.Errorf("unmarshal education: %w", err)
	}
	return r, nil
}

// ListWorkExperiencesByCompany streams one company's stints in the order the
// overlap sweep wants them.
func (db *DB) ListWorkExperiencesByCompany(ctx context.Context, company string) ([]WorkExperience, error) {
	rows, err := db.connection.QueryContext(ctx, `
		SELECT id, candidate_id, company, department, start_date, end_date
		FROM work_experiences
		WHERE company = $1
		ORDER BY start_date, candidate_id`, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []WorkExperience
	for rows.Next() {
		var w WorkExperience
		if err := rows.Scan(&w.ID, &w.CandidateID, &w.Company, &w.Department, &w.StartDate, &w.EndDate); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// CurrentIngestion pairs a candidate with its active parsed resume.
type CurrentIngestion struct {
	Candidate Candidate
	Resume    Resume
}

// ListCurrentResumes returns every candidate together with their current
// parsed resume. Used to rebuild the in-memory index after a restart.
func (db *DB) ListCurrentResumes(ctx context.Context) ([]CurrentIngestion, error) {
	rows, err := db.connection.QueryContext(ctx, `
		SELECT c.id, c.name, c.current_company, c.total_experience_years, c.location, c.is_active,
		       r.id, r.parsing_status, r.skills, r.education, r.search_text, r.extracted_at
		FROM candidates c
		JOIN resumes r ON r.candidate_id = c.id AND r.is_current
		WHERE r.parsing_status = $1
		ORDER BY c.id`, ParsingParsed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []CurrentIngestion
	for rows.Next() {
		var in CurrentIngestion
		var skills, education []byte
		var extractedAt sql.NullTime
		err := rows.Scan(
			&in.Candidate.ID, &in.Candidate.Name, &in.Candidate.CurrentCompany,
			&in.Candidate.TotalExperienceYears, &in.Candidate.Location, &in.Candidate.IsActive,
			&in.Resume.ID, &in.Resume.ParsingStatus, &skills, &education,
			&in.Resume.SearchVector, &extractedAt,
		)
		if err != nil {
			return nil, err
		}
		in.Resume.CandidateID = in.Candidate.ID
		in.Resume.IsCurrent = true
		if extractedAt.Valid {
			in.Resume.ExtractedAt = extractedAt.Time
		}
		if err := json.Unmarshal(skills, &in.Resume.Skills); err != nil {
			return nil, fmt.Errorf("unmarshal skills: %w", err)
		}
		if err := json.Unmarshal(education, &in.Resume.Education); err != nil {
			return nil, fmt.Errorf("unmarshal education: %w", err)
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

// ListWorkExperiences returns every stored stint, grouped by candidate so
// the overlap engine can be rebuilt with one ReplaceCandidate per candidate.
func (db *DB) ListWorkExperiences(ctx context.Context) ([]WorkExperience, error) {
	rows, err := db.connection.QueryContext(ctx, `
		SELECT id, candidate_id, company, department, start_date, end_date
		FROM work_experiences
		ORDER BY candidate_id, start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []WorkExperience
	for rows.Next() {
		var w WorkExperience
		if err := rows.Scan(&w.ID, &w.CandidateID, &w.Company, &w.Department, &w.StartDate, &w.EndDate); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}
