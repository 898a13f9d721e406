// Package enrichedstore is the one-to-one upsert of EnrichedPosting rows
// against their raw_job_id, applying spec §4.6's default-on-null rules on
// write.
package enrichedstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"jobpipeline/internal/models"
)

// Store wraps the Postgres pool shared with internal/rawstore.
type Store struct {
	Pool *pgxpool.Pool
}

// New builds a Store over an already-connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func coalesce(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func coalesceDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// UpsertEnriched implements spec §4.6: one row per raw_job_id, applying
// the documented defaults when the corresponding field is empty/zero.
// employer_size is part of the §6 enriched_jobs schema but is left out of
// both models.EnrichedPosting and this statement: no fetcher or classifier
// field populates it, so the column would only ever hold NULL.
func (s *Store) UpsertEnriched(ctx context.Context, rawJobID string, p models.EnrichedPosting) (string, error) {
	jobFamily := coalesce(p.JobFamily, "out_of_scope")
	workingArrangement := coalesce(p.WorkingArrangement, "onsite")
	positionType := coalesce(p.PositionType, "full_time")
	postedDate := coalesceDate(p.PostedDate)
	lastSeenDate := coalesceDate(p.LastSeenDate)

	locationsJSON, err := json.Marshal(p.Locations)
	if err != nil {
		return "", fmt.Errorf("marshal locations: %w", err)
	}
	skillsJSON, err := json.Marshal(p.Skills)
	if err != nil {
		return "", fmt.Errorf("marshal skills: %w", err)
	}

	row := s.Pool.QueryRow(ctx, `
		INSERT INTO enriched_jobs (
			raw_job_id, employer_name, title_display, job_family, job_subfamily,
			seniority, track, position_type, working_arrangement, locations,
			experience_range, employer_department, is_agency, agency_confidence,
			currency, salary_min, salary_max, equity_eligible, skills,
			data_source, description_source, deduplicated,
			posted_date, last_seen_date, classified_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb,
			$11, $12, $13, $14, $15, $16, $17, $18, $19::jsonb,
			$20, $21, $22, $23, $24, NOW()
		)
		ON CONFLICT (raw_job_id) DO UPDATE SET
			employer_name = EXCLUDED.employer_name,
			title_display = EXCLUDED.title_display,
			job_family = EXCLUDED.job_family,
			job_subfamily = EXCLUDED.job_subfamily,
			seniority = EXCLUDED.seniority,
			track = EXCLUDED.track,
			position_type = EXCLUDED.position_type,
			working_arrangement = EXCLUDED.working_arrangement,
			locations = EXCLUDED.locations,
			experience_range = EXCLUDED.experience_range,
			employer_department = EXCLUDED.employer_department,
			is_agency = EXCLUDED.is_agency,
			agency_confidence = EXCLUDED.agency_confidence,
			currency = EXCLUDED.currency,
			salary_min = EXCLUDED.salary_min,
			salary_max = EXCLUDED.salary_max,
			equity_eligible = EXCLUDED.equity_eligible,
			skills = EXCLUDED.skills,
			data_source = EXCLUDED.data_source,
			description_source = EXCLUDED.description_source,
			deduplicated = EXCLUDED.deduplicated,
			last_seen_date = EXCLUDED.last_seen_date,
			classified_at = NOW()
		RETURNING id
	`, rawJobID, p.EmployerName, p.TitleDisplay, jobFamily, p.JobSubfamily,
		p.Seniority, p.Track, positionType, workingArrangement, locationsJSON,
		p.ExperienceRange, p.EmployerDepartment, p.IsAgency, p.AgencyConfidence,
		p.Currency, p.SalaryMin, p.SalaryMax, p.EquityEligible, skillsJSON,
		p.DataSource, p.DescriptionSource, p.Deduplicated, postedDate, lastSeenDate)

	var id string
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("upsert enriched posting: %w", err)
	}
	return id, nil
}
