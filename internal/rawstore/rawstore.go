// Package rawstore is the content-addressed Postgres store for
// RawPosting rows, keyed by (source, posting_url), with a Redis-backed
// fast path in front of it for the common "unchanged re-sight" case.
package rawstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"jobpipeline/internal/models"
)

// Action is the three-way upsert outcome of spec §4.2.
type Action string

const (
	ActionInserted      Action = "inserted"
	ActionUpdatedChanged Action = "updated_changed"
	ActionUpdatedSame   Action = "updated_same"
)

// UpsertResult is returned by UpsertRaw.
type UpsertResult struct {
	RowID        string
	Action       Action
	WasDuplicate bool
}

// Store wraps the Postgres connection pool and an optional Redis client
// used as a dedup-key fast path.
type Store struct {
	Pool  *pgxpool.Pool
	Cache *redis.Client // optional; nil disables the fast path
}

// Connect opens the Postgres pool the way the teacher's worker/db package
// does, with the same conservative pool sizing.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func cacheKey(source, postingURL string) string {
	return "rawjob:" + source + ":" + postingURL
}

// UpsertRaw implements spec §4.2's three-way action. Identity is
// (source, posting_url); first_seen is preserved across updates.
func (s *Store) UpsertRaw(ctx context.Context, p models.RawPosting) (UpsertResult, error) {
	if s.Cache != nil {
		if cached, err := s.Cache.Get(ctx, cacheKey(p.Source, p.PostingURL)).Result(); err == nil {
			if cached == p.ContentHash {
				// Fast path: this exact content hash was recorded for
				// this identity within the cache entry's 24h TTL.
				// Still touch last_seen in Postgres — the cache never
				// becomes the source of truth for the row itself.
				if err := s.touchLastSeen(ctx, p.Source, p.PostingURL); err != nil {
					return UpsertResult{}, err
				}
				return UpsertResult{Action: ActionUpdatedSame, WasDuplicate: true}, nil
			}
		}
	}

	metadataJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("marshal metadata: %w", err)
	}

	// existing captures the row's prior content_hash before the upsert so
	// the RETURNING clause can report which of the three actions (spec
	// §4.2) happened in a single round trip, instead of an upsert
	// followed by a read-back query.
	row := s.Pool.QueryRow(ctx, `
		WITH existing AS (
			SELECT content_hash FROM raw_jobs WHERE source = $1 AND posting_url = $2
		), upserted AS (
			INSERT INTO raw_jobs (
				source, posting_url, source_job_id, title, company, raw_text,
				content_hash, city_code, metadata, first_seen, last_seen
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, NOW(), NOW())
			ON CONFLICT (source, posting_url) DO UPDATE SET
				last_seen = NOW(),
				title = CASE WHEN raw_jobs.content_hash = EXCLUDED.content_hash THEN raw_jobs.title ELSE EXCLUDED.title END,
				raw_text = CASE WHEN raw_jobs.content_hash = EXCLUDED.content_hash THEN raw_jobs.raw_text ELSE EXCLUDED.raw_text END,
				content_hash = CASE WHEN raw_jobs.content_hash = EXCLUDED.content_hash THEN raw_jobs.content_hash ELSE EXCLUDED.content_hash END,
				metadata = CASE WHEN raw_jobs.content_hash = EXCLUDED.content_hash THEN raw_jobs.metadata ELSE EXCLUDED.metadata END
			RETURNING id
		)
		SELECT upserted.id, existing.content_hash FROM upserted LEFT JOIN existing ON true
	`, p.Source, p.PostingURL, p.SourceJobID, p.Title, p.Company, p.RawText,
		p.ContentHash, p.CityHint, metadataJSON)

	var rowID string
	var priorHash *string
	if err := row.Scan(&rowID, &priorHash); err != nil {
		return UpsertResult{}, fmt.Errorf("upsert raw posting: %w", err)
	}

	var action Action
	var wasDuplicate bool
	switch {
	case priorHash == nil:
		action = ActionInserted
	case *priorHash == p.ContentHash:
		action = ActionUpdatedSame
		wasDuplicate = true
	default:
		action = ActionUpdatedChanged
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, cacheKey(p.Source, p.PostingURL), p.ContentHash, 24*time.Hour)
	}

	return UpsertResult{RowID: rowID, Action: action, WasDuplicate: wasDuplicate}, nil
}

func (s *Store) touchLastSeen(ctx context.Context, source, postingURL string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE raw_jobs SET last_seen = NOW() WHERE source = $1 AND posting_url = $2
	`, source, postingURL)
	return err
}

// RecentlySeenSlugs returns the set of company slugs for source with a
// last_seen within window — the cheap bulk-liveness skip used by resume
// (spec §4.7 "Resume"), not per-posting skip.
func (s *Store) RecentlySeenSlugs(ctx context.Context, source string, window time.Duration) (map[string]bool, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT DISTINCT company FROM raw_jobs
		WHERE source = $1 AND last_seen >= $2
	`, source, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("query recently seen slugs: %w", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scan recently seen slug: %w", err)
		}
		seen[slug] = true
	}
	return seen, rows.Err()
}
