// Package fetch implements one Fetcher per external source (ATS boards and
// the Adzuna aggregator), all behind a single interface, plus the shared
// cheap-filter and content-hash logic the orchestrator relies on before
// ever invoking the classifier.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"jobpipeline/internal/models"
)

// Filters is the compiled, per-source cheap pre-filter config: a title
// regex allow-list and a target-location substring allow-list, already
// scoped to one source by the caller (cmd/sweep, reading
// config.Tables.TitleFilters[source] / LocationFilters[source], then
// handed through internal/orchestrator's Options). Either may be empty,
// which disables that filter.
type Filters struct {
	TitlePatterns       []*regexp.Regexp
	TargetLocations     []string
	MinDescriptionLength int
}

// StructuredHint carries whatever per-source structured fields the fetcher
// extracted beyond the plain RawPosting, forwarded to the classifier as
// structured_input (spec §4.1 table, §4.4).
type StructuredHint struct {
	Category            string
	SalaryMinCents       *int64
	SalaryMaxCents       *int64
	SalaryCurrency       string
	SalaryPredicted      bool
	ExperienceLevelHint  string
	WorkplaceTypeHint    string // onsite | hybrid | remote | unspecified (Lever); on_site | hybrid | remote (Workable)
	IsRemoteHint         *bool
	LocationTypeHint     string
	CountryCode          string
	Department           string
	Team                 string
	Commitment           string
}

// Posting bundles a RawPosting with the structured hints extracted
// alongside it; the Fetcher interface returns these together because the
// hints are derived from the same source payload as the raw fields.
type Posting struct {
	Raw  models.RawPosting
	Hint StructuredHint
}

// Fetcher is the contract every per-source implementation satisfies. It
// must be pure with respect to the raw store: it never persists anything.
type Fetcher interface {
	// Source returns the lowercase source tag, e.g. "greenhouse".
	Source() string
	// Fetch contacts the external endpoint for one employer and returns
	// its postings after cheap filtering, plus stats for the sweep.
	Fetch(ctx context.Context, employer models.EmployerRef, filters Filters) ([]Posting, models.FetchStats)
}

// ContentHash computes the stable, collision-resistant digest used for
// change detection (spec §4.1 rule 5): a SHA-256 of the lower-cased,
// whitespace-normalized title and description, joined by "|".
func ContentHash(title, rawText string) string {
	normalized := normalizeForHash(title) + "|" + normalizeForHash(rawText)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func normalizeForHash(s string) string {
	s = strings.ToLower(s)
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
