// Package dedup implements the cross-source deduplication merger of spec
// §4.8: given candidates from more than one source run in the same
// sweep, it picks the richer description per (company, title, location)
// key and records provenance on the winner.
//
// Grounded on original_source/pipeline/unified_job_ingester.py's
// UnifiedJobIngester.merge(): same MD5 dedup key, same
// richer-source-wins-unless-1.2x-longer swap rule, same per-source
// breakdown in the stats it returns.
package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"jobpipeline/internal/models"
)

// sourcePreference ranks direct-ATS sources above the aggregator,
// richest description first, per spec §4.8 rule 1's default preference
// order. Sources not listed rank last.
var sourcePreference = map[string]int{
	"greenhouse":      0,
	"lever":           0,
	"ashby":           0,
	"workable":        0,
	"smartrecruiters": 0,
	"google":          0,
	"adzuna":          1,
}

// lengthSwapFactor is the "≥1.2x longer" threshold of spec §4.8 rule 1.
const lengthSwapFactor = 1.2

// Candidate is one raw+partial-enriched posting entering the merge,
// already keyed by its originating source. RawJobID is opaque to Merge
// itself; it rides along so a caller can write the winning posting back
// to the correct raw_jobs row without re-matching candidates after the
// fact.
type Candidate struct {
	Source      string
	RawJobID    string
	Company     string
	Title       string
	Location    string
	Description string
	Posting     models.EnrichedPosting
}

// MergeResult is the winning posting after a key collision, with both
// description variants kept for audit per spec §4.8 rule 2.
type MergeResult struct {
	RawJobID             string
	Posting              models.EnrichedPosting
	PrimaryDescription   string
	AlternateDescription string // set only when a collision occurred
	AlternateSource      string
}

// MergeStats is spec §4.8 rule 3's emitted stats, supplemented with the
// finer per-source breakdown from unified_job_ingester.py's
// _generate_stats (SPEC_FULL.md "Merge statistics detail").
type MergeStats struct {
	TotalMerged           int
	Deduplicated          int
	DedupRatePercent      int
	AvgDescriptionLength  int
	SourceBreakdown       map[string]int // final rows whose description came from this source
	SourceOnlyCounts      map[string]int // rows uniquely contributed by this source (no collision)
}

func dedupKey(company, title, location string) string {
	normalized := strings.ToLower(company) + "|" + strings.ToLower(title) + "|" + strings.ToLower(location)
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Merge combines candidates from potentially several sources for one
// sweep, producing one stream with dedup provenance recorded on each
// winner. Candidates are processed in the order given by the caller, who
// is expected to hand direct-ATS sources to Merge before the aggregator
// (spec §4.8's "Greenhouse [i.e. direct-ATS] first" processing order).
func Merge(candidates []Candidate) ([]MergeResult, MergeStats) {
	byKey := map[string]*MergeResult{}
	order := []string{}

	for _, c := range candidates {
		key := dedupKey(c.Company, c.Title, c.Location)

		existing, collided := byKey[key]
		if !collided {
			posting := c.Posting
			posting.Deduplicated = false
			byKey[key] = &MergeResult{
				RawJobID:           c.RawJobID,
				Posting:            posting,
				PrimaryDescription: c.Description,
			}
			order = append(order, key)
			continue
		}

		if float64(len(c.Description)) >= float64(len(existing.PrimaryDescription))*lengthSwapFactor {
			// The new candidate's description is significantly richer:
			// swap it in and demote the prior primary to alternate.
			existing.AlternateDescription = existing.PrimaryDescription
			existing.AlternateSource = existing.Posting.DescriptionSource
			existing.PrimaryDescription = c.Description
			existing.Posting.DescriptionSource = c.Source
			existing.RawJobID = c.RawJobID
		} else {
			existing.AlternateDescription = c.Description
			existing.AlternateSource = c.Source
		}
		existing.Posting.Deduplicated = true
	}

	results := make([]MergeResult, 0, len(order))
	sourceBreakdown := map[string]int{}
	sourceOnly := map[string]int{}
	totalDescLen := 0
	deduplicated := 0

	for _, key := range order {
		r := *byKey[key]
		results = append(results, r)
		sourceBreakdown[r.Posting.DescriptionSource]++
		if !r.Posting.Deduplicated {
			sourceOnly[r.Posting.DataSource]++
		} else {
			deduplicated++
		}
		totalDescLen += len(r.PrimaryDescription)
	}

	stats := MergeStats{
		TotalMerged:          len(results),
		Deduplicated:         deduplicated,
		SourceBreakdown:      sourceBreakdown,
		SourceOnlyCounts:     sourceOnly,
	}
	if len(candidates) > 0 {
		stats.DedupRatePercent = 100 * deduplicated / len(candidates)
	}
	if len(results) > 0 {
		stats.AvgDescriptionLength = totalDescLen / len(results)
	}

	return results, stats
}

// rankSource orders sources by richness preference; lower ranks first.
// SortByPreference uses it so a caller choosing the candidate ordering
// for Merge can sort deterministically rather than relying on map
// iteration order upstream.
func rankSource(source string) int {
	if rank, ok := sourcePreference[source]; ok {
		return rank
	}
	return len(sourcePreference) + 1
}

// SortByPreference orders candidates richest-source-first, the ordering
// spec §4.8 rule 1 assumes Merge receives.
func SortByPreference(candidates []Candidate) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)

	for i := 1; i < len(sorted); i++ {
		j := i
		for j > 0 && rankSource(sorted[j-1].Source) > rankSource(sorted[j].Source) {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
			j--
		}
	}
	return sorted
}
