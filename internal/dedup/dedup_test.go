package dedup

import (
	"strings"
	"testing"

	"jobpipeline/internal/models"
)

func candidate(source, company, title, location, description string) Candidate {
	return Candidate{
		Source:      source,
		Company:     company,
		Title:       title,
		Location:    location,
		Description: description,
		Posting: models.EnrichedPosting{
			EmployerName:      company,
			TitleDisplay:      title,
			DataSource:        source,
			DescriptionSource: source,
		},
	}
}

func TestMergeNoCollisionKeepsBothUndeduplicated(t *testing.T) {
	results, stats := Merge([]Candidate{
		candidate("greenhouse", "Acme", "Engineer", "London", "short desc"),
		candidate("adzuna", "OtherCo", "Designer", "Paris", "another desc"),
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Posting.Deduplicated {
			t.Fatalf("expected no collision to leave Deduplicated=false, got %+v", r.Posting)
		}
	}
	if stats.Deduplicated != 0 {
		t.Fatalf("expected 0 deduplicated, got %d", stats.Deduplicated)
	}
}

func TestMergeCollisionKeepsRicherDescription(t *testing.T) {
	short := "Short description."
	long := strings.Repeat("A much richer and longer description. ", 3)

	// Direct-ATS candidate processed first (richer by default preference),
	// aggregator second with a description that is not >= 1.2x longer.
	results, stats := Merge([]Candidate{
		candidate("greenhouse", "Acme", "Engineer", "London", long),
		candidate("adzuna", "Acme", "Engineer", "London", short),
	})

	if len(results) != 1 {
		t.Fatalf("expected collision to merge into 1 result, got %d", len(results))
	}
	r := results[0]
	if r.PrimaryDescription != long {
		t.Fatalf("expected the richer description to remain primary")
	}
	if r.Posting.DescriptionSource != "greenhouse" {
		t.Fatalf("expected description_source to stay greenhouse, got %q", r.Posting.DescriptionSource)
	}
	if !r.Posting.Deduplicated {
		t.Fatalf("expected winner to be marked deduplicated=true")
	}
	if r.AlternateDescription != short || r.AlternateSource != "adzuna" {
		t.Fatalf("expected loser description kept as alternate for audit, got %+v", r)
	}
	if stats.Deduplicated != 1 {
		t.Fatalf("expected 1 deduplicated in stats, got %d", stats.Deduplicated)
	}
}

func TestMergeSwapsWhenLoserDescriptionSignificantlyLonger(t *testing.T) {
	shortPrimary := "Short."
	muchLonger := strings.Repeat("This is significantly longer and richer. ", 5)

	results, _ := Merge([]Candidate{
		candidate("greenhouse", "Acme", "Engineer", "London", shortPrimary),
		candidate("adzuna", "Acme", "Engineer", "London", muchLonger),
	})

	if len(results) != 1 {
		t.Fatalf("expected 1 merged result, got %d", len(results))
	}
	r := results[0]
	if r.PrimaryDescription != muchLonger {
		t.Fatalf("expected the >=1.2x longer description to swap in as primary")
	}
	if r.Posting.DescriptionSource != "adzuna" {
		t.Fatalf("expected description_source to swap to adzuna, got %q", r.Posting.DescriptionSource)
	}
	if r.AlternateDescription != shortPrimary || r.AlternateSource != "greenhouse" {
		t.Fatalf("expected original primary demoted to alternate, got %+v", r)
	}
}

func TestMergeKeyIsCaseInsensitiveAcrossFields(t *testing.T) {
	results, _ := Merge([]Candidate{
		candidate("greenhouse", "Acme", "Senior Engineer", "London", "a description here"),
		candidate("adzuna", "ACME", "SENIOR ENGINEER", "LONDON", "another description"),
	})
	if len(results) != 1 {
		t.Fatalf("expected case-insensitive key to collide into 1 result, got %d", len(results))
	}
}

func TestSortByPreferenceOrdersDirectATSBeforeAggregator(t *testing.T) {
	input := []Candidate{
		candidate("adzuna", "Acme", "Engineer", "London", "x"),
		candidate("greenhouse", "Acme", "Engineer", "London", "y"),
	}
	sorted := SortByPreference(input)
	if sorted[0].Source != "greenhouse" || sorted[1].Source != "adzuna" {
		t.Fatalf("expected greenhouse before adzuna, got %s then %s", sorted[0].Source, sorted[1].Source)
	}
}

func TestMergeStatsSourceBreakdown(t *testing.T) {
	_, stats := Merge([]Candidate{
		candidate("greenhouse", "Acme", "Engineer", "London", "desc one"),
		candidate("adzuna", "OtherCo", "Designer", "Paris", "desc two"),
	})
	if stats.TotalMerged != 2 {
		t.Fatalf("expected TotalMerged=2, got %d", stats.TotalMerged)
	}
	if stats.SourceOnlyCounts["greenhouse"] != 1 || stats.SourceOnlyCounts["adzuna"] != 1 {
		t.Fatalf("expected each unique source counted once, got %+v", stats.SourceOnlyCounts)
	}
}
