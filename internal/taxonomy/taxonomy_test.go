package taxonomy

import (
	"testing"

	"jobpipeline/internal/config"
	"jobpipeline/internal/fetch"
	"jobpipeline/internal/models"
)

func testMapper() *Mapper {
	tables := &config.Tables{
		JobFamily: config.SubfamilyToFamily{
			"ai_ml_pm":    "product",
			"core_pm":     "product",
			"ml_engineer": "data",
			"out_of_scope": "out_of_scope",
		},
		SkillFamily: config.SkillToFamily{
			"python": "programming",
			"spark":  "data_processing",
		},
		CompensationRules: []config.CompensationSuppressionRule{
			{DataSource: "*", City: "london"},
			{DataSource: "*", City: "singapore"},
			{DataSource: "adzuna", City: "*"},
		},
	}
	return New(tables)
}

func TestSubfamilyToFamilyOverwritesClassifierValue(t *testing.T) {
	m := testMapper()

	// Invariant 3: job_family is always the deterministic mapping of
	// job_subfamily when the subfamily is in the table.
	if got := m.SubfamilyToFamily("ml_engineer", "product"); got != "data" {
		t.Fatalf("expected subfamily mapping to win, got %q", got)
	}

	// Product-manager rule (spec §8 scenario 5): a PM subfamily must map
	// to product, never whatever family the LLM guessed.
	if got := m.SubfamilyToFamily("core_pm", "data"); got != "product" {
		t.Fatalf("expected core_pm to map to product, got %q", got)
	}
}

func TestSubfamilyToFamilyOutOfTableLeavesClassifierValue(t *testing.T) {
	m := testMapper()
	if got := m.SubfamilyToFamily("unknown_subfamily", "delivery"); got != "delivery" {
		t.Fatalf("expected out-of-table subfamily to leave classifier family untouched, got %q", got)
	}
}

func TestSubfamilyToFamilyOutOfScope(t *testing.T) {
	m := testMapper()
	if got := m.SubfamilyToFamily("out_of_scope", "product"); got != "out_of_scope" {
		t.Fatalf("expected out_of_scope subfamily to map to out_of_scope family, got %q", got)
	}
}

func TestSkillFamilyUnknownKeepsNameNullFamily(t *testing.T) {
	m := testMapper()

	known := m.SkillFamily("Python")
	if known.FamilyCode != "programming" {
		t.Fatalf("expected known skill to resolve family, got %q", known.FamilyCode)
	}

	unknown := m.SkillFamily("COBOL")
	if unknown.Name != "COBOL" || unknown.FamilyCode != "" {
		t.Fatalf("expected unknown skill to keep its name with empty family code, got %+v", unknown)
	}
}

func TestCorrectTrackDowngradesManagementWithoutSignal(t *testing.T) {
	m := testMapper()

	track, _ := m.CorrectTrackAndSeniority("Senior Data Engineer", "management", "mid")
	if track != "ic" {
		t.Fatalf("expected management track without signal token to downgrade to ic, got %q", track)
	}

	track, _ = m.CorrectTrackAndSeniority("VP of Engineering", "management", "mid")
	if track != "management" {
		t.Fatalf("expected management track with VP signal to stay management, got %q", track)
	}
}

func TestCorrectSeniorityReinfersDirectorPlusWithoutSignal(t *testing.T) {
	m := testMapper()

	_, seniority := m.CorrectTrackAndSeniority("Staff Software Engineer", "ic", "director_plus")
	if seniority != "staff_principal" {
		t.Fatalf("expected staff token to re-infer staff_principal, got %q", seniority)
	}

	_, seniority = m.CorrectTrackAndSeniority("Senior Software Engineer", "ic", "director_plus")
	if seniority != "senior" {
		t.Fatalf("expected senior token to re-infer senior, got %q", seniority)
	}

	_, seniority = m.CorrectTrackAndSeniority("Software Engineer", "ic", "director_plus")
	if seniority != "mid" {
		t.Fatalf("expected no signal tokens to re-infer mid, got %q", seniority)
	}

	_, seniority = m.CorrectTrackAndSeniority("Director of Engineering", "management", "director_plus")
	if seniority != "director_plus" {
		t.Fatalf("expected director signal to leave director_plus untouched, got %q", seniority)
	}
}

func TestExtractLocationsMultiToken(t *testing.T) {
	m := testMapper()
	entries := m.ExtractLocations("London / Remote", fetch.StructuredHint{})
	if len(entries) != 2 {
		t.Fatalf("expected two location entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Type != "city" || entries[0].City != "London" {
		t.Fatalf("expected first entry to be London city, got %+v", entries[0])
	}
	if entries[1].Type != "remote" || entries[1].Scope != "global" {
		t.Fatalf("expected second entry to be global remote, got %+v", entries[1])
	}
}

func TestExtractLocationsPrefersStructuredHint(t *testing.T) {
	m := testMapper()
	entries := m.ExtractLocations("London, UK", fetch.StructuredHint{CountryCode: "GB"})
	if len(entries) != 1 || entries[0].CountryCode != "GB" {
		t.Fatalf("expected structured country hint to win, got %+v", entries)
	}
}

func TestResolveWorkingArrangementFallbackChain(t *testing.T) {
	m := testMapper()

	// Lever scenario from spec §8: classifier says unknown, fetcher hint wins.
	got := m.ResolveWorkingArrangement("unknown", fetch.StructuredHint{WorkplaceTypeHint: "remote"}, nil)
	if got != "remote" {
		t.Fatalf("expected workplace type hint to win over unknown classifier value, got %q", got)
	}

	isRemote := true
	got = m.ResolveWorkingArrangement("unknown", fetch.StructuredHint{IsRemoteHint: &isRemote}, nil)
	if got != "remote" {
		t.Fatalf("expected is_remote hint to resolve to remote, got %q", got)
	}

	got = m.ResolveWorkingArrangement("unknown", fetch.StructuredHint{}, []models.LocationEntry{{Type: "remote", Scope: "global"}})
	if got != "remote" {
		t.Fatalf("expected remote location entry to resolve arrangement, got %q", got)
	}

	got = m.ResolveWorkingArrangement("unknown", fetch.StructuredHint{}, nil)
	if got != "onsite" {
		t.Fatalf("expected final fallback to be onsite, got %q", got)
	}

	got = m.ResolveWorkingArrangement("hybrid", fetch.StructuredHint{WorkplaceTypeHint: "remote"}, nil)
	if got != "hybrid" {
		t.Fatalf("expected non-unknown classifier value to take priority, got %q", got)
	}
}

func TestCompensationSuppressedRules(t *testing.T) {
	m := testMapper()

	if !m.CompensationSuppressed("greenhouse", "London") {
		t.Fatalf("expected London from any source to be suppressed")
	}
	if !m.CompensationSuppressed("ashby", "Singapore") {
		t.Fatalf("expected Singapore from any source to be suppressed")
	}
	if !m.CompensationSuppressed("adzuna", "Denver") {
		t.Fatalf("expected every Adzuna posting to be suppressed regardless of city")
	}
	if m.CompensationSuppressed("greenhouse", "Denver") {
		t.Fatalf("expected Denver from a direct-ATS source not to be suppressed")
	}
}

// TestCompensationSuppressedMatchesCityWithinFullLocationString covers
// spec §8 scenario 1: fetchers hand CompensationSuppressed the full
// location string (Ashby's "London, UK"), not a bare city name, so the
// rule must match london as a token within it rather than requiring
// exact equality.
func TestCompensationSuppressedMatchesCityWithinFullLocationString(t *testing.T) {
	m := testMapper()

	if !m.CompensationSuppressed("ashby", "London, UK") {
		t.Fatalf("expected London, UK to be suppressed via city-token match")
	}
	if !m.CompensationSuppressed("greenhouse", "Singapore, Singapore") {
		t.Fatalf("expected Singapore, Singapore to be suppressed via city-token match")
	}
	if !m.CompensationSuppressed("greenhouse", "London / Remote") {
		t.Fatalf("expected a multi-token location containing London to be suppressed")
	}
	if m.CompensationSuppressed("greenhouse", "New York, NY") {
		t.Fatalf("expected New York not to collide with the London/Singapore rules")
	}
}
