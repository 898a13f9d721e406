package orchestrator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"jobpipeline/internal/agency"
	"jobpipeline/internal/classifier"
	"jobpipeline/internal/config"
	"jobpipeline/internal/fetch"
	"jobpipeline/internal/models"
	"jobpipeline/internal/pipelineerr"
	"jobpipeline/internal/rawstore"
	"jobpipeline/internal/taxonomy"
)

// fakeFetcher returns a fixed set of postings once per employer slug,
// recording how many times it was called.
type fakeFetcher struct {
	source   string
	postings map[string][]fetch.Posting
	calls    int
}

func (f *fakeFetcher) Source() string { return f.source }

func (f *fakeFetcher) Fetch(ctx context.Context, employer models.EmployerRef, filters fetch.Filters) ([]fetch.Posting, models.FetchStats) {
	f.calls++
	postings := f.postings[employer.Slug]
	return postings, models.FetchStats{Fetched: len(postings)}
}

// fakeRawStore is an in-memory stand-in for internal/rawstore.Store,
// keyed by (source, posting_url), implementing the three-way action of
// spec §4.2 without touching Postgres.
type fakeRawStore struct {
	rows        map[string]models.RawPosting
	recentSlugs map[string]bool
}

func newFakeRawStore() *fakeRawStore {
	return &fakeRawStore{rows: map[string]models.RawPosting{}}
}

func (s *fakeRawStore) key(source, url string) string { return source + "|" + url }

func (s *fakeRawStore) UpsertRaw(ctx context.Context, p models.RawPosting) (rawstore.UpsertResult, error) {
	k := s.key(p.Source, p.PostingURL)
	existing, ok := s.rows[k]
	if !ok {
		s.rows[k] = p
		return rawstore.UpsertResult{RowID: k, Action: rawstore.ActionInserted}, nil
	}
	if existing.ContentHash == p.ContentHash {
		return rawstore.UpsertResult{RowID: k, Action: rawstore.ActionUpdatedSame, WasDuplicate: true}, nil
	}
	s.rows[k] = p
	return rawstore.UpsertResult{RowID: k, Action: rawstore.ActionUpdatedChanged}, nil
}

func (s *fakeRawStore) RecentlySeenSlugs(ctx context.Context, source string, window time.Duration) (map[string]bool, error) {
	return s.recentSlugs, nil
}

// fakeEnrichedStore records every upsert it receives, keyed by raw row ID.
type fakeEnrichedStore struct {
	rows map[string]models.EnrichedPosting
}

func newFakeEnrichedStore() *fakeEnrichedStore {
	return &fakeEnrichedStore{rows: map[string]models.EnrichedPosting{}}
}

func (s *fakeEnrichedStore) UpsertEnriched(ctx context.Context, rawJobID string, p models.EnrichedPosting) (string, error) {
	s.rows[rawJobID] = p
	return rawJobID, nil
}

// fakeGateway is a classifier.Gateway stand-in whose verdict is supplied
// by the test, with a call counter to assert skip behavior.
type fakeGateway struct {
	result models.Classification
	err    *pipelineerr.Error
	calls  int
}

func (g *fakeGateway) Classify(ctx context.Context, rawText string, input classifier.StructuredInput, sourceTag string) (models.Classification, *pipelineerr.Error) {
	g.calls++
	return g.result, g.err
}

func newTestOrchestrator(fetcher fetch.Fetcher, raw *fakeRawStore, enriched *fakeEnrichedStore, gw *fakeGateway) *Orchestrator {
	tables := &config.Tables{
		JobFamily:   config.SubfamilyToFamily{"data_engineer": "data", "core_pm": "product"},
		SkillFamily: config.SkillToFamily{"python": "programming"},
	}
	return &Orchestrator{
		Fetcher:    fetcher,
		RawStore:   raw,
		Enriched:   enriched,
		Agency:     agency.New(config.AgencyTables{HardList: []string{"hays recruitment"}}),
		Classifier: gw,
		Taxonomy:   taxonomy.New(tables),
		Log:        zap.NewNop().Sugar(),
	}
}

func posting(url, title, company, text, hash string) fetch.Posting {
	return fetch.Posting{
		Raw: models.RawPosting{
			Source:      "ashby",
			PostingURL:  url,
			Title:       title,
			Company:     company,
			RawText:     text,
			ContentHash: hash,
		},
	}
}

// TestRunSourceHappyPath exercises spec §8 scenario 1 end to end through
// the orchestrator (Ashby happy path), checking the DONE terminal state
// increments the right counters and writes an enriched row.
func TestRunSourceHappyPath(t *testing.T) {
	fetcher := &fakeFetcher{
		source: "ashby",
		postings: map[string][]fetch.Posting{
			"acme": {posting("https://jobs/ash-1", "Senior Data Engineer", "Acme", "Build pipelines in Python and Spark.", "hash-1")},
		},
	}
	raw := newFakeRawStore()
	enriched := newFakeEnrichedStore()
	gw := &fakeGateway{result: models.Classification{
		Role: models.Role{JobSubfamily: "data_engineer", Seniority: "senior", Track: "ic", PositionType: "full_time"},
		Location: models.Location{WorkingArrangement: "hybrid"},
		Skills:   []models.Skill{{Name: "Python"}},
	}}
	orch := newTestOrchestrator(fetcher, raw, enriched, gw)

	stats, err := orch.RunSource(context.Background(), []models.EmployerRef{{Source: "ashby", Slug: "acme"}}, Options{})
	if err != nil {
		t.Fatalf("RunSource returned error: %v", err)
	}

	if stats.JobsWrittenEnriched != 1 {
		t.Fatalf("expected 1 enriched write, got %d", stats.JobsWrittenEnriched)
	}
	if stats.JobsClassified != 1 {
		t.Fatalf("expected 1 classification, got %d", stats.JobsClassified)
	}
	if gw.calls != 1 {
		t.Fatalf("expected classifier called once, got %d", gw.calls)
	}

	var enrichedRow models.EnrichedPosting
	for _, row := range enriched.rows {
		enrichedRow = row
	}
	if enrichedRow.JobFamily != "data" {
		t.Fatalf("expected job_family mapped to data, got %q", enrichedRow.JobFamily)
	}
	if enrichedRow.WorkingArrangement != "hybrid" {
		t.Fatalf("expected working_arrangement hybrid, got %q", enrichedRow.WorkingArrangement)
	}
}

// TestRunSourceDuplicateSkipsClassifier covers spec §8 scenario 2: a
// re-observation with an unchanged content hash never calls the
// classifier and the cost accumulator stays at zero.
func TestRunSourceDuplicateSkipsClassifier(t *testing.T) {
	p := posting("https://jobs/ash-1", "Senior Data Engineer", "Acme", "Build pipelines in Python.", "hash-1")
	fetcher := &fakeFetcher{source: "ashby", postings: map[string][]fetch.Posting{"acme": {p}}}
	raw := newFakeRawStore()
	raw.rows[raw.key("ashby", p.Raw.PostingURL)] = p.Raw // pre-seed as already seen with the same hash
	enriched := newFakeEnrichedStore()
	gw := &fakeGateway{result: models.Classification{Role: models.Role{JobSubfamily: "data_engineer"}}}
	orch := newTestOrchestrator(fetcher, raw, enriched, gw)

	stats, err := orch.RunSource(context.Background(), []models.EmployerRef{{Source: "ashby", Slug: "acme"}}, Options{})
	if err != nil {
		t.Fatalf("RunSource returned error: %v", err)
	}

	if gw.calls != 0 {
		t.Fatalf("expected classifier not invoked on unchanged duplicate, got %d calls", gw.calls)
	}
	if stats.JobsDuplicate != 1 {
		t.Fatalf("expected 1 duplicate, got %d", stats.JobsDuplicate)
	}
	if stats.CostClassificationTotal != 0 {
		t.Fatalf("expected zero classification cost, got %f", stats.CostClassificationTotal)
	}
	if len(enriched.rows) != 0 {
		t.Fatalf("expected no enriched write for a duplicate, got %d", len(enriched.rows))
	}
}

// TestRunSourceHardAgencySkipsClassifier covers spec §8: every posting
// from a company on the hard agency list is written with is_agency=true,
// confidence=high, and the classifier is never invoked.
func TestRunSourceHardAgencySkipsClassifier(t *testing.T) {
	p := posting("https://jobs/hays-1", "Recruiter", "Hays Recruitment", "We are hiring on behalf of our client.", "hash-2")
	fetcher := &fakeFetcher{source: "ashby", postings: map[string][]fetch.Posting{"hays": {p}}}
	raw := newFakeRawStore()
	enriched := newFakeEnrichedStore()
	gw := &fakeGateway{result: models.Classification{Role: models.Role{JobSubfamily: "data_engineer"}}}
	orch := newTestOrchestrator(fetcher, raw, enriched, gw)

	stats, err := orch.RunSource(context.Background(), []models.EmployerRef{{Source: "ashby", Slug: "hays"}}, Options{})
	if err != nil {
		t.Fatalf("RunSource returned error: %v", err)
	}

	if gw.calls != 0 {
		t.Fatalf("expected classifier not invoked for a hard-agency posting, got %d calls", gw.calls)
	}
	if stats.JobsAgencyFiltered != 1 {
		t.Fatalf("expected 1 agency-filtered posting, got %d", stats.JobsAgencyFiltered)
	}

	var enrichedRow models.EnrichedPosting
	for _, row := range enriched.rows {
		enrichedRow = row
	}
	if !enrichedRow.IsAgency || enrichedRow.AgencyConfidence != "high" {
		t.Fatalf("expected is_agency=true, confidence=high, got %+v", enrichedRow)
	}
}

// TestRunSourceResumeSkipsRecentlySeenCompany covers spec §4.7's resume
// window: a company seen within the window is skipped entirely, without
// ever invoking the fetcher.
func TestRunSourceResumeSkipsRecentlySeenCompany(t *testing.T) {
	fetcher := &fakeFetcher{source: "ashby", postings: map[string][]fetch.Posting{}}
	raw := newFakeRawStore()
	raw.recentSlugs = map[string]bool{"acme": true}
	enriched := newFakeEnrichedStore()
	gw := &fakeGateway{}
	orch := newTestOrchestrator(fetcher, raw, enriched, gw)

	stats, err := orch.RunSource(context.Background(), []models.EmployerRef{{Source: "ashby", Slug: "acme"}}, Options{ResumeWindow: time.Hour})
	if err != nil {
		t.Fatalf("RunSource returned error: %v", err)
	}

	if stats.CompaniesSkipped != 1 {
		t.Fatalf("expected 1 company skipped, got %d", stats.CompaniesSkipped)
	}
	if fetcher.calls != 0 {
		t.Fatalf("expected fetcher never called for a resumed company, got %d calls", fetcher.calls)
	}
}

// TestRunSourceClassifyThinSkipsEnrichedWrite covers the SKIPPED_THIN
// terminal state: the classifier reports content_too_short and no
// enriched row is written.
func TestRunSourceClassifyThinSkipsEnrichedWrite(t *testing.T) {
	p := posting("https://jobs/thin-1", "Engineer", "Acme", "Too short.", "hash-3")
	fetcher := &fakeFetcher{source: "ashby", postings: map[string][]fetch.Posting{"acme": {p}}}
	raw := newFakeRawStore()
	enriched := newFakeEnrichedStore()
	gw := &fakeGateway{err: pipelineerr.New(pipelineerr.SkippedThin, "Acme", nil)}
	orch := newTestOrchestrator(fetcher, raw, enriched, gw)

	stats, err := orch.RunSource(context.Background(), []models.EmployerRef{{Source: "ashby", Slug: "acme"}}, Options{})
	if err != nil {
		t.Fatalf("RunSource returned error: %v", err)
	}

	if stats.JobsSkippedThin != 1 {
		t.Fatalf("expected 1 skipped_thin, got %d", stats.JobsSkippedThin)
	}
	if len(enriched.rows) != 0 {
		t.Fatalf("expected no enriched write for skipped_thin, got %d", len(enriched.rows))
	}
}

// TestRunSourceWithDedupCollectorDefersWrite covers spec §4.8: when two
// sources share a Dedup collector, the same company/title/location
// collision across them must merge into a single enriched row only after
// Flush, not one row per source.
func TestRunSourceWithDedupCollectorDefersWrite(t *testing.T) {
	enriched := newFakeEnrichedStore()
	collector := NewDedupCollector()
	gw := &fakeGateway{result: models.Classification{Role: models.Role{JobSubfamily: "data_engineer"}}}

	ghPosting := posting("https://gh/jobs/1", "Senior Data Engineer", "Acme", "Build pipelines in Python and Spark, a rich and thorough description of the role with plenty of detail.", "hash-gh")
	ghPosting.Raw.Source = "greenhouse"
	ghPosting.Raw.CityHint = "London"
	ghFetcher := &fakeFetcher{source: "greenhouse", postings: map[string][]fetch.Posting{"acme": {ghPosting}}}
	ghRaw := newFakeRawStore()
	ghOrch := newTestOrchestrator(ghFetcher, ghRaw, enriched, gw)
	ghOrch.Dedup = collector

	azPosting := posting("https://az/jobs/1", "Senior Data Engineer", "Acme", "short desc", "hash-az")
	azPosting.Raw.Source = "adzuna"
	azPosting.Raw.CityHint = "London"
	azFetcher := &fakeFetcher{source: "adzuna", postings: map[string][]fetch.Posting{"acme-az": {azPosting}}}
	azRaw := newFakeRawStore()
	azOrch := newTestOrchestrator(azFetcher, azRaw, enriched, gw)
	azOrch.Dedup = collector

	if _, err := ghOrch.RunSource(context.Background(), []models.EmployerRef{{Source: "greenhouse", Slug: "acme"}}, Options{}); err != nil {
		t.Fatalf("greenhouse RunSource returned error: %v", err)
	}
	if _, err := azOrch.RunSource(context.Background(), []models.EmployerRef{{Source: "adzuna", Slug: "acme-az"}}, Options{}); err != nil {
		t.Fatalf("adzuna RunSource returned error: %v", err)
	}

	if len(enriched.rows) != 0 {
		t.Fatalf("expected no enriched writes before Flush, got %d", len(enriched.rows))
	}

	stats, err := collector.Flush(context.Background(), enriched)
	if err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if stats.Deduplicated != 1 {
		t.Fatalf("expected 1 deduplicated posting, got %d", stats.Deduplicated)
	}
	if len(enriched.rows) != 1 {
		t.Fatalf("expected exactly 1 enriched row written after merge, got %d", len(enriched.rows))
	}
	for _, row := range enriched.rows {
		if row.DescriptionSource != "greenhouse" {
			t.Fatalf("expected the richer greenhouse description to win, got %q", row.DescriptionSource)
		}
		if !row.Deduplicated {
			t.Fatalf("expected winner marked deduplicated=true")
		}
	}
}

// TestRunSourceSkipClassificationOption covers the --skip-classification
// debugging flag: raw upserts still happen but the classifier and
// enriched store are never touched.
func TestRunSourceSkipClassificationOption(t *testing.T) {
	p := posting("https://jobs/skip-1", "Engineer", "Acme", "A perfectly good description of the role.", "hash-4")
	fetcher := &fakeFetcher{source: "ashby", postings: map[string][]fetch.Posting{"acme": {p}}}
	raw := newFakeRawStore()
	enriched := newFakeEnrichedStore()
	gw := &fakeGateway{}
	orch := newTestOrchestrator(fetcher, raw, enriched, gw)

	stats, err := orch.RunSource(context.Background(), []models.EmployerRef{{Source: "ashby", Slug: "acme"}}, Options{SkipClassification: true})
	if err != nil {
		t.Fatalf("RunSource returned error: %v", err)
	}

	if gw.calls != 0 {
		t.Fatalf("expected classifier never called with --skip-classification, got %d", gw.calls)
	}
	if stats.JobsWrittenRaw != 1 {
		t.Fatalf("expected the raw row still written, got %d", stats.JobsWrittenRaw)
	}
	if len(enriched.rows) != 0 {
		t.Fatalf("expected no enriched write with --skip-classification, got %d", len(enriched.rows))
	}
}
