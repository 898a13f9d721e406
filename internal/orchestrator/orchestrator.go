// Package orchestrator drives one source's per-posting state machine
// (spec §4.7): fetch -> upsert-raw -> hard-filter -> classify ->
// soft-validate -> enrich -> upsert-enriched, owning per-company resume,
// stats, and cost telemetry for one sweep invocation.
//
// Grounded on original_source/pipeline/fetch_jobs.py's
// process_greenhouse_incremental/process_company_jobs (the stats dict,
// resume-skip, per-company progress-with-ETA block), translated into the
// teacher's structured-logging idiom (go.uber.org/zap) instead of the
// original's module-level logger.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobpipeline/internal/agency"
	"jobpipeline/internal/classifier"
	"jobpipeline/internal/dedup"
	"jobpipeline/internal/fetch"
	"jobpipeline/internal/models"
	"jobpipeline/internal/pipelineerr"
	"jobpipeline/internal/rawstore"
	"jobpipeline/internal/taxonomy"
)

// RawStore is the subset of internal/rawstore.Store the orchestrator
// calls into; declared here (rather than depending on *rawstore.Store
// directly) so tests can supply an in-memory fake instead of a live
// Postgres connection. *rawstore.Store satisfies it unmodified.
type RawStore interface {
	UpsertRaw(ctx context.Context, p models.RawPosting) (rawstore.UpsertResult, error)
	RecentlySeenSlugs(ctx context.Context, source string, window time.Duration) (map[string]bool, error)
}

// EnrichedStore is the subset of internal/enrichedstore.Store the
// orchestrator calls into; *enrichedstore.Store satisfies it unmodified.
type EnrichedStore interface {
	UpsertEnriched(ctx context.Context, rawJobID string, p models.EnrichedPosting) (string, error)
}

// maxRecentErrors caps the per-sweep error list surfaced in SweepStats
// (spec §7: "a capped list of recent error messages").
const maxRecentErrors = 50

// Options configures one RunSource invocation, carrying the cmd/sweep
// flags of spec §6.
type Options struct {
	Filters              fetch.Filters
	ResumeWindow         time.Duration
	SkipClassification   bool
	SkipStorage          bool
	UnitClassifyCostUSD  float64
}

// Orchestrator wires the per-source component chain together. Every
// field is required except Metrics and Dedup, which are optional (nil
// Metrics disables prometheus reporting; nil Dedup writes every enriched
// row straight through instead of buffering it for cross-source merge).
type Orchestrator struct {
	Fetcher    fetch.Fetcher
	RawStore   RawStore
	Enriched   EnrichedStore
	Agency     *agency.Detector
	Classifier classifier.Gateway
	Taxonomy   *taxonomy.Mapper
	Metrics    Recorder
	Dedup      *DedupCollector
	Log        *zap.SugaredLogger
}

// DedupCollector buffers enriched candidates across however many sources
// share one sweep invocation instead of writing each straight to the
// Enriched Store, so the Deduplication Merger (spec §4.8) can run once
// over the combined set before anything is persisted. Safe only for
// sequential orchestrator runs sharing one collector (spec §5: per-source
// sweeps within one process are not run concurrently against it).
type DedupCollector struct {
	pending []dedup.Candidate
}

// NewDedupCollector returns an empty collector ready to be shared across
// every per-source Orchestrator in one sweep.
func NewDedupCollector() *DedupCollector {
	return &DedupCollector{}
}

func (c *DedupCollector) collect(candidate dedup.Candidate) {
	c.pending = append(c.pending, candidate)
}

// Flush runs the merger (spec §4.8) over every candidate collected so far
// across all sources and writes the winners through store, returning the
// merge stats for the sweep's aggregate report. It is the caller's
// responsibility to invoke Flush once, after every per-source RunSource
// sharing this collector has returned.
func (c *DedupCollector) Flush(ctx context.Context, store EnrichedStore) (dedup.MergeStats, error) {
	sorted := dedup.SortByPreference(c.pending)
	results, stats := dedup.Merge(sorted)
	for _, result := range results {
		if _, err := store.UpsertEnriched(ctx, result.RawJobID, result.Posting); err != nil {
			return stats, fmt.Errorf("upsert merged enriched posting: %w", err)
		}
	}
	return stats, nil
}

// Recorder is the subset of internal/metrics.Collector the orchestrator
// calls into; declared here so orchestrator tests can supply a fake
// without importing the prometheus registry.
type Recorder interface {
	ObserveSweep(source string, stats models.SweepStats)
}

func appendCapped(list []string, msg string) []string {
	list = append(list, msg)
	if len(list) > maxRecentErrors {
		list = list[len(list)-maxRecentErrors:]
	}
	return list
}

// RunSource drives the full per-company, per-posting chain for one
// source across the given employers (spec §4.7).
func (o *Orchestrator) RunSource(ctx context.Context, employers []models.EmployerRef, opts Options) (models.SweepStats, error) {
	stats := models.SweepStats{
		RunID:          uuid.NewString(),
		StartedAt:      time.Now(),
		CompaniesTotal: len(employers),
	}

	var recentlySeen map[string]bool
	if opts.ResumeWindow > 0 && o.RawStore != nil {
		seen, err := o.RawStore.RecentlySeenSlugs(ctx, o.Fetcher.Source(), opts.ResumeWindow)
		if err != nil {
			o.Log.Warnw("resume lookup failed, proceeding without skip", "source", o.Fetcher.Source(), "error", err)
		} else {
			recentlySeen = seen
		}
	}

	for i, employer := range employers {
		select {
		case <-ctx.Done():
			stats.Elapsed = time.Since(stats.StartedAt)
			return stats, ctx.Err()
		default:
		}

		if recentlySeen[employer.Slug] {
			stats.CompaniesSkipped++
			continue
		}

		companyStart := time.Now()
		postings, fetchStats := o.Fetcher.Fetch(ctx, employer, opts.Filters)
		for _, e := range fetchStats.Errors {
			stats.RecentErrors = appendCapped(stats.RecentErrors, fmt.Sprintf("%s/%s: %s", o.Fetcher.Source(), employer.Slug, e))
		}

		stats.CompaniesProcessed++
		stats.JobsScraped += fetchStats.Fetched
		stats.JobsKept += len(postings)
		if len(postings) > 0 {
			stats.CompaniesWithJobs++
		}

		for _, posting := range postings {
			o.processOne(ctx, posting, opts, &stats)
		}

		o.logCompanyProgress(employer, i, fetchStats, len(postings), companyStart, stats)
	}

	stats.Elapsed = time.Since(stats.StartedAt)
	if o.Metrics != nil {
		o.Metrics.ObserveSweep(o.Fetcher.Source(), stats)
	}
	return stats, nil
}

// logCompanyProgress supplements spec §4.7 with the original's
// Pipeline-Progress-with-ETA block (SPEC_FULL.md supplemented feature 2).
func (o *Orchestrator) logCompanyProgress(employer models.EmployerRef, index int, fetchStats models.FetchStats, kept int, companyStart time.Time, stats models.SweepStats) {
	elapsed := time.Since(stats.StartedAt)
	avgPerCompany := time.Duration(0)
	if stats.CompaniesProcessed > 0 {
		avgPerCompany = elapsed / time.Duration(stats.CompaniesProcessed)
	}
	remaining := stats.CompaniesTotal - stats.CompaniesProcessed - stats.CompaniesSkipped
	eta := avgPerCompany * time.Duration(remaining)

	o.Log.Infow("company processed",
		"source", o.Fetcher.Source(),
		"company", employer.Slug,
		"index", index+1,
		"total", stats.CompaniesTotal,
		"scraped", fetchStats.Fetched,
		"kept", kept,
		"company_elapsed", time.Since(companyStart),
		"sweep_elapsed", elapsed,
		"avg_per_company", avgPerCompany,
		"eta", eta,
		"enriched_total", stats.JobsWrittenEnriched,
		"duplicate_total", stats.JobsDuplicate,
	)
}

// processOne drives one posting through the state machine diagrammed in
// spec §4.7, mutating stats for whichever terminal state it reaches.
func (o *Orchestrator) processOne(ctx context.Context, posting fetch.Posting, opts Options, stats *models.SweepStats) {
	raw := posting.Raw
	now := time.Now()
	raw.FirstSeen = now
	raw.LastSeen = now

	if opts.SkipStorage {
		return
	}

	upsertResult, err := o.RawStore.UpsertRaw(ctx, raw)
	if err != nil {
		o.recordError(stats, pipelineerr.New(pipelineerr.UpsertError, raw.Company, err))
		return
	}

	if upsertResult.WasDuplicate {
		stats.JobsDuplicate++
		return // **SKIPPED_DUP**
	}
	stats.JobsWrittenRaw++

	if o.Agency.HardCheck(raw.Company).IsAgency {
		stats.JobsAgencyFiltered++
		stats.CostSavedFromFiltering += opts.UnitClassifyCostUSD
		o.writeAgencyFilteredEnriched(ctx, upsertResult.RowID, raw, stats)
		return // **FILTERED_AGENCY**; classifier never invoked
	}

	if opts.SkipClassification {
		return
	}

	structured := buildStructuredInput(raw, posting.Hint)
	classification, classifyErr := o.Classifier.Classify(ctx, raw.RawText, structured, o.Fetcher.Source())
	if classifyErr != nil {
		switch classifyErr.Kind {
		case pipelineerr.SkippedThin:
			stats.JobsSkippedThin++ // **SKIPPED_THIN**
		default:
			stats.JobsClassifyError++ // **CLASSIFY_ERROR**
			o.recordError(stats, classifyErr)
		}
		return
	}
	stats.JobsClassified++
	stats.CostClassificationTotal += classification.Cost.CostUSD

	o.mapTaxonomy(&classification, raw, posting.Hint)

	verdict := o.Agency.SoftValidate(raw.Company, raw.RawText, classification.Employer.IsAgency)
	classification.Employer.IsAgency = verdict.IsAgency
	classification.Employer.AgencyConfidence = verdict.Confidence

	enriched := toEnrichedPosting(raw, classification, o.Fetcher.Source())
	if err := o.publishEnriched(ctx, upsertResult.RowID, raw, enriched); err != nil {
		o.recordError(stats, pipelineerr.New(pipelineerr.UpsertError, raw.Company, err))
		return
	}
	stats.JobsWrittenEnriched++ // **DONE**
}

// publishEnriched either writes an enriched row straight through (the
// single-source default) or, when Dedup is set, buffers it as a
// Deduplication Merger candidate (spec §4.8) so cross-source collisions
// are resolved once the whole sweep's sources have all reported in.
func (o *Orchestrator) publishEnriched(ctx context.Context, rawJobID string, raw models.RawPosting, enriched models.EnrichedPosting) error {
	if o.Dedup == nil {
		_, err := o.Enriched.UpsertEnriched(ctx, rawJobID, enriched)
		return err
	}
	o.Dedup.collect(dedup.Candidate{
		Source:      o.Fetcher.Source(),
		RawJobID:    rawJobID,
		Company:     raw.Company,
		Title:       raw.Title,
		Location:    raw.CityHint,
		Description: raw.RawText,
		Posting:     enriched,
	})
	return nil
}

// writeAgencyFilteredEnriched still publishes a row for a hard-filtered
// agency posting (the spec only skips the classifier, not the enriched
// write) with defaults standing in for the classification fields that
// were never computed.
func (o *Orchestrator) writeAgencyFilteredEnriched(ctx context.Context, rawJobID string, raw models.RawPosting, stats *models.SweepStats) {
	enriched := models.EnrichedPosting{
		EmployerName:      raw.Company,
		TitleDisplay:      raw.Title,
		IsAgency:          true,
		AgencyConfidence:  "high",
		DataSource:        o.Fetcher.Source(),
		DescriptionSource: o.Fetcher.Source(),
		PostedDate:        raw.FirstSeen,
		LastSeenDate:      raw.LastSeen,
	}
	if err := o.publishEnriched(ctx, rawJobID, raw, enriched); err != nil {
		o.recordError(stats, pipelineerr.New(pipelineerr.UpsertError, raw.Company, err))
	}
}

func (o *Orchestrator) recordError(stats *models.SweepStats, err *pipelineerr.Error) {
	stats.RecentErrors = appendCapped(stats.RecentErrors, err.Error())
	o.Log.Warnw("posting error", "source", o.Fetcher.Source(), "kind", err.Kind, "company", err.Company, "cause", err.Cause)
}

// mapTaxonomy applies spec §4.5's deterministic post-classification
// transforms in place (MAP_TAXONOMY state).
func (o *Orchestrator) mapTaxonomy(classification *models.Classification, raw models.RawPosting, hint fetch.StructuredHint) {
	classification.Role.JobFamily = o.Taxonomy.SubfamilyToFamily(classification.Role.JobSubfamily, classification.Role.JobFamily)
	classification.Role.Track, classification.Role.Seniority = o.Taxonomy.CorrectTrackAndSeniority(raw.Title, classification.Role.Track, classification.Role.Seniority)
	classification.Skills = o.Taxonomy.MapSkills(classification.Skills)

	classification.Location.Entries = o.Taxonomy.ExtractLocations(raw.CityHint, hint)
	classification.Location.WorkingArrangement = o.Taxonomy.ResolveWorkingArrangement(
		classification.Location.WorkingArrangement, hint, classification.Location.Entries)

	if o.Taxonomy.CompensationSuppressed(o.Fetcher.Source(), raw.CityHint) {
		classification.Compensation = models.Compensation{Suppressed: true}
	}
}

// buildStructuredInput converts the fetcher's per-source hints into the
// classifier's config-shaped structured_input (spec §4.4), converting
// cent-denominated salary hints to whole-currency-unit figures.
func buildStructuredInput(raw models.RawPosting, hint fetch.StructuredHint) classifier.StructuredInput {
	input := classifier.StructuredInput{
		Title:               raw.Title,
		Company:             raw.Company,
		Location:            raw.CityHint,
		Category:            hint.Category,
		SalaryPredicted:     hint.SalaryPredicted,
		ExperienceLevelHint: hint.ExperienceLevelHint,
		WorkplaceTypeHint:   hint.WorkplaceTypeHint,
		IsRemoteHint:        hint.IsRemoteHint,
	}
	if hint.SalaryMinCents != nil {
		whole := *hint.SalaryMinCents / 100
		input.SalaryMin = &whole
	}
	if hint.SalaryMaxCents != nil {
		whole := *hint.SalaryMaxCents / 100
		input.SalaryMax = &whole
	}
	return input
}

// toEnrichedPosting promotes a Classification's fields onto an
// EnrichedPosting column set (spec §4.6), tagging provenance with the
// single source that produced it (the dedup merger overwrites
// DescriptionSource/Deduplicated when two sources collide).
func toEnrichedPosting(raw models.RawPosting, c models.Classification, source string) models.EnrichedPosting {
	now := time.Now()

	var currency string
	var salaryMin, salaryMax *int64
	if !c.Compensation.Suppressed {
		currency = c.Compensation.Currency
		salaryMin = c.Compensation.Min
		salaryMax = c.Compensation.Max
	}

	return models.EnrichedPosting{
		EmployerName:       raw.Company,
		TitleDisplay:       raw.Title,
		JobFamily:          c.Role.JobFamily,
		JobSubfamily:       c.Role.JobSubfamily,
		Seniority:          c.Role.Seniority,
		Track:              c.Role.Track,
		PositionType:       c.Role.PositionType,
		WorkingArrangement: c.Location.WorkingArrangement,
		Locations:          c.Location.Entries,
		ExperienceRange:    c.Role.ExperienceRange,
		EmployerDepartment: c.Employer.DepartmentGuess,
		IsAgency:           c.Employer.IsAgency,
		AgencyConfidence:   c.Employer.AgencyConfidence,
		Currency:           currency,
		SalaryMin:          salaryMin,
		SalaryMax:          salaryMax,
		EquityEligible:     c.Compensation.EquityEligible,
		Skills:             c.Skills,
		DataSource:         source,
		DescriptionSource:  source,
		Deduplicated:       false,
		PostedDate:         now,
		LastSeenDate:       now,
		ClassifiedAt:       now,
	}
}
