// Command sweep is the primary CLI entry point of spec §6: one
// invocation sweeps the configured sources/employers for a city, driving
// the per-posting chain through internal/orchestrator and printing a
// per-source and aggregate stats block once every source has run.
//
// Grounded on the teacher's worker/main.go for flag/env parsing and
// graceful-shutdown signal handling, adapted from a cron-scheduled
// daemon into a one-shot run; the optional --watch flag keeps
// robfig/cron/v3 wired (SPEC_FULL.md DOMAIN STACK) for a continuous
// re-sweep mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobpipeline/internal/agency"
	"jobpipeline/internal/classifier"
	"jobpipeline/internal/config"
	"jobpipeline/internal/dedup"
	"jobpipeline/internal/enrichedstore"
	"jobpipeline/internal/fetch"
	"jobpipeline/internal/logging"
	"jobpipeline/internal/metrics"
	"jobpipeline/internal/models"
	"jobpipeline/internal/orchestrator"
	"jobpipeline/internal/rawstore"
	"jobpipeline/internal/server"
	"jobpipeline/internal/taxonomy"
)

// allSources is the full --sources vocabulary of spec §6.
var allSources = []string{"adzuna", "greenhouse", "lever", "ashby", "workable", "smartrecruiters", "google"}

// defaultAdzunaQueries stands in for a dedicated config table: Adzuna has
// no per-employer mapping, so its search scope is a fixed set of role
// queries applied to every city (spec §4.1).
var defaultAdzunaQueries = []string{
	"software engineer", "product manager", "data scientist", "product designer",
}

var adzunaCityCountries = map[string]string{
	"lon": "gb",
	"nyc": "us",
	"den": "us",
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	sourcesFlag := fs.String("sources", strings.Join(allSources, ","), "comma-separated sources to sweep")
	companiesFlag := fs.String("companies", "", "comma-separated employer slugs restricting ATS sources")
	minDescLen := fs.Int("min-description-length", 0, "post-filter on description length")
	skipClassification := fs.Bool("skip-classification", false, "skip the classifier stage (debugging)")
	skipStorage := fs.Bool("skip-storage", false, "skip raw/enriched store writes (debugging)")
	resumeHours := fs.Int("resume-hours", 0, "resume window in hours; 0 disables resume")
	adminAddr := fs.String("admin-addr", "", "if set, serve /healthz and /metrics on this address while the sweep runs")
	watchCron := fs.String("watch", "", "if set, a cron expression to re-run this sweep continuously instead of exiting")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	positional := fs.Args()
	if len(positional) < 2 {
		fmt.Fprintln(os.Stderr, "usage: sweep <city_code> <max_jobs> [flags]")
		return 2
	}
	cityCode := positional[0]
	maxJobs, err := parseMaxJobs(positional[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid max_jobs: %v\n", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}
	tables, err := config.LoadTables(cfg.TablesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config tables error: %v\n", err)
		return 1
	}
	for _, d := range tables.SkillFamilyDupes {
		fmt.Fprintf(os.Stderr, "warning: duplicate skill key %q (kept %q, discarded %q)\n", d.Key, d.Kept, d.Discarded)
	}

	log, err := logging.New(cfg.LogLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received, finishing in-flight company before exit")
		cancel()
	}()

	pool, err := rawstore.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database connection error: %v\n", err)
		return 1
	}
	defer pool.Close()

	var cache *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid REDIS_URL: %v\n", err)
			return 1
		}
		cache = redis.NewClient(opts)
	}

	collector := metrics.New()
	if *adminAddr != "" {
		go func() {
			log.Infow("admin server listening", "addr", *adminAddr)
			handler := server.New(collector, os.Getenv("ADMIN_BEARER_TOKEN"))
			if err := http.ListenAndServe(*adminAddr, handler); err != nil {
				log.Warnw("admin server stopped", "error", err)
			}
		}()
	}

	params := sweepParams{
		cityCode:            cityCode,
		maxJobs:             maxJobs,
		sources:             splitCSV(*sourcesFlag),
		companies:           splitCSV(*companiesFlag),
		minDescriptionLen:   *minDescLen,
		skipClassification:  *skipClassification,
		skipStorage:         *skipStorage,
		resumeWindow:        config.ResumeWindow(*resumeHours),
		cfg:                 cfg,
		tables:              tables,
		pool:                pool,
		cache:               cache,
		collector:           collector,
		log:                 log,
	}

	if *watchCron == "" {
		return runOneSweep(ctx, params)
	}

	c := cron.New()
	exitCode := 0
	_, err = c.AddFunc(*watchCron, func() {
		if code := runOneSweep(ctx, params); code != 0 {
			exitCode = code
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --watch cron expression: %v\n", err)
		return 2
	}
	c.Start()
	log.Infow("watch mode started", "cron", *watchCron)
	<-ctx.Done()
	c.Stop()
	return exitCode
}

func parseMaxJobs(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

type sweepParams struct {
	cityCode            string
	maxJobs             int
	sources             []string
	companies           []string
	minDescriptionLen   int
	skipClassification  bool
	skipStorage          bool
	resumeWindow        time.Duration
	cfg                 *config.Config
	tables              *config.Tables
	pool                *pgxpool.Pool
	cache               *redis.Client
	collector           *metrics.Collector
	log                 *zap.SugaredLogger
}

// runOneSweep runs every configured source once and prints its stats
// block, returning a process exit code.
func runOneSweep(ctx context.Context, p sweepParams) int {
	rawStore := &rawstore.Store{Pool: p.pool, Cache: p.cache}
	enrichedStore := enrichedstore.New(p.pool)
	agencyDetector := agency.New(p.tables.Agency)
	taxonomyMapper := taxonomy.New(p.tables)
	gateway := classifier.NewAnthropicGateway(p.cfg.AnthropicAPIKey, p.cfg.AnthropicModel)

	allStats := map[string]models.SweepStats{}

	// The Deduplication Merger (spec §4.8) only has something to merge
	// when two or more sources contribute to the same sweep; a
	// single-source run writes straight through with no collector, which
	// is also what keeps a plain `sweep lon 50 --sources greenhouse` run
	// free of the extra buffering and the Flush round trip below.
	var dedupCollector *orchestrator.DedupCollector
	if len(p.sources) > 1 && !p.skipStorage {
		dedupCollector = orchestrator.NewDedupCollector()
	}

	for _, source := range p.sources {
		fetcher := buildFetcher(source, p.cfg, p.cityCode, p.maxJobs)
		if fetcher == nil {
			p.log.Warnw("unknown source, skipping", "source", source)
			continue
		}

		employers := employersForSource(source, p.tables, p.companies, p.cityCode)
		filters := fetch.Filters{
			TitlePatterns:        p.tables.TitleFilters[source],
			TargetLocations:      p.tables.LocationFilters[source],
			MinDescriptionLength: p.minDescriptionLen,
		}

		orch := &orchestrator.Orchestrator{
			Fetcher:    fetcher,
			RawStore:   rawStore,
			Enriched:   enrichedStore,
			Agency:     agencyDetector,
			Classifier: gateway,
			Taxonomy:   taxonomyMapper,
			Metrics:    p.collector,
			Dedup:      dedupCollector,
			Log:        p.log,
		}

		stats, err := orch.RunSource(ctx, employers, orchestrator.Options{
			Filters:             filters,
			ResumeWindow:        p.resumeWindow,
			SkipClassification:  p.skipClassification,
			SkipStorage:         p.skipStorage,
			UnitClassifyCostUSD: p.cfg.ClassifierUnitCostUSD,
		})
		if err != nil && ctx.Err() == nil {
			p.log.Errorw("sweep source failed", "source", source, "error", err)
		}
		allStats[source] = stats
		printSourceBlock(source, stats)

		if ctx.Err() != nil {
			break
		}
	}

	if dedupCollector != nil {
		mergeStats, err := dedupCollector.Flush(ctx, enrichedStore)
		if err != nil {
			p.log.Errorw("dedup merge flush failed", "error", err)
		}
		printDedupBlock(mergeStats)
	}

	if len(p.sources) > 1 {
		printAggregateBlock(allStats)
	}
	return 0
}

func printDedupBlock(stats dedup.MergeStats) {
	fmt.Println("== dedup ==")
	fmt.Printf("  merged: %d, deduplicated: %d (%d%%), avg_description_length: %d\n",
		stats.TotalMerged, stats.Deduplicated, stats.DedupRatePercent, stats.AvgDescriptionLength)
	for source, count := range stats.SourceOnlyCounts {
		fmt.Printf("  %s_only: %d\n", source, count)
	}
	for source, count := range stats.SourceBreakdown {
		fmt.Printf("  description_from_%s: %d\n", source, count)
	}
}

// buildFetcher constructs the concrete per-source Fetcher, wiring the
// shared rate limiter and source-specific config (spec §4.1, §6).
func buildFetcher(source string, cfg *config.Config, cityCode string, maxJobs int) fetch.Fetcher {
	limiter := fetch.NewSourceLimiter(source)
	switch source {
	case "greenhouse":
		return &fetch.GreenhouseFetcher{Limiter: limiter}
	case "lever":
		return &fetch.LeverFetcher{Limiter: limiter}
	case "ashby":
		return &fetch.AshbyFetcher{Limiter: limiter}
	case "workable":
		return &fetch.WorkableFetcher{Limiter: limiter}
	case "smartrecruiters":
		return &fetch.SmartRecruitersFetcher{Limiter: limiter}
	case "google":
		return &fetch.GoogleXMLFetcher{Limiter: limiter}
	case "adzuna":
		return &fetch.AdzunaFetcher{
			AppID:   cfg.AdzunaAppID,
			AppKey:  cfg.AdzunaAppKey,
			Queries: defaultAdzunaQueries,
			Country: adzunaCountryForCity(cityCode),
			MaxJobs: maxJobs,
			Limiter: limiter,
		}
	default:
		return nil
	}
}

func adzunaCountryForCity(cityCode string) string {
	if country, ok := adzunaCityCountries[strings.ToLower(cityCode)]; ok {
		return country
	}
	return "us"
}

// employersForSource resolves the configured employer mapping for a
// source, restricted to --companies when given. Adzuna has no employer
// mapping: it is queried by search string against one synthetic
// EmployerRef per sweep.
func employersForSource(source string, tables *config.Tables, companyFilter []string, cityCode string) []models.EmployerRef {
	if source == "adzuna" {
		return []models.EmployerRef{{Source: "adzuna", Slug: cityCode}}
	}

	entries := tables.Employers[source]
	allowed := map[string]bool{}
	for _, c := range companyFilter {
		allowed[strings.ToLower(c)] = true
	}

	var refs []models.EmployerRef
	for _, entry := range entries {
		if len(allowed) > 0 && !allowed[strings.ToLower(entry.Slug)] {
			continue
		}
		refs = append(refs, models.EmployerRef{Source: source, Slug: entry.Slug, Instance: entry.Instance})
	}
	return refs
}

func printSourceBlock(source string, stats models.SweepStats) {
	fmt.Printf("== %s ==\n", source)
	fmt.Printf("  companies: %d total, %d processed, %d skipped, %d with jobs\n",
		stats.CompaniesTotal, stats.CompaniesProcessed, stats.CompaniesSkipped, stats.CompaniesWithJobs)
	fmt.Printf("  jobs: %d scraped, %d kept, %d written_raw, %d duplicate, %d classified, %d agency_filtered, %d skipped_thin, %d classify_error, %d written_enriched\n",
		stats.JobsScraped, stats.JobsKept, stats.JobsWrittenRaw, stats.JobsDuplicate, stats.JobsClassified,
		stats.JobsAgencyFiltered, stats.JobsSkippedThin, stats.JobsClassifyError, stats.JobsWrittenEnriched)
	fmt.Printf("  cost: $%.4f classification, $%.4f saved from filtering\n", stats.CostClassificationTotal, stats.CostSavedFromFiltering)
	fmt.Printf("  elapsed: %s, errors: %d\n", stats.Elapsed.Round(time.Second), len(stats.RecentErrors))
	for _, e := range stats.RecentErrors {
		fmt.Printf("    ! %s\n", e)
	}
}

func printAggregateBlock(all map[string]models.SweepStats) {
	var companies, jobs, enriched, errCount int
	var cost float64
	for _, s := range all {
		companies += s.CompaniesProcessed
		jobs += s.JobsScraped
		enriched += s.JobsWrittenEnriched
		cost += s.CostClassificationTotal
		errCount += len(s.RecentErrors)
	}
	fmt.Println("== aggregate ==")
	fmt.Printf("  companies processed: %d, jobs scraped: %d, jobs enriched: %d, cost: $%.4f, errors: %d\n",
		companies, jobs, enriched, cost, errCount)
}
