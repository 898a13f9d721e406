package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"jobpipeline/internal/models"
)

// AdzunaFetcher contacts the Adzuna aggregator API, paginating across a
// fixed set of query strings (spec §4.1: "paginated search across N
// predefined query strings") and honoring its stricter ~24 req/min cap
// via the Limiter returned by NewSourceLimiter("adzuna").
type AdzunaFetcher struct {
	Client      *http.Client
	BaseURL     string // defaults to https://api.adzuna.com/v1/api/jobs
	AppID       string
	AppKey      string
	Queries     []string // predefined search strings, e.g. "product manager"
	Country     string   // Adzuna country path segment, e.g. "gb", "us"
	MaxJobs     int      // per-query cap (spec §6 positional arg)
	ResultsPerPage int
	Limiter     Limiter
}

type adzunaSearchResponse struct {
	Results []adzunaResult `json:"results"`
}

type adzunaResult struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Company     struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
	Description      string  `json:"description"`
	RedirectURL      string  `json:"redirect_url"`
	Category         struct {
		Label string `json:"label"`
	} `json:"category"`
	SalaryMin       float64 `json:"salary_min"`
	SalaryMax       float64 `json:"salary_max"`
	SalaryIsPredicted string `json:"salary_is_predicted"` // "1" or "0"
}

func (f *AdzunaFetcher) Source() string { return "adzuna" }

// Fetch ignores employer.Slug: Adzuna is queried by search string, not by
// employer; EmployerRef is still accepted to satisfy the Fetcher
// interface and callers pass one synthetic ref per city; every query in
// Queries is run inside this one call.
func (f *AdzunaFetcher) Fetch(ctx context.Context, employer models.EmployerRef, filters Filters) ([]Posting, models.FetchStats) {
	stats := models.FetchStats{}
	baseURL := f.BaseURL
	if baseURL == "" {
		baseURL = "https://api.adzuna.com/v1/api/jobs"
	}
	resultsPerPage := f.ResultsPerPage
	if resultsPerPage <= 0 {
		resultsPerPage = 20
	}
	maxJobs := f.MaxJobs
	if maxJobs <= 0 {
		maxJobs = 50
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var out []Posting

	for _, query := range f.Queries {
		page := 1
		collected := 0

		for collected < maxJobs {
			if f.Limiter != nil {
				if err := f.Limiter.Wait(ctx); err != nil {
					stats.Errors = append(stats.Errors, fmt.Sprintf("rate limiter: %v", err))
					return out, stats
				}
			}

			reqURL := fmt.Sprintf("%s/%s/search/%d?app_id=%s&app_key=%s&results_per_page=%d&what=%s",
				baseURL, f.Country, page, f.AppID, f.AppKey, resultsPerPage, url.QueryEscape(query))

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
			if err != nil {
				stats.Errors = append(stats.Errors, err.Error())
				break
			}

			resp, err := client.Do(req)
			if err != nil {
				stats.Errors = append(stats.Errors, "Timeout")
				break
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				stats.Errors = append(stats.Errors, "Rate limited")
				break
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				stats.Errors = append(stats.Errors, "Invalid response format")
				break
			}

			var body adzunaSearchResponse
			decodeErr := json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
			if decodeErr != nil {
				stats.Errors = append(stats.Errors, "Invalid response format")
				break
			}

			if len(body.Results) == 0 {
				break // no more pages for this query
			}

			stats.Requested += len(body.Results)

			for _, r := range body.Results {
				stats.Fetched++
				collected++

				if !IsRelevantPosting(r.Title, r.Location.DisplayName, filters.TitlePatterns, filters.TargetLocations) {
					continue
				}

				raw := models.RawPosting{
					Source:      "adzuna",
					PostingURL:  r.RedirectURL,
					SourceJobID: r.ID,
					Title:       r.Title,
					Company:     r.Company.DisplayName,
					RawText:     StripHTML(r.Description),
					CityHint:    r.Location.DisplayName,
					Metadata:    map[string]string{},
				}
				raw.ContentHash = ContentHash(raw.Title, raw.RawText)
				if !MeetsMinDescriptionLength(raw.RawText, filters.MinDescriptionLength) {
					continue
				}

				hint := StructuredHint{
					Category:        r.Category.Label,
					SalaryPredicted: r.SalaryIsPredicted == "1",
				}
				if r.SalaryMin != 0 || r.SalaryMax != 0 {
					minC, maxC := int64(r.SalaryMin*100), int64(r.SalaryMax*100)
					hint.SalaryMinCents = &minC
					hint.SalaryMaxCents = &maxC
					hint.SalaryCurrency = "GBP"
				}

				out = append(out, Posting{Raw: raw, Hint: hint})
				stats.Filtered++

				if collected >= maxJobs {
					break
				}
			}

			page++
		}
	}

	return out, stats
}
