package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"jobpipeline/internal/models"
)

// AshbyFetcher contacts the Ashby Posting API: GET
// /posting-api/job-board/{slug}?includeCompensation=true. Ashby has shipped
// three different shapes for compensation over time, so extraction tries
// each in turn before giving up (spec §4.1/§6).
type AshbyFetcher struct {
	Client  *http.Client
	BaseURL string
	Limiter Limiter
}

type ashbyJobsResponse struct {
	Jobs []ashbyJob `json:"jobs"`
}

type ashbyJob struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	JobURL       string `json:"jobUrl"`
	DescriptionPlain string `json:"descriptionPlain"`
	Department   string `json:"department"`
	Team         string `json:"team"`
	IsRemote     bool   `json:"isRemote"`
	Location     string `json:"location"`
	Address      struct {
		PostalAddress struct {
			AddressLocality string `json:"addressLocality"`
			AddressRegion   string `json:"addressRegion"`
			AddressCountry  string `json:"addressCountry"`
		} `json:"postalAddress"`
	} `json:"address"`
	CompensationTiers struct {
		SalaryRange *ashbyCompRange `json:"salaryRange"`
	} `json:"compensationTiers"`
	Compensation struct {
		Components []ashbyCompComponent `json:"components"`
	} `json:"compensation"`
	SummaryComponents []ashbyCompComponent `json:"summaryComponents"`
}

type ashbyCompRange struct {
	MinValue int64  `json:"minValue"`
	MaxValue int64  `json:"maxValue"`
	Currency string `json:"currencyCode"`
}

type ashbyCompComponent struct {
	CompensationType string  `json:"compensationType"`
	MinValue         int64   `json:"minValue"`
	MaxValue         int64   `json:"maxValue"`
	CurrencyCode     string  `json:"currencyCode"`
}

func (f *AshbyFetcher) Source() string { return "ashby" }

func (f *AshbyFetcher) Fetch(ctx context.Context, employer models.EmployerRef, filters Filters) ([]Posting, models.FetchStats) {
	stats := models.FetchStats{}
	baseURL := f.BaseURL
	if baseURL == "" {
		baseURL = "https://api.ashbyhq.com"
	}

	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("rate limiter: %v", err))
			return nil, stats
		}
	}

	url := fmt.Sprintf("%s/posting-api/job-board/%s?includeCompensation=true", baseURL, employer.Slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		return nil, stats
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		stats.Errors = append(stats.Errors, "Timeout")
		return nil, stats
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		stats.Errors = append(stats.Errors, "Company not found")
		return nil, stats
	case resp.StatusCode == http.StatusTooManyRequests:
		stats.Errors = append(stats.Errors, "Rate limited")
		return nil, stats
	case resp.StatusCode != http.StatusOK:
		stats.Errors = append(stats.Errors, "Invalid response format")
		return nil, stats
	}

	var body ashbyJobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		stats.Errors = append(stats.Errors, "Invalid response format")
		return nil, stats
	}

	stats.Requested = len(body.Jobs)

	var out []Posting
	for _, j := range body.Jobs {
		stats.Fetched++

		if !IsRelevantPosting(j.Title, j.Location, filters.TitlePatterns, filters.TargetLocations) {
			continue
		}

		raw := models.RawPosting{
			Source:      "ashby",
			PostingURL:  j.JobURL,
			SourceJobID: j.ID,
			Title:       j.Title,
			Company:     employer.Slug,
			RawText:     StripHTML(j.DescriptionPlain),
			CityHint:    j.Location,
			Metadata:    map[string]string{},
		}
		raw.ContentHash = ContentHash(raw.Title, raw.RawText)
		if !MeetsMinDescriptionLength(raw.RawText, filters.MinDescriptionLength) {
			continue
		}

		isRemote := j.IsRemote
		hint := StructuredHint{
			Department:   j.Department,
			Team:         j.Team,
			IsRemoteHint: &isRemote,
			CountryCode:  j.Address.PostalAddress.AddressCountry,
		}

		minC, maxC, currency, ok := extractAshbyCompensation(j)
		if ok {
			hint.SalaryMinCents = &minC
			hint.SalaryMaxCents = &maxC
			hint.SalaryCurrency = currency
		}

		out = append(out, Posting{Raw: raw, Hint: hint})
		stats.Filtered++
	}

	return out, stats
}

// extractAshbyCompensation tries the three API shapes Ashby has shipped, in
// order: compensationTiers.salaryRange (the original approach), a components
// array within that tier with compensationType "Salary" (the pattern some
// companies use, e.g. Ramp), and finally a top-level summaryComponents array
// with the same shape, for companies that skip tiers entirely.
func extractAshbyCompensation(j ashbyJob) (min, max int64, currency string, ok bool) {
	if j.CompensationTiers.SalaryRange != nil {
		r := j.CompensationTiers.SalaryRange
		return r.MinValue * 100, r.MaxValue * 100, r.Currency, true
	}

	for _, c := range j.Compensation.Components {
		if c.CompensationType == "Salary" {
			return c.MinValue * 100, c.MaxValue * 100, c.CurrencyCode, true
		}
	}

	for _, c := range j.SummaryComponents {
		if c.CompensationType == "Salary" {
			return c.MinValue * 100, c.MaxValue * 100, c.CurrencyCode, true
		}
	}

	return 0, 0, "", false
}
