package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"jobpipeline/internal/models"
)

// WorkableFetcher contacts the Workable Accounts API: GET
// /api/accounts/{slug}?details=true.
type WorkableFetcher struct {
	Client  *http.Client
	BaseURL string
	Limiter Limiter
}

type workableJobsResponse struct {
	Jobs []workableJob `json:"jobs"`
}

type workableJob struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	Description   string `json:"description"`
	Location      struct {
		City        string `json:"city"`
		CountryCode string `json:"country_code"`
	} `json:"location"`
	WorkplaceType string `json:"workplace_type"`
	Telecommuting bool   `json:"telecommuting"`
	Salary        struct {
		SalaryFrom int64  `json:"salary_from"`
		SalaryTo   int64  `json:"salary_to"`
		Currency   string `json:"salary_currency"`
	} `json:"salary"`
}

func (f *WorkableFetcher) Source() string { return "workable" }

func (f *WorkableFetcher) Fetch(ctx context.Context, employer models.EmployerRef, filters Filters) ([]Posting, models.FetchStats) {
	stats := models.FetchStats{}
	baseURL := f.BaseURL
	if baseURL == "" {
		baseURL = "https://apply.workable.com/api/v1/accounts"
	}

	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("rate limiter: %v", err))
			return nil, stats
		}
	}

	url := fmt.Sprintf("%s/%s?details=true", baseURL, employer.Slug)
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

	var body workableJobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		stats.Errors = append(stats.Errors, "Invalid response format")
		return nil, stats
	}

	stats.Requested = len(body.Jobs)

	var out []Posting
	for _, j := range body.Jobs {
		stats.Fetched++

		location := j.Location.City
		if !IsRelevantPosting(j.Title, location, filters.TitlePatterns, filters.TargetLocations) {
			continue
		}

		raw := models.RawPosting{
			Source:      "workable",
			PostingURL:  j.URL,
			SourceJobID: j.ID,
			Title:       j.Title,
			Company:     employer.Slug,
			RawText:     StripHTML(j.Description),
			CityHint:    location,
			Metadata:    map[string]string{},
		}
		raw.ContentHash = ContentHash(raw.Title, raw.RawText)
		if !MeetsMinDescriptionLength(raw.RawText, filters.MinDescriptionLength) {
			continue
		}

		workplaceType := j.WorkplaceType
		if workplaceType == "" {
			// Fall back to the telecommuting boolean (spec §4.1 table).
			if j.Telecommuting {
				workplaceType = "remote"
			} else {
				workplaceType = "on_site"
			}
		}

		hint := StructuredHint{
			WorkplaceTypeHint: workplaceType,
			CountryCode:       j.Location.CountryCode,
		}
		if j.Salary.SalaryFrom != 0 || j.Salary.SalaryTo != 0 {
			minC, maxC := j.Salary.SalaryFrom*100, j.Salary.SalaryTo*100
			hint.SalaryMinCents = &minC
			hint.SalaryMaxCents = &maxC
			hint.SalaryCurrency = j.Salary.Currency
		}

		out = append(out, Posting{Raw: raw, Hint: hint})
		stats.Filtered++
	}

	return out, stats
}
