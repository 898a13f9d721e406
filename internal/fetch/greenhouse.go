package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"jobpipeline/internal/models"
)

// GreenhouseFetcher contacts the Greenhouse Job Board API:
// GET /v1/boards/{slug}/jobs?content=true.
type GreenhouseFetcher struct {
	Client  *http.Client
	BaseURL string // defaults to https://boards-api.greenhouse.io
	Limiter Limiter
}

type greenhouseJobsResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

type greenhouseJob struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	AbsoluteURL string `json:"absolute_url"`
	Departments []struct {
		Name string `json:"name"`
	} `json:"departments"`
	PayInputRanges []struct {
		MinCents int64  `json:"min_cents"`
		MaxCents int64  `json:"max_cents"`
		Currency string `json:"currency"`
	} `json:"pay_input_ranges"`
}

func (f *GreenhouseFetcher) Source() string { return "greenhouse" }

func (f *GreenhouseFetcher) Fetch(ctx context.Context, employer models.EmployerRef, filters Filters) ([]Posting, models.FetchStats) {
	stats := models.FetchStats{}
	baseURL := f.BaseURL
	if baseURL == "" {
		baseURL = "https://boards-api.greenhouse.io"
	}

	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("rate limiter: %v", err))
			return nil, stats
		}
	}

	url := fmt.Sprintf("%s/v1/boards/%s/jobs?content=true", baseURL, employer.Slug)
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

	var body greenhouseJobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		stats.Errors = append(stats.Errors, "Invalid response format")
		return nil, stats
	}

	stats.Requested = len(body.Jobs)

	titlePatterns := filters.TitlePatterns
	targetLocations := filters.TargetLocations

	var out []Posting
	for _, j := range body.Jobs {
		stats.Fetched++

		location := j.Location.Name
		if !IsRelevantPosting(j.Title, location, titlePatterns, targetLocations) {
			continue
		}

		raw := models.RawPosting{
			Source:      "greenhouse",
			PostingURL:  j.AbsoluteURL,
			SourceJobID: fmt.Sprintf("%d", j.ID),
			Title:       j.Title,
			Company:     employer.Slug,
			RawText:     StripHTML(j.Content),
			CityHint:    location,
			Metadata:    map[string]string{},
		}
		raw.ContentHash = ContentHash(raw.Title, raw.RawText)
		if !MeetsMinDescriptionLength(raw.RawText, filters.MinDescriptionLength) {
			continue
		}

		hint := StructuredHint{}
		if len(j.Departments) > 0 {
			hint.Department = j.Departments[0].Name
		}
		if len(j.PayInputRanges) > 0 {
			minC, maxC := j.PayInputRanges[0].MinCents, j.PayInputRanges[0].MaxCents
			hint.SalaryMinCents = &minC
			hint.SalaryMaxCents = &maxC
			hint.SalaryCurrency = j.PayInputRanges[0].Currency
		}

		out = append(out, Posting{Raw: raw, Hint: hint})
		stats.Filtered++
	}

	return out, stats
}

// Limiter is the minimal surface NewSourceLimiter's *rate.Limiter
// satisfies; declared here so fetchers can be unit tested with a fake.
type Limiter interface {
	Wait(ctx context.Context) error
}
