package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"jobpipeline/internal/models"
)

// LeverFetcher contacts the Lever Postings API: GET
// /v0/postings/{slug}?mode=json, on the global or EU base URL depending
// on EmployerRef.Instance.
type LeverFetcher struct {
	Client      *http.Client
	GlobalURL   string
	EUURL       string
	Limiter     Limiter
}

type leverPosting struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	HostedURL     string `json:"hostedUrl"`
	DescriptionPlain string `json:"descriptionPlain"`
	WorkplaceType string `json:"workplaceType"`
	Categories    struct {
		Location   string `json:"location"`
		Team       string `json:"team"`
		Commitment string `json:"commitment"`
	} `json:"categories"`
}

func (f *LeverFetcher) Source() string { return "lever" }

func (f *LeverFetcher) Fetch(ctx context.Context, employer models.EmployerRef, filters Filters) ([]Posting, models.FetchStats) {
	stats := models.FetchStats{}

	base := f.GlobalURL
	if base == "" {
		base = "https://api.lever.co/v0/postings"
	}
	if employer.Instance == "eu" {
		base = f.EUURL
		if base == "" {
			base = "https://api.eu.lever.co/v0/postings"
		}
	}

	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("rate limiter: %v", err))
			return nil, stats
		}
	}

	url := fmt.Sprintf("%s/%s?mode=json", base, employer.Slug)
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

	var postings []leverPosting
	if err := json.NewDecoder(resp.Body).Decode(&postings); err != nil {
		stats.Errors = append(stats.Errors, "Invalid response format")
		return nil, stats
	}

	stats.Requested = len(postings)

	var out []Posting
	for _, p := range postings {
		stats.Fetched++

		location := p.Categories.Location
		if !IsRelevantPosting(p.Text, location, filters.TitlePatterns, filters.TargetLocations) {
			continue
		}

		raw := models.RawPosting{
			Source:      "lever",
			PostingURL:  p.HostedURL,
			SourceJobID: p.ID,
			Title:       p.Text,
			Company:     employer.Slug,
			RawText:     StripHTML(p.DescriptionPlain),
			CityHint:    location,
			Metadata:    map[string]string{},
		}
		raw.ContentHash = ContentHash(raw.Title, raw.RawText)
		if !MeetsMinDescriptionLength(raw.RawText, filters.MinDescriptionLength) {
			continue
		}

		workplaceType := p.WorkplaceType
		if workplaceType == "" {
			workplaceType = "unspecified"
		}

		hint := StructuredHint{
			Team:              p.Categories.Team,
			Commitment:        p.Categories.Commitment,
			WorkplaceTypeHint: workplaceType,
		}

		out = append(out, Posting{Raw: raw, Hint: hint})
		stats.Filtered++
	}

	return out, stats
}
