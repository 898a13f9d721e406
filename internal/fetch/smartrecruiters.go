package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"jobpipeline/internal/models"
)

// SmartRecruitersFetcher implements the list-then-detail pattern: GET
// /v1/companies/{slug}/postings to list, then GET the detail URL per
// posting for description/experienceLevel/locationType.
type SmartRecruitersFetcher struct {
	Client  *http.Client
	BaseURL string
	Limiter Limiter
}

type smartRecruitersListResponse struct {
	Content []smartRecruitersListItem `json:"content"`
}

type smartRecruitersListItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Ref  struct {
		JobAdID string `json:"jobAdId"`
	} `json:"ref"`
	Location struct {
		City    string `json:"city"`
		Country string `json:"country"`
	} `json:"location"`
}

type smartRecruitersDetail struct {
	JobAd struct {
		Sections struct {
			JobDescription struct {
				Text string `json:"text"`
			} `json:"jobDescription"`
		} `json:"sections"`
	} `json:"jobAd"`
	ExperienceLevel string `json:"experienceLevel"`
	LocationType    string `json:"locationType"`
	CustomURL       string `json:"customUrl"`
}

func (f *SmartRecruitersFetcher) Source() string { return "smartrecruiters" }

func (f *SmartRecruitersFetcher) Fetch(ctx context.Context, employer models.EmployerRef, filters Filters) ([]Posting, models.FetchStats) {
	stats := models.FetchStats{}
	baseURL := f.BaseURL
	if baseURL == "" {
		baseURL = "https://api.smartrecruiters.com/v1/companies"
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("rate limiter: %v", err))
			return nil, stats
		}
	}

	listURL := fmt.Sprintf("%s/%s/postings", baseURL, employer.Slug)
	listBody, err := getJSON[smartRecruitersListResponse](ctx, client, listURL)
	if err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		return nil, stats
	}

	stats.Requested = len(listBody.Content)

	var out []Posting
	for _, item := range listBody.Content {
		stats.Fetched++

		location := item.Location.City
		if !IsRelevantPosting(item.Name, location, filters.TitlePatterns, filters.TargetLocations) {
			continue
		}

		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("rate limiter: %v", err))
				continue
			}
		}

		detailURL := fmt.Sprintf("%s/%s/postings/%s", baseURL, employer.Slug, item.ID)
		detail, err := getJSON[smartRecruitersDetail](ctx, client, detailURL)
		if err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}

		raw := models.RawPosting{
			Source:      "smartrecruiters",
			PostingURL:  detail.CustomURL,
			SourceJobID: item.ID,
			Title:       item.Name,
			Company:     employer.Slug,
			RawText:     StripHTML(detail.JobAd.Sections.JobDescription.Text),
			CityHint:    location,
			Metadata:    map[string]string{},
		}
		raw.ContentHash = ContentHash(raw.Title, raw.RawText)
		if !MeetsMinDescriptionLength(raw.RawText, filters.MinDescriptionLength) {
			continue
		}

		hint := StructuredHint{
			ExperienceLevelHint: detail.ExperienceLevel,
			LocationTypeHint:    detail.LocationType,
			CountryCode:         item.Location.Country,
		}

		out = append(out, Posting{Raw: raw, Hint: hint})
		stats.Filtered++
	}

	return out, stats
}

func getJSON[T any](ctx context.Context, client *http.Client, url string) (T, error) {
	var zero T
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return zero, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("Timeout")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return zero, fmt.Errorf("Company not found")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return zero, fmt.Errorf("Rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("Invalid response format")
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("Invalid response format")
	}
	return out, nil
}
