package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"jobpipeline/internal/models"
)

// GoogleXMLFetcher contacts a single custom XML feed URL with the schema
// <jobs><job>...<locations><location><city/><country/></location>...
type GoogleXMLFetcher struct {
	Client  *http.Client
	FeedURL string
	Limiter Limiter
}

type googleXMLJobs struct {
	XMLName xml.Name      `xml:"jobs"`
	Jobs    []googleXMLJob `xml:"job"`
}

type googleXMLJob struct {
	ID          string `xml:"id"`
	Title       string `xml:"title"`
	URL         string `xml:"url"`
	Description string `xml:"description"`
	Locations   struct {
		Location []struct {
			City    string `xml:"city"`
			Country string `xml:"country"`
		} `xml:"location"`
	} `xml:"locations"`
}

// salaryInDescription is a best-effort regex recovery for the salary
// figures Google's feed embeds in free text rather than as a field,
// e.g. "$120,000 - $150,000".
var salaryInDescription = regexp.MustCompile(`\$([\d,]+)\s*-\s*\$([\d,]+)`)

func (f *GoogleXMLFetcher) Source() string { return "google" }

func (f *GoogleXMLFetcher) Fetch(ctx context.Context, employer models.EmployerRef, filters Filters) ([]Posting, models.FetchStats) {
	stats := models.FetchStats{}

	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("rate limiter: %v", err))
			return nil, stats
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.FeedURL, nil)
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

	if resp.StatusCode == http.StatusNotFound {
		stats.Errors = append(stats.Errors, "Company not found")
		return nil, stats
	}
	if resp.StatusCode != http.StatusOK {
		stats.Errors = append(stats.Errors, "Invalid response format")
		return nil, stats
	}

	var feed googleXMLJobs
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		stats.Errors = append(stats.Errors, "Invalid response format")
		return nil, stats
	}

	stats.Requested = len(feed.Jobs)

	var out []Posting
	for _, j := range feed.Jobs {
		stats.Fetched++

		location := ""
		if len(j.Locations.Location) > 0 {
			location = j.Locations.Location[0].City
		}
		if !IsRelevantPosting(j.Title, location, filters.TitlePatterns, filters.TargetLocations) {
			continue
		}

		raw := models.RawPosting{
			Source:      "google",
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

		hint := StructuredHint{}
		if len(j.Locations.Location) > 0 {
			hint.CountryCode = j.Locations.Location[0].Country
		}
		if m := salaryInDescription.FindStringSubmatch(j.Description); m != nil {
			min, errMin := strconv.ParseInt(removeCommas(m[1]), 10, 64)
			max, errMax := strconv.ParseInt(removeCommas(m[2]), 10, 64)
			if errMin == nil && errMax == nil {
				minCents, maxCents := min*100, max*100
				hint.SalaryMinCents = &minCents
				hint.SalaryMaxCents = &maxCents
				hint.SalaryCurrency = "USD"
			}
		}

		out = append(out, Posting{Raw: raw, Hint: hint})
		stats.Filtered++
	}

	return out, stats
}

func removeCommas(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ',' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
