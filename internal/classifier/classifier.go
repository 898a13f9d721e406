// Package classifier wraps the LLM RPC behind a single Gateway interface
// (spec §4.4): builds the structured prompt, enforces the content-length
// gate, validates and normalizes the returned JSON, and attaches cost
// telemetry to every call, successful or not.
package classifier

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"jobpipeline/internal/models"
	"jobpipeline/internal/pipelineerr"
)

// StructuredInput is the config-shaped record forwarded alongside
// raw_text, only the keys relevant to the source populated (spec §4.4).
type StructuredInput struct {
	Title               string
	Company             string
	Location            string
	Category            string
	SalaryMin           *int64
	SalaryMax           *int64
	SalaryPredicted     bool
	ExperienceLevelHint string
	WorkplaceTypeHint   string
	IsRemoteHint        *bool
}

// Gateway is the contract the orchestrator calls; the teacher's
// CallOllama/EnrichTransactions shape becomes one interface implemented
// by a concrete provider (AnthropicGateway) instead of free functions.
type Gateway interface {
	Classify(ctx context.Context, rawText string, input StructuredInput, sourceTag string) (models.Classification, *pipelineerr.Error)
}

var validate = validator.New()

// minDescriptionLengthWithHints and minDescriptionLengthBare implement
// spec §4.4's content-length gate: 20 characters when structured hints
// accompany the text, 50 when none are present.
const (
	minDescriptionLengthWithHints = 20
	minDescriptionLengthBare      = 50
)

func hasAnyStructuredHint(input StructuredInput) bool {
	return input.Title != "" || input.Company != "" || input.Category != "" ||
		input.SalaryMin != nil || input.SalaryMax != nil ||
		input.ExperienceLevelHint != "" || input.WorkplaceTypeHint != "" || input.IsRemoteHint != nil
}

// gateContentLength implements spec §4.4's "content_too_short" fail
// path; returns a non-nil error when the RPC should not be made at all.
func gateContentLength(rawText string, input StructuredInput, company string) *pipelineerr.Error {
	threshold := minDescriptionLengthBare
	if hasAnyStructuredHint(input) {
		threshold = minDescriptionLengthWithHints
	}
	if len(rawText) < threshold {
		return pipelineerr.New(pipelineerr.SkippedThin, company, fmt.Errorf("content_too_short: %d chars, need %d", len(rawText), threshold))
	}
	return nil
}

// buildSystemPrompt enumerates the closed output schema and the explicit
// rules spec §4.4 step 1 requires the prompt to state.
func buildSystemPrompt() string {
	return `You are a job-posting classifier. Return ONLY a JSON object matching this schema:
{
  "employer": {"department_guess": string|null, "is_agency": boolean, "agency_confidence": "low"|"medium"|"high"},
  "role": {"job_family": string, "job_subfamily": string, "seniority": string, "track": "ic"|"management", "position_type": string, "experience_range": string|null},
  "location": {"working_arrangement": "onsite"|"hybrid"|"remote"|"flexible"|"unknown"},
  "compensation": {"currency": string|null, "min": integer|null, "max": integer|null, "equity_eligible": boolean},
  "skills": [{"name": string}],
  "summary": string
}

Rules:
- null means absent. Never return the string "null".
- Any title containing "Product Manager", "PM", or "GPM" is necessarily in the product family regardless of other qualifiers.
- Infer seniority years-of-experience first, title second.
- job_subfamily drives job_family; your own job_family value may be overwritten downstream and is advisory only.
- Do not wrap the JSON in prose. A markdown code fence is acceptable but not required.`
}

func buildUserPrompt(rawText string, input StructuredInput, sourceTag string) string {
	return fmt.Sprintf("Source: %s\nTitle: %s\nCompany: %s\nLocation: %s\nCategory: %s\n\nDescription:\n%s",
		sourceTag, input.Title, input.Company, input.Location, input.Category, rawText)
}

// toModelClassification converts the parsed wire shape into the
// package-wide value record, leaving job_family untouched — the taxonomy
// mapper is solely responsible for overwriting it (spec invariant 3).
func toModelClassification(parsed *rawClassification, cost models.CostMeta) models.Classification {
	skills := make([]models.Skill, 0, len(parsed.Skills))
	for _, s := range parsed.Skills {
		skills = append(skills, models.Skill{Name: s.Name})
	}

	return models.Classification{
		Employer: models.Employer{
			DepartmentGuess:  parsed.Employer.DepartmentGuess,
			IsAgency:         parsed.Employer.IsAgency,
			AgencyConfidence: parsed.Employer.AgencyConfidence,
		},
		Role: models.Role{
			JobFamily:       parsed.Role.JobFamily,
			JobSubfamily:    parsed.Role.JobSubfamily,
			Seniority:       parsed.Role.Seniority,
			Track:           parsed.Role.Track,
			PositionType:    parsed.Role.PositionType,
			ExperienceRange: parsed.Role.ExperienceRange,
		},
		Location: models.Location{
			WorkingArrangement: parsed.Location.WorkingArrangement,
		},
		Compensation: models.Compensation{
			Currency:       parsed.Compensation.Currency,
			Min:            parsed.Compensation.Min,
			Max:            parsed.Compensation.Max,
			EquityEligible: parsed.Compensation.EquityEligible,
		},
		Skills:  skills,
		Summary: parsed.Summary,
		Cost:    cost,
	}
}
