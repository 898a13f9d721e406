// Package taxonomy applies the deterministic, post-classification
// transforms of spec §4.5: subfamily->family, skill->family, track and
// seniority correction, location extraction, working-arrangement
// fallback, and compensation suppression.
package taxonomy

import (
	"regexp"
	"strings"

	"jobpipeline/internal/config"
	"jobpipeline/internal/fetch"
	"jobpipeline/internal/models"
)

// Mapper holds the loaded lookup tables; it is read-only after
// construction and safe for concurrent use.
type Mapper struct {
	jobFamily         config.SubfamilyToFamily
	skillFamily       config.SkillToFamily
	compensationRules []config.CompensationSuppressionRule
}

// New builds a Mapper from the loaded config tables.
func New(tables *config.Tables) *Mapper {
	return &Mapper{
		jobFamily:         tables.JobFamily,
		skillFamily:       tables.SkillFamily,
		compensationRules: tables.CompensationRules,
	}
}

// SubfamilyToFamily implements spec §4.5 rule 1 and invariant 3: the
// LLM's own job_family is always overwritten by the deterministic
// mapping when the subfamily is known; an out-of-table subfamily leaves
// the classifier's own family output untouched.
func (m *Mapper) SubfamilyToFamily(subfamily, classifierFamily string) string {
	if subfamily == "" {
		return classifierFamily
	}
	if family, ok := m.jobFamily[strings.ToLower(subfamily)]; ok {
		return family
	}
	return classifierFamily
}

// SkillFamily implements spec §4.5 rule 2 and invariant 6: unknown
// skills keep their name with an empty (null) family code rather than
// being dropped.
func (m *Mapper) SkillFamily(skillName string) models.Skill {
	canonical := strings.TrimSpace(skillName)
	family, ok := m.skillFamily[strings.ToLower(canonical)]
	if !ok {
		return models.Skill{Name: canonical, FamilyCode: ""}
	}
	return models.Skill{Name: canonical, FamilyCode: family}
}

// MapSkills applies SkillFamily across a slice in one call.
func (m *Mapper) MapSkills(skills []models.Skill) []models.Skill {
	out := make([]models.Skill, len(skills))
	for i, s := range skills {
		out[i] = m.SkillFamily(s.Name)
	}
	return out
}

var managementSignalTokens = regexp.MustCompile(`(?i)\b(director|head|vp|chief|svp|evp|avp|rvp|partner)\b`)
var staffPrincipalTokens = regexp.MustCompile(`(?i)\b(staff|principal)\b`)
var seniorTokens = regexp.MustCompile(`(?i)\b(senior|sr|lead)\b`)

// CorrectTrackAndSeniority implements spec §4.5 rule 3: downgrade
// track=management to ic when the title carries none of the
// management-signal tokens, and re-infer seniority the same way when the
// classifier claimed director_plus without that signal.
func (m *Mapper) CorrectTrackAndSeniority(title, track, seniority string) (string, string) {
	hasManagementSignal := managementSignalTokens.MatchString(title)

	correctedTrack := track
	if strings.EqualFold(track, "management") && !hasManagementSignal {
		correctedTrack = "ic"
	}

	correctedSeniority := seniority
	if strings.EqualFold(seniority, "director_plus") && !hasManagementSignal {
		switch {
		case staffPrincipalTokens.MatchString(title):
			correctedSeniority = "staff_principal"
		case seniorTokens.MatchString(title):
			correctedSeniority = "senior"
		default:
			correctedSeniority = "mid"
		}
	}

	return correctedTrack, correctedSeniority
}

var locationDelimiters = regexp.MustCompile(`[;/|•\n]`)

// ExtractLocations implements spec §4.5 rule 4: turn a free-form location
// string into a list of structured entries, preferring any structured
// hint the fetcher already extracted.
func (m *Mapper) ExtractLocations(locationString string, hint fetch.StructuredHint) []models.LocationEntry {
	if hint.CountryCode != "" {
		entry := models.LocationEntry{Type: "country", CountryCode: hint.CountryCode}
		if locationString != "" {
			entry.Type = "city"
			entry.City = strings.TrimSpace(locationDelimiters.Split(locationString, 2)[0])
		}
		return []models.LocationEntry{entry}
	}

	if locationString == "" {
		return nil
	}

	tokens := locationDelimiters.Split(locationString, -1)
	entries := make([]models.LocationEntry, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if strings.EqualFold(tok, "remote") {
			entries = append(entries, models.LocationEntry{Type: "remote", Scope: "global"})
			continue
		}
		entries = append(entries, models.LocationEntry{Type: "city", City: tok})
	}
	return entries
}

// ResolveWorkingArrangement implements spec §4.5 rule 5's fallback chain:
// classifier output, then the fetcher's structured hint, then the
// location-derived remote scope, then "onsite".
func (m *Mapper) ResolveWorkingArrangement(classifierValue string, hint fetch.StructuredHint, locations []models.LocationEntry) string {
	if classifierValue != "" && classifierValue != "unknown" {
		return classifierValue
	}

	if hint.WorkplaceTypeHint != "" && hint.WorkplaceTypeHint != "unspecified" {
		return normalizeWorkplaceType(hint.WorkplaceTypeHint)
	}
	if hint.IsRemoteHint != nil && *hint.IsRemoteHint {
		return "remote"
	}
	if hint.LocationTypeHint != "" {
		return normalizeWorkplaceType(hint.LocationTypeHint)
	}

	for _, loc := range locations {
		if loc.Type == "remote" {
			return "remote"
		}
	}

	return "onsite"
}

func normalizeWorkplaceType(raw string) string {
	switch strings.ToLower(strings.ReplaceAll(raw, "_", "")) {
	case "onsite", "on site":
		return "onsite"
	case "hybrid":
		return "hybrid"
	case "remote":
		return "remote"
	default:
		return "onsite"
	}
}

// CompensationSuppressed implements spec §4.5 rule 6: a config-driven
// predicate, never an ad-hoc check elsewhere (see SPEC_FULL.md's open
// question decision). city is the fetcher's raw location string (e.g.
// Ashby's "London, UK"), not a bare city name, so the rule's city is
// matched as a substring of each delimited token the same way
// fetch.MatchesTargetLocation matches target-location filters, rather
// than by exact equality.
func (m *Mapper) CompensationSuppressed(dataSource, city string) bool {
	source := strings.ToLower(dataSource)
	tokens := locationDelimiters.Split(strings.ToLower(city), -1)

	for _, rule := range m.compensationRules {
		if rule.DataSource != "*" && rule.DataSource != source {
			continue
		}
		if rule.City == "*" {
			return true
		}
		for _, tok := range tokens {
			tok = strings.TrimSpace(tok)
			if tok != "" && strings.Contains(tok, rule.City) {
				return true
			}
		}
	}
	return false
}
