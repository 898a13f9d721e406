// Package agency implements the two-stage recruitment-agency detector of
// spec §4.3: a hard pre-classification filter (stage A) and a soft,
// post-classification labeling pass that combines the pattern match with
// the classifier's own verdict (stage B).
package agency

import (
	"strings"

	"jobpipeline/internal/config"
	"jobpipeline/internal/models"
)

// Detector evaluates both stages against the loaded agency tables.
type Detector struct {
	tables config.AgencyTables
}

// New builds a Detector from the loaded config tables.
func New(tables config.AgencyTables) *Detector {
	return &Detector{tables: tables}
}

// HardCheck is stage A: a pre-classification filter run before the
// classifier is ever invoked (spec §4.3, §4.7 AGENCY_HARD state).
func (d *Detector) HardCheck(companyName string) models.AgencyVerdict {
	name := strings.ToLower(strings.TrimSpace(companyName))

	if contains(d.tables.AllowList, name) {
		return models.AgencyVerdict{IsAgency: false, Confidence: "low"}
	}
	if contains(d.tables.HardList, name) {
		return models.AgencyVerdict{IsAgency: true, Confidence: "high"}
	}

	highHits := countHits(name, d.tables.HighConfidenceKeywords)
	hasHighSuffix := hasSuffixAny(name, d.tables.HighConfidenceSuffixes)
	if highHits >= 2 || hasHighSuffix {
		return models.AgencyVerdict{IsAgency: true, Confidence: "high"}
	}

	mediumHits := countHits(name, d.tables.MediumConfidenceKeywords)
	hasMediumSuffixWithTheme := hasSuffixAny(name, d.tables.MediumConfidenceSuffixes) &&
		countHits(name, d.tables.RecruitmentThemeKeywords) >= 1
	if highHits == 1 || hasMediumSuffixWithTheme || mediumHits >= 2 {
		return models.AgencyVerdict{IsAgency: true, Confidence: "medium"}
	}

	return models.AgencyVerdict{IsAgency: false, Confidence: "low"}
}

// SoftValidate is stage B: run after classification, labeling only — it
// never drops a posting, only sets is_agency/confidence on the enriched
// row (spec §4.3, §4.7 AGENCY_SOFT state).
func (d *Detector) SoftValidate(companyName, description string, classifierSaysAgency bool) models.AgencyVerdict {
	stageA := d.HardCheck(companyName)

	phraseHits := countHits(strings.ToLower(description), d.tables.DescriptionPhrases)
	if stageA.Confidence != "high" && phraseHits >= 2 {
		stageA = models.AgencyVerdict{IsAgency: true, Confidence: "medium"}
	}

	switch {
	case stageA.Confidence == "high":
		return stageA
	case stageA.Confidence == "medium" && classifierSaysAgency:
		return models.AgencyVerdict{IsAgency: true, Confidence: "high"}
	case stageA.Confidence == "medium" && !classifierSaysAgency:
		// The soft signal alone is too weak; defer to the classifier.
		return models.AgencyVerdict{IsAgency: false, Confidence: "low"}
	default:
		return models.AgencyVerdict{IsAgency: classifierSaysAgency, Confidence: "low"}
	}
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func countHits(haystack string, needles []string) int {
	count := 0
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			count++
		}
	}
	return count
}

func hasSuffixAny(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(strings.TrimSpace(s), suf) {
			return true
		}
	}
	return false
}
