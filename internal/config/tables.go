package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// SubfamilyToFamily maps a lowercase job_subfamily to its lowercase
// job_family, loaded once at startup and held read-only thereafter.
type SubfamilyToFamily map[string]string

// SkillToFamily maps a lowercase skill name to its family_code.
type SkillToFamily map[string]string

// DuplicateKey records a skill-table key that appeared more than once in
// the source YAML, so the loader doesn't silently discard the evidence
// (spec "Config loading" note: last-write-wins must be surfaced).
type DuplicateKey struct {
	Key        string
	Discarded  string
	Kept       string
}

// AgencyTables is every list/keyword table the agency detector consults.
type AgencyTables struct {
	AllowList                []string
	HardList                 []string
	HighConfidenceKeywords   []string
	MediumConfidenceKeywords []string
	HighConfidenceSuffixes   []string
	MediumConfidenceSuffixes []string
	RecruitmentThemeKeywords []string
	DescriptionPhrases       []string
}

// CompensationSuppressionRule is one row of the suppression table; "*"
// matches any value for that column.
type CompensationSuppressionRule struct {
	City       string `yaml:"city"`
	DataSource string `yaml:"data_source"`
}

// EmployerEntry is one mapped employer under a source.
type EmployerEntry struct {
	Slug     string `yaml:"slug"`
	Instance string `yaml:"instance"`
}

// Tables bundles every loaded lookup the pipeline needs.
type Tables struct {
	JobFamily           SubfamilyToFamily
	SkillFamily         SkillToFamily
	SkillFamilyDupes    []DuplicateKey
	Agency              AgencyTables
	TitleFilters        map[string][]*regexp.Regexp
	LocationFilters     map[string][]string
	CompensationRules   []CompensationSuppressionRule
	Employers           map[string]map[string]EmployerEntry // source -> display name -> entry
}

// LoadTables reads every YAML table under dir. Missing files are treated
// the way the original pipeline's config loader does: the table is left
// empty and the caller proceeds (a filter that finds no patterns simply
// doesn't filter anything), except for the subfamily/skill tables, which
// are load-bearing enough that an implementer editing config/ would want
// a hard error rather than silently inert mapping.
func LoadTables(dir string) (*Tables, error) {
	t := &Tables{
		TitleFilters:    map[string][]*regexp.Regexp{},
		LocationFilters: map[string][]string{},
		Employers:       map[string]map[string]EmployerEntry{},
	}

	jobFamily, err := loadJobFamilyMapping(filepath.Join(dir, "job_family_mapping.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading job family mapping: %w", err)
	}
	t.JobFamily = jobFamily

	skillFamily, dupes, err := loadSkillFamilyMapping(filepath.Join(dir, "skill_family_mapping.yaml"))
	if err != nil {
		return nil, fmt.Errorf("loading skill family mapping: %w", err)
	}
	t.SkillFamily = skillFamily
	t.SkillFamilyDupes = dupes

	agency, err := loadAgencyTables(filepath.Join(dir, "agency_detection.yaml"))
	if err != nil {
		// Non-fatal: an empty agency table means the hard/soft detector
		// defers everything to the classifier, which is safe.
		agency = AgencyTables{}
	}
	t.Agency = agency

	titleFilters, err := loadTitleFilters(filepath.Join(dir, "title_filters.yaml"))
	if err == nil {
		t.TitleFilters = titleFilters
	}

	locationFilters, err := loadLocationFilters(filepath.Join(dir, "location_filters.yaml"))
	if err == nil {
		t.LocationFilters = locationFilters
	}

	compRules, err := loadCompensationRules(filepath.Join(dir, "compensation_suppression.yaml"))
	if err == nil {
		t.CompensationRules = compRules
	}

	employers, err := loadEmployerMapping(filepath.Join(dir, "employer_mapping.yaml"))
	if err == nil {
		t.Employers = employers
	}

	return t, nil
}

func loadJobFamilyMapping(path string) (SubfamilyToFamily, error) {
	raw := map[string][]string{}
	if err := readYAML(path, &raw); err != nil {
		return nil, err
	}

	mapping := SubfamilyToFamily{}
	for family, subfamilies := range raw {
		for _, sub := range subfamilies {
			mapping[strings.ToLower(sub)] = strings.ToLower(family)
		}
	}
	return mapping, nil
}

func loadSkillFamilyMapping(path string) (SkillToFamily, []DuplicateKey, error) {
	// yaml.v3 doesn't surface duplicate mapping keys on its own (the last
	// one silently wins when decoded into a map), so we decode into an
	// ordered node tree first to detect duplicates ourselves.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, nil, err
	}

	mapping := SkillToFamily{}
	var dupes []DuplicateKey

	if len(root.Content) == 0 {
		return mapping, dupes, nil
	}
	mappingNode := root.Content[0]
	if mappingNode.Kind != yaml.MappingNode {
		return mapping, dupes, nil
	}

	for i := 0; i+1 < len(mappingNode.Content); i += 2 {
		keyNode := mappingNode.Content[i]
		valNode := mappingNode.Content[i+1]

		key := strings.ToLower(strings.TrimSpace(keyNode.Value))
		val := strings.ToLower(strings.TrimSpace(valNode.Value))

		if prev, exists := mapping[key]; exists {
			dupes = append(dupes, DuplicateKey{Key: key, Discarded: prev, Kept: val})
		}
		mapping[key] = val
	}

	return mapping, dupes, nil
}

func loadAgencyTables(path string) (AgencyTables, error) {
	var t AgencyTables
	var raw struct {
		AllowList                []string `yaml:"allow_list"`
		HardList                 []string `yaml:"hard_list"`
		HighConfidenceKeywords   []string `yaml:"high_confidence_keywords"`
		MediumConfidenceKeywords []string `yaml:"medium_confidence_keywords"`
		HighConfidenceSuffixes   []string `yaml:"high_confidence_suffixes"`
		MediumConfidenceSuffixes []string `yaml:"medium_confidence_suffixes"`
		RecruitmentThemeKeywords []string `yaml:"recruitment_theme_keywords"`
		DescriptionPhrases       []string `yaml:"description_phrases"`
	}
	if err := readYAML(path, &raw); err != nil {
		return t, err
	}
	t.AllowList = lowerAll(raw.AllowList)
	t.HardList = lowerAll(raw.HardList)
	t.HighConfidenceKeywords = lowerAll(raw.HighConfidenceKeywords)
	t.MediumConfidenceKeywords = lowerAll(raw.MediumConfidenceKeywords)
	t.HighConfidenceSuffixes = lowerAll(raw.HighConfidenceSuffixes)
	t.MediumConfidenceSuffixes = lowerAll(raw.MediumConfidenceSuffixes)
	t.RecruitmentThemeKeywords = lowerAll(raw.RecruitmentThemeKeywords)
	t.DescriptionPhrases = lowerAll(raw.DescriptionPhrases)
	return t, nil
}

func loadTitleFilters(path string) (map[string][]*regexp.Regexp, error) {
	raw := map[string][]string{}
	if err := readYAML(path, &raw); err != nil {
		return nil, err
	}

	out := map[string][]*regexp.Regexp{}
	for source, patterns := range raw {
		var compiled []*regexp.Regexp
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("source %s: invalid title pattern %q: %w", source, p, err)
			}
			compiled = append(compiled, re)
		}
		out[source] = compiled
	}
	return out, nil
}

func loadLocationFilters(path string) (map[string][]string, error) {
	raw := map[string][]string{}
	if err := readYAML(path, &raw); err != nil {
		return nil, err
	}
	out := map[string][]string{}
	for source, subs := range raw {
		out[source] = lowerAll(subs)
	}
	return out, nil
}

func loadCompensationRules(path string) ([]CompensationSuppressionRule, error) {
	var raw struct {
		Rules []CompensationSuppressionRule `yaml:"rules"`
	}
	if err := readYAML(path, &raw); err != nil {
		return nil, err
	}
	for i := range raw.Rules {
		raw.Rules[i].City = strings.ToLower(raw.Rules[i].City)
		raw.Rules[i].DataSource = strings.ToLower(raw.Rules[i].DataSource)
	}
	return raw.Rules, nil
}

func loadEmployerMapping(path string) (map[string]map[string]EmployerEntry, error) {
	raw := map[string]map[string]EmployerEntry{}
	if err := readYAML(path, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
