// Package models holds the immutable value records shared across the
// ingestion pipeline. Nothing here talks to the network or a database;
// these are plain data carried between packages.
package models

import "time"

// EmployerRef identifies one career-site board we scrape. Immutable once
// added to an employer mapping file.
type EmployerRef struct {
	Source   string
	Slug     string
	Instance string // optional; e.g. "eu" for Lever's EU posting API
}

// RawPosting is the unit of ingestion: a canonicalized, source-native view
// of one job ad after field extraction and HTML stripping. Owned by the
// raw store; every other package consumes it read-only.
type RawPosting struct {
	Source       string
	PostingURL   string // stable identity together with Source
	SourceJobID  string // opaque to us
	Title        string
	Company      string
	RawText      string // plain text, HTML stripped
	CityHint     string
	ContentHash  string
	FirstSeen    time.Time
	LastSeen     time.Time
	Metadata     map[string]string // source-specific hints, e.g. workplace_type
}

// Employer is the classifier's verdict about the posting company.
type Employer struct {
	DepartmentGuess string
	IsAgency        bool
	AgencyConfidence string // low | medium | high
}

// Role is the classifier's job-taxonomy verdict, later corrected by the
// taxonomy mapper.
type Role struct {
	JobFamily       string // overwritten deterministically from JobSubfamily
	JobSubfamily    string
	Seniority       string
	Track           string // ic | management
	PositionType    string // full_time | part_time | contract | intern
	ExperienceRange string
}

// LocationEntry is one structured location extracted from a free-form
// location string.
type LocationEntry struct {
	Type        string // city | country | region | remote
	CountryCode string
	City        string
	Region      string
	Scope       string // global | country | region, only set when Type == remote
}

// Location is the classifier + mapper's location verdict.
type Location struct {
	WorkingArrangement string // onsite | hybrid | remote | flexible | unknown
	Entries            []LocationEntry
}

// Compensation is nulled (zero value, Suppressed=true) on write for
// postings matching a suppression rule.
type Compensation struct {
	Currency        string
	Min             *int64
	Max             *int64
	EquityEligible  bool
	Suppressed      bool
}

// Skill pairs a skill name with its taxonomy family; FamilyCode is empty
// string when the skill is unknown to the taxonomy, never dropped.
type Skill struct {
	Name       string
	FamilyCode string
}

// CostMeta is the side-channel accounting attached to every classifier
// call, successful or not.
type CostMeta struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	LatencyMS    int64
	Provider     string
	Model        string
}

// Classification is the structured LLM output plus deterministic
// corrections, before it is promoted onto an EnrichedPosting.
type Classification struct {
	Employer     Employer
	Role         Role
	Location     Location
	Compensation Compensation
	Skills       []Skill
	Summary      string
	Cost         CostMeta
}

// EnrichedPosting is the published, one-per-raw-posting record.
type EnrichedPosting struct {
	RawPostingID       string
	EmployerName       string
	TitleDisplay       string
	JobFamily          string
	JobSubfamily       string
	Seniority          string
	Track              string
	PositionType       string
	WorkingArrangement string
	Locations          []LocationEntry
	ExperienceRange    string
	EmployerDepartment string
	IsAgency           bool
	AgencyConfidence   string
	Currency           string
	SalaryMin          *int64
	SalaryMax          *int64
	EquityEligible     bool
	Skills             []Skill
	DataSource         string
	DescriptionSource  string
	Deduplicated       bool
	PostedDate         time.Time
	LastSeenDate       time.Time
	ClassifiedAt       time.Time
}

// CheckpointRecord is the per-(source,slug) resume marker.
type CheckpointRecord struct {
	Source       string
	Slug         string
	LastSuccessAt time.Time
}

// AgencyVerdict is the agency detector's ephemeral output.
type AgencyVerdict struct {
	IsAgency   bool
	Confidence string // low | medium | high
}

// FetchStats is returned alongside a fetch's postings.
type FetchStats struct {
	Requested int
	Fetched   int
	Filtered  int
	Errors    []string
}

// SweepStats is the owned accumulator threaded through one orchestrator
// invocation and serialized at the end of a sweep.
type SweepStats struct {
	RunID string

	CompaniesTotal     int
	CompaniesProcessed int
	CompaniesSkipped   int
	CompaniesWithJobs  int

	JobsScraped          int
	JobsKept             int
	JobsWrittenRaw       int
	JobsDuplicate        int
	JobsClassified       int
	JobsAgencyFiltered   int
	JobsSkippedThin      int
	JobsClassifyError    int
	JobsWrittenEnriched  int

	CostClassificationTotal float64
	CostSavedFromFiltering  float64

	StartedAt time.Time
	Elapsed   time.Duration

	RecentErrors []string // capped list, see orchestrator.maxRecentErrors
}
