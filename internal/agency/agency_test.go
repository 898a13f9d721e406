package agency

import (
	"testing"

	"jobpipeline/internal/config"
)

func testTables() config.AgencyTables {
	return config.AgencyTables{
		AllowList:                []string{"google", "stripe"},
		HardList:                 []string{"hays recruitment", "robert half"},
		HighConfidenceKeywords:   []string{"staffing", "recruitment", "recruiting", "headhunt"},
		MediumConfidenceKeywords: []string{"talent", "search", "consulting", "solutions"},
		HighConfidenceSuffixes:   []string{"staffing", "recruitment"},
		MediumConfidenceSuffixes: []string{"solutions", "search"},
		RecruitmentThemeKeywords: []string{"talent", "staffing", "recruit", "search"},
		DescriptionPhrases:       []string{"our client is seeking", "on behalf of our client"},
	}
}

func TestHardCheckAllowListShortCircuits(t *testing.T) {
	d := New(testTables())
	v := d.HardCheck("Google")
	if v.IsAgency || v.Confidence != "low" {
		t.Fatalf("expected allow-listed company to be not-agency/low, got %+v", v)
	}
}

func TestHardCheckHardListIsHighConfidence(t *testing.T) {
	d := New(testTables())
	v := d.HardCheck("Hays Recruitment")
	if !v.IsAgency || v.Confidence != "high" {
		t.Fatalf("expected hard-list company to be agency/high, got %+v", v)
	}
}

func TestHardCheckHighSuffixIsHighConfidence(t *testing.T) {
	d := New(testTables())
	v := d.HardCheck("Meridian Staffing")
	if !v.IsAgency || v.Confidence != "high" {
		t.Fatalf("expected high-confidence suffix to be agency/high, got %+v", v)
	}
}

func TestHardCheckSingleHighKeywordIsMediumConfidence(t *testing.T) {
	d := New(testTables())
	v := d.HardCheck("Global Staffing Inc")
	if !v.IsAgency || v.Confidence != "medium" {
		t.Fatalf("expected single high keyword to be agency/medium, got %+v", v)
	}
}

func TestHardCheckMediumSuffixWithThemeKeywordIsMediumConfidence(t *testing.T) {
	d := New(testTables())
	// "talent solutions" has a medium suffix (solutions) combined with a
	// recruitment-theme keyword (talent).
	v := d.HardCheck("Bright Talent Solutions")
	if !v.IsAgency || v.Confidence != "medium" {
		t.Fatalf("expected medium suffix + theme keyword to be agency/medium, got %+v", v)
	}
}

func TestHardCheckNoSignalIsNotAgency(t *testing.T) {
	d := New(testTables())
	v := d.HardCheck("Nimbus Data Systems")
	if v.IsAgency {
		t.Fatalf("expected ordinary company name to not be flagged agency, got %+v", v)
	}
}

func TestSoftValidateHardHighWins(t *testing.T) {
	d := New(testTables())
	v := d.SoftValidate("Hays Recruitment", "we build great software", false)
	if !v.IsAgency || v.Confidence != "high" {
		t.Fatalf("expected stage-A high to win regardless of classifier, got %+v", v)
	}
}

func TestSoftValidateMediumAndClassifierAgreesIsHigh(t *testing.T) {
	d := New(testTables())
	v := d.SoftValidate("Global Staffing Inc", "generic description", true)
	if !v.IsAgency || v.Confidence != "high" {
		t.Fatalf("expected medium+agree to upgrade to high, got %+v", v)
	}
}

func TestSoftValidateMediumAndClassifierDisagreesDefersLow(t *testing.T) {
	d := New(testTables())
	v := d.SoftValidate("Global Staffing Inc", "generic description", false)
	if v.IsAgency || v.Confidence != "low" {
		t.Fatalf("expected medium+disagree to defer to classifier (false, low), got %+v", v)
	}
}

func TestSoftValidateDescriptionPhrasesUpgradeToMedium(t *testing.T) {
	d := New(testTables())
	v := d.SoftValidate("Nimbus Data Systems", "Our client is seeking a great engineer, on behalf of our client we are hiring.", true)
	if !v.IsAgency || v.Confidence != "high" {
		t.Fatalf("expected phrase upgrade to medium then classifier-agree to high, got %+v", v)
	}
}

func TestSoftValidateLowDefersToClassifier(t *testing.T) {
	d := New(testTables())
	v := d.SoftValidate("Nimbus Data Systems", "ordinary description", true)
	if !v.IsAgency || v.Confidence != "low" {
		t.Fatalf("expected stage-A low to defer to classifier verdict, got %+v", v)
	}
}
