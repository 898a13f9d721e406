package fetch

import (
	"regexp"
	"testing"
)

func TestMatchesTargetLocationMultiToken(t *testing.T) {
	targets := []string{"london", "remote"}

	if !MatchesTargetLocation("London / Remote", targets) {
		t.Fatalf("expected multi-token location to match on any token")
	}
	if !MatchesTargetLocation("Paris; Remote", targets) {
		t.Fatalf("expected Remote token to match even when Paris does not")
	}
	if MatchesTargetLocation("Paris; Berlin", targets) {
		t.Fatalf("expected no match when neither token matches")
	}
}

func TestMatchesTargetLocationDisabledWhenEmpty(t *testing.T) {
	if !MatchesTargetLocation("Anywhere", nil) {
		t.Fatalf("expected empty target list to disable the filter")
	}
}

func TestMatchesAnyTitlePattern(t *testing.T) {
	patterns := []*regexp.Regexp{regexp.MustCompile(`(?i)product manager`)}

	if !MatchesAnyTitlePattern("Senior Product Manager, GTM", patterns) {
		t.Fatalf("expected title to match product manager pattern")
	}
	if MatchesAnyTitlePattern("Staff Software Engineer", patterns) {
		t.Fatalf("expected no match for unrelated title")
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<p>Build pipelines &amp; ship &lt;code&gt;.</p>")
	want := "Build pipelines & ship <code>."
	if got != want {
		t.Fatalf("StripHTML: got %q, want %q", got, want)
	}
}

func TestMeetsMinDescriptionLength(t *testing.T) {
	if !MeetsMinDescriptionLength("short", 0) {
		t.Fatalf("expected minLength=0 to disable the check")
	}
	if !MeetsMinDescriptionLength("exactly twenty chars", 20) {
		t.Fatalf("expected description at the boundary length to pass")
	}
	if MeetsMinDescriptionLength("too short", 50) {
		t.Fatalf("expected description under minLength to fail")
	}
	if !MeetsMinDescriptionLength("  padded with spaces  ", 20) {
		t.Fatalf("expected length to be measured after trimming whitespace")
	}
}

func TestContentHashStableAcrossWhitespace(t *testing.T) {
	a := ContentHash("Senior Engineer", "Build   things.\n")
	b := ContentHash("senior engineer", "build things.")
	if a != b {
		t.Fatalf("expected whitespace/case-insensitive stable hash, got %q vs %q", a, b)
	}

	c := ContentHash("Senior Engineer", "Build other things.")
	if a == c {
		t.Fatalf("expected differing text to change the hash")
	}
}
