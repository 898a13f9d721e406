package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestLoadTablesJobFamilyMapping(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "job_family_mapping.yaml", "data:\n  - ml_engineer\nproduct:\n  - ai_ml_pm\n")
	writeFile(t, dir, "skill_family_mapping.yaml", "python: programming\n")

	tables, err := LoadTables(dir)
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}

	if tables.JobFamily["ml_engineer"] != "data" {
		t.Fatalf("expected ml_engineer -> data, got %q", tables.JobFamily["ml_engineer"])
	}
	if tables.JobFamily["ai_ml_pm"] != "product" {
		t.Fatalf("expected ai_ml_pm -> product, got %q", tables.JobFamily["ai_ml_pm"])
	}
}

func TestLoadTablesSkillFamilyDuplicateKeysSurfaced(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "job_family_mapping.yaml", "data:\n  - x\n")
	writeFile(t, dir, "skill_family_mapping.yaml", "python: programming\nPython: data_processing\n")

	tables, err := LoadTables(dir)
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}

	if tables.SkillFamily["python"] != "data_processing" {
		t.Fatalf("expected last-write-wins value data_processing, got %q", tables.SkillFamily["python"])
	}
	if len(tables.SkillFamilyDupes) != 1 {
		t.Fatalf("expected one duplicate reported, got %d", len(tables.SkillFamilyDupes))
	}
	dup := tables.SkillFamilyDupes[0]
	if dup.Key != "python" || dup.Discarded != "programming" || dup.Kept != "data_processing" {
		t.Fatalf("unexpected duplicate record: %+v", dup)
	}
}

func TestLoadTablesMissingOptionalFilesDoNotError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "job_family_mapping.yaml", "data:\n  - x\n")
	writeFile(t, dir, "skill_family_mapping.yaml", "python: programming\n")

	tables, err := LoadTables(dir)
	if err != nil {
		t.Fatalf("LoadTables should not fail when optional tables are missing: %v", err)
	}
	if len(tables.Agency.AllowList) != 0 {
		t.Fatalf("expected empty agency allow-list, got %v", tables.Agency.AllowList)
	}
}
