package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matches %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestContractsMigrationColumns(t *testing.T) {
	content := readMigration(t, "*_create_contracts_and_timeline.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS contracts",
		"generated_pdf_url TEXT",
		"idx_contracts_appointment ON contracts (appointment_id)",
		"idx_timeline_contract_step ON timeline_steps (contract_id, step)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEvidenceMigrationColumns(t *testing.T) {
	content := readMigration(t, "*_create_evidence.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS evidence",
		"description TEXT",
		"CHECK (size_bytes > 0)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
