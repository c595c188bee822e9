package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/otodealz/otodealz-backend/pkg/migrate"
)

func TestPaymentIntentsMigrationContainsGuards(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_payment_intents.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no payment intents migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS payment_intents",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_intents_order_code",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_intents_active",
		"WHERE status = 'pending'",
		"CHECK (amount_vnd > 0)",
		"DROP TABLE IF EXISTS payment_intents",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir failed validation: %v", err)
	}
}
