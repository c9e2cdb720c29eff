package migrate_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/urbanfoods/backend/pkg/migrate"
)

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_orders.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no orders migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_order_number",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_checkout_request_id",
		"WHERE mpesa_checkout_request_id IS NOT NULL",
		"CREATE TABLE IF NOT EXISTS order_items",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CREATE TABLE IF NOT EXISTS order_status_histories",
		"DROP TABLE IF EXISTS orders",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestTransactionsMigrationIsAppendOnlySchema(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_mpesa_transactions.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no transactions migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS mpesa_transactions",
		"raw_callback JSONB",
		"result_code INTEGER NOT NULL",
		"idx_mpesa_transactions_checkout",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

// Goose applies the chain in version order; a second migration creating a
// table an earlier one already created aborts the whole run with a
// duplicate-relation error, leaving the database unbootstrappable.
func TestMigrationChainCreatesEachTableOnce(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("no migration files found")
	}

	createRe := regexp.MustCompile(`(?i)CREATE TABLE(\s+IF NOT EXISTS)?\s+(\w+)`)
	creators := map[string][]string{}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		for _, m := range createRe.FindAllStringSubmatch(string(data), -1) {
			if m[1] == "" {
				t.Errorf("%s: CREATE TABLE %s lacks IF NOT EXISTS", filepath.Base(file), m[2])
			}
			creators[m[2]] = append(creators[m[2]], filepath.Base(file))
		}
	}

	for table, sources := range creators {
		if len(sources) > 1 {
			t.Errorf("table %s created by multiple migrations: %s", table, strings.Join(sources, ", "))
		}
	}
}
