package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShippedMigrationsAreValid(t *testing.T) {
	count, err := ValidateDir("migrations")
	require.NoError(t, err)
	require.GreaterOrEqual(t, count, 7)
}

func TestInventoryMigrationGuardsQuantity(t *testing.T) {
	content := readMigration(t, "*_create_products_and_inventory.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS inventory",
		"CHECK (quantity >= 0)",
		"ON inventory (product_id, location_id)",
		"ON products (vendor_id, sku)",
		"DROP TABLE IF EXISTS inventory",
	} {
		require.Contains(t, content, sub)
	}
}

func TestBlueprintMigrationScopesSlugs(t *testing.T) {
	content := readMigration(t, "*_create_pricing_blueprints.sql")
	require.Contains(t, content, "ON pricing_blueprints (vendor_id, slug)")
	require.Contains(t, content, "WHERE vendor_id IS NULL")
	require.Contains(t, content, "'weight', 'quantity', 'percentage', 'flat', 'custom'")
}

func TestLoyaltyMigrationUniquePerVendor(t *testing.T) {
	content := readMigration(t, "*_create_customers_and_loyalty.sql")
	require.Contains(t, content, "ON customer_loyalty (customer_id, vendor_id)")
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	_, err := ValidateDir(dir)
	require.Error(t, err)

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_missing_down.sql"), []byte("-- +goose Up\n"), 0o644))
	_, err = ValidateDir(dir)
	require.Error(t, err)

	dir = t.TempDir()
	body := []byte("-- +goose Up\n-- +goose Down\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_a.sql"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_b.sql"), body, 0o644))
	_, err = ValidateDir(dir)
	require.ErrorContains(t, err, "duplicate")
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := createSQLMigrationAt(dir, "Add Loyalty Expiry!", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260304050607_add_loyalty_expiry.sql"), path)

	count, err := ValidateDir(dir)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = createSQLMigrationAt(dir, "add loyalty expiry", now)
	require.ErrorContains(t, err, "already exists")

	_, err = createSQLMigrationAt(dir, "!!!", now)
	require.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("20260105120000")
	require.NoError(t, err)
	require.Equal(t, int64(20260105120000), v)

	for _, bad := range []string{"", "2026", "2026010512000x"} {
		_, err := ParseVersion(bad)
		require.Error(t, err, bad)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}
