// Package migrations embeds the RuleIQ database schema migrations.
//
// All migrations are embedded at build time with go:embed, enabling
// zero-config deployment without external file dependencies. The migrator
// CLI and the integration test harness both consume FS() through
// golang-migrate's iofs source driver.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// Migration filename format: 001_migration_name.up.sql / 001_migration_name.down.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// migrationInfo contains parsed information about one migration file.
type migrationInfo struct {
	Sequence  int
	Name      string
	Direction string
	Filename  string
}

// FS returns the embedded migration filesystem.
func FS() fs.FS {
	return embeddedMigrations
}

// List returns all embedded migration files conforming to the naming
// standard, lexicographically sorted. Non-conforming files are rejected by
// Validate, not silently skipped here, so the two views stay consistent.
func List() ([]string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)

	return files, nil
}

// Validate checks the embedded migration set: filename format, up/down
// pairing, and a gapless sequence starting at 001. Run at migrator startup
// so a malformed set fails fast instead of half-applying.
func Validate() error {
	files, err := List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	parsed := make([]*migrationInfo, 0, len(files))

	for _, file := range files {
		info, err := parseMigrationFilename(file)
		if err != nil {
			return err
		}

		parsed = append(parsed, info)
	}

	if err := validatePairing(parsed); err != nil {
		return err
	}

	return validateSequence(parsed)
}

func parseMigrationFilename(filename string) (*migrationInfo, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return nil, fmt.Errorf(
			"invalid migration filename format: %s (expected: 001_name.up.sql or 001_name.down.sql)",
			filename,
		)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in filename %s: %w", filename, err)
	}

	return &migrationInfo{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

// validatePairing ensures every up migration has a matching down migration.
func validatePairing(migrations []*migrationInfo) error {
	pairs := make(map[string]map[string]bool)

	for _, migration := range migrations {
		key := fmt.Sprintf("%03d_%s", migration.Sequence, migration.Name)
		if pairs[key] == nil {
			pairs[key] = make(map[string]bool)
		}

		pairs[key][migration.Direction] = true
	}

	for key, directions := range pairs {
		if !directions["up"] {
			return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
		}

		if !directions["down"] {
			return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
		}
	}

	return nil
}

// validateSequence ensures sequence numbers start at 001 with no gaps.
func validateSequence(migrations []*migrationInfo) error {
	seen := make(map[int]bool)

	for _, migration := range migrations {
		seen[migration.Sequence] = true
	}

	sequences := make([]int, 0, len(seen))
	for seq := range seen {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	if len(sequences) == 0 {
		return nil
	}

	if sequences[0] != 1 {
		return fmt.Errorf("migration sequence should start with 001, but found %03d", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if sequences[i] != sequences[i-1]+1 {
			return fmt.Errorf(
				"gap in migration sequence: expected %03d, found %03d",
				sequences[i-1]+1,
				sequences[i],
			)
		}
	}

	return nil
}
