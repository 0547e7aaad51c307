package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_EmbeddedSetIsWellFormed(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	require.NoError(t, Validate())
}

func TestList_PairsAndOrdering(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	files, err := List()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	// Every up has a down.
	ups := 0
	downs := 0

	for _, file := range files {
		switch {
		case strings.HasSuffix(file, ".up.sql"):
			ups++
		case strings.HasSuffix(file, ".down.sql"):
			downs++
		default:
			t.Fatalf("unexpected migration file: %s", file)
		}
	}

	assert.Equal(t, ups, downs)

	// Sorted output.
	for i := 1; i < len(files); i++ {
		assert.LessOrEqual(t, files[i-1], files[i])
	}
}

func TestFS_FilesReadable(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	files, err := List()
	require.NoError(t, err)

	for _, file := range files {
		content, err := fs.ReadFile(FS(), file)
		require.NoError(t, err)
		assert.NotEmpty(t, content, "migration %s is empty", file)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	info, err := parseMigrationFilename("003_create_test_suites.up.sql")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Sequence)
	assert.Equal(t, "create_test_suites", info.Name)
	assert.Equal(t, "up", info.Direction)

	_, err = parseMigrationFilename("create_test_suites.sql")
	assert.Error(t, err)

	_, err = parseMigrationFilename("03_create_test_suites.up.sql")
	assert.Error(t, err)
}

func TestValidateSequence_RejectsGapsAndBadStart(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	gap := []*migrationInfo{
		{Sequence: 1, Name: "a", Direction: "up"},
		{Sequence: 3, Name: "b", Direction: "up"},
	}
	assert.ErrorContains(t, validateSequence(gap), "gap in migration sequence")

	late := []*migrationInfo{{Sequence: 2, Name: "a", Direction: "up"}}
	assert.ErrorContains(t, validateSequence(late), "should start with 001")
}

func TestValidatePairing_RejectsOrphans(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	orphanUp := []*migrationInfo{{Sequence: 1, Name: "a", Direction: "up"}}
	assert.ErrorContains(t, validatePairing(orphanUp), "missing down migration")

	orphanDown := []*migrationInfo{{Sequence: 1, Name: "a", Direction: "down"}}
	assert.ErrorContains(t, validatePairing(orphanDown), "missing up migration")
}
