package rule

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `rules:
  - id: rule-vip
    name: Escalate VIP mail
    userId: user-1
    conditionType: simple
    conditions:
      - field: from
        operator: equals
        value: vip@example.com
    action:
      kind: escalate
      target: support-oncall
    priority: 9
    dependencies:
      - notification
  - id: rule-archive
    name: Archive newsletters
    userId: user-1
    conditionType: simple
    conditions:
      - field: subject
        operator: contains
        value: newsletter
    action:
      kind: archive
    priority: 2
    active: false
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadCatalogFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rules, err := LoadCatalogFile(writeCatalog(t, catalogYAML))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	vip := rules[0]
	assert.Equal(t, "rule-vip", vip.ID)
	assert.Equal(t, ConditionSimple, vip.ConditionType)
	assert.Equal(t, ActionEscalate, vip.Action.Kind)
	assert.Equal(t, "support-oncall", vip.Action.Target)
	assert.Equal(t, []string{"notification"}, vip.Dependencies)
	assert.True(t, vip.Active, "active defaults to true when omitted")
	assert.False(t, vip.CreatedAt.IsZero())

	assert.False(t, rules[1].Active)
}

func TestLoadCatalogFile_Errors(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := LoadCatalogFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadCatalogFile(writeCatalog(t, "rules: ["))
	require.Error(t, err)

	_, err = LoadCatalogFile(writeCatalog(t, "rules: []"))
	require.ErrorIs(t, err, ErrCatalogEmpty)

	// One invalid definition fails the whole load.
	invalid := `rules:
  - id: rule-bad
    name: Bad priority
    conditionType: simple
    conditions:
      - field: subject
        operator: contains
        value: x
    action:
      kind: archive
    priority: 42
`

	_, err = LoadCatalogFile(writeCatalog(t, invalid))
	require.ErrorIs(t, err, ErrPriorityOutOfRange)
	assert.ErrorContains(t, err, "rule-bad")
}

func TestInMemoryStoreLoadAll(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rules, err := LoadCatalogFile(writeCatalog(t, catalogYAML))
	require.NoError(t, err)

	store := NewInMemoryStore()
	require.NoError(t, store.LoadAll(rules))

	loaded, err := store.GetRuleByID(context.Background(), "rule-vip")
	require.NoError(t, err)
	assert.Equal(t, "Escalate VIP mail", loaded.Name)
}
