package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvStr(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, "fallback", GetEnvStr("RULEIQ_TEST_UNSET", "fallback"))

	t.Setenv("RULEIQ_TEST_STR", "value")
	assert.Equal(t, "value", GetEnvStr("RULEIQ_TEST_STR", "fallback"))

	t.Setenv("RULEIQ_TEST_STR", "")
	assert.Equal(t, "fallback", GetEnvStr("RULEIQ_TEST_STR", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, 42, GetEnvInt("RULEIQ_TEST_UNSET", 42))

	t.Setenv("RULEIQ_TEST_INT", "7")
	assert.Equal(t, 7, GetEnvInt("RULEIQ_TEST_INT", 42))

	t.Setenv("RULEIQ_TEST_INT", "not-a-number")
	assert.Equal(t, 42, GetEnvInt("RULEIQ_TEST_INT", 42))
}

func TestGetEnvInt64(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, int64(1048576), GetEnvInt64("RULEIQ_TEST_UNSET", 1048576))

	t.Setenv("RULEIQ_TEST_INT64", "9223372036854775807")
	assert.Equal(t, int64(9223372036854775807), GetEnvInt64("RULEIQ_TEST_INT64", 0))
}

func TestGetEnvFloat(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.InDelta(t, 0.3, GetEnvFloat("RULEIQ_TEST_UNSET", 0.3), 1e-9)

	t.Setenv("RULEIQ_TEST_FLOAT", "0.75")
	assert.InDelta(t, 0.75, GetEnvFloat("RULEIQ_TEST_FLOAT", 0.3), 1e-9)

	t.Setenv("RULEIQ_TEST_FLOAT", "abc")
	assert.InDelta(t, 0.3, GetEnvFloat("RULEIQ_TEST_FLOAT", 0.3), 1e-9)
}

func TestGetEnvBool(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.False(t, GetEnvBool("RULEIQ_TEST_UNSET", false))
	assert.True(t, GetEnvBool("RULEIQ_TEST_UNSET", true))

	for _, truthy := range []string{"true", "TRUE", "1", "yes", " Yes "} {
		t.Setenv("RULEIQ_TEST_BOOL", truthy)
		assert.True(t, GetEnvBool("RULEIQ_TEST_BOOL", false), "value %q", truthy)
	}

	for _, falsy := range []string{"false", "0", "no", "No"} {
		t.Setenv("RULEIQ_TEST_BOOL", falsy)
		assert.False(t, GetEnvBool("RULEIQ_TEST_BOOL", true), "value %q", falsy)
	}

	t.Setenv("RULEIQ_TEST_BOOL", "maybe")
	assert.True(t, GetEnvBool("RULEIQ_TEST_BOOL", true))
}

func TestGetEnvDuration(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, 30*time.Second, GetEnvDuration("RULEIQ_TEST_UNSET", 30*time.Second))

	t.Setenv("RULEIQ_TEST_DURATION", "5m")
	assert.Equal(t, 5*time.Minute, GetEnvDuration("RULEIQ_TEST_DURATION", time.Second))

	t.Setenv("RULEIQ_TEST_DURATION", "soon")
	assert.Equal(t, time.Second, GetEnvDuration("RULEIQ_TEST_DURATION", time.Second))
}

func TestGetEnvLogLevel(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, slog.LevelInfo, GetEnvLogLevel("RULEIQ_TEST_UNSET", slog.LevelInfo))

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	}

	for value, want := range cases {
		t.Setenv("RULEIQ_TEST_LOG_LEVEL", value)
		assert.Equal(t, want, GetEnvLogLevel("RULEIQ_TEST_LOG_LEVEL", slog.LevelInfo), "value %q", value)
	}

	t.Setenv("RULEIQ_TEST_LOG_LEVEL", "verbose")
	assert.Equal(t, slog.LevelWarn, GetEnvLogLevel("RULEIQ_TEST_LOG_LEVEL", slog.LevelWarn))
}

func TestParseCommaSeparatedList(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Empty(t, ParseCommaSeparatedList(""))
	assert.Equal(t, []string{"a"}, ParseCommaSeparatedList("a"))
	assert.Equal(t, []string{"a", "b", "c"}, ParseCommaSeparatedList(" a, b ,c "))
	assert.Equal(t, []string{"a", "b"}, ParseCommaSeparatedList("a,,b,"))
}
