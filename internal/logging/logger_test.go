package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, workspace string, yamlBody string) {
	t.Helper()
	configDir := filepath.Join(workspace, ".tactical")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(yamlBody), 0644))
}

func resetGlobals() {
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	configMu.Lock()
	cfg = loggingConfig{}
	configMu.Unlock()
	workspace = ""
	logsDir = ""
}

func TestAllCategoriesLogWhenDebugEnabled(t *testing.T) {
	defer resetGlobals()
	tempDir := t.TempDir()
	writeTestConfig(t, tempDir, "logging:\n  debug_mode: true\n  level: debug\n")

	require.NoError(t, Initialize(tempDir))

	categories := []Category{
		CategoryBoot, CategoryStore, CategoryIngest, CategoryParse, CategoryEntities,
		CategorySearch, CategorySummarize, CategoryPromote, CategoryOrchestrate,
		CategoryLLM, CategoryQuery,
	}
	for _, cat := range categories {
		l := Get(cat)
		l.Info("test message for %s", cat)
	}
	CloseAll()

	entries, err := os.ReadDir(logsDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	found := map[string]bool{}
	for _, e := range entries {
		for _, cat := range categories {
			if strings.Contains(e.Name(), string(cat)) {
				found[string(cat)] = true
			}
		}
	}
	for _, cat := range categories {
		assert.True(t, found[string(cat)], "expected a log file for category %s", cat)
	}
}

func TestNoLogsWhenDebugDisabled(t *testing.T) {
	defer resetGlobals()
	tempDir := t.TempDir()
	writeTestConfig(t, tempDir, "logging:\n  debug_mode: false\n")

	require.NoError(t, Initialize(tempDir))

	l := Get(CategoryStore)
	l.Info("should not be written")

	_, err := os.Stat(logsDir)
	assert.True(t, os.IsNotExist(err))
}

func TestNoConfigFileDefaultsToDisabled(t *testing.T) {
	defer resetGlobals()
	tempDir := t.TempDir()

	require.NoError(t, Initialize(tempDir))
	assert.False(t, IsDebugMode())
}

func TestCategoryDisabledIndividually(t *testing.T) {
	defer resetGlobals()
	tempDir := t.TempDir()
	writeTestConfig(t, tempDir, "logging:\n  debug_mode: true\n  categories:\n    store: false\n    ingest: true\n")

	require.NoError(t, Initialize(tempDir))

	Get(CategoryStore).Info("should be suppressed")
	Get(CategoryIngest).Info("should be written")
	CloseAll()

	entries, err := os.ReadDir(logsDir)
	require.NoError(t, err)

	var sawStore, sawIngest bool
	for _, e := range entries {
		if strings.Contains(e.Name(), "store") {
			sawStore = true
		}
		if strings.Contains(e.Name(), "ingest") {
			sawIngest = true
		}
	}
	assert.False(t, sawStore)
	assert.True(t, sawIngest)
}

func TestTimerLogsDuration(t *testing.T) {
	defer resetGlobals()
	tempDir := t.TempDir()
	writeTestConfig(t, tempDir, "logging:\n  debug_mode: true\n  level: debug\n")
	require.NoError(t, Initialize(tempDir))

	timer := StartTimer(CategorySummarize, "test-op")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.Stop()
	assert.Greater(t, elapsed, time.Duration(0))
	CloseAll()

	matches, err := filepath.Glob(filepath.Join(logsDir, "*_"+string(CategorySummarize)+".log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] test-op completed in ")
}

func TestJSONFormatWritesJSONEntries(t *testing.T) {
	defer resetGlobals()
	tempDir := t.TempDir()
	writeTestConfig(t, tempDir, "logging:\n  debug_mode: true\n  json_format: true\n")
	require.NoError(t, Initialize(tempDir))

	Get(CategoryQuery).Info("hello %s", "world")
	CloseAll()

	entries, err := os.ReadDir(logsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	matches, err := filepath.Glob(filepath.Join(logsDir, "*_"+string(CategoryQuery)+".log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello world"`)
}
