package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLogs(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var sb strings.Builder
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		sb.Write(data)
	}
	return sb.String()
}

func TestInitialize_RequiresHome(t *testing.T) {
	err := Initialize("", Config{DebugMode: true})
	assert.Error(t, err)
}

func TestInitialize_DisabledIsSilent(t *testing.T) {
	home := t.TempDir()
	t.Cleanup(CloseAll)

	require.NoError(t, Initialize(home, Config{DebugMode: false}))

	assert.False(t, IsDebugMode())
	assert.False(t, IsCategoryEnabled(CategoryAPI))

	API("should not be written")

	_, err := os.Stat(filepath.Join(home, "logs"))
	assert.True(t, os.IsNotExist(err), "logs dir must not be created in production mode")
}

func TestInitialize_DebugWritesCategories(t *testing.T) {
	home := t.TempDir()
	t.Cleanup(CloseAll)

	require.NoError(t, Initialize(home, Config{DebugMode: true, Level: "debug", JSONFormat: true}))

	Session("logged in")
	APIDebug("exchange complete")
	StoreDebug("key written")
	Sync()

	out := readLogs(t, LogsDir())
	assert.Contains(t, out, "logged in")
	assert.Contains(t, out, "exchange complete")
	assert.Contains(t, out, `"logger":"store"`)
}

func TestCategoryFilter(t *testing.T) {
	home := t.TempDir()
	t.Cleanup(CloseAll)

	require.NoError(t, Initialize(home, Config{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"api": false},
	}))

	assert.False(t, IsCategoryEnabled(CategoryAPI))
	assert.True(t, IsCategoryEnabled(CategorySession), "unlisted categories default to enabled")

	API("hidden api entry")
	Session("visible session entry")
	Sync()

	out := readLogs(t, LogsDir())
	assert.NotContains(t, out, "hidden api entry")
	assert.Contains(t, out, "visible session entry")
}

func TestLevelFiltering(t *testing.T) {
	home := t.TempDir()
	t.Cleanup(CloseAll)

	require.NoError(t, Initialize(home, Config{DebugMode: true, Level: "warn"}))

	SessionDebug("debug entry")
	Get(CategorySession).Warn("warn entry")
	Sync()

	out := readLogs(t, LogsDir())
	assert.NotContains(t, out, "debug entry")
	assert.Contains(t, out, "warn entry")
}

func TestGet_CachesPerCategory(t *testing.T) {
	home := t.TempDir()
	t.Cleanup(CloseAll)
	require.NoError(t, Initialize(home, Config{DebugMode: true}))

	assert.Same(t, Get(CategoryUI), Get(CategoryUI))
}

func TestTimer(t *testing.T) {
	timer := StartTimer(CategoryAPI, "noop")
	assert.GreaterOrEqual(t, int64(timer.Stop()), int64(0))
}

func TestAudit_WritesJSONLines(t *testing.T) {
	home := t.TempDir()
	t.Cleanup(CloseAll)

	require.NoError(t, Initialize(home, Config{DebugMode: true}))
	require.NoError(t, InitAudit())

	AuditSession(AuditLogin, "ada@example.com")
	AuditExchangeDone("req-1", "conv-1", 502, 0, assert.AnError)
	CloseAudit()

	entries, err := os.ReadDir(LogsDir())
	require.NoError(t, err)

	var audit string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_audit.log") {
			data, err := os.ReadFile(filepath.Join(LogsDir(), e.Name()))
			require.NoError(t, err)
			audit = string(data)
		}
	}
	require.NotEmpty(t, audit, "audit log file must exist")

	lines := strings.Split(strings.TrimSpace(audit), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"event":"login"`)
	assert.Contains(t, lines[0], `"email":"ada@example.com"`)
	assert.Contains(t, lines[1], `"event":"exchange"`)
	assert.Contains(t, lines[1], `"status":502`)
	assert.Contains(t, lines[1], `"success":false`)
}

func TestAudit_DisabledIsNoop(t *testing.T) {
	home := t.TempDir()
	t.Cleanup(CloseAll)

	require.NoError(t, Initialize(home, Config{DebugMode: false}))
	require.NoError(t, InitAudit())
	AuditSession(AuditLogout, "ada@example.com")

	_, err := os.Stat(filepath.Join(home, "logs"))
	assert.True(t, os.IsNotExist(err))
}
