package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setCrashDir points crash reports at a per-test directory and restores
// the previous target afterwards.
func setCrashDir(t *testing.T, dir string) {
	t.Helper()
	old := crashDir
	t.Cleanup(func() { crashDir = old })
	InstallCrashHandler(dir)
}

func TestInstallCrashHandler_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	setCrashDir(t, dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteCrashFile(t *testing.T) {
	dir := t.TempDir()
	setCrashDir(t, dir)

	path := WriteCrashFile("simulated panic", GetStackTrace())
	require.NotEmpty(t, path)
	assert.Equal(t, dir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)

	assert.Contains(t, report, "=== FOOTPRINT CRASH REPORT ===")
	assert.Contains(t, report, GetFullVersion())
	assert.Contains(t, report, "=== PANIC VALUE ===")
	assert.Contains(t, report, "simulated panic")
	assert.Contains(t, report, "=== STACK TRACE ===")
	assert.Contains(t, report, "TestWriteCrashFile")
	assert.Contains(t, report, "=== ALL GOROUTINES ===")
	assert.Contains(t, report, "=== END CRASH REPORT ===")
}

func TestGetStackTrace_NamesCaller(t *testing.T) {
	stack := GetStackTrace()
	assert.Contains(t, stack, "goroutine")
	assert.Contains(t, stack, "TestGetStackTrace_NamesCaller")
}

func TestGetAllGoroutineStacks(t *testing.T) {
	stacks := GetAllGoroutineStacks()
	assert.Contains(t, stacks, "goroutine")
	assert.Contains(t, stacks, "TestGetAllGoroutineStacks")
}
