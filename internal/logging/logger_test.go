package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_WritesOneFilePerCategory(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry(dir)
	require.NoError(t, err)

	reg.Get(CategoryPerformance).Info("fetch ok", WorkerField(3))
	reg.Get(CategoryDetection).Warn("suspected block", WorkerField(1))
	reg.Get(CategoryErrors).Error("timeout", WorkerField(2))
	require.NoError(t, reg.Close())

	for _, cat := range []Category{CategoryPerformance, CategoryDetection, CategoryErrors} {
		path := filepath.Join(dir, string(cat)+".log")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}
}

func TestRegistry_LineFormatHasThreadToken(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry(dir)
	require.NoError(t, err)
	reg.Get(CategoryPerformance).Info("worker started", WorkerField(5))
	require.NoError(t, reg.Close())

	data, err := os.ReadFile(filepath.Join(dir, "performance.log"))
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, "Thread5")
	assert.Contains(t, line, "worker started")
	assert.Contains(t, line, " - ")
}

func TestRegistry_ReusesLoggerPerCategory(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry(dir)
	require.NoError(t, err)
	defer reg.Close()
	a := reg.Get(CategoryErrors)
	b := reg.Get(CategoryErrors)
	assert.Same(t, a, b)
}

func TestTimestampedDir(t *testing.T) {
	ts := time.Date(2026, 7, 29, 14, 30, 0, 0, time.UTC)
	got := TimestampedDir("/out", "adlist", ts)
	assert.Equal(t, filepath.Join("/out", "adlist_20260729_143000"), got)
}
