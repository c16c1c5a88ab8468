package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, filename, content string) []byte {
	t.Helper()
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))
	return []byte(content)
}

func TestCache(t *testing.T) {
	tmpDir := t.TempDir()
	cache, err := New(filepath.Join(tmpDir, "cache"))
	require.NoError(t, err)

	t.Run("SaveAndLoad", func(t *testing.T) {
		filename := filepath.Join(tmpDir, "a.py")
		content := writeTestFile(t, filename, "x = 1\n")

		require.NoError(t, cache.Set(filename, content, "x = 1\n", []string{"remove_redundant_code"}))

		entry, found := cache.Get(filename)
		require.True(t, found)
		assert.Equal(t, "x = 1\n", entry.FinalCode)
		assert.Equal(t, []string{"remove_redundant_code"}, entry.Applied)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, found := cache.Get("nonexistent.py")
		assert.False(t, found)
	})

	t.Run("FileModified", func(t *testing.T) {
		filename := filepath.Join(tmpDir, "modified.py")
		content := writeTestFile(t, filename, "x = 1\n")
		require.NoError(t, cache.Set(filename, content, "x = 1\n", nil))

		// content hash, not mtime, decides
		writeTestFile(t, filename, "x = 2\n")
		_, found := cache.Get(filename)
		assert.False(t, found)
	})

	t.Run("Expired", func(t *testing.T) {
		filename := filepath.Join(tmpDir, "old.py")
		content := writeTestFile(t, filename, "y = 1\n")
		require.NoError(t, cache.Set(filename, content, "y = 1\n", nil))

		cache.SetMaxAge(time.Nanosecond)
		time.Sleep(time.Millisecond)
		_, found := cache.Get(filename)
		assert.False(t, found)
		cache.SetMaxAge(0)
	})

	t.Run("WrittenDuringOptimization", func(t *testing.T) {
		filename := filepath.Join(tmpDir, "edited.py")
		read := writeTestFile(t, filename, "x = 1\n")

		// the file changes after it was read but before the result is stored
		writeTestFile(t, filename, "x = 2\n")
		require.NoError(t, cache.Set(filename, read, "x = 1\n", nil))

		_, found := cache.Get(filename)
		assert.False(t, found)
	})
}

func TestCachePersistsAcrossOpens(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "cache")
	filename := filepath.Join(tmpDir, "a.py")
	content := writeTestFile(t, filename, "total = 0\n")

	c, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, c.Set(filename, content, "total = sum(numbers)", []string{"replace_manual_sum"}))

	reopened, err := New(dir)
	require.NoError(t, err)
	entry, found := reopened.Get(filename)
	require.True(t, found)
	assert.Equal(t, "total = sum(numbers)", entry.FinalCode)
}

func TestDependencyChangeInvalidatesEverything(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	cfg := filepath.Join(tmpDir, ".refine.yaml")
	writeTestFile(t, cfg, "session:\n  max_steps: 5\n")
	filename := filepath.Join(tmpDir, "a.py")
	content := writeTestFile(t, filename, "x = 1\n")

	c, err := New(filepath.Join(tmpDir, "cache"), cfg)
	require.NoError(t, err)
	require.NoError(t, c.Set(filename, content, "x = 1\n", nil))
	_, found := c.Get(filename)
	require.True(t, found)

	writeTestFile(t, cfg, "session:\n  max_steps: 7\n")
	_, found = c.Get(filename)
	assert.False(t, found)
	assert.Zero(t, c.Len())

	// the new dependency state is the baseline again
	require.NoError(t, c.Set(filename, content, "x = 1\n", nil))
	_, found = c.Get(filename)
	assert.True(t, found)

	// a reopen after the change starts empty
	writeTestFile(t, cfg, "session:\n  max_steps: 9\n")
	reopened, err := New(filepath.Join(tmpDir, "cache"), cfg)
	require.NoError(t, err)
	assert.Zero(t, reopened.Len())
}

func TestInvalidateAll(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	filename := filepath.Join(tmpDir, "a.py")
	content := writeTestFile(t, filename, "x = 1\n")

	c, err := New(filepath.Join(tmpDir, "cache"))
	require.NoError(t, err)
	require.NoError(t, c.Set(filename, content, "x = 1\n", nil))
	require.NoError(t, c.InvalidateAll())
	assert.Zero(t, c.Len())
}

func TestCacheConcurrency(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	c, err := New(filepath.Join(tmpDir, "cache"))
	require.NoError(t, err)

	filename := filepath.Join(tmpDir, "a.py")
	content := writeTestFile(t, filename, "x = 1\n")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Set(filename, content, "x = 1\n", nil))
		}()
		go func() {
			defer wg.Done()
			_, _ = c.Get(filename)
		}()
	}
	wg.Wait()

	_, found := c.Get(filename)
	assert.True(t, found)
}
