package tailread_test

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundlescope/bundlescope/pkg/tailread"
	"github.com/bundlescope/bundlescope/pkg/testutil"
)

// naiveTail is the reference implementation: read everything, slice.
func naiveTail(t *testing.T, path string, maxLines int) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}

func writeLines(t *testing.T, path string, n int, width int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	pad := strings.Repeat("x", width)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(f, "line %06d %s\n", i, pad)
	}
}

func TestTailSmallFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messages")
	writeLines(t, path, 10, 0)

	t.Run("fewer_lines_than_requested_returns_all", func(t *testing.T) {
		got, ok := tailread.TailFile(path, 100)
		require.True(t, ok)
		assert.Equal(t, naiveTail(t, path, 100), got)
		assert.Len(t, strings.Split(got, "\n"), 10)
	})

	t.Run("exactly_last_n", func(t *testing.T) {
		got, ok := tailread.TailFile(path, 3)
		require.True(t, ok)
		assert.Equal(t, "line 000008 \nline 000009 \nline 000010 ", got)
	})
}

func TestTailLargeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.log")
	// ~3 MiB: forces the backwards chunked path.
	writeLines(t, path, 30000, 90)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(1024*1024))

	for _, n := range []int{1, 7, 100, 1000} {
		t.Run(fmt.Sprintf("last_%d_matches_reference", n), func(t *testing.T) {
			got, ok := tailread.TailFile(path, n)
			require.True(t, ok)
			assert.Equal(t, naiveTail(t, path, n), got)
		})
	}

	t.Run("no_trailing_newline", func(t *testing.T) {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		chopped := filepath.Join(dir, "chopped.log")
		require.NoError(t, os.WriteFile(chopped, raw[:len(raw)-1], 0o644))

		got, ok := tailread.TailFile(chopped, 5)
		require.True(t, ok)
		assert.Equal(t, naiveTail(t, chopped, 5), got)
	})

	t.Run("request_more_lines_than_file_has", func(t *testing.T) {
		small := filepath.Join(dir, "small-but-wide.log")
		// Over 1 MiB with only a handful of lines.
		require.NoError(t, os.WriteFile(small,
			[]byte(strings.Repeat("y", 2*1024*1024)+"\nalpha\nbeta\n"), 0o644))
		got, ok := tailread.TailFile(small, 10)
		require.True(t, ok)
		assert.Equal(t, naiveTail(t, small, 10), got)
	})
}

func TestTailLargeFileBoundedAllocations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.log")
	// ~8 MiB, written before measuring so its bytes never count.
	writeLines(t, path, 85000, 90)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(8*1024*1024))

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	got, ok := tailread.TailFile(path, 100)
	runtime.ReadMemStats(&after)

	require.True(t, ok)
	assert.Equal(t, naiveTail(t, path, 100), got)

	// The backwards scan touches a couple of chunks near the end of the
	// file; total allocations must stay far below the file size.
	allocated := after.TotalAlloc - before.TotalAlloc
	assert.Less(t, allocated, uint64(1024*1024),
		"tailing 100 lines of an %d-byte file allocated %d bytes", info.Size(), allocated)
}

func TestTailGzip(t *testing.T) {
	b := testutil.NewBundle(t)
	var sb strings.Builder
	for i := 1; i <= 500; i++ {
		fmt.Fprintf(&sb, "compressed line %d\n", i)
	}
	b.WriteGzip("var/log/messages-20250817.gz", sb.String())
	path := filepath.Join(b.Root, "var/log/messages-20250817.gz")

	got, ok := tailread.TailFile(path, 3)
	require.True(t, ok)
	assert.Equal(t, "compressed line 498\ncompressed line 499\ncompressed line 500", got)

	got, ok = tailread.TailFile(path, 1000)
	require.True(t, ok)
	assert.Len(t, strings.Split(got, "\n"), 500)
}

func TestTailErrors(t *testing.T) {
	t.Run("missing_file_never_errors_out", func(t *testing.T) {
		content := tailread.Tail(filepath.Join(t.TempDir(), "absent"), 10)
		assert.Contains(t, content, "[unreadable:")
	})

	t.Run("tailfile_reports_failure", func(t *testing.T) {
		_, ok := tailread.TailFile(filepath.Join(t.TempDir(), "absent"), 10)
		assert.False(t, ok)
	})

	t.Run("zero_line_budget", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "f")
		require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))
		got, ok := tailread.TailFile(path, 0)
		require.True(t, ok)
		assert.Empty(t, got)
	})
}

func TestRotations(t *testing.T) {
	b := testutil.NewBundle(t)
	b.WriteFile("var/log/messages", "current\n")
	b.WriteFile("var/log/messages-20250701", "older\n")
	b.WriteGzip("var/log/messages-20250815.gz", "newer rotated\n")
	b.WriteFile("var/log/messages.1", "numbered\n")
	b.WriteFile("var/log/messagesextra", "not a rotation\n")
	b.WriteFile("var/log/other.log", "unrelated\n")
	dir := filepath.Join(b.Root, "var/log")

	names := tailread.Rotations(dir, "messages")
	assert.Equal(t, []string{"messages.1", "messages-20250815.gz", "messages-20250701"}, names)
}

func TestTailWithFallback(t *testing.T) {
	t.Run("primary_preferred", func(t *testing.T) {
		b := testutil.NewBundle(t)
		b.WriteFile("var/log/messages", "primary content\n")
		b.WriteGzip("var/log/messages-20250815.gz", "rotated content\n")
		got := tailread.TailWithFallback(filepath.Join(b.Root, "var/log"), "messages", 10)
		assert.Equal(t, "primary content", got)
	})

	t.Run("falls_back_to_rotation_when_primary_missing", func(t *testing.T) {
		b := testutil.NewBundle(t)
		b.WriteGzip("var/log/messages-20250815.gz", "rotated content\n")
		got := tailread.TailWithFallback(filepath.Join(b.Root, "var/log"), "messages", 10)
		assert.Equal(t, "rotated content", got)
	})

	t.Run("empty_when_nothing_exists", func(t *testing.T) {
		assert.Empty(t, tailread.TailWithFallback(t.TempDir(), "messages", 10))
	})
}

func TestTailHistory(t *testing.T) {
	b := testutil.NewBundle(t)
	b.WriteFile("var/log/messages", "current\n")
	b.WriteGzip("var/log/messages-20250815.gz", "aug fifteen\n")
	b.WriteFile("var/log/messages-20250701", "july one\n")
	dir := filepath.Join(b.Root, "var/log")

	history := tailread.TailHistory(dir, "messages", 5)
	require.Len(t, history, 2)

	assert.Equal(t, "messages-20250815.gz", history[0].Name)
	assert.Equal(t, "2025-08-15", history[0].Date)
	assert.Equal(t, "aug fifteen", history[0].Content)

	assert.Equal(t, "messages-20250701", history[1].Name)
	assert.Equal(t, "2025-07-01", history[1].Date)
}
