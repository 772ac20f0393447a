// Package testutil builds synthetic diagnostic bundles for tests.
package testutil

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// BundleBuilder writes a synthetic bundle tree under a test temp dir.
type BundleBuilder struct {
	t    *testing.T
	Root string
}

// NewBundle creates an empty bundle rooted in t.TempDir().
func NewBundle(t *testing.T) *BundleBuilder {
	t.Helper()
	return &BundleBuilder{t: t, Root: t.TempDir()}
}

// WriteFile writes one file below the bundle root, creating parents.
func (b *BundleBuilder) WriteFile(rel, content string) *BundleBuilder {
	b.t.Helper()
	path := filepath.Join(b.Root, rel)
	require.NoError(b.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(b.t, os.WriteFile(path, []byte(content), 0o644))
	return b
}

// WriteGzip writes one gzip-compressed file below the bundle root.
func (b *BundleBuilder) WriteGzip(rel, content string) *BundleBuilder {
	b.t.Helper()
	path := filepath.Join(b.Root, rel)
	require.NoError(b.t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := os.Create(path)
	require.NoError(b.t, err)
	defer f.Close()

	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(b.t, err)
	require.NoError(b.t, zw.Close())
	return b
}

// RulesDir writes rule collection documents (filename → content) into a
// fresh temp dir and returns its path.
func RulesDir(t *testing.T, docs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// SectionFile builds supportconfig-style content from (header, body)
// pairs, with the standard marker framing.
func SectionFile(entries ...[2]string) string {
	content := ""
	for _, e := range entries {
		content += "#==[ " + e[0] + " ]=================#\n" + e[1] + "\n"
	}
	return content
}
