// Package bundle provides read-only access to an extracted diagnostic
// bundle (sosreport or supportconfig layout). Format detection happens
// upstream; a Bundle is constructed with the format tag it was given.
//
// Missing files are routine, not errors: most bundle files are optional
// depending on which subsystems the collector found, so every accessor
// degrades to an empty result.
package bundle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/bundlescope/bundlescope/pkg/errors"
	"github.com/bundlescope/bundlescope/pkg/logging"
	"github.com/bundlescope/bundlescope/pkg/sections"
	"github.com/bundlescope/bundlescope/pkg/tailread"
	"github.com/bundlescope/bundlescope/pkg/types"
)

// DefaultMaxFileBytes caps whole-file reads. Larger files are truncated
// with a marker note rather than loaded fully.
const DefaultMaxFileBytes = 50 * 1024 * 1024

// Bundle is a handle on one extracted bundle directory.
type Bundle struct {
	Root   string
	Format types.Format

	maxFileBytes int64
	logger       zerolog.Logger
}

// New opens a bundle rooted at root. The root being unreadable is the
// one fatal condition of an analysis run.
func New(root string, format types.Format) (*Bundle, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrBundleRoot, "bundle root %s not readable", root)
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrBundleRoot, "bundle root %s is not a directory", root)
	}
	if !format.Valid() {
		return nil, errors.Newf(errors.ErrBundleFormat, "unknown bundle format %q", format)
	}

	return &Bundle{
		Root:         root,
		Format:       format,
		maxFileBytes: DefaultMaxFileBytes,
		logger:       logging.GetLogger("bundle"),
	}, nil
}

// ReadFile reads a bundle file relative to the root, capped at
// maxFileBytes. Oversized files are truncated and a marker note is
// appended. The bool reports whether the file existed and was readable.
func (b *Bundle) ReadFile(rel string) (string, bool) {
	path := filepath.Join(b.Root, rel)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}

	f, err := os.Open(path)
	if err != nil {
		b.logger.Debug().Err(err).Str("file", rel).Msg("File not readable")
		return "", false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, b.maxFileBytes))
	if err != nil {
		b.logger.Debug().Err(err).Str("file", rel).Msg("File read failed")
		return "", false
	}

	content := string(data)
	if info.Size() > b.maxFileBytes {
		content += fmt.Sprintf("\n\n[TRUNCATED: %s is %.1f MB, limit is %d MB]",
			rel, float64(info.Size())/1024/1024, b.maxFileBytes/1024/1024)
	}
	return content, true
}

// firstFile reads the first existing candidate file.
func (b *Bundle) firstFile(candidates ...string) (string, bool) {
	for _, rel := range candidates {
		if content, ok := b.ReadFile(rel); ok {
			return content, true
		}
	}
	return "", false
}

// Sections extracts the typed sections of a supportconfig-style file.
func (b *Bundle) Sections(rel string) []sections.Section {
	content, ok := b.ReadFile(rel)
	if !ok {
		return nil
	}
	return sections.Extract(content)
}

// CommandOutput finds the output of a command captured in a
// supportconfig-style section file.
func (b *Bundle) CommandOutput(rel, command string) (string, bool) {
	return sections.CommandOutput(b.Sections(rel), command)
}

// FileListing finds a config file captured verbatim in a
// supportconfig-style section file.
func (b *Bundle) FileListing(rel, path string) (string, bool) {
	return sections.FileListing(b.Sections(rel), path)
}

// TailLog returns the last maxLines lines of a log below the root,
// falling back through rotated siblings when the primary log is missing
// or empty.
func (b *Bundle) TailLog(rel string, maxLines int) string {
	dir, base := filepath.Split(filepath.Join(b.Root, rel))
	return tailread.TailWithFallback(filepath.Clean(dir), base, maxLines)
}

// LogHistory tails each rotated sibling of a log independently with a
// smaller budget, newest first.
func (b *Bundle) LogHistory(rel string, maxLines int) []tailread.RotatedTail {
	dir, base := filepath.Split(filepath.Join(b.Root, rel))
	return tailread.TailHistory(filepath.Clean(dir), base, maxLines)
}
