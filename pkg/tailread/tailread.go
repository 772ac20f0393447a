// Package tailread reads the last N lines of potentially huge log files
// without materializing them in memory.
//
// Plain files below 1 MiB are read whole. Larger files are scanned
// backwards in fixed-size chunks; memory use stays proportional to the
// requested line count plus one chunk, independent of file size.
// Gzip-compressed files are decompressed through a streaming reader into
// a bounded ring buffer.
package tailread

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bundlescope/bundlescope/pkg/logging"
)

const (
	// chunkSize is the read unit for the backwards scan.
	chunkSize = 8 * 1024

	// wholeReadLimit is the size below which a plain file is read whole.
	wholeReadLimit = 1024 * 1024

	// maxLineBytes bounds a single scanned line in the gzip path.
	maxLineBytes = 1024 * 1024
)

// Tail returns the last maxLines lines of the file at path, joined with
// newlines. It never returns an error: unreadable files yield a short
// explanatory marker string so one bad log cannot abort an analysis.
func Tail(path string, maxLines int) string {
	content, err := tail(path, maxLines)
	if err != nil {
		logger := logging.GetLogger("tailread")
		logger.Debug().Err(err).Str("path", path).Msg("tail failed")
		return fmt.Sprintf("[unreadable: %v]", err)
	}
	return content
}

// TailFile is Tail for callers that need to distinguish failure from
// legitimately empty content.
func TailFile(path string, maxLines int) (string, bool) {
	content, err := tail(path, maxLines)
	if err != nil {
		return "", false
	}
	return content, true
}

func tail(path string, maxLines int) (string, error) {
	if maxLines <= 0 {
		return "", nil
	}
	if strings.HasSuffix(path, ".gz") {
		return tailGzip(path, maxLines)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() < wholeReadLimit {
		return tailSmall(path, maxLines)
	}
	return tailBackwards(path, info.Size(), maxLines)
}

// tailSmall reads the whole file and keeps the last maxLines lines.
func tailSmall(path string, maxLines int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n"), nil
}

// tailBackwards reads fixed-size chunks from the end of the file,
// completing lines across chunk boundaries, until maxLines lines are
// collected or the start of the file is reached.
func tailBackwards(path string, size int64, maxLines int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// collected holds lines newest-first; reversed before joining.
	collected := make([]string, 0, maxLines)
	var carry []byte
	offset := size
	first := true

	for offset > 0 && len(collected) < maxLines {
		readSize := int64(chunkSize)
		if offset < readSize {
			readSize = offset
		}
		offset -= readSize

		chunk := make([]byte, readSize)
		if _, err := f.ReadAt(chunk, offset); err != nil && err != io.EOF {
			return "", err
		}

		data := append(chunk, carry...)
		if first {
			// A trailing newline does not introduce a final empty line.
			if len(data) > 0 && data[len(data)-1] == '\n' {
				data = data[:len(data)-1]
			}
			first = false
		}

		segments := strings.Split(string(data), "\n")
		// segments[0] may still be the tail of an earlier line; every
		// later segment is complete.
		for i := len(segments) - 1; i >= 1 && len(collected) < maxLines; i-- {
			collected = append(collected, segments[i])
		}
		if len(collected) >= maxLines {
			carry = nil
			break
		}
		carry = []byte(segments[0])
	}

	if offset == 0 && len(carry) > 0 && len(collected) < maxLines {
		collected = append(collected, string(carry))
	}

	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return strings.Join(collected, "\n"), nil
}

// tailGzip streams a gzip file line-by-line into a bounded ring buffer.
// The file is never decompressed into memory as a whole.
func tailGzip(path string, maxLines int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	ring := newLineRing(maxLines)
	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		ring.push(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.Join(ring.lines(), "\n"), nil
}

// lineRing keeps the most recent N pushed lines.
type lineRing struct {
	buf  []string
	next int
	full bool
}

func newLineRing(n int) *lineRing {
	return &lineRing{buf: make([]string, n)}
}

func (r *lineRing) push(line string) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.next] = line
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *lineRing) lines() []string {
	if !r.full {
		return r.buf[:r.next]
	}
	out := make([]string, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// RotatedTail is the tail of one historical rotation of a log file.
type RotatedTail struct {
	Name    string // file name, e.g. messages-20250817.gz
	Date    string // YYYY-MM-DD parsed from an 8-digit token, or ""
	Content string
}

var (
	dateToken = regexp.MustCompile(`(\d{8})`)
)

// Rotations lists sibling rotations of base inside dir, newest first by
// name. A rotation matches base[-.]<suffix> with an optional .gz.
func Rotations(dir, base string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == base || !strings.HasPrefix(name, base) {
			continue
		}
		rest := name[len(base):]
		if len(rest) < 2 || (rest[0] != '-' && rest[0] != '.') {
			continue
		}
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}

// TailWithFallback tails dir/base, falling back through its rotations
// newest-first until one yields non-empty content.
func TailWithFallback(dir, base string, maxLines int) string {
	if content, ok := TailFile(filepath.Join(dir, base), maxLines); ok && content != "" {
		return content
	}
	for _, name := range Rotations(dir, base) {
		if content, ok := TailFile(filepath.Join(dir, name), maxLines); ok && content != "" {
			return content
		}
	}
	return ""
}

// TailHistory tails every rotation of dir/base independently, newest
// first, tagging each with a date when the filename encodes one.
func TailHistory(dir, base string, maxLines int) []RotatedTail {
	var history []RotatedTail
	for _, name := range Rotations(dir, base) {
		content, ok := TailFile(filepath.Join(dir, name), maxLines)
		if !ok || content == "" {
			continue
		}
		history = append(history, RotatedTail{
			Name:    name,
			Date:    parseDateToken(name),
			Content: content,
		})
	}
	return history
}

func parseDateToken(name string) string {
	m := dateToken.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	d := m[1]
	return d[:4] + "-" + d[4:6] + "-" + d[6:]
}
