// Package sections splits supportconfig-style text files into typed,
// delimited sections and provides read-only queries over the result.
//
// Section markers look like:
//
//	#==[ Command ]========================================#
//
// The bracketed text is the section header; its first token is the
// section type (Command, File, Configuration, Verification, Note, ...).
package sections

import (
	"regexp"
	"strings"
)

// Section is one delimited block of a supportconfig-style file.
type Section struct {
	Type   string
	Header string
	Body   string
}

// markerPattern matches section marker lines. At least five trailing '='
// are required before the closing '#'.
var markerPattern = regexp.MustCompile(`^#==\[\s*(.*?)\s*\]={5,}#\s*$`)

// Extract splits content into its marked sections in a single pass.
// Content before the first marker is dropped; content with no markers
// yields no sections. A marker with empty brackets gets type "Unknown".
func Extract(content string) []Section {
	if content == "" {
		return nil
	}

	var result []Section
	var current *Section
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		result = append(result, *current)
	}

	for _, line := range strings.Split(content, "\n") {
		m := markerPattern.FindStringSubmatch(line)
		if m != nil {
			flush()
			header := m[1]
			sectionType := "Unknown"
			if fields := strings.Fields(header); len(fields) > 0 {
				sectionType = fields[0]
			}
			current = &Section{Type: sectionType, Header: header}
			body = body[:0]
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()

	return result
}

// FindByType returns all sections of the given type, in order.
func FindByType(secs []Section, sectionType string) []Section {
	var matched []Section
	for _, s := range secs {
		if s.Type == sectionType {
			matched = append(matched, s)
		}
	}
	return matched
}

// CommandOutput returns the output of the first Command section whose
// command line matches. The command line is the first body line, prefixed
// with '#'; it matches when it contains command as a substring or ends
// with it. The returned bool reports whether a match was found.
func CommandOutput(secs []Section, command string) (string, bool) {
	for _, s := range secs {
		if s.Type != "Command" {
			continue
		}
		lines := strings.Split(s.Body, "\n")
		if len(lines) == 0 || !strings.HasPrefix(lines[0], "#") {
			continue
		}
		cmdLine := strings.TrimSpace(strings.Trim(lines[0], "# "))
		if strings.Contains(cmdLine, command) || strings.HasSuffix(cmdLine, command) {
			return strings.TrimSpace(strings.Join(lines[1:], "\n")), true
		}
	}
	return "", false
}

// FileListing returns the body of the first File section whose header
// contains path. Used for config files captured verbatim into section
// files (e.g. /etc/os-release inside etc.txt).
func FileListing(secs []Section, path string) (string, bool) {
	for _, s := range secs {
		if s.Type == "File" && strings.Contains(s.Header, path) {
			return s.Body, true
		}
	}
	return "", false
}

// ParseTable parses table-like command output into rows of columns.
// Blank lines and '#'-prefixed lines are skipped. An empty delimiter
// splits on any whitespace.
func ParseTable(content, delimiter string) [][]string {
	if content == "" {
		return nil
	}

	var table [][]string
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var columns []string
		if delimiter != "" {
			for _, col := range strings.Split(line, delimiter) {
				columns = append(columns, strings.TrimSpace(col))
			}
		} else {
			columns = strings.Fields(line)
		}
		table = append(table, columns)
	}
	return table
}

// KeyValues extracts "key<sep>value" pairs from content, skipping blank
// and '#'-prefixed lines. Later duplicates overwrite earlier ones.
func KeyValues(content, separator string) map[string]string {
	pairs := make(map[string]string)
	if content == "" {
		return pairs
	}

	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, separator)
		if !found {
			continue
		}
		pairs[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return pairs
}
