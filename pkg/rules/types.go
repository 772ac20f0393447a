// Package rules loads declarative known-issue rule collections and
// evaluates them against an extracted bundle's files.
//
// A collection is one JSON (or YAML) document:
//
//	{
//	  "collection": "kernel-issues",
//	  "rules": [
//	    {
//	      "id": "oom-killer",
//	      "title": "OOM killer active ({match_count} events)",
//	      "detail": "...",
//	      "category": "Kernel",
//	      "severity": "critical",
//	      "applies_to": "both",
//	      "file_paths": {
//	        "sosreport": ["var/log/messages"],
//	        "supportconfig": ["messages.txt"]
//	      },
//	      "pattern": "Out of memory: Killed process",
//	      "pattern_flags": ["IGNORECASE"],
//	      "min_matches": 1
//	    }
//	  ]
//	}
//
// Adding a rule requires no code change, only a new document in the
// rules directory.
package rules

import (
	"encoding/json"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/bundlescope/bundlescope/pkg/types"
)

// AppliesTo values accepted in rule documents.
const (
	AppliesBoth          = "both"
	AppliesSosreport     = string(types.FormatSosreport)
	AppliesSupportconfig = string(types.FormatSupportconfig)
)

// Rule is one declarative known-issue rule as it appears in a document.
type Rule struct {
	ID           string      `json:"id" yaml:"id"`
	Title        string      `json:"title" yaml:"title"`
	Detail       string      `json:"detail" yaml:"detail"`
	Category     string      `json:"category" yaml:"category"`
	Severity     string      `json:"severity" yaml:"severity"`
	SectionLink  string      `json:"section_link" yaml:"section_link"`
	AppliesTo    string      `json:"applies_to" yaml:"applies_to"`
	Enabled      *bool       `json:"enabled" yaml:"enabled"`
	FilePaths    FileTargets `json:"file_paths" yaml:"file_paths"`
	Pattern      string      `json:"pattern" yaml:"pattern"`
	PatternFlags []string    `json:"pattern_flags" yaml:"pattern_flags"`
	MinMatches   int         `json:"min_matches" yaml:"min_matches"`
}

// IsEnabled reports whether the rule is active; rules are enabled unless
// explicitly disabled.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// AppliesToFormat reports whether the rule targets the given format.
func (r Rule) AppliesToFormat(format types.Format) bool {
	switch r.AppliesTo {
	case "", AppliesBoth:
		return true
	default:
		return r.AppliesTo == string(format)
	}
}

// PathsFor returns the rule's relative target paths for a format.
func (r Rule) PathsFor(format types.Format) []string {
	switch format {
	case types.FormatSosreport:
		return r.FilePaths.Sosreport
	case types.FormatSupportconfig:
		return r.FilePaths.Supportconfig
	}
	return nil
}

// FileTargets maps bundle formats to relative file paths. Documents may
// use either the map form shown in the package comment or a bare list,
// which then applies to both formats.
type FileTargets struct {
	Sosreport     []string
	Supportconfig []string
}

type fileTargetsMap struct {
	Sosreport     []string `json:"sosreport" yaml:"sosreport"`
	Supportconfig []string `json:"supportconfig" yaml:"supportconfig"`
}

// UnmarshalJSON accepts both the map and list document forms.
func (t *FileTargets) UnmarshalJSON(data []byte) error {
	return t.unmarshal(func(v interface{}) error {
		return json.Unmarshal(data, v)
	})
}

// UnmarshalYAML accepts both the map and list document forms.
func (t *FileTargets) UnmarshalYAML(value *yaml.Node) error {
	return t.unmarshal(value.Decode)
}

func (t *FileTargets) unmarshal(decode func(interface{}) error) error {
	var list []string
	if err := decode(&list); err == nil {
		t.Sosreport = list
		t.Supportconfig = list
		return nil
	}
	var m fileTargetsMap
	if err := decode(&m); err != nil {
		return fmt.Errorf("file_paths must be a list or a per-format map: %w", err)
	}
	t.Sosreport = m.Sosreport
	t.Supportconfig = m.Supportconfig
	return nil
}

// CompiledRule is a Rule whose pattern has been compiled once at load
// time so repeated evaluation stays cheap.
type CompiledRule struct {
	Rule
	Pattern *regexp.Regexp
}

// Collection is a named, immutable group of compiled rules.
type Collection struct {
	Name  string
	Rules []CompiledRule
}

// flagMap translates document flag names into RE2 inline flags. Unknown
// names are ignored, matching the tolerant treatment of the rest of the
// rule format.
var flagMap = map[string]string{
	"IGNORECASE": "i",
	"MULTILINE":  "m",
	"DOTALL":     "s",
}

// Compile compiles the rule's pattern with its flags applied.
func (r Rule) Compile() (*regexp.Regexp, error) {
	if r.Pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	inline := ""
	for _, name := range r.PatternFlags {
		inline += flagMap[name]
	}
	pattern := r.Pattern
	if inline != "" {
		pattern = "(?" + inline + ")" + pattern
	}
	return regexp.Compile(pattern)
}
