// Package types holds the data model shared across bundlescope packages.
package types

// Format identifies the layout of an extracted diagnostic bundle.
type Format string

const (
	FormatSosreport     Format = "sosreport"
	FormatSupportconfig Format = "supportconfig"
)

// Valid reports whether f is a known bundle format.
func (f Format) Valid() bool {
	return f == FormatSosreport || f == FormatSupportconfig
}

// Severity is the weight of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityOK       Severity = "ok"
)

// Rank returns the sort rank of a severity; lower sorts first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityOK:
		return 2
	}
	return 9
}

// Evidence is one matched line supporting a finding.
type Evidence struct {
	File       string `json:"file"`
	LineNumber int    `json:"line_number"`
	LineText   string `json:"line_text"`
}

// Finding is one detected issue or status fact. Findings are immutable
// once created; the aggregator only sorts and counts them.
type Finding struct {
	Severity    Severity   `json:"severity"`
	Category    string     `json:"category"`
	Title       string     `json:"title"`
	Detail      string     `json:"detail,omitempty"`
	SectionLink string     `json:"section_link,omitempty"`
	RuleID      string     `json:"rule_id,omitempty"`
	Collection  string     `json:"collection,omitempty"`
	Evidence    []Evidence `json:"evidence,omitempty"`
}

// HealthSummary is the aggregated result of one bundle analysis.
// It is recomputed on every run and never cached.
type HealthSummary struct {
	Status        Severity  `json:"status"`
	CriticalCount int       `json:"critical_count"`
	WarningCount  int       `json:"warning_count"`
	Findings      []Finding `json:"findings"`
	Kernel        string    `json:"kernel"`
	Distro        string    `json:"distro"`
	Uptime        string    `json:"uptime"`
	LastBoot      string    `json:"last_boot,omitempty"`
	PrimaryIPs    []string  `json:"primary_ips,omitempty"`
}
