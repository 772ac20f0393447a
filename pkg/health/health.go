// Package health merges structured threshold checks with rule-engine
// findings into a single prioritized health summary.
package health

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bundlescope/bundlescope/pkg/bundle"
	"github.com/bundlescope/bundlescope/pkg/logging"
	"github.com/bundlescope/bundlescope/pkg/rules"
	"github.com/bundlescope/bundlescope/pkg/types"
)

// Thresholds are the cutoffs for the structured checks.
type Thresholds struct {
	DiskCriticalPercent int
	DiskWarningPercent  int

	MemCriticalAvailablePercent float64
	MemWarningAvailablePercent  float64

	SwapHighPercent     float64
	SwapElevatedPercent float64

	UpdatesWarningTotal int
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DiskCriticalPercent:         95,
		DiskWarningPercent:          85,
		MemCriticalAvailablePercent: 5,
		MemWarningAvailablePercent:  15,
		SwapHighPercent:             80,
		SwapElevatedPercent:         50,
		UpdatesWarningTotal:         20,
	}
}

// Aggregator computes health summaries. It is immutable after
// construction and safe to share across concurrent analyses.
type Aggregator struct {
	thresholds Thresholds
	evaluator  *rules.Evaluator
	logger     zerolog.Logger
}

// NewAggregator creates an aggregator. evaluator may be nil, in which
// case only the structured checks run.
func NewAggregator(thresholds Thresholds, evaluator *rules.Evaluator) *Aggregator {
	return &Aggregator{
		thresholds: thresholds,
		evaluator:  evaluator,
		logger:     logging.GetLogger("health"),
	}
}

// Summarize runs the structured checks against the snapshot, evaluates
// the rule collections against the raw bundle, and merges everything
// into a ranked summary. Status is a pure function of the finding list.
func (a *Aggregator) Summarize(ctx context.Context, snap *bundle.Snapshot, bundleRoot string, format types.Format) types.HealthSummary {
	var findings []types.Finding

	findings = append(findings, a.checkFailedServices(snap)...)
	findings = append(findings, a.checkDisks(snap)...)
	findings = append(findings, a.checkMemory(snap)...)
	findings = append(findings, a.checkUpdates(snap)...)

	if a.evaluator != nil && bundleRoot != "" {
		findings = append(findings, a.evaluator.Evaluate(ctx, bundleRoot, format)...)
	} else {
		a.logger.Debug().Msg("Rule evaluation skipped: no bundle root")
	}

	criticalCount := 0
	warningCount := 0
	for _, f := range findings {
		switch f.Severity {
		case types.SeverityCritical:
			criticalCount++
		case types.SeverityWarning:
			warningCount++
		}
	}

	status := types.SeverityOK
	if criticalCount > 0 {
		status = types.SeverityCritical
	} else if warningCount > 0 {
		status = types.SeverityWarning
	}

	// Severity rank only; ties keep discovery order.
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Rank() < findings[j].Severity.Rank()
	})

	summary := types.HealthSummary{
		Status:        status,
		CriticalCount: criticalCount,
		WarningCount:  warningCount,
		Findings:      findings,
		Kernel:        orUnknown(snap.Kernel),
		Distro:        orUnknown(snap.Distro),
		Uptime:        orUnknown(snap.Uptime),
		LastBoot:      extractLastBoot(snap.Uptime, snap.BootList),
		PrimaryIPs:    extractPrimaryIPs(snap.IPAddr),
	}

	a.logger.Debug().
		Str("status", string(status)).
		Int("critical", criticalCount).
		Int("warnings", warningCount).
		Int("findings", len(findings)).
		Msg("Health summary computed")
	return summary
}

func (a *Aggregator) checkFailedServices(snap *bundle.Snapshot) []types.Finding {
	failed := snap.FailedServices
	if len(failed) == 0 {
		return nil
	}

	detail := strings.Join(failed[:min(len(failed), 8)], ", ")
	if len(failed) > 8 {
		detail += " …"
	}
	return []types.Finding{{
		Severity:    types.SeverityCritical,
		Category:    "Services",
		Title:       fmt.Sprintf("%d failed service%s", len(failed), plural(len(failed))),
		Detail:      detail,
		SectionLink: "system-config",
	}}
}

func (a *Aggregator) checkDisks(snap *bundle.Snapshot) []types.Finding {
	var findings []types.Finding
	for _, disk := range snap.Disks {
		var severity types.Severity
		switch {
		case disk.UsePercent >= a.thresholds.DiskCriticalPercent:
			severity = types.SeverityCritical
		case disk.UsePercent >= a.thresholds.DiskWarningPercent:
			severity = types.SeverityWarning
		default:
			continue
		}
		findings = append(findings, types.Finding{
			Severity:    severity,
			Category:    "Disk",
			Title:       fmt.Sprintf("Disk %s at %d%%", disk.Mount, disk.UsePercent),
			Detail:      fmt.Sprintf("%s / %s", humanKB(disk.UsedKB), humanKB(disk.SizeKB)),
			SectionLink: "filesystem",
		})
	}
	return findings
}

func (a *Aggregator) checkMemory(snap *bundle.Snapshot) []types.Finding {
	var findings []types.Finding

	if mem := snap.Memory; mem != nil {
		availPct := mem.AvailablePercent
		detail := fmt.Sprintf("%s of %s available", humanKB(mem.AvailableKB), humanKB(mem.TotalKB))
		if availPct <= a.thresholds.MemCriticalAvailablePercent {
			findings = append(findings, types.Finding{
				Severity:    types.SeverityCritical,
				Category:    "Memory",
				Title:       fmt.Sprintf("Available memory critically low (%s%%)", pct(availPct)),
				Detail:      detail,
				SectionLink: "summary",
			})
		} else if availPct <= a.thresholds.MemWarningAvailablePercent {
			findings = append(findings, types.Finding{
				Severity:    types.SeverityWarning,
				Category:    "Memory",
				Title:       fmt.Sprintf("Available memory low (%s%%)", pct(availPct)),
				Detail:      detail,
				SectionLink: "summary",
			})
		}
	}

	if swap := snap.Swap; swap != nil {
		usedPct := swap.UsedPercent
		detail := fmt.Sprintf("%s / %s", humanKB(swap.UsedKB), humanKB(swap.TotalKB))
		// Both swap levels stay warnings; the titles distinguish them.
		if usedPct >= a.thresholds.SwapHighPercent {
			findings = append(findings, types.Finding{
				Severity:    types.SeverityWarning,
				Category:    "Swap",
				Title:       fmt.Sprintf("Swap usage high (%s%%)", pct(usedPct)),
				Detail:      detail,
				SectionLink: "summary",
			})
		} else if usedPct >= a.thresholds.SwapElevatedPercent {
			findings = append(findings, types.Finding{
				Severity:    types.SeverityWarning,
				Category:    "Swap",
				Title:       fmt.Sprintf("Swap usage elevated (%s%%)", pct(usedPct)),
				Detail:      detail,
				SectionLink: "summary",
			})
		}
	}

	return findings
}

func (a *Aggregator) checkUpdates(snap *bundle.Snapshot) []types.Finding {
	updates := snap.Updates
	if updates.SecurityCount > 0 {
		return []types.Finding{{
			Severity:    types.SeverityWarning,
			Category:    "Updates",
			Title:       fmt.Sprintf("%d security update%s pending", updates.SecurityCount, plural(updates.SecurityCount)),
			Detail:      fmt.Sprintf("%d total updates available", updates.TotalCount),
			SectionLink: "updates",
		}}
	}
	if updates.TotalCount > a.thresholds.UpdatesWarningTotal {
		return []types.Finding{{
			Severity:    types.SeverityWarning,
			Category:    "Updates",
			Title:       fmt.Sprintf("%d updates pending", updates.TotalCount),
			Detail:      "System may be behind on patches",
			SectionLink: "updates",
		}}
	}
	return nil
}

var (
	upSincePattern  = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}(:\d{2})?)`)
	bootLinePattern = regexp.MustCompile(`(\w{3}\s+\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})`)
	inetPattern     = regexp.MustCompile(`inet6?\s+([\d.:a-fA-F]+)(?:/\d+)?`)
)

// extractLastBoot pulls a boot timestamp from the uptime string when it
// carries one, else from the last line of journalctl --list-boots.
func extractLastBoot(uptime, bootList string) string {
	if m := upSincePattern.FindStringSubmatch(uptime); m != nil {
		return m[1]
	}
	if bootList == "" {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(bootList), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if m := bootLinePattern.FindStringSubmatch(lines[i]); m != nil {
			return m[1]
		}
	}
	return ""
}

// extractPrimaryIPs pulls up to six non-loopback, non-link-local
// addresses from ip addr output, preserving first-seen order.
func extractPrimaryIPs(ipAddr string) []string {
	if ipAddr == "" {
		return nil
	}

	seen := make(map[string]bool)
	var ips []string
	for _, m := range inetPattern.FindAllStringSubmatch(ipAddr, -1) {
		addr := m[1]
		if strings.HasPrefix(addr, "127.") || addr == "::1" || strings.HasPrefix(addr, "fe80") {
			continue
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		ips = append(ips, addr)
		if len(ips) == 6 {
			break
		}
	}
	return ips
}

func humanKB(kb int64) string {
	switch {
	case kb >= 1073741824:
		return fmt.Sprintf("%.1fT", float64(kb)/1073741824)
	case kb >= 1048576:
		return fmt.Sprintf("%.1fG", float64(kb)/1048576)
	case kb >= 1024:
		return fmt.Sprintf("%.1fM", float64(kb)/1024)
	}
	return fmt.Sprintf("%dK", kb)
}

func pct(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
