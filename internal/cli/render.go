package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/bundlescope/bundlescope/pkg/types"
)

var (
	criticalStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#B00020", Dark: "#FF5C57"})
	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#8A6D00", Dark: "#F3F99D"})
	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#1B5E20", Dark: "#5AF78E"})
	dimStyle = lipgloss.NewStyle().Faint(true)
)

func severityStyle(s types.Severity) lipgloss.Style {
	switch s {
	case types.SeverityCritical:
		return criticalStyle
	case types.SeverityWarning:
		return warningStyle
	}
	return okStyle
}

// renderSummary prints a health summary for humans. Styling is applied
// only when stdout is a terminal.
func renderSummary(w io.Writer, summary types.HealthSummary) {
	styled := isatty.IsTerminal(os.Stdout.Fd())
	paint := func(style lipgloss.Style, s string) string {
		if !styled {
			return s
		}
		return style.Render(s)
	}

	fmt.Fprintf(w, "Status: %s  (%d critical, %d warning)\n",
		paint(severityStyle(summary.Status), strings.ToUpper(string(summary.Status))),
		summary.CriticalCount, summary.WarningCount)
	fmt.Fprintf(w, "Kernel: %s\n", summary.Kernel)
	fmt.Fprintf(w, "Distro: %s\n", summary.Distro)
	fmt.Fprintf(w, "Uptime: %s\n", summary.Uptime)
	if summary.LastBoot != "" {
		fmt.Fprintf(w, "Last boot: %s\n", summary.LastBoot)
	}
	if len(summary.PrimaryIPs) > 0 {
		fmt.Fprintf(w, "Primary IPs: %s\n", strings.Join(summary.PrimaryIPs, ", "))
	}

	if len(summary.Findings) == 0 {
		fmt.Fprintln(w, "\nNo findings.")
		return
	}

	fmt.Fprintf(w, "\nFindings (%d):\n", len(summary.Findings))
	for _, f := range summary.Findings {
		fmt.Fprintf(w, "  %s  [%s] %s\n",
			paint(severityStyle(f.Severity), fmt.Sprintf("%-8s", f.Severity)),
			f.Category, f.Title)
		if f.Detail != "" {
			fmt.Fprintf(w, "            %s\n", paint(dimStyle, f.Detail))
		}
		for _, ev := range f.Evidence {
			fmt.Fprintf(w, "            %s\n",
				paint(dimStyle, fmt.Sprintf("%s:%d: %s", ev.File, ev.LineNumber, truncate(ev.LineText, 120))))
		}
	}
}

// truncate shortens s to at most n bytes plus an ellipsis, cutting on
// a rune boundary so multi-byte text is never split mid-character.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 1
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
