package bundle

import (
	"strconv"
	"strings"

	"github.com/bundlescope/bundlescope/pkg/sections"
	"github.com/bundlescope/bundlescope/pkg/types"
)

// DiskUsage is one mounted filesystem's usage, parsed from df output.
type DiskUsage struct {
	Filesystem string
	SizeKB     int64
	UsedKB     int64
	AvailKB    int64
	UsePercent int
	Mount      string
}

// Memory is the Mem: row of free output.
type Memory struct {
	TotalKB          int64
	AvailableKB      int64
	AvailablePercent float64
}

// Swap is the Swap: row of free output.
type Swap struct {
	TotalKB     int64
	UsedKB      int64
	UsedPercent float64
}

// Updates summarizes pending package updates.
type Updates struct {
	SecurityCount int
	TotalCount    int
}

// Snapshot holds the structured facts the health aggregator consumes.
type Snapshot struct {
	Disks          []DiskUsage
	Memory         *Memory
	Swap           *Swap
	FailedServices []string
	Updates        Updates

	Kernel      string
	Distro      string
	Uptime      string
	BootList    string // journalctl --list-boots output, when captured
	IPAddr      string // ip addr output, when captured
	CollectedAt string
}

// Snapshot extracts the structured facts for this bundle's format.
// Subsystems whose files are missing simply leave their fields empty.
func (b *Bundle) Snapshot() *Snapshot {
	switch b.Format {
	case types.FormatSupportconfig:
		return b.supportconfigSnapshot()
	default:
		return b.sosreportSnapshot()
	}
}

func (b *Bundle) sosreportSnapshot() *Snapshot {
	snap := &Snapshot{}

	if df, ok := b.firstFile("df", "sos_commands/filesys/df_-al", "sos_commands/filesys/df_-al_-x_autofs"); ok {
		snap.Disks = ParseDF(df)
	}
	if free, ok := b.firstFile("free", "sos_commands/memory/free", "sos_commands/memory/free_-m"); ok {
		snap.Memory, snap.Swap = ParseFree(free)
	}
	if failed, ok := b.ReadFile("sos_commands/systemd/systemctl_list-units_--failed"); ok {
		snap.FailedServices = parseUnits(failed, false)
	}
	if updates, ok := b.firstFile("sos_commands/dnf/dnf_-C_list_updates", "sos_commands/yum/yum_-C_list_updates"); ok {
		snap.Updates.TotalCount = countPackageRows(updates)
	}
	if apt, ok := b.ReadFile("sos_commands/apt/apt_list_--upgradable"); ok {
		security, total := ParseAptUpgradable(apt)
		snap.Updates.SecurityCount = security
		if total > snap.Updates.TotalCount {
			snap.Updates.TotalCount = total
		}
	}

	if uname, ok := b.firstFile("sos_commands/kernel/uname_-a", "uname"); ok {
		snap.Kernel = kernelVersion(uname)
	}
	if osRelease, ok := b.ReadFile("etc/os-release"); ok {
		snap.Distro = distroName(osRelease)
	}
	if uptime, ok := b.firstFile("sos_commands/host/uptime", "sos_commands/general/uptime", "uptime"); ok {
		snap.Uptime = strings.TrimSpace(uptime)
	}
	if boots, ok := b.firstFile("sos_commands/logs/journalctl_--list-boots", "sos_commands/systemd/journalctl_--list-boots"); ok {
		snap.BootList = boots
	}
	if ipAddr, ok := b.firstFile("sos_commands/networking/ip_addr", "sos_commands/networking/ip_-o_addr", "ip_addr"); ok {
		snap.IPAddr = ipAddr
	}
	if date, ok := b.firstFile("sos_commands/date/date_--utc", "sos_commands/date/date"); ok {
		snap.CollectedAt = strings.TrimSpace(date)
	}

	return snap
}

func (b *Bundle) supportconfigSnapshot() *Snapshot {
	snap := &Snapshot{}

	diskSecs := b.Sections("fs-diskio.txt")
	if df, ok := sections.CommandOutput(diskSecs, "/bin/df -h"); ok {
		snap.Disks = ParseDF(df)
	} else if df, ok := sections.CommandOutput(diskSecs, "/bin/df"); ok {
		snap.Disks = ParseDF(df)
	}

	healthSecs := b.Sections("basic-health-check.txt")
	if free, ok := sections.CommandOutput(healthSecs, "free"); ok {
		snap.Memory, snap.Swap = ParseFree(free)
	}
	if uptime, ok := sections.CommandOutput(healthSecs, "uptime"); ok {
		snap.Uptime = strings.TrimSpace(uptime)
	}

	if status, ok := b.ReadFile("systemd-status.txt"); ok {
		for _, sec := range sections.Extract(status) {
			if sec.Type != "Command" {
				continue
			}
			if units := parseUnits(sec.Body, true); len(units) > 0 {
				snap.FailedServices = append(snap.FailedServices, units...)
			}
		}
	}

	if patches, ok := b.CommandOutput("updates.txt", "zypper"); ok {
		snap.Updates.SecurityCount, snap.Updates.TotalCount = ParseZypperPatches(patches)
	}

	envSecs := b.Sections("basic-environment.txt")
	if uname, ok := sections.CommandOutput(envSecs, "/bin/uname -a"); ok {
		snap.Kernel = kernelVersion(uname)
	}
	if osRelease, ok := sections.FileListing(envSecs, "/etc/os-release"); ok {
		snap.Distro = distroName(osRelease)
	}
	if date, ok := sections.CommandOutput(envSecs, "/bin/date"); ok {
		snap.CollectedAt = strings.TrimSpace(date)
	}

	if ipAddr, ok := b.CommandOutput("network.txt", "ip addr"); ok {
		snap.IPAddr = ipAddr
	}

	return snap
}

// virtualFilesystems are excluded from disk findings; their usage numbers
// are not actionable.
var virtualFilesystems = map[string]bool{
	"sysfs": true, "proc": true, "devtmpfs": true, "securityfs": true,
	"tmpfs": true, "devpts": true, "cgroup": true, "cgroup2": true,
	"pstore": true, "bpf": true, "configfs": true, "selinuxfs": true,
	"debugfs": true, "hugetlbfs": true, "mqueue": true, "fusectl": true,
	"binfmt_misc": true, "sunrpc": true, "tracefs": true, "none": true,
	"overlay": true, "shm": true, "nsfs": true,
}

// ParseDF parses df output (plain kilobyte or -h human units) into per
// mount usage records, skipping virtual filesystems and rows without a
// use percentage. Results are ordered by use percent, fullest first.
func ParseDF(text string) []DiskUsage {
	var disks []DiskUsage

	lines := strings.Split(strings.TrimSpace(text), "\n")
	var pending string
	for i, line := range lines {
		if i == 0 && strings.Contains(line, "Filesystem") {
			continue
		}
		fields := strings.Fields(line)
		// Long device names wrap onto their own line; the numbers follow
		// on the next one.
		if len(fields) == 1 && !strings.HasSuffix(fields[0], "%") {
			pending = fields[0]
			continue
		}
		if pending != "" {
			fields = append([]string{pending}, fields...)
			pending = ""
		}
		if len(fields) < 5 {
			continue
		}

		fs := fields[0]
		if virtualFilesystems[strings.ToLower(fs)] {
			continue
		}

		// df -Th inserts a type column; shift past it when present.
		col := 1
		if len(fields) >= 7 && !strings.HasSuffix(fields[4], "%") && strings.HasSuffix(fields[5], "%") {
			col = 2
		}

		sizeKB, okSize := parseSizeKB(fields[col])
		usedKB, _ := parseSizeKB(fields[col+1])
		availKB, _ := parseSizeKB(fields[col+2])
		pctField := fields[col+3]
		if !okSize || !strings.HasSuffix(pctField, "%") {
			continue
		}
		pct, err := strconv.Atoi(strings.TrimSuffix(pctField, "%"))
		if err != nil {
			continue
		}
		mount := strings.Join(fields[col+4:], " ")
		if mount == "" {
			continue
		}

		disks = append(disks, DiskUsage{
			Filesystem: fs,
			SizeKB:     sizeKB,
			UsedKB:     usedKB,
			AvailKB:    availKB,
			UsePercent: pct,
			Mount:      mount,
		})
	}

	// Fullest first, stable so equally-full mounts keep df order.
	for i := 1; i < len(disks); i++ {
		for j := i; j > 0 && disks[j].UsePercent > disks[j-1].UsePercent; j-- {
			disks[j], disks[j-1] = disks[j-1], disks[j]
		}
	}
	return disks
}

// parseSizeKB accepts plain kilobyte counts and human suffixed sizes
// (512M, 1.5G, 2T).
func parseSizeKB(s string) (int64, bool) {
	if s == "" || s == "-" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}

	mult := int64(1)
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1
	case 'M', 'm':
		mult = 1024
	case 'G', 'g':
		mult = 1024 * 1024
	case 'T', 't':
		mult = 1024 * 1024 * 1024
	default:
		return 0, false
	}
	value, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, false
	}
	return int64(value * float64(mult)), true
}

// ParseFree parses free output. The Mem row needs the seven-column
// layout with an "available" column; the Swap row needs total and used.
// Rows that don't parse yield nil.
func ParseFree(text string) (*Memory, *Swap) {
	var mem *Memory
	var swap *Swap

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		fields := strings.Fields(line)
		switch {
		case strings.HasPrefix(line, "Mem:") && len(fields) >= 7:
			total, err1 := strconv.ParseInt(fields[1], 10, 64)
			available, err2 := strconv.ParseInt(fields[6], 10, 64)
			if err1 != nil || err2 != nil || total <= 0 {
				continue
			}
			mem = &Memory{
				TotalKB:          total,
				AvailableKB:      available,
				AvailablePercent: round1(float64(available) / float64(total) * 100),
			}
		case strings.HasPrefix(line, "Swap:") && len(fields) >= 4:
			total, err1 := strconv.ParseInt(fields[1], 10, 64)
			used, err2 := strconv.ParseInt(fields[2], 10, 64)
			if err1 != nil || err2 != nil || total <= 0 {
				continue
			}
			swap = &Swap{
				TotalKB:     total,
				UsedKB:      used,
				UsedPercent: round1(float64(used) / float64(total) * 100),
			}
		}
	}
	return mem, swap
}

func round1(f float64) float64 {
	return float64(int64(f*10+0.5)) / 10
}

// parseUnits parses systemctl list-units style output. With failedOnly
// false every data row is a unit (the input already lists only failed
// units); with true only rows whose active state reports failure count.
func parseUnits(text string, requireFailedState bool) []string {
	var units []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "●"))
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "unit ") || strings.HasPrefix(line, "LOAD ") ||
			strings.HasPrefix(lower, "legend:") || strings.Contains(lower, "units listed") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 || !strings.Contains(fields[0], ".") {
			continue
		}
		if requireFailedState {
			state := strings.ToLower(fields[2] + " " + fields[3])
			if !strings.Contains(state, "failed") {
				continue
			}
		}
		units = append(units, fields[0])
	}
	return units
}

// ParseZypperPatches counts needed patches in zypper patches table
// output, splitting out the security category.
func ParseZypperPatches(text string) (security, total int) {
	for _, row := range sections.ParseTable(text, "|") {
		if len(row) < 3 {
			continue
		}
		if strings.EqualFold(row[1], "Name") || strings.HasPrefix(row[0], "--") {
			continue
		}
		total++
		for _, col := range row {
			if strings.EqualFold(col, "security") {
				security++
				break
			}
		}
	}
	return security, total
}

// ParseAptUpgradable counts apt list --upgradable rows; a row counts as
// security when its origin names a security pocket.
func ParseAptUpgradable(text string) (security, total int) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Listing") {
			continue
		}
		name, _, found := strings.Cut(line, " ")
		if !found || !strings.Contains(name, "/") {
			continue
		}
		total++
		if strings.Contains(strings.ToLower(name), "security") {
			security++
		}
	}
	return security, total
}

// countPackageRows counts dnf/yum "list updates" data rows: three-column
// lines of name, version, repository.
func countPackageRows(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		if !strings.Contains(fields[0], ".") || strings.HasSuffix(fields[0], ":") {
			continue
		}
		if strings.EqualFold(fields[0], "Last") || strings.Contains(line, "Available Upgrades") {
			continue
		}
		count++
	}
	return count
}

func kernelVersion(uname string) string {
	fields := strings.Fields(strings.TrimSpace(uname))
	if len(fields) >= 3 {
		return fields[2]
	}
	return strings.TrimSpace(uname)
}

func distroName(osRelease string) string {
	kv := sections.KeyValues(osRelease, "=")
	if pretty := strings.Trim(kv["PRETTY_NAME"], `"`); pretty != "" {
		return pretty
	}
	return strings.Trim(kv["NAME"], `"`)
}
