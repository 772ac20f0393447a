package analyze_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundlescope/bundlescope/pkg/analyze"
	"github.com/bundlescope/bundlescope/pkg/config"
	"github.com/bundlescope/bundlescope/pkg/errors"
	"github.com/bundlescope/bundlescope/pkg/testutil"
	"github.com/bundlescope/bundlescope/pkg/types"
)

func testConfig(t *testing.T, rulesDir string) *config.Config {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.RulesDir = rulesDir
	cfg.Timeout = 30 * time.Second
	return cfg
}

// fullBundle builds a sosreport-layout bundle with a nearly full root
// disk and repeated OOM kills in the system log.
func fullBundle(t *testing.T) *testutil.BundleBuilder {
	b := testutil.NewBundle(t)
	b.WriteFile("df",
		`Filesystem     1K-blocks     Used Available Use% Mounted on
/dev/sda2       41152736 39506627   1646109  96% /
/dev/sda1         523248      152    523096   1% /boot/efi
`)
	b.WriteFile("var/log/messages",
		"Jan 10 kernel: Out of memory: Killed process 100 (java)\n"+
			"Jan 11 kernel: healthy line\n"+
			"Jan 12 kernel: Out of memory: Killed process 101 (java)\n"+
			"Jan 13 kernel: Out of memory: Killed process 102 (java)\n"+
			"Jan 14 kernel: Out of memory: Killed process 103 (java)\n")
	b.WriteFile("sos_commands/kernel/uname_-a",
		"Linux web01 5.14.0-503.el9.x86_64 #1 SMP x86_64 GNU/Linux\n")
	return b
}

const oomRules = `{
	"collection": "kernel-issues",
	"rules": [
		{
			"id": "oom-killer",
			"title": "OOM killer active ({match_count} events)",
			"category": "Kernel",
			"severity": "warning",
			"min_matches": 2,
			"file_paths": {"sosreport": ["var/log/messages"]},
			"pattern": "Out of memory: Killed process"
		}
	]
}`

func TestAnalyze(t *testing.T) {
	rulesDir := testutil.RulesDir(t, map[string]string{"kernel.json": oomRules})
	pipe := analyze.New(testConfig(t, rulesDir))

	t.Run("structured_and_rule_findings_merge", func(t *testing.T) {
		b := fullBundle(t)

		summary, err := pipe.Analyze(context.Background(), b.Root, types.FormatSosreport)
		require.NoError(t, err)

		assert.Equal(t, types.SeverityCritical, summary.Status)
		assert.Equal(t, 1, summary.CriticalCount)
		assert.Equal(t, 1, summary.WarningCount)
		require.Len(t, summary.Findings, 2)

		// Critical disk finding sorts ahead of the rule warning.
		assert.Equal(t, "Disk / at 96%", summary.Findings[0].Title)
		assert.Equal(t, types.SeverityCritical, summary.Findings[0].Severity)

		oom := summary.Findings[1]
		assert.Equal(t, "OOM killer active (4 events)", oom.Title)
		assert.Equal(t, "oom-killer", oom.RuleID)
		assert.Equal(t, "kernel-issues", oom.Collection)
		assert.Len(t, oom.Evidence, 4)

		assert.Equal(t, "5.14.0-503.el9.x86_64", summary.Kernel)
	})

	t.Run("healthy_bundle_is_ok", func(t *testing.T) {
		b := testutil.NewBundle(t)
		b.WriteFile("var/log/messages", "all quiet\n")

		summary, err := pipe.Analyze(context.Background(), b.Root, types.FormatSosreport)
		require.NoError(t, err)
		assert.Equal(t, types.SeverityOK, summary.Status)
		assert.Empty(t, summary.Findings)
	})

	t.Run("missing_root_fails", func(t *testing.T) {
		_, err := pipe.Analyze(context.Background(), "/nonexistent/bundle", types.FormatSosreport)
		require.Error(t, err)
		assert.Equal(t, errors.ErrBundleRoot, errors.GetCode(err))
	})

	t.Run("invalid_format_fails", func(t *testing.T) {
		b := testutil.NewBundle(t)
		_, err := pipe.Analyze(context.Background(), b.Root, "tarball")
		require.Error(t, err)
		assert.Equal(t, errors.ErrBundleFormat, errors.GetCode(err))
	})
}

func TestBatch(t *testing.T) {
	rulesDir := testutil.RulesDir(t, map[string]string{"kernel.json": oomRules})
	cfg := testConfig(t, rulesDir)
	cfg.Concurrency = 3
	pipe := analyze.New(cfg)

	sick := fullBundle(t)
	healthy := testutil.NewBundle(t)
	healthy.WriteFile("var/log/messages", "fine\n")

	requests := []analyze.Request{
		{Root: sick.Root, Format: types.FormatSosreport},
		{Root: "/nonexistent/bundle", Format: types.FormatSosreport},
		{Root: healthy.Root, Format: types.FormatSosreport},
	}

	results := pipe.Batch(context.Background(), requests)
	require.Len(t, results, 3)

	// Results stay in request order regardless of completion order.
	assert.Equal(t, sick.Root, results[0].Request.Root)
	require.NoError(t, results[0].Err)
	assert.Equal(t, types.SeverityCritical, results[0].Summary.Status)

	require.Error(t, results[1].Err)

	require.NoError(t, results[2].Err)
	assert.Equal(t, types.SeverityOK, results[2].Summary.Status)
}

func TestBatchNonPositiveConcurrency(t *testing.T) {
	rulesDir := testutil.RulesDir(t, map[string]string{"kernel.json": oomRules})
	cfg := testConfig(t, rulesDir)
	// A zero-width worker pool would never admit a worker; the pipeline
	// clamps it to one.
	cfg.Concurrency = 0
	pipe := analyze.New(cfg)

	healthy := testutil.NewBundle(t)
	healthy.WriteFile("var/log/messages", "fine\n")

	results := pipe.Batch(context.Background(), []analyze.Request{
		{Root: healthy.Root, Format: types.FormatSosreport},
		{Root: healthy.Root, Format: types.FormatSosreport},
	})
	require.Len(t, results, 2)
	for _, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, types.SeverityOK, res.Summary.Status)
	}
}
