package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bundlescope/bundlescope/internal/version"
	"github.com/bundlescope/bundlescope/pkg/analyze"
	"github.com/bundlescope/bundlescope/pkg/config"
	"github.com/bundlescope/bundlescope/pkg/logging"
	"github.com/bundlescope/bundlescope/pkg/rules"
	"github.com/bundlescope/bundlescope/pkg/types"
)

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	var (
		verbosity  int
		configPath string
	)

	rootCmd := &cobra.Command{
		Use:   "bundlescope",
		Short: "Extract facts and findings from diagnostic bundles",
		Long: `bundlescope ingests extracted diagnostic bundles (sosreport or
supportconfig layout) and produces structured facts plus a ranked list
of detected issues backed by evidence lines.`,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		DisableAutoGenTag: true,
	}

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to bundlescope.toml (default: working directory)")

	rootCmd.AddCommand(newAnalyzeCmd(&configPath))
	rootCmd.AddCommand(newRulesCmd(&configPath))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newAnalyzeCmd(configPath *string) *cobra.Command {
	var (
		format   string
		rulesDir string
		timeout  string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <bundle-root>...",
		Short: "Analyze extracted bundles and print their health summaries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]interface{}{}
			if rulesDir != "" {
				overrides["rules_dir"] = rulesDir
			}
			if timeout != "" {
				d, err := parseTimeout(timeout)
				if err != nil {
					return err
				}
				overrides["timeout"] = d.String()
			}

			cfg, err := config.Load(*configPath, overrides)
			if err != nil {
				return err
			}

			bundleFormat := types.Format(format)
			if !bundleFormat.Valid() {
				return fmt.Errorf("unknown format %q: want %s or %s",
					format, types.FormatSosreport, types.FormatSupportconfig)
			}

			pipeline := analyze.New(cfg)

			if len(args) == 1 {
				summary, err := pipeline.Analyze(cmd.Context(), args[0], bundleFormat)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(summary)
				}
				renderSummary(cmd.OutOrStdout(), summary)
				if summary.Status == types.SeverityCritical {
					os.Exit(2)
				}
				return nil
			}

			requests := make([]analyze.Request, len(args))
			for i, root := range args {
				requests[i] = analyze.Request{Root: root, Format: bundleFormat}
			}
			results := pipeline.Batch(cmd.Context(), requests)

			if asJSON {
				type batchItem struct {
					Root    string               `json:"root"`
					Error   string               `json:"error,omitempty"`
					Summary *types.HealthSummary `json:"summary,omitempty"`
				}
				items := make([]batchItem, len(results))
				for i, res := range results {
					items[i] = batchItem{Root: res.Request.Root}
					if res.Err != nil {
						items[i].Error = res.Err.Error()
					} else {
						summary := res.Summary
						items[i].Summary = &summary
					}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}

			anyCritical := false
			var firstErr error
			for _, res := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "== %s ==\n", res.Request.Root)
				if res.Err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "error: %v\n\n", res.Err)
					if firstErr == nil {
						firstErr = res.Err
					}
					continue
				}
				renderSummary(cmd.OutOrStdout(), res.Summary)
				fmt.Fprintln(cmd.OutOrStdout())
				if res.Summary.Status == types.SeverityCritical {
					anyCritical = true
				}
			}
			if firstErr != nil {
				return firstErr
			}
			if anyCritical {
				os.Exit(2)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", string(types.FormatSosreport), "Bundle format: sosreport or supportconfig")
	cmd.Flags().StringVar(&rulesDir, "rules-dir", "", "Directory of rule collection documents")
	cmd.Flags().StringVar(&timeout, "timeout", "", "Per-bundle deadline, e.g. 90s or 2m")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the health summary as JSON")

	return cmd
}

func newRulesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with rule collections",
	}

	lint := &cobra.Command{
		Use:   "lint <rules-dir>",
		Short: "Load rule collections and report what compiled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collections := rules.LoadCollections(args[0])
			if len(collections) == 0 {
				return fmt.Errorf("no usable rule collections in %s", args[0])
			}
			total := 0
			for _, coll := range collections {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rule(s)\n", coll.Name, len(coll.Rules))
				total += len(coll.Rules)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d collection(s), %d rule(s) compiled\n", len(collections), total)
			return nil
		},
	}
	cmd.AddCommand(lint)

	return cmd
}

func parseTimeout(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return d, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bundlescope %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
