// Command longtake runs browser verification scenarios and writes evidence
// and HTML reports for each of them.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/longtake"
	"github.com/teranos/longtake/script"
)

var version = "dev"

// errScenariosFailed signals a nonzero exit without another error message;
// the run summary has already been printed.
var errScenariosFailed = errors.New("one or more scenarios failed")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errScenariosFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "longtake",
	Short:         "Browser scenario verification with screenshot evidence",
	Long:          "longtake drives a real browser through scripted scenarios, waits on semantic locators, and leaves a screenshot behind for every run.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [files or directories...]",
	Short: "Check scenario files without running them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := script.FindFiles(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	bad := 0
	for _, file := range files {
		scenarios, err := script.LoadFile(file, "")
		if err == nil {
			fmt.Fprintf(out, "✓ %s (%d scenarios)\n", file, len(scenarios))
			continue
		}
		bad++
		issues := script.IssuesOf(err)
		if issues == nil {
			fmt.Fprintf(out, "✗ %s: %v\n", file, err)
			continue
		}
		fmt.Fprintf(out, "✗ %s: %d error(s)\n", file, len(issues))
		for i, issue := range issues {
			fmt.Fprintf(out, "  %d. [%s] %s\n", i+1, issue.Phase, issue.Message)
			if issue.Path != "" {
				fmt.Fprintf(out, "     at: %s\n", issue.Path)
			}
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d file(s) invalid", bad, len(files))
	}
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema for YAML scenario files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := script.Schema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

// --- dashboard ---

var dashboardDir string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Rebuild the report dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, dash, err := longtake.GenerateDashboard(dashboardDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dashboard: %s (%d reports, %d failed)\n", path, len(dash.Reports), dash.Failed)
		return nil
	},
}

// newLogger builds the CLI logger. Logs go to stderr unless file is set.
func newLogger(level, file string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var cfg zap.Config
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, err
		}
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
	}
	return cfg.Build()
}

func init() {
	runCmd.Flags().StringVar(&runFlags.config, "config", "", "YAML config file")
	runCmd.Flags().StringVar(&runFlags.baseURL, "base-url", "", "Base URL relative navigation resolves against")
	runCmd.Flags().StringVar(&runFlags.evidenceDir, "evidence-dir", "", "Screenshot output directory")
	runCmd.Flags().StringVar(&runFlags.reportDir, "report-dir", "", "HTML report directory (empty string in config disables reports)")
	runCmd.Flags().IntVar(&runFlags.parallel, "parallel", 0, "Scenarios run at once")
	runCmd.Flags().DurationVar(&runFlags.timeout, "timeout", 0, "Default wait condition timeout")
	runCmd.Flags().DurationVar(&runFlags.poll, "poll", 0, "Default wait condition poll interval")
	runCmd.Flags().BoolVar(&runFlags.headless, "headless", true, "Run the browser without a window")
	runCmd.Flags().StringVar(&runFlags.chrome, "chrome", "", "Chrome or Chromium executable")
	runCmd.Flags().StringVar(&runFlags.remote, "remote", "", "DevTools websocket URL of a running browser")
	runCmd.Flags().StringVar(&runFlags.tags, "tags", "", `Tag expression, e.g. "@smoke and not @slow"`)
	runCmd.Flags().BoolVar(&runFlags.tui, "tui", false, "Show a live progress view")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "info", "debug, info, warn or error")

	dashboardCmd.Flags().StringVar(&dashboardDir, "report-dir", "reports", "Directory holding run reports")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(dashboardCmd)
}
