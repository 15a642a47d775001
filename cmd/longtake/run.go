package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/longtake"
	"github.com/teranos/longtake/monitor"
	"github.com/teranos/longtake/operators"
	"github.com/teranos/longtake/script"
)

var runFlags struct {
	config      string
	baseURL     string
	evidenceDir string
	reportDir   string
	parallel    int
	timeout     time.Duration
	poll        time.Duration
	headless    bool
	chrome      string
	remote      string
	tags        string
	tui         bool
	logLevel    string
}

var runCmd = &cobra.Command{
	Use:   "run [files or directories...]",
	Short: "Run scenarios in a browser",
	Long: `Run loads YAML (.yaml, .yml) and Gherkin (.feature) scenario files, runs
every scenario in its own browser context and writes a screenshot per run.
The exit status is nonzero if any scenario fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

// resolveConfig layers flags the user set over the config file and
// LONGTAKE_* environment.
func resolveConfig(cmd *cobra.Command) (longtake.DirectorConfig, error) {
	config, err := longtake.LoadConfig(runFlags.config)
	if err != nil {
		return config, err
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		config.BaseURL = runFlags.baseURL
	}
	if flags.Changed("evidence-dir") {
		config.EvidenceDir = runFlags.evidenceDir
	}
	if flags.Changed("report-dir") {
		config.ReportDir = runFlags.reportDir
	}
	if flags.Changed("parallel") {
		config.Parallel = runFlags.parallel
	}
	if flags.Changed("timeout") {
		config.Timeout = runFlags.timeout
	}
	if flags.Changed("poll") {
		config.PollInterval = runFlags.poll
	}
	if flags.Changed("headless") {
		config.Headless = runFlags.headless
	}
	if flags.Changed("chrome") {
		config.ChromePath = runFlags.chrome
	}
	if flags.Changed("remote") {
		config.RemoteURL = runFlags.remote
	}
	return config, config.Validate()
}

func runRun(cmd *cobra.Command, args []string) error {
	config, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	scenarios, err := script.LoadPaths(args, runFlags.tags)
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no scenarios to run")
	}

	// The live view owns the terminal, so logs go to a file in the evidence folder.
	logFile := ""
	if runFlags.tui {
		logFile = filepath.Join(config.EvidenceDir, "longtake.log")
	}
	logger, err := newLogger(runFlags.logLevel, logFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	launcher, err := operators.NewLauncher(ctx, operators.LaunchConfigFrom(config), logger)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer launcher.Close()

	ensemble := longtake.NewEnsemble(launcher, config).WithLogger(logger)
	logger.Info("running scenarios",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("parallel", config.Parallel),
		zap.String("base_url", config.BaseURL))

	var results []*longtake.RunResult
	if runFlags.tui {
		results, err = runWithMonitor(ctx, ensemble, scenarios)
		if err != nil {
			return err
		}
	} else {
		results = ensemble.Run(ctx, scenarios)
	}

	out := cmd.OutOrStdout()
	printSummary(out, results)
	writeReports(out, logger, config.ReportDir, results)

	if longtake.Failed(results) {
		return errScenariosFailed
	}
	return nil
}

// runWithMonitor runs the ensemble behind the live view. Quitting the view
// cancels the remaining scenarios; their final frames are still taken.
func runWithMonitor(ctx context.Context, ensemble *longtake.Ensemble, scenarios []longtake.Scenario) ([]*longtake.RunResult, error) {
	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.Name()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(monitor.New(names), tea.WithContext(runCtx))
	ensemble.WithObserver(monitor.Observer(p))

	done := make(chan []*longtake.RunResult, 1)
	go func() {
		done <- ensemble.Run(runCtx, scenarios)
	}()

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-done
		return nil, fmt.Errorf("monitor: %w", err)
	}
	if m, ok := final.(monitor.Model); ok && m.Aborted() {
		cancel()
	}
	return <-done, nil
}

func printSummary(out io.Writer, results []*longtake.RunResult) {
	passed := 0
	for _, r := range results {
		if r.Success {
			passed++
			fmt.Fprintf(out, "✓ %s (%s)\n", r.Scenario, r.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(out, "✗ %s: %s\n", r.Scenario, r.ErrorMessage)
		if step := r.FailedStep(); step >= 0 {
			fmt.Fprintf(out, "    at step %d: %s\n", step+1, r.Steps[step].Outcome)
		}
		if r.Evidence != nil {
			fmt.Fprintf(out, "    evidence: %s\n", r.Evidence.Path)
		}
	}
	fmt.Fprintf(out, "\n%d passed, %d failed\n", passed, len(results)-passed)
}

func writeReports(out io.Writer, logger *zap.Logger, reportDir string, results []*longtake.RunResult) {
	if reportDir == "" {
		return
	}
	for _, r := range results {
		if _, err := longtake.WriteRunReport(reportDir, r); err != nil {
			logger.Warn("could not write report", zap.String("scenario", r.Scenario), zap.Error(err))
		}
	}
	path, _, err := longtake.GenerateDashboard(reportDir)
	if err != nil {
		logger.Warn("could not write dashboard", zap.Error(err))
		return
	}
	fmt.Fprintf(out, "Reports: %s\n", path)
}
