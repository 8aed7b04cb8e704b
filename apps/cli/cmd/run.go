package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/config"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
	"github.com/abdul-hamid-achik/hitrun/packages/plan"
	"github.com/abdul-hamid-achik/hitrun/packages/snapshot"
)

var runCmd = &cobra.Command{
	Use:   "run <plan|directory>...",
	Short: "Run test plans",
	Long: `Run the tests defined in .plan.yaml files.

Examples:
  hitrun run smoke.plan.yaml
  hitrun run ./plans/ --env staging
  hitrun run ./plans/ --traits category=smoke --name "Users.*"
  hitrun run ./plans/ --output junit --output-file report.xml
  hitrun run ./plans/ --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	configFlag         string
	envFlag            string
	nameFlag           string
	traitsFlag         string
	outputFlag         string
	outputFileFlag     string
	noColorFlag        bool
	progressFlag       bool
	parallelFlag       bool
	maxThreadsFlag     int
	algorithmFlag      string
	stopOnFailFlag     bool
	explicitFlag       string
	failSkipsFlag      bool
	diagnosticsFlag    bool
	longRunningFlag    int
	timeoutDefaultFlag string
	orderFlag          string
	seedFlag           int64
	watchFlag          bool
	metricsFileFlag    string
	metricsPortFlag    int
	historyFlag        string
	updateSnapshots    bool
	notifyFlag         string
	notifyOnFlag       string
	slackWebhookFlag   string
	slackChannelFlag   string
	teamsWebhookFlag   string
)

func init() {
	f := runCmd.Flags()

	// Selection flags
	f.StringVar(&configFlag, "config", getEnvString("HITRUN_CONFIG", ""), "Path to config file (env: HITRUN_CONFIG)")
	f.StringVarP(&envFlag, "env", "e", getEnvString("HITRUN_ENV", ""), "Plan environment to use (env: HITRUN_ENV)")
	f.StringVarP(&nameFlag, "name", "n", "", "Run only tests matching name pattern (Class.test, * wildcards)")
	f.StringVarP(&traitsFlag, "traits", "t", getEnvString("HITRUN_TRAITS", ""), "Run only tests with any of the traits, comma-separated name=value or value (env: HITRUN_TRAITS)")

	// Output flags
	f.StringVarP(&outputFlag, "output", "o", getEnvString("HITRUN_OUTPUT", ""), "Output format: console, json, jsonl, junit, tap, html (env: HITRUN_OUTPUT)")
	f.StringVar(&outputFileFlag, "output-file", getEnvString("HITRUN_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: HITRUN_OUTPUT_FILE)")
	f.BoolVar(&noColorFlag, "no-color", getEnvBool("HITRUN_NO_COLOR", false), "Disable colored output (env: HITRUN_NO_COLOR)")
	f.BoolVar(&progressFlag, "progress", false, "Print a progress line instead of one line per passing test")
	f.BoolVar(&diagnosticsFlag, "diagnostics", false, "Show diagnostic messages")

	// Execution flags
	f.BoolVarP(&parallelFlag, "parallel", "p", true, "Run test collections in parallel")
	f.IntVar(&maxThreadsFlag, "max-threads", getEnvInt("HITRUN_MAX_THREADS", 0), "Maximum parallel threads, 0 for one per CPU, -1 for unlimited (env: HITRUN_MAX_THREADS)")
	f.StringVar(&algorithmFlag, "parallel-algorithm", "", "Parallel algorithm: conservative or aggressive")
	f.BoolVar(&stopOnFailFlag, "stop-on-fail", false, "Stop after the first failing test")
	f.StringVar(&explicitFlag, "explicit", "", "Explicit tests: off, on or only")
	f.BoolVar(&failSkipsFlag, "fail-skips", false, "Report skipped tests as failures")
	f.IntVar(&longRunningFlag, "long-running", 0, "Report tests running longer than this many seconds")
	f.StringVar(&timeoutDefaultFlag, "timeout-default", "", "Timeout for tests that declare none (e.g. 30s, 1m)")
	f.StringVar(&orderFlag, "order", "", "Test case order: default, displayName, declaration or random")
	f.Int64Var(&seedFlag, "seed", 0, "Seed for random ordering")
	f.BoolVarP(&watchFlag, "watch", "w", false, "Watch plans for changes and re-run tests")
	f.BoolVarP(&updateSnapshots, "update-snapshots", "u", getEnvBool("HITRUN_UPDATE_SNAPSHOTS", false), "Create missing and rewrite mismatching snapshots (env: HITRUN_UPDATE_SNAPSHOTS)")

	// Metrics and history flags
	f.StringVar(&metricsFileFlag, "metrics-file", getEnvString("HITRUN_METRICS_FILE", ""), "Write metrics to file, Prometheus textfile format when it ends in .prom (env: HITRUN_METRICS_FILE)")
	f.IntVar(&metricsPortFlag, "metrics-port", getEnvInt("HITRUN_METRICS_PORT", 0), "Serve Prometheus metrics on this port (env: HITRUN_METRICS_PORT)")
	f.StringVar(&historyFlag, "history", getEnvString("HITRUN_HISTORY", ""), "Record runs in this SQLite database (env: HITRUN_HISTORY)")
	f.Lookup("history").NoOptDefVal = "default"

	// Notification flags
	f.StringVar(&notifyFlag, "notify", getEnvString("HITRUN_NOTIFY", ""), "Notification services, comma-separated: slack, teams (env: HITRUN_NOTIFY)")
	f.StringVar(&notifyOnFlag, "notify-on", getEnvString("HITRUN_NOTIFY_ON", "failure"), "When to notify: always, failure, success, recovery (env: HITRUN_NOTIFY_ON)")
	f.StringVar(&slackWebhookFlag, "slack-webhook", getEnvString("HITRUN_SLACK_WEBHOOK", ""), "Slack incoming webhook URL (env: HITRUN_SLACK_WEBHOOK)")
	f.StringVar(&slackChannelFlag, "slack-channel", getEnvString("HITRUN_SLACK_CHANNEL", ""), "Slack channel override (env: HITRUN_SLACK_CHANNEL)")
	f.StringVar(&teamsWebhookFlag, "teams-webhook", getEnvString("HITRUN_TEAMS_WEBHOOK", ""), "Microsoft Teams webhook URL (env: HITRUN_TEAMS_WEBHOOK)")
}

func runCommand(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	files, err := plan.Discover(args)
	if err != nil {
		return withExitCode(ExitParseError, err)
	}
	if len(files) == 0 {
		return withExitCode(ExitParseError, fmt.Errorf("no %s files found", strings.Join(plan.PlanExtensions, " or ")))
	}

	cfg, cfgPath, err := loadRunConfig(cmd, files)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	runOpts, err := cfg.Options(logger)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	planOpts := plan.Options{
		Environment:    envFlag,
		Filter:         plan.Filter{Name: nameFlag, Traits: splitList(traitsFlag)},
		DefaultTimeout: time.Duration(cfg.DefaultTimeout) * time.Millisecond,
		ConfigPath:     cfgPath,
		Seed:           runOpts.Seed,
		Logger:         logger,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reports, err := newReporting(ctx, cmd, cfg, logger)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer reports.Close()

	outcome, err := runOnce(ctx, reports, files, planOpts, runOpts)
	if err != nil {
		return err
	}

	if !watchFlag {
		return outcome.err(ctx)
	}
	return watch(ctx, cmd, args, files, func() {
		if _, err := runOnce(ctx, reports, files, planOpts, runOpts); err != nil {
			logger.Error("run failed", "error", err)
		}
	})
}

// loadRunConfig loads the config file named by --config or found next to
// the first plan, then applies the flags the user set.
func loadRunConfig(cmd *cobra.Command, files []string) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if configFlag != "" {
		cfg, path, err = config.LoadConfig(configFlag)
	} else {
		cfg, path, err = config.FindAndLoadConfig(filepath.Dir(files[0]))
	}
	if err != nil {
		return nil, "", err
	}

	override, err := flagConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	cfg = cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// flagConfig turns explicitly set flags into a config overlay.
func flagConfig(cmd *cobra.Command) (*config.Config, error) {
	changed := cmd.Flags().Changed
	c := &config.Config{
		MaxParallelThreads: maxThreadsFlag,
		ParallelAlgorithm:  algorithmFlag,
		Explicit:           explicitFlag,
		Order:              orderFlag,
		MetricsFile:        metricsFileFlag,
	}
	if changed("parallel") {
		c.ParallelizeTestCollections = config.BoolPtr(parallelFlag)
	}
	if changed("stop-on-fail") {
		c.StopOnFail = config.BoolPtr(stopOnFailFlag)
	}
	if changed("fail-skips") {
		c.FailSkips = config.BoolPtr(failSkipsFlag)
	}
	if changed("diagnostics") {
		c.DiagnosticMessages = config.BoolPtr(diagnosticsFlag)
	}
	if changed("no-color") || noColorFlag {
		c.NoColor = config.BoolPtr(noColorFlag)
	}
	if verboseFlag > 0 {
		c.Verbose = config.BoolPtr(true)
	}
	if changed("long-running") {
		c.LongRunningTestSeconds = longRunningFlag
	}
	if changed("seed") {
		seed := seedFlag
		c.Seed = &seed
		if c.Order == "" {
			c.Order = "random"
		}
	}
	if timeoutDefaultFlag != "" {
		d, err := time.ParseDuration(timeoutDefaultFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", timeoutDefaultFlag, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid timeout value %q: must be positive", timeoutDefaultFlag)
		}
		c.DefaultTimeout = int(d.Milliseconds())
	}
	if historyFlag != "" && historyFlag != "default" {
		c.HistoryDB = historyFlag
	}
	if outputFlag != "" {
		c.Reporters = []string{outputFlag}
	}
	return c, nil
}

// runOutcome summarises one pass over every plan.
type runOutcome struct {
	summary    model.RunSummary
	loadErrors int
	ran        int
	stopped    bool
}

func (o *runOutcome) err(ctx context.Context) error {
	switch {
	case ctx.Err() != nil:
		return withExitCode(ExitInterrupted, errors.New("interrupted"))
	case o.summary.Failed > 0:
		return withExitCode(ExitTestFailure, nil)
	case o.loadErrors > 0:
		return withExitCode(ExitParseError, fmt.Errorf("%d plan(s) could not be loaded", o.loadErrors))
	case o.ran == 0:
		return withExitCode(ExitNoTests, plan.ErrNoTests)
	}
	return nil
}

// runOnce loads and runs every plan in turn, reporting to a fresh set of
// sinks.
func runOnce(ctx context.Context, reports *reporting, files []string, planOpts plan.Options, runOpts *runner.Options) (*runOutcome, error) {
	logger := planOpts.Logger
	report, err := reports.begin()
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}

	// Snapshot files may change between watch runs, so each run reads them
	// afresh.
	snapshots := snapshot.NewManager(updateSnapshots)
	planOpts.Snapshots = snapshots

	r := runner.NewRunner(runOpts)
	out := &runOutcome{}
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}

		assembly, err := plan.Load(file, planOpts)
		if errors.Is(err, plan.ErrNoTests) {
			logger.Info("no tests selected", "plan", file)
			continue
		}
		if err != nil {
			out.loadErrors++
			report.loadError(file, err)
			continue
		}

		result, err := r.Run(ctx, assembly, report.sink)
		if err != nil {
			out.loadErrors++
			report.loadError(file, err)
			continue
		}
		out.ran++
		out.summary.Add(result.Summary)
		logger.Debug("plan finished", "plan", file, "run", result.RunID, "total", result.Summary.Total, "failed", result.Summary.Failed)

		if result.Stopped {
			out.stopped = true
			break
		}
	}

	if err := report.finish(); err != nil {
		return out, withExitCode(ExitConfigError, fmt.Errorf("error writing output: %w", err))
	}
	if created, updated := snapshots.Stats(); created+updated > 0 {
		fmt.Fprintf(reports.cmd.ErrOrStderr(), "Snapshots: %d written, %d updated\n", created, updated)
	}
	return out, nil
}

// watch re-runs the plans whenever one of them changes, until ctx ends.
func watch(ctx context.Context, cmd *cobra.Command, args, files []string, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	addDir := func(dir string) {
		if watchedDirs[dir] {
			return
		}
		watchedDirs[dir] = true
		if err := watcher.Add(dir); err != nil {
			slog.Warn("cannot watch directory", "dir", dir, "error", err)
		}
	}
	for _, file := range files {
		addDir(filepath.Dir(file))
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			_ = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					addDir(path)
				}
				return nil
			})
		}
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var (
		debounce *time.Timer
		pending  = make(chan string, 1)
	)
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isWatchedFile(event.Name) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			name := event.Name
			debounce = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case pending <- name:
				default:
				}
			})

		case name := <-pending:
			fmt.Fprintf(cmd.ErrOrStderr(), "\nFile changed: %s\nRe-running tests...\n\n", name)
			rerun()
			fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// isWatchedFile reports whether a change to path should trigger a re-run:
// plans, config files and dotenv files.
func isWatchedFile(path string) bool {
	base := filepath.Base(path)
	if isPlanFile(base) {
		return true
	}
	for _, name := range config.ConfigFilenames {
		if base == name {
			return true
		}
	}
	return base == ".env" || strings.HasPrefix(base, ".env.")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
