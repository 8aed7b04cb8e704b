package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/config"
	"github.com/abdul-hamid-achik/hitrun/packages/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded test runs",
	Long: `Show runs recorded with 'hitrun run --history'.

Without flags the most recent runs are listed. --run shows the tests of
one run and --flaky lists tests that both passed and failed recently.

Examples:
  hitrun history
  hitrun history -n 50
  hitrun history --run 3f0c...
  hitrun history --flaky smoke`,
	Args: cobra.NoArgs,
	RunE: historyCommand,
}

var (
	historyDBFlag    string
	historyLimitFlag int
	historyRunFlag   string
	historyFlakyFlag string
)

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "db", getEnvString("HITRUN_HISTORY_DB", ""), "History database (default from config or "+history.DefaultPath+")")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of runs to consider")
	historyCmd.Flags().StringVar(&historyRunFlag, "run", "", "Show the tests of one run")
	historyCmd.Flags().StringVar(&historyFlakyFlag, "flaky", "", "List flaky tests of the named assembly")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	if historyLimitFlag <= 0 {
		return usageError(fmt.Errorf("--limit must be positive"))
	}

	path, err := historyPath()
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	if _, err := os.Stat(path); err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("no history at %s (record runs with 'hitrun run --history')", path))
	}

	store, err := history.Open(path)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case historyRunFlag != "":
		tests, err := store.Tests(ctx, historyRunFlag)
		if err != nil {
			return err
		}
		if len(tests) == 0 {
			return fmt.Errorf("run %s not found", historyRunFlag)
		}
		renderTests(out, historyRunFlag, tests)
	case historyFlakyFlag != "":
		names, err := store.Flaky(ctx, historyFlakyFlag, historyLimitFlag)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintf(out, "No flaky tests in the last %d runs of %s\n", historyLimitFlag, historyFlakyFlag)
			return nil
		}
		fmt.Fprintf(out, "Flaky tests in the last %d runs of %s:\n", historyLimitFlag, historyFlakyFlag)
		for _, name := range names {
			fmt.Fprintf(out, "  %s\n", name)
		}
	default:
		runs, err := store.Recent(ctx, historyLimitFlag)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded")
			return nil
		}
		renderRuns(out, runs)
	}
	return nil
}

// historyPath prefers --db, then the config in the working directory.
func historyPath() (string, error) {
	if historyDBFlag != "" {
		return historyDBFlag, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	cfg, _, err := config.FindAndLoadConfig(cwd)
	if err != nil {
		return "", err
	}
	if cfg.HistoryDB != "" {
		return cfg.HistoryDB, nil
	}
	return history.DefaultPath, nil
}

func renderRuns(w io.Writer, runs []history.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Assembly", "Started", "Duration", "Total", "Passed", "Failed", "Skipped", "Not Run"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID,
			r.Assembly,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond),
			r.Total, r.Passed(), r.Failed, r.Skipped, r.NotRun,
		})
	}
	t.Render()
}

func renderTests(w io.Writer, runID string, tests []history.TestRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(runID)
	t.AppendHeader(table.Row{"Collection", "Class", "Test", "Status", "Duration", "Message"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, WidthMax: 60},
	})
	for _, tr := range tests {
		status := tr.Status
		if tr.Cause != "" {
			status += " (" + tr.Cause + ")"
		}
		t.AppendRow(table.Row{tr.Collection, tr.Class, tr.Name, status, tr.Duration.Round(time.Millisecond), tr.Message})
	}
	t.Render()
}
