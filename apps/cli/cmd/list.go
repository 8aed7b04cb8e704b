package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/plan"
)

var listCmd = &cobra.Command{
	Use:   "list <plan|directory>...",
	Short: "List the test cases in plans",
	Long: `List the test cases plans define, after filtering, grouped by
collection and class.

Examples:
  hitrun list smoke.plan.yaml
  hitrun list ./plans/ --traits category=smoke`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

var (
	listNameFlag   string
	listTraitsFlag string
	listEnvFlag    string
)

func init() {
	listCmd.Flags().StringVarP(&listNameFlag, "name", "n", "", "List only tests matching name pattern")
	listCmd.Flags().StringVarP(&listTraitsFlag, "traits", "t", "", "List only tests with any of the traits")
	listCmd.Flags().StringVarP(&listEnvFlag, "env", "e", getEnvString("HITRUN_ENV", ""), "Plan environment to use (env: HITRUN_ENV)")
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := plan.Discover(args)
	if err != nil {
		return withExitCode(ExitParseError, err)
	}
	if len(files) == 0 {
		return withExitCode(ExitParseError, fmt.Errorf("no %s files found", strings.Join(plan.PlanExtensions, " or ")))
	}

	opts := plan.Options{
		Environment: listEnvFlag,
		Filter:      plan.Filter{Name: listNameFlag, Traits: splitList(listTraitsFlag)},
	}

	failed := false
	for _, file := range files {
		assembly, err := plan.Load(file, opts)
		if errors.Is(err, plan.ErrNoTests) {
			continue
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error loading %s: %v\n", file, err)
			failed = true
			continue
		}
		printAssembly(cmd.OutOrStdout(), file, assembly)
	}

	if failed {
		return withExitCode(ExitParseError, nil)
	}
	return nil
}

func printAssembly(w io.Writer, file string, a *model.Assembly) {
	fmt.Fprintf(w, "\n%s (%s):\n", a.Name, file)
	for _, col := range a.Collections {
		fmt.Fprintf(w, "  %s\n", col.DisplayName)
		for _, class := range col.Classes {
			fmt.Fprintf(w, "    %s\n", class.Name)
			for _, tc := range class.TestCases() {
				fmt.Fprintf(w, "      - %s%s\n", tc.DisplayName, caseNotes(tc))
			}
		}
	}
}

func caseNotes(tc *model.TestCase) string {
	var notes []string
	if tc.Explicit {
		notes = append(notes, "explicit")
	}
	if tc.SkipReason != "" {
		notes = append(notes, "skip: "+tc.SkipReason)
	}
	traits := tc.AllTraits()
	names := make([]string, 0, len(traits))
	for name := range traits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		notes = append(notes, name+"="+strings.Join(traits[name], ","))
	}
	if len(notes) == 0 {
		return ""
	}
	return " [" + strings.Join(notes, "; ") + "]"
}
