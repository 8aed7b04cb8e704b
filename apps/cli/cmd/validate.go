package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/plan"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan|directory>...",
	Short: "Validate plans without running them",
	Long: `Validate plans against the plan schema and check that every test
can be built, without executing anything.

Examples:
  hitrun validate smoke.plan.yaml
  hitrun validate ./plans/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := plan.Discover(args)
	if err != nil {
		return withExitCode(ExitParseError, err)
	}
	if len(files) == 0 {
		return withExitCode(ExitParseError, fmt.Errorf("no %s files found", strings.Join(plan.PlanExtensions, " or ")))
	}

	hasErrors := false
	for _, file := range files {
		p, err := plan.LoadFile(file)
		if err == nil {
			_, err = plan.Build(p, file, plan.Options{})
			if errors.Is(err, plan.ErrNoTests) {
				err = nil
			}
		}

		if err != nil {
			hasErrors = true
			var schemaErr *plan.SchemaError
			if errors.As(err, &schemaErr) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Invalid: %s\n", file)
				for _, problem := range schemaErr.Problems {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", problem)
				}
				continue
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d tests)\n", file, p.CountTests())
	}

	if hasErrors {
		return withExitCode(ExitParseError, errors.New("validation failed"))
	}
	return nil
}
