package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
	"github.com/abdul-hamid-achik/hitrun/packages/notify"
	"github.com/abdul-hamid-achik/hitrun/packages/output"
	"github.com/abdul-hamid-achik/hitrun/packages/plan"
)

var completionCmd = &cobra.Command{
	Use:   "completion <bash|zsh|fish|powershell>",
	Short: "Generate shell completion scripts",
	Long: `Generate a completion script for hitrun. Plan arguments complete to
directories and plan files only; enumerated flags such as --output,
--explicit and --notify-on complete to their accepted values.

  bash:        source <(hitrun completion bash)
  zsh:         hitrun completion zsh > "${fpath[1]}/_hitrun"
  fish:        hitrun completion fish > ~/.config/fish/completions/hitrun.fish
  powershell:  hitrun completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

var (
	completionsOnce sync.Once
	completionsErr  error
)

// registerCompletions wires argument and flag completion. It runs after every
// command's init so that the flags it completes exist.
func registerCompletions() error {
	completionsOnce.Do(func() {
		for _, c := range []*cobra.Command{runCmd, listCmd, validateCmd} {
			c.ValidArgsFunction = completePlanFiles
		}

		fixed := func(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return cobra.FixedCompletions(values, cobra.ShellCompDirectiveNoFileComp)
		}
		formats := make([]string, len(output.Formats))
		for i, f := range output.Formats {
			formats[i] = string(f)
		}

		var errs []error
		register := func(c *cobra.Command, flag string, fn func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)) {
			if err := c.RegisterFlagCompletionFunc(flag, fn); err != nil {
				errs = append(errs, fmt.Errorf("%s --%s: %w", c.Name(), flag, err))
			}
		}
		register(rootCmd, "log-format", fixed("text", "json"))
		register(runCmd, "output", fixed(formats...))
		register(runCmd, "explicit", fixed(string(runner.ExplicitOff), string(runner.ExplicitOn), string(runner.ExplicitOnly)))
		register(runCmd, "parallel-algorithm", fixed(string(runner.Conservative), string(runner.Aggressive)))
		register(runCmd, "order", fixed("default", "displayName", "declaration", "random"))
		register(runCmd, "notify", fixed("slack", "teams"))
		register(runCmd, "notify-on", fixed(string(notify.NotifyAlways), string(notify.NotifyFailure), string(notify.NotifySuccess), string(notify.NotifyRecovery)))
		completionsErr = errors.Join(errs...)
	})
	return completionsErr
}

// completePlanFiles offers the directories and plan files under the word
// being completed.
func completePlanFiles(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	dir, prefix := filepath.Split(toComplete)
	search := dir
	if search == "" {
		search = "."
	}
	entries, err := os.ReadDir(search)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var out []string
	dirsOnly := true
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || (strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".")) {
			continue
		}
		switch {
		case e.IsDir():
			out = append(out, dir+name+string(filepath.Separator))
		case isPlanFile(name):
			out = append(out, dir+name)
			dirsOnly = false
		}
	}

	directive := cobra.ShellCompDirectiveNoFileComp
	if len(out) > 0 && dirsOnly {
		directive |= cobra.ShellCompDirectiveNoSpace
	}
	return out, directive
}

func isPlanFile(name string) bool {
	for _, ext := range plan.PlanExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
