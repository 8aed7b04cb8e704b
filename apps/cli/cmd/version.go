package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/assertions"
	"github.com/abdul-hamid-achik/hitrun/packages/output"
	"github.com/abdul-hamid-achik/hitrun/packages/plan"
)

var versionJSONFlag bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and supported plan features",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeVersion(cmd.OutOrStdout(), currentVersion(), versionJSONFlag)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSONFlag, "json", false, "Print as JSON")
}

// versionInfo describes the binary and what plans it accepts, so CI can
// check a runner before handing it plans.
type versionInfo struct {
	Version        string   `json:"version"`
	BuildTime      string   `json:"buildTime"`
	Go             string   `json:"go"`
	Platform       string   `json:"platform"`
	PlanExtensions []string `json:"planExtensions"`
	Reporters      []string `json:"reporters"`
	AssertOps      []string `json:"assertOperators"`
}

func currentVersion() versionInfo {
	reporters := make([]string, len(output.Formats))
	for i, f := range output.Formats {
		reporters[i] = string(f)
	}
	return versionInfo{
		Version:        version,
		BuildTime:      buildTime,
		Go:             runtime.Version(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		PlanExtensions: plan.PlanExtensions,
		Reporters:      reporters,
		AssertOps:      assertions.OperatorNames(),
	}
}

func writeVersion(w io.Writer, info versionInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	_, err := fmt.Fprintf(w, "hitrun %s (built %s, %s %s)\nplans:     %s\nreporters: %s\nasserts:   %d operators\n",
		info.Version, info.BuildTime, info.Go, info.Platform,
		strings.Join(info.PlanExtensions, ", "),
		strings.Join(info.Reporters, ", "),
		len(info.AssertOps))
	return err
}
