package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]string{
				"version":    versionInfo.Version,
				"commit":     versionInfo.Commit,
				"build_date": versionInfo.BuildDate,
				"go_version": runtime.Version(),
			})
		}
		_, _ = fmt.Fprintf(out, "%s %s\n", appIdentity.BinaryName, versionInfo.Version)
		_, _ = fmt.Fprintf(out, "commit: %s\n", versionInfo.Commit)
		_, _ = fmt.Fprintf(out, "built: %s\n", versionInfo.BuildDate)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output as JSON")
}
