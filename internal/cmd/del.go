package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gopbs/internal/observability"
	"github.com/3leaps/gopbs/pkg/jobregistry"
)

var delCmd = &cobra.Command{
	Use:   "del <job_id>...",
	Short: "Delete (signal) jobs",
	Long: `Send a signal to the process of each job. The supervising gopbs
process notices the termination, reports the job as aborted and removes its
lock file.

Job ids are matched as literal prefixes against lock file names, so "1" also
matches "10.host.domain" when job 1 is not tracked. Pass the full id to be
exact.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDel,
}

func init() {
	rootCmd.AddCommand(delCmd)
	delCmd.Flags().StringP("signal", "s", "TERM", "Signal name or number to send")
}

func runDel(cmd *cobra.Command, args []string) error {
	sigStr, _ := cmd.Flags().GetString("signal")
	sig, err := parseSignal(sigStr)
	if err != nil {
		return err
	}

	env, err := loadEnvironment(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	out := cmd.OutOrStdout()
	failed := 0
	for _, id := range args {
		if !env.store.Signal(id, sig) {
			observability.CLILogger.Warn("Job not found or not running", zap.String("job_id", id))
			failed++
			continue
		}
		env.events.Info("Job signalled", zap.String("job_id", id), zap.String("signal", signalName(sig)))
		_, _ = fmt.Fprintf(out, "sent=%s job_id=%s\n", signalName(sig), id)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d job(s) not signalled", jobregistry.ErrNotFound, failed)
	}
	return nil
}
