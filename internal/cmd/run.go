package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gopbs/internal/observability"
)

// runCmd supervises one job. submit starts it as a detached child.
var runCmd = &cobra.Command{
	Use:    "run --job-id <id> [flags] <script>",
	Short:  "Run and supervise an already submitted job",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE:   runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addJobFlags(runCmd)
	runCmd.Flags().String("job-id", "", "Job id allocated by submit")
	runCmd.Flags().String("workdir", "", "Job working directory")
	_ = runCmd.MarkFlagRequired("job-id")
}

func runRun(cmd *cobra.Command, args []string) error {
	jobID, _ := cmd.Flags().GetString("job-id")
	workDir, _ := cmd.Flags().GetString("workdir")
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("%w: --job-id is required", errUsage)
	}

	script, err := resolveScript(args[0])
	if err != nil {
		return err
	}
	env, err := loadEnvironment(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	desc, err := descriptorFromFlags(cmd, jobID, script, env.settings)
	if err != nil {
		return err
	}
	if strings.TrimSpace(workDir) == "" {
		if workDir, err = os.Getwd(); err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
	}

	code, err := newExecutor(env, workDir).Run(cmd.Context(), desc, script)
	if err != nil {
		return err
	}
	observability.CLILogger.Debug("Job supervisor finished", zap.String("job_id", jobID), zap.Int("exit_code", code))
	return nil
}
