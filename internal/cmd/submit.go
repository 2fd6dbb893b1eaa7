package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/gopbs/internal/observability"
	"github.com/3leaps/gopbs/pkg/supervisor"
)

var submitCmd = &cobra.Command{
	Use:   "submit [flags] <script>",
	Short: "Submit a job script",
	Long: `Submit a job script for execution on this host.

The job id is printed on stdout. By default the job is supervised by a
detached gopbs process and submit returns immediately; --foreground runs the
job in the current process and exits with the job's exit code.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	addJobFlags(submitCmd)
	submitCmd.Flags().Bool("foreground", false, "Run the job in this process and wait for it")
	submitCmd.Flags().Bool("json", false, "Output as JSON")
}

type submitResult struct {
	JobID         string `json:"job_id"`
	SupervisorPID int    `json:"supervisor_pid,omitempty"`
	ExitStatus    *int   `json:"exit_status,omitempty"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	foreground, _ := cmd.Flags().GetBool("foreground")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	script, err := resolveScript(args[0])
	if err != nil {
		return err
	}

	env, err := loadEnvironment(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	desc, err := descriptorFromFlags(cmd, "", script, env.settings)
	if err != nil {
		return err
	}
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	jobID, err := env.allocator().Allocate()
	if err != nil {
		return err
	}
	desc.JobID = jobID
	env.events.Info("Job submitted", zap.String("job_id", jobID), zap.String("name", desc.Name),
		zap.String("script", script), zap.Bool("foreground", foreground))

	out := cmd.OutOrStdout()
	result := submitResult{JobID: jobID}

	if !foreground {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		runArgs := []string{"run", "--home", env.home, "--job-id", jobID, "--workdir", workDir}
		if cfg := strings.TrimSpace(viper.GetString("config")); cfg != "" {
			runArgs = append(runArgs, "--config", cfg)
		}
		if viper.GetBool("verbose") {
			runArgs = append(runArgs, "--verbose")
		}
		runArgs = append(runArgs, jobFlagArgs(desc)...)
		runArgs = append(runArgs, "--", script)

		pid, err := supervisor.StartBackground(exe, runArgs, filepath.Join(env.home, "logs", jobID+".log"))
		if err != nil {
			return err
		}
		observability.CLILogger.Debug("Started job supervisor", zap.String("job_id", jobID), zap.Int("pid", pid))
		result.SupervisorPID = pid
		return writeSubmitResult(out, result, jsonOutput)
	}

	if !jsonOutput {
		_, _ = fmt.Fprintln(out, jobID)
	}
	code, err := newExecutor(env, workDir).Run(cmd.Context(), desc, script)
	if err != nil {
		return err
	}
	result.ExitStatus = &code
	if jsonOutput {
		if err := writeSubmitResult(out, result, true); err != nil {
			return err
		}
	}
	if code != 0 {
		env.Close()
		ExitWithCode(observability.CLILogger, code, "Job exited with non-zero status", nil)
	}
	return nil
}

func writeSubmitResult(w io.Writer, r submitResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	_, err := fmt.Fprintln(w, r.JobID)
	return err
}

func newExecutor(env *environment, workDir string) *supervisor.Executor {
	return supervisor.NewExecutor(env.store, *env.settings,
		supervisor.WithLogger(observability.CLILogger),
		supervisor.WithEventLogger(env.events),
		supervisor.WithWorkDir(workDir),
	)
}

func resolveScript(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: script path is required", errUsage)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: resolve script path: %v", errUsage, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: script not found: %s", errUsage, abs)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: script is a directory: %s", errUsage, abs)
	}
	return abs, nil
}
