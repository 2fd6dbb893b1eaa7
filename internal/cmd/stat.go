package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gopbs/internal/observability"
	"github.com/3leaps/gopbs/pkg/jobregistry"
)

var statCmd = &cobra.Command{
	Use:   "stat [job_id...]",
	Short: "Show status of jobs",
	Long: `Show the status of tracked jobs.

Without arguments every job with a lock file is listed. A job id may be
abbreviated to any unambiguous prefix, e.g. the bare sequence number.

Resource usage (cput, mem, vmem, threads) is sampled live from the job's
process tree; values that cannot be determined are omitted.`,
	RunE: runStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
	statCmd.Flags().BoolP("full", "f", false, "Show all job attributes")
	statCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStat(cmd *cobra.Command, args []string) error {
	full, _ := cmd.Flags().GetBool("full")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	env, err := loadEnvironment(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	var jobs []jobregistry.Descriptor
	missing := 0
	if len(args) == 0 {
		if jobs, err = env.store.List(); err != nil {
			return err
		}
	}
	for _, arg := range args {
		id, err := resolveJobID(env.store, arg)
		if err == nil {
			var d *jobregistry.Descriptor
			if d, err = env.store.Read(id); err == nil {
				jobs = append(jobs, *d)
				continue
			}
		}
		observability.CLILogger.Warn("Unknown job id", zap.String("job_id", arg), zap.Error(err))
		missing++
	}

	out := cmd.OutOrStdout()
	switch {
	case jsonOutput:
		if jobs == nil {
			jobs = []jobregistry.Descriptor{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(jobs); err != nil {
			return err
		}
	case len(jobs) == 0 && len(args) == 0:
		_, _ = fmt.Fprintln(out, "No jobs found")
	case full:
		for i := range jobs {
			if i > 0 {
				_, _ = fmt.Fprintln(out)
			}
			printFullStatus(out, &jobs[i])
		}
	default:
		printStatusTable(out, jobs)
	}

	if missing > 0 {
		return fmt.Errorf("%w: %d unknown job id(s)", jobregistry.ErrNotFound, missing)
	}
	return nil
}

func printStatusTable(out io.Writer, jobs []jobregistry.Descriptor) {
	if len(jobs) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tNAME\tUSER\tTIME USE\tS\tEXEC HOST")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			j.JobID,
			orDash(j.Name),
			orDash(ownerName(j.Owner)),
			orDash(j.ResourcesUsed[jobregistry.ResourceCPUTime]),
			jobState(&j),
			orDash(j.ExecHost),
		)
	}
}

// printFullStatus prints every attribute in the PBS "qstat -f" layout.
func printFullStatus(out io.Writer, d *jobregistry.Descriptor) {
	_, _ = fmt.Fprintf(out, "Job Id: %s\n", d.JobID)
	attr := func(name, value string) {
		if value != "" {
			_, _ = fmt.Fprintf(out, "    %s = %s\n", name, value)
		}
	}
	attr("Job_Name", d.Name)
	attr("Job_Owner", d.Owner)
	attr("job_state", jobState(d))
	attr("server", d.Server)
	attr("exec_host", d.ExecHost)
	if d.PID > 0 {
		attr("session_id", strconv.Itoa(d.PID))
	}
	if d.StartTime > 0 {
		attr("start_time", time.Unix(d.StartTime, 0).Format(time.ANSIC))
	}
	attr("Output_Path", d.OutputPath)
	attr("Error_Path", d.ErrorPath)
	attr("Join_Path", d.JoinPath)
	attr("Mail_Points", d.MailPoints)
	attr("Mail_Users", strings.Join(d.MailUsers, ","))
	attr("Variable_List", d.VariableList)
	if d.ExitStatus != nil {
		attr("exit_status", strconv.Itoa(*d.ExitStatus))
	}

	keys := make([]string, 0, len(d.ResourcesUsed))
	for k := range d.ResourcesUsed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attr("resources_used."+k, d.ResourcesUsed[k])
	}
	attr("lockfile", d.Lockfile)
}

// jobState is R while the recorded process is alive and E for a stale lock.
func jobState(d *jobregistry.Descriptor) string {
	if jobregistry.IsAlive(d.PID) {
		return "R"
	}
	return "E"
}

func ownerName(owner string) string {
	name, _, _ := strings.Cut(owner, "@")
	return name
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

// resolveJobID returns the full job id for input: an exact lock file match
// first, then a unique match on whole dot-separated components, so "1" and
// "1.host" select "1.host.domain" but never "10.host.domain".
func resolveJobID(store *jobregistry.Store, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: job_id is required", errUsage)
	}

	if _, err := os.Stat(store.LockPath(input)); err == nil {
		return input, nil
	}

	jobs, err := store.List()
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, j := range jobs {
		if strings.HasPrefix(j.JobID, input+".") {
			matches = append(matches, j.JobID)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: job not found: %s", jobregistry.ErrNotFound, input)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("%w: job id prefix is ambiguous (%d matches); use the full job_id", errUsage, len(matches))
	}
	return matches[0], nil
}
