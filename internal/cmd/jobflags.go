package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/3leaps/gopbs/pkg/jobid"
	"github.com/3leaps/gopbs/pkg/jobregistry"
	"github.com/3leaps/gopbs/pkg/settings"
)

// addJobFlags registers the job attribute flags shared by submit and run.
func addJobFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("name", "N", "", "Job name (default: script file name)")
	f.StringP("output", "o", "", "Standard output file (default: <name>.o<seq>)")
	f.StringP("error", "e", "", "Standard error file (default: <name>.e<seq>)")
	f.StringP("join", "j", "", "Join streams: oe merges stderr into output, eo merges stdout into error")
	f.StringP("mail-points", "m", "", "Mail on: a (abort), b (begin), e (end), n (never)")
	f.StringSliceP("mail-users", "M", nil, "Mail recipients (default: mail.recipients)")
	f.StringP("variables", "v", "", "Comma separated NAME=value pairs exported to the job")
}

// descriptorFromFlags builds a descriptor for script from the job flags.
func descriptorFromFlags(cmd *cobra.Command, jobID, script string, s *settings.Settings) (*jobregistry.Descriptor, error) {
	f := cmd.Flags()
	name, _ := f.GetString("name")
	output, _ := f.GetString("output")
	errPath, _ := f.GetString("error")
	join, _ := f.GetString("join")
	points, _ := f.GetString("mail-points")
	users, _ := f.GetStringSlice("mail-users")
	vars, _ := f.GetString("variables")

	join = strings.ToLower(strings.TrimSpace(join))
	switch join {
	case "", "n", "oe", "eo":
	default:
		return nil, fmt.Errorf("%w: --join must be oe, eo or n, got %q", errUsage, join)
	}
	points = strings.ToLower(strings.TrimSpace(points))
	if strings.Trim(points, "aben") != "" {
		return nil, fmt.Errorf("%w: --mail-points accepts only a, b, e and n, got %q", errUsage, points)
	}

	d := jobregistry.NewDescriptor(jobID)
	d.Name = strings.TrimSpace(name)
	if d.Name == "" {
		d.Name = filepath.Base(script)
	}
	d.Server = s.Server.FQDN()
	d.Owner = jobid.CurrentUsername() + "@" + d.Server
	d.JoinPath = join
	d.MailPoints = points
	d.VariableList = strings.TrimSpace(vars)
	for _, u := range users {
		if u = strings.TrimSpace(u); u != "" {
			d.MailUsers = append(d.MailUsers, u)
		}
	}

	var err error
	if d.OutputPath, err = absOrEmpty(output); err != nil {
		return nil, err
	}
	if d.ErrorPath, err = absOrEmpty(errPath); err != nil {
		return nil, err
	}
	return d, nil
}

// jobFlagArgs renders d back into job flags for the background run command.
func jobFlagArgs(d *jobregistry.Descriptor) []string {
	args := []string{"--name", d.Name}
	if d.OutputPath != "" {
		args = append(args, "--output", d.OutputPath)
	}
	if d.ErrorPath != "" {
		args = append(args, "--error", d.ErrorPath)
	}
	if d.JoinPath != "" {
		args = append(args, "--join", d.JoinPath)
	}
	if d.MailPoints != "" {
		args = append(args, "--mail-points", d.MailPoints)
	}
	if len(d.MailUsers) > 0 {
		args = append(args, "--mail-users", strings.Join(d.MailUsers, ","))
	}
	if d.VariableList != "" {
		args = append(args, "--variables", d.VariableList)
	}
	return args
}

func absOrEmpty(p string) (string, error) {
	if p = strings.TrimSpace(p); p == "" {
		return "", nil
	}
	return filepath.Abs(p)
}
