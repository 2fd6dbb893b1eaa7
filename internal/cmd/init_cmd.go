package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/3leaps/gopbs/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the gopbs home directory and a default config file",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	home, err := config.ResolveHome(viper.GetString("home"))
	if err != nil {
		return &configError{err: err}
	}
	if err := os.MkdirAll(home, 0755); err != nil {
		return fmt.Errorf("create home %s: %w", home, err)
	}
	path := filepath.Join(home, config.FileName)
	written, err := config.WriteDefaults(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "home=%s\n", home)
	_, _ = fmt.Fprintf(out, "config=%s\n", path)
	_, _ = fmt.Fprintf(out, "created=%t\n", written)
	return nil
}
