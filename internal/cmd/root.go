package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/3leaps/gopbs/internal/config"
	"github.com/3leaps/gopbs/internal/observability"
)

// AppIdentity describes the binary for banners and help text.
type AppIdentity struct {
	BinaryName  string
	Description string
	EnvPrefix   string
	ConfigName  string
}

var (
	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{
		Version:   "dev",
		Commit:    "unknown",
		BuildDate: "unknown",
	}

	appIdentity *AppIdentity
)

var rootCmd = &cobra.Command{
	Use:   "gopbs",
	Short: "Single-host batch queue emulator",
	Long: `gopbs emulates a PBS style batch queue on a single host.

Every job is a local process. Jobs are tracked through lock files in the gopbs
home directory, and lifecycle events can be reported by mail and push
notification.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.InitCLILogger(appIdentity.BinaryName, viper.GetBool("verbose"))
	},
}

func init() {
	appIdentity = &AppIdentity{
		BinaryName:  "gopbs",
		Description: "Single-host batch queue emulator",
		EnvPrefix:   config.EnvPrefix + "_",
		ConfigName:  config.FileName,
	}

	rootCmd.PersistentFlags().String("home", "", "gopbs home directory (default $"+config.HomeEnv+")")
	rootCmd.PersistentFlags().String("config", "", "Additional config file")
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "Enable debug logging")

	_ = viper.BindPFlag("home", rootCmd.PersistentFlags().Lookup("home"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindEnv("home", config.HomeEnv)
	setDefaults()
}

func setDefaults() {
	viper.SetDefault("home", "")
	viper.SetDefault("config", "")
	viper.SetDefault("verbose", false)
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the binary identity, or nil before init.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		ExitWithCode(observability.CLILogger, exitCodeFor(err), "Command failed", err)
	}
}
