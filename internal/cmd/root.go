// Package cmd wires the skillbridge CLI.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skillbridge/skillbridge/internal/config"
	"github.com/skillbridge/skillbridge/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// appConfig is loaded by initConfig before any subcommand runs.
	appConfig *config.Config

	// versionInfo is set by the main package via ldflags.
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by the main package to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "skillbridge",
	Short: "HTTP bridge for invoking host main-thread skills",
	Long: `skillbridge exposes named operations ("skills") over HTTP while
executing every one of them on a single cooperatively-scheduled host
thread. Remote agents POST /skill/{name}; the bridge queues the request
and delivers the result once the host thread has run it.

Use the subcommands to perform specific operations.`,
}

// Execute adds all child commands to the root command and runs it. This
// is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $XDG_CONFIG_HOME/skillbridge/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig loads configuration and initializes the CLI logger.
func initConfig() {
	observability.InitCLILogger("skillbridge", verbose)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		ExitWithCodeStderr(exitCodeConfigInvalid, "Failed to load configuration", err)
	}
	appConfig = cfg
}
