package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	database   string
	owner      string
)

var rootCmd = &cobra.Command{
	Use:   "fastmp",
	Short: "Mirror WeChat official-account articles through harvested sessions",
	Long: `FastMP mirrors articles published by WeChat official accounts.

It harvests platform sessions through QR logins, rotates them under the
provider's hourly quota, and keeps a local article mirror current with
incremental syncs.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.fastmp.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&database, "database", "", "path to the SQLite database")
	rootCmd.PersistentFlags().StringVar(&owner, "owner", "", "owner identity for credentials")

	rootCmd.SetVersionTemplate(`FastMP {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags collects the persistent flags for config merging.
func globalFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if database != "" {
		flags["database"] = database
	}
	return flags
}
