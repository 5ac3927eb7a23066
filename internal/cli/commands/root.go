// Package commands implements the jsonapi-server command line
package commands

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "jsonapi-server",
		Short: "Serve relational entities as JSON:API resources",
		Long: color.CyanString(`jsonapi-server exposes mapped entities as JSON:API resources.

Resource types, attributes and relationships are derived from entity
metadata. Configuration is read from jsonapi.yaml (or --config) and
JSONAPI_* environment variables.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file (default ./jsonapi.yaml)")

	loader := func() (*app, error) { return loadApp(configPath) }

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewServeCommand(loader))
	rootCmd.AddCommand(NewMigrateCommand(loader))
	rootCmd.AddCommand(NewSchemaCommand(loader))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			title := color.New(color.FgCyan, color.Bold)

			title.Fprint(out, "jsonapi-server version: ")
			fmt.Fprintln(out, Version)
			title.Fprint(out, "Git commit: ")
			fmt.Fprintln(out, GitCommit)
			title.Fprint(out, "Build date: ")
			fmt.Fprintln(out, BuildDate)
			title.Fprint(out, "Go version: ")
			fmt.Fprintln(out, goVer)
		},
	}
}
