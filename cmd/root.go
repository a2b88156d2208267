package cmd

import (
	"io"
	"os"

	"github.com/grovetools/assetbuild/pkg/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Options holds the persistent flags shared by every command.
type Options struct {
	Verbose    bool
	JSONOutput bool
	ConfigPath string
	NoColor    bool
}

var rootOpts Options

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assetbuild",
		Short: "Build Node/TypeScript sources into deployable code assets",
		Long: `assetbuild prepares a TypeScript project for deployment.

It installs dependencies, compiles the sources into an output directory
(.deploy by default), copies package.json and the lockfile there, and installs
production dependencies only. A stamp file (.deploy.stamp) records when the
output was last built; the build is skipped while no source file is newer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&rootOpts.Verbose, "verbose", "v", false, "Enable debug logging and stream tool output")
	cmd.PersistentFlags().BoolVar(&rootOpts.JSONOutput, "json", false, "Output results as JSON")
	cmd.PersistentFlags().StringVarP(&rootOpts.ConfigPath, "config", "c", "", "Config file (default: assetbuild.yml/.yaml/.toml in the source dir)")
	cmd.PersistentFlags().BoolVar(&rootOpts.NoColor, "no-color", os.Getenv("NO_COLOR") != "", "Disable colored output")

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newBindCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCleanCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// getLogger creates the command logger. Logs go to stderr so that --json
// output on stdout stays machine readable; under --json they are JSON lines too.
func getLogger(cmd *cobra.Command) *logrus.Logger {
	return logger.New(logger.Options{
		Verbose: rootOpts.Verbose,
		Output:  stderrOf(cmd),
		JSON:    rootOpts.JSONOutput,
	})
}

func stdoutOf(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}

func stderrOf(cmd *cobra.Command) io.Writer {
	return cmd.ErrOrStderr()
}
