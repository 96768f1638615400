package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/sfisum/pkg/sfisum/config"
	"github.com/jamesainslie/sfisum/pkg/sfisum/output"
)

// Exit codes.
const (
	exitFindings    = 2
	exitInterrupted = 130
)

// exitError carries a process exit code. An empty message means the
// problem was already reported.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

var (
	cfgFile   string
	configErr error

	rootCmd = &cobra.Command{
		Use:   "sfisum",
		Short: "Audit the integrity of a directory tree",
		Long: `sfisum records a content digest for every file in a directory and later
checks the tree against that manifest to find corruption, modification,
moved files and files that went missing.

Examples:
  sfisum generate ~/Photos                       # hash everything, write a manifest
  sfisum validate ~/Photos/2024-05-01_10-00.md5  # re-hash every listed file
  sfisum refresh ~/Photos/2024-05-01_10-00.md5   # only re-hash what changed
  sfisum history                                 # past runs`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initializeLogging,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/sfisum/config.yaml)")
	flags.String("threshold", "", "size separating small and large files (e.g. 1MiB)")
	flags.Int("small-workers", 0, "small-file hashing workers (0=auto)")
	flags.Int("large-workers", 0, "large-file hashing workers (0=auto)")
	flags.StringSliceP("exclude", "e", nil, "glob patterns to skip (can be specified multiple times)")
	flags.StringP("output", "o", "", "directory for new manifests (default: the audited directory)")
	flags.StringP("format", "f", "", fmt.Sprintf("report format %v", output.Available()))
	flags.String("template", "", "text/template used with --format template")
	flags.Bool("no-progress", false, "do not show live progress")
	flags.Bool("no-history", false, "do not record this run in the history")
	flags.BoolP("quiet", "q", false, "minimal output")
	flags.BoolP("verbose", "v", false, "mirror debug logs to stderr")

	_ = viper.BindPFlag("threshold", flags.Lookup("threshold"))
	_ = viper.BindPFlag("workers.small", flags.Lookup("small-workers"))
	_ = viper.BindPFlag("workers.large", flags.Lookup("large-workers"))
	_ = viper.BindPFlag("exclude", flags.Lookup("exclude"))
	_ = viper.BindPFlag("output_dir", flags.Lookup("output"))
	_ = viper.BindPFlag("format", flags.Lookup("format"))
	_ = viper.BindPFlag("template", flags.Lookup("template"))
	_ = viper.BindPFlag("no_progress", flags.Lookup("no-progress"))
	_ = viper.BindPFlag("no_history", flags.Lookup("no-history"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
}

// initConfig reads the config file and environment variables.
func initConfig() {
	v := viper.GetViper()
	config.Configure(v, cfgFile)
	configErr = config.ReadInConfig(v)
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.msg != "" {
			printError("%v", err)
		}
	}
	return err
}

func getVerbose() bool {
	return viper.GetBool("verbose")
}

func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...any) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints to stderr unless quiet, keeping stdout for reports.
func printInfo(format string, args ...any) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
