// Package cli implements the cobra-based command line for portsweep.
//
// portsweep has a single command: the root command scans one target. This
// file defines that command, its flags, and the translation of errors into
// exit codes. scan.go holds the scan workflow and output.go the formatting.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// Global flag variables shared by the error printer and the scan workflow.
var (
	// jsonOutput controls whether output is formatted as JSON.
	// When true, the report and any error are written as JSON objects.
	jsonOutput bool

	// verbose lowers the log level to debug, which includes per-worker
	// progress.
	verbose bool
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
func NewRootCommand() *cobra.Command {
	flags := &scanFlags{}

	rootCmd := &cobra.Command{
		Use:   "portsweep [flags] <ipaddr>",
		Short: "Concurrent TCP connect scanner for the full port range",
		Long: `portsweep probes every TCP port (1-65535) of a single host and reports
the ports that accept a connection.

The port range is split across a fixed number of workers: worker i scans
ports i+1, i+1+N, i+1+2N, ... where N is the worker count.

Examples:
  portsweep 127.0.0.1
  portsweep -j 100 192.168.1.10
  portsweep -j 64 -t 500ms ::1
  portsweep --container db --json`,

		Args: cobra.MaximumNArgs(1),

		// SilenceUsage prevents cobra from printing usage on every error.
		SilenceUsage: true,

		// SilenceErrors lets Execute format errors as text or JSON.
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, flags, args)
		},
	}

	f := rootCmd.Flags()
	f.Uint16VarP(&flags.threads, "threads", "j", model.DefaultWorkers, "Number of concurrent workers (1-65535)")
	f.DurationVarP(&flags.timeout, "timeout", "t", model.DefaultTimeout, "Per-port connect timeout")
	f.StringVar(&flags.container, "container", "", "Scan the IP address of this Docker container (name or ID)")
	f.StringVarP(&flags.configPath, "config", "c", "", "Config file (.yaml, .yml, .json, .jsonc); defaults to $PORTSWEEP_CONFIG")

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// A non-numeric or zero -j should exit with ExitInvalidArgs, not the
	// generic code cobra would otherwise produce.
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return model.WrapCLIError(model.ExitInvalidArgs, "invalid flag", err)
	})

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// CLIError values carry their own exit codes; other errors exit with 1.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(rootCmd.ErrOrStderr(), cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(rootCmd.ErrOrStderr(), err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag. Errors always go to
// w, which is stderr in production; stdout is reserved for the report.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
	} else {
		if underlying != nil {
			fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(w, "Error: %s\n", message)
		}
	}
}
