package cli

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shinji-kodama/portsweep/internal/config"
	"github.com/shinji-kodama/portsweep/internal/docker"
	"github.com/shinji-kodama/portsweep/internal/model"
	"github.com/shinji-kodama/portsweep/internal/scan"
)

// scanFlags holds the flag values for the root command.
// These are bound to cobra flags in NewRootCommand.
type scanFlags struct {
	threads    uint16
	timeout    time.Duration
	container  string
	configPath string
}

// runScan is the main logic function of the CLI.
// It loads settings, resolves the target address, runs the scan, and
// prints the report.
func runScan(cmd *cobra.Command, flags *scanFlags, args []string) error {
	// Step 1: Load the config file (if any) and let explicit flags win.
	cfg, err := config.Load(config.ResolvePath(flags.configPath))
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "failed to load config", err)
	}
	applyFlags(cmd.Flags(), flags, &cfg)

	// From here on errors are printed in the format the config asked for,
	// even when --json was not passed on the command line.
	jsonOutput = cfg.JSON
	verbose = cfg.Verbose

	// Step 2: Exactly one of <ipaddr> or --container names the target.
	if err := validateTargetArgs(args, flags.container); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return model.WrapCLIError(model.ExitInvalidArgs, "invalid settings", err)
	}

	log := newLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.JSON)

	// Cancel the scan on Ctrl-C so partial results can still be printed.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Step 3: Resolve the address to scan.
	addr, err := resolveTarget(ctx, log, args, flags.container)
	if err != nil {
		return err
	}

	target, err := model.NewScanTarget(addr, cfg.Threads, cfg.Timeout.Duration)
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidArgs, "invalid scan target", err)
	}

	log.WithFields(logrus.Fields{
		"target":  target.Addr.String(),
		"workers": target.Workers,
		"timeout": target.Timeout.String(),
	}).Info("starting scan")

	// Step 4: Scan, logging worker events as they arrive.
	// scan.Run closes events when the last worker is done, which ends
	// logEvents. Waiting on logged keeps the "open port found" lines ahead
	// of the summary below.
	events := make(chan scan.Event, 64)
	logged := make(chan struct{})
	go func() {
		defer close(logged)
		logEvents(log, events)
	}()

	report, err := scan.Run(ctx, target, scan.WithEvents(events))
	<-logged

	// A signal cancels ctx with context.Canceled. The report is then partial
	// but still sorted and worth printing; anything else is a real failure.
	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		return model.WrapCLIError(model.ExitGeneralError, "scan failed", err)
	}

	log.WithFields(logrus.Fields{
		"open":      FormatPortsList(report.OpenPorts),
		"attempted": report.Attempted,
		"duration":  report.Duration.Round(time.Millisecond).String(),
	}).Info("scan complete")

	// Step 5: Output the report, partial or not.
	if err := printReport(cmd.OutOrStdout(), report, cfg.JSON, interrupted); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to write report", err)
	}

	// Exit 130 like a shell does for SIGINT, after the partial report.
	if interrupted {
		return model.WrapCLIError(model.ExitInterrupted, "scan interrupted", err)
	}
	return nil
}

// validateTargetArgs enforces that the target comes from exactly one place.
func validateTargetArgs(args []string, container string) error {
	switch {
	case len(args) == 0 && container == "":
		return model.NewCLIError(model.ExitInvalidArgs, "not enough arguments: an <ipaddr> or --container is required")
	case len(args) > 1:
		return model.NewCLIError(model.ExitInvalidArgs, "too many arguments")
	case len(args) == 1 && container != "":
		return model.NewCLIError(model.ExitInvalidArgs, "<ipaddr> and --container are mutually exclusive")
	}
	return nil
}

// applyFlags copies explicitly set flags over the loaded config, so the
// precedence is flag > config file > default.
func applyFlags(fs *pflag.FlagSet, flags *scanFlags, cfg *config.Config) {
	if fs.Changed("threads") {
		cfg.Threads = flags.threads
	}
	if fs.Changed("timeout") {
		cfg.Timeout = config.Duration{Duration: flags.timeout}
	}
	if fs.Changed("json") {
		cfg.JSON = jsonOutput
	}
	if fs.Changed("verbose") {
		cfg.Verbose = verbose
	}
}

// resolveTarget turns the positional argument or --container into an
// address. Literal addresses are parsed locally; containers are looked up
// through the Docker daemon.
func resolveTarget(ctx context.Context, log *logrus.Logger, args []string, container string) (netip.Addr, error) {
	if container == "" {
		addr, err := model.ParseAddr(args[0])
		if err != nil {
			return netip.Addr{}, model.WrapCLIError(model.ExitInvalidArgs, "invalid ipaddr: must be ipv4 or ipv6", err)
		}
		return addr, nil
	}

	addr, err := docker.ResolveContainerAddr(ctx, container)
	if err != nil {
		return netip.Addr{}, err // already a CLIError with a Docker exit code
	}
	log.WithField("container", container).Debugf("resolved container to %s", addr)
	return addr, nil
}
