package model

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"
)

const (
	// MaxPort is the highest valid TCP port number (2^16 - 1).
	MaxPort = 65535

	// DefaultTimeout bounds a single connection attempt.
	DefaultTimeout = 200 * time.Millisecond

	// DefaultWorkers is the worker count used when none is configured.
	DefaultWorkers uint16 = 4
)

// Sentinel errors returned by the constructors in this package.
// Callers match them with errors.Is.
var (
	ErrInvalidWorkerCount = errors.New("worker count must be at least 1")
	ErrInvalidTimeout     = errors.New("timeout must be positive")
	ErrInvalidAddress     = errors.New("invalid address: must be ipv4 or ipv6")
)

// ScanTarget is the immutable description of a single scan: which host to
// probe, how many workers share the port space, and how long each
// connection attempt may take.
//
// Build it with NewScanTarget so that the invariants (Workers >= 1,
// Timeout > 0, valid Addr) hold for the rest of the program.
type ScanTarget struct {
	// Addr is the host to scan. Either IPv4 or IPv6.
	Addr netip.Addr `json:"addr"`

	// Workers is the number of concurrent workers and also the stride
	// between consecutive ports scanned by one worker.
	Workers uint16 `json:"workers"`

	// Timeout bounds each TCP connection attempt.
	Timeout time.Duration `json:"timeout"`
}

// NewScanTarget validates its inputs and returns a ScanTarget.
// A zero worker count is rejected here because a stride of zero is undefined.
func NewScanTarget(addr netip.Addr, workers uint16, timeout time.Duration) (ScanTarget, error) {
	t := ScanTarget{Addr: addr, Workers: workers, Timeout: timeout}
	if err := t.Validate(); err != nil {
		return ScanTarget{}, err
	}
	return t, nil
}

// Validate checks the ScanTarget invariants.
func (t ScanTarget) Validate() error {
	if !t.Addr.IsValid() {
		return ErrInvalidAddress
	}
	if t.Workers == 0 {
		return ErrInvalidWorkerCount
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidTimeout, t.Timeout)
	}
	return nil
}

// String returns a human-readable representation of the target.
// Format: "addr (workers=N, timeout=D)"
func (t ScanTarget) String() string {
	return fmt.Sprintf("%s (workers=%d, timeout=%s)", t.Addr, t.Workers, t.Timeout)
}

// ParseAddr parses a literal IPv4 or IPv6 address. Hostnames are not
// resolved; zoned IPv6 addresses are rejected because they cannot be
// reached portably.
func ParseAddr(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if addr.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("%w: zoned address %q", ErrInvalidAddress, s)
	}
	// Unmap so that "::ffff:127.0.0.1" dials as plain IPv4.
	return addr.Unmap(), nil
}

// PortResult is a single TCP port confirmed open.
type PortResult uint16

// ScanReport is the outcome of a completed (or interrupted) scan.
// OpenPorts is strictly ascending and never contains duplicates.
type ScanReport struct {
	// Target is the ScanTarget the report was produced for.
	Target ScanTarget `json:"target"`

	// OpenPorts lists every port that accepted a connection.
	OpenPorts []PortResult `json:"openPorts"`

	// Attempted is the total number of connection attempts made.
	Attempted int `json:"attempted"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// NewScanReport builds a report from ports in arbitrary arrival order.
// The input slice is copied and sorted ascending; it is not modified.
func NewScanReport(target ScanTarget, ports []PortResult, attempted int, startedAt time.Time, duration time.Duration) ScanReport {
	// Use an empty slice instead of nil so JSON shows [] for "nothing open".
	sorted := make([]PortResult, len(ports))
	copy(sorted, ports)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return ScanReport{
		Target:    target,
		OpenPorts: sorted,
		Attempted: attempted,
		StartedAt: startedAt,
		Duration:  duration,
	}
}

// Len returns the number of open ports in the report.
func (r ScanReport) Len() int {
	return len(r.OpenPorts)
}

// Ports returns the open ports as plain uint16 values.
func (r ScanReport) Ports() []uint16 {
	out := make([]uint16, 0, len(r.OpenPorts))
	for _, p := range r.OpenPorts {
		out = append(out, uint16(p))
	}
	return out
}

// ExitCode defines the process exit codes of the portsweep CLI.
// These codes allow scripts and CI systems to programmatically determine
// the outcome of a scan.
type ExitCode int

const (
	// ExitSuccess indicates the scan completed. Finding no open ports is
	// still a success.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidArgs indicates a malformed address, worker count or flag.
	ExitInvalidArgs ExitCode = 2

	// ExitConfigError indicates the config file could not be read or parsed.
	ExitConfigError ExitCode = 3

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// while resolving a --container target.
	ExitDockerNotRunning ExitCode = 4

	// ExitContainerNotFound indicates the --container target does not exist
	// or has no IP address.
	ExitContainerNotFound ExitCode = 5

	// ExitInterrupted indicates the scan was cancelled by a signal.
	ExitInterrupted ExitCode = 130
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
