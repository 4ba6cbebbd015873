package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/portsweep/internal/config"
	"github.com/shinji-kodama/portsweep/internal/model"
	"github.com/shinji-kodama/portsweep/internal/scan"
)

// executeRoot runs the root command with args and returns stdout, stderr
// and the error. It does not call Execute, which would exit the process.
func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeRootContext(t, context.Background(), args...)
}

// executeRootContext is executeRoot with a caller-supplied context, which
// stands in for the signal-driven cancellation of a real run.
func executeRootContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")

	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// writeConfigFile writes content to a config file named name in a temp dir.
func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// requireExitCode asserts err is a CLIError carrying code.
func requireExitCode(t *testing.T, err error, code model.ExitCode) {
	t.Helper()
	require.Error(t, err)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected CLIError, got %T: %v", err, err)
	assert.Equal(t, code, cliErr.Code, "unexpected exit code for %v", err)
}

func TestValidateTargetArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		container string
		wantErr   bool
	}{
		{"address only", []string{"127.0.0.1"}, "", false},
		{"container only", nil, "db", false},
		{"neither", nil, "", true},
		{"both", []string{"127.0.0.1"}, "db", true},
		{"two addresses", []string{"127.0.0.1", "::1"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTargetArgs(tt.args, tt.container)
			if tt.wantErr {
				requireExitCode(t, err, model.ExitInvalidArgs)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestApplyFlags verifies precedence: explicitly set flags override the
// config file, unset flags leave config values alone.
func TestApplyFlags(t *testing.T) {
	newFlagSet := func(flags *scanFlags) *pflag.FlagSet {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.Uint16VarP(&flags.threads, "threads", "j", model.DefaultWorkers, "")
		fs.DurationVarP(&flags.timeout, "timeout", "t", model.DefaultTimeout, "")
		fs.BoolVar(&jsonOutput, "json", false, "")
		fs.BoolVarP(&verbose, "verbose", "v", false, "")
		return fs
	}
	fileCfg := config.Config{Threads: 32, Timeout: config.Duration{Duration: time.Second}, JSON: true}

	t.Run("no flags keeps config", func(t *testing.T) {
		flags := &scanFlags{}
		fs := newFlagSet(flags)
		require.NoError(t, fs.Parse(nil))

		cfg := fileCfg
		applyFlags(fs, flags, &cfg)
		assert.Equal(t, fileCfg, cfg)
	})

	t.Run("flags override config", func(t *testing.T) {
		flags := &scanFlags{}
		fs := newFlagSet(flags)
		require.NoError(t, fs.Parse([]string{"-j", "100", "-t", "50ms", "--json=false", "-v"}))

		cfg := fileCfg
		applyFlags(fs, flags, &cfg)
		assert.Equal(t, uint16(100), cfg.Threads)
		assert.Equal(t, 50*time.Millisecond, cfg.Timeout.Duration)
		assert.False(t, cfg.JSON)
		assert.True(t, cfg.Verbose)
	})
}

// TestRootCommand_ArgumentErrors covers the failures that happen before any
// port is probed, and their exit codes.
func TestRootCommand_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code model.ExitCode
	}{
		{"no target", []string{}, model.ExitInvalidArgs},
		{"hostname is not an address", []string{"localhost"}, model.ExitInvalidArgs},
		{"garbage address", []string{"999.1.1.1"}, model.ExitInvalidArgs},
		{"zero threads", []string{"-j", "0", "127.0.0.1"}, model.ExitInvalidArgs},
		{"non-numeric threads", []string{"-j", "many", "127.0.0.1"}, model.ExitInvalidArgs},
		{"threads overflow", []string{"-j", "65536", "127.0.0.1"}, model.ExitInvalidArgs},
		{"zero timeout", []string{"-t", "0s", "127.0.0.1"}, model.ExitInvalidArgs},
		{"address and container", []string{"--container", "db", "127.0.0.1"}, model.ExitInvalidArgs},
		{"missing config", []string{"-c", "/nonexistent/portsweep.yaml", "127.0.0.1"}, model.ExitConfigError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := executeRoot(t, tt.args...)
			requireExitCode(t, err, tt.code)
			assert.Empty(t, stdout, "nothing should be printed to stdout on error")
		})
	}
}

func TestRootCommand_TooManyArgs(t *testing.T) {
	_, _, err := executeRoot(t, "127.0.0.1", "::1")
	require.Error(t, err)
}

// TestRootCommand_ContainerDaemonDown verifies --container reports an
// unreachable Docker daemon with ExitDockerNotRunning and prints no report.
func TestRootCommand_ContainerDaemonDown(t *testing.T) {
	t.Setenv("DOCKER_HOST", "unix://"+filepath.Join(t.TempDir(), "docker.sock"))

	stdout, _, err := executeRoot(t, "--container", "db")
	requireExitCode(t, err, model.ExitDockerNotRunning)
	assert.Empty(t, stdout)
}

// TestRootCommand_InvalidConfigFile verifies a malformed config file maps to
// ExitConfigError.
func TestRootCommand_InvalidConfigFile(t *testing.T) {
	path := writeConfigFile(t, "portsweep.yaml", "threads: lots\n")

	_, _, err := executeRoot(t, "-c", path, "127.0.0.1")
	requireExitCode(t, err, model.ExitConfigError)
}

// TestRootCommand_Interrupted verifies that a cancelled scan still prints
// its partial report and exits with ExitInterrupted.
func TestRootCommand_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	t.Run("text", func(t *testing.T) {
		stdout, _, err := executeRootContext(t, ctx, "-j", "8", "127.0.0.1")
		requireExitCode(t, err, model.ExitInterrupted)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, stdout, "Scan interrupted after 0 of 65535 ports; results are partial.")
		assert.Contains(t, stdout, "No open ports found.")
	})

	t.Run("json", func(t *testing.T) {
		stdout, _, err := executeRootContext(t, ctx, "--json", "-j", "8", "127.0.0.1")
		requireExitCode(t, err, model.ExitInterrupted)

		var got reportJSON
		require.NoError(t, json.Unmarshal([]byte(stdout), &got))
		assert.True(t, got.Interrupted)
		assert.Equal(t, "127.0.0.1", got.Target)
		assert.Equal(t, uint16(8), got.Workers)
		assert.Less(t, got.Attempted, model.MaxPort)
		assert.NotNil(t, got.OpenPorts)
	})
}

// TestRootCommand_FlagOverridesInvalidConfig verifies that an out-of-range
// config value is not an error when a flag replaces it.
func TestRootCommand_FlagOverridesInvalidConfig(t *testing.T) {
	path := writeConfigFile(t, "portsweep.yaml", "threads: 0\n")

	_, _, err := executeRoot(t, "-c", path, "127.0.0.1")
	requireExitCode(t, err, model.ExitInvalidArgs)

	// With -j the settings are valid and the scan starts; a cancelled
	// context keeps it from probing anything.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = executeRootContext(t, ctx, "-c", path, "-j", "8", "127.0.0.1")
	requireExitCode(t, err, model.ExitInterrupted)
}

// TestRootCommand_ConfigJSONAppliesToErrors verifies that json: true in the
// config file selects JSON error output for argument errors.
func TestRootCommand_ConfigJSONAppliesToErrors(t *testing.T) {
	path := writeConfigFile(t, "portsweep.yaml", "json: true\n")

	_, _, err := executeRoot(t, "-c", path)
	requireExitCode(t, err, model.ExitInvalidArgs)
	assert.True(t, jsonOutput, "config json setting should be in effect before argument checks")

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	var buf bytes.Buffer
	printError(&buf, cliErr.Message, cliErr.Err)

	var got struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got), "output: %s", buf.String())
	assert.Contains(t, got.Error.Message, "an <ipaddr> or --container is required")
}

func TestPrintError_Text(t *testing.T) {
	jsonOutput = false

	var buf bytes.Buffer
	printError(&buf, "invalid settings", model.ErrInvalidWorkerCount)
	assert.Equal(t, "Error: invalid settings: worker count must be at least 1\n", buf.String())

	buf.Reset()
	printError(&buf, "too many arguments", nil)
	assert.Equal(t, "Error: too many arguments\n", buf.String())
}

// TestRootCommand_ScanLoopbackJSON runs a real scan of 127.0.0.1 with a
// config file supplying the worker count, and checks the JSON report.
func TestRootCommand_ScanLoopbackJSON(t *testing.T) {
	if testing.Short() {
		t.Skip("full loopback scan skipped in short mode")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	cfgPath := filepath.Join(t.TempDir(), "portsweep.jsonc")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{
  // plenty of workers for loopback
  "threads": 256,
}`), 0o644))

	stdout, stderr, err := executeRoot(t, "--json", "-c", cfgPath, "127.0.0.1")
	require.NoError(t, err, "stderr: %s", stderr)

	var got reportJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "127.0.0.1", got.Target)
	assert.Equal(t, uint16(256), got.Workers)
	assert.Equal(t, int64(200), got.TimeoutMs)
	assert.Equal(t, model.MaxPort, got.Attempted)
	assert.Contains(t, got.OpenPorts, port)
	assert.False(t, got.Interrupted)

	// Logs went to stderr as JSON lines.
	assert.Contains(t, stderr, `"msg":"starting scan"`)
	assert.Contains(t, stderr, `"msg":"scan complete"`)
}

// TestLogEvents verifies event-to-log mapping and level filtering.
func TestLogEvents(t *testing.T) {
	run := func(verboseMode bool) string {
		var buf bytes.Buffer
		log := newLogger(&buf, verboseMode, false)

		events := make(chan scan.Event, 2)
		events <- scan.Event{Kind: scan.EventPortOpen, Worker: 3, Port: 8080}
		events <- scan.Event{Kind: scan.EventWorkerDone, Worker: 3, Attempted: 16384}
		close(events)

		logEvents(log, events)
		return buf.String()
	}

	quiet := run(false)
	assert.Contains(t, quiet, "open port found")
	assert.Contains(t, quiet, "port=8080")
	assert.NotContains(t, quiet, "worker finished")

	loud := run(true)
	assert.Contains(t, loud, "worker finished")
	assert.Contains(t, loud, "attempted=16384")
}

// TestNewLogger verifies formatter and level selection.
func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	log := newLogger(&buf, false, true)
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	log = newLogger(&buf, true, false)
	require.IsType(t, &logrus.TextFormatter{}, log.Formatter)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	// A bytes.Buffer is never a terminal, so colors must be off.
	assert.True(t, log.Formatter.(*logrus.TextFormatter).DisableColors)
	assert.False(t, isTerminal(&buf))
}
