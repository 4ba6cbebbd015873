package docker

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// defaultPingTimeout bounds the reachability check made before a container
// is inspected. Docker Desktop on macOS answers noticeably slower than a
// native Linux daemon, so this is several seconds rather than milliseconds.
const defaultPingTimeout = 5 * time.Second

// Client is a narrow wrapper around the Docker Engine SDK client. portsweep
// only ever reads from the daemon: it checks that the daemon is up and asks
// where a container can be reached.
//
// Most callers want ResolveContainerAddr, which creates, uses and closes a
// Client in one call. Direct use looks like:
//
//	c, err := docker.NewClient()
//	if err != nil { /* handle */ }
//	defer c.Close()
//	if err := c.Ping(ctx); err != nil { /* daemon down */ }
//	addr, err := c.ContainerAddr(ctx, "db")
type Client struct {
	// inner is the SDK client. It is held in a field, not embedded, so the
	// dozens of SDK methods do not leak into portsweep's API.
	inner *client.Client
}

// ResolveContainerAddr turns a container name or ID into the address to
// scan. It connects to the daemon, verifies it responds, inspects the
// container and closes the connection again.
//
// All errors are model.CLIError values carrying ExitDockerNotRunning or
// ExitContainerNotFound.
func ResolveContainerAddr(ctx context.Context, nameOrID string) (netip.Addr, error) {
	c, err := NewClient()
	if err != nil {
		return netip.Addr{}, err
	}
	defer func() { _ = c.Close() }()

	// Ping first so a stopped daemon is reported as such, instead of as a
	// failed inspect of a container that may well exist.
	if err := c.Ping(ctx); err != nil {
		return netip.Addr{}, err
	}
	return c.ContainerAddr(ctx, nameOrID)
}

// NewClient creates a Docker client, locating the daemon in this order:
//  1. the DOCKER_HOST environment variable, used verbatim
//  2. the platform's default endpoint:
//     - Linux: /var/run/docker.sock
//     - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//     - Windows: the docker_engine named pipe
//
// No request is sent yet; use Ping to check the daemon is actually running.
// Returns a model.CLIError with ExitDockerNotRunning if no endpoint exists
// or the SDK rejects it.
func NewClient() (*Client, error) {
	// An explicit DOCKER_HOST (remote daemon, rootless socket, colima, ...)
	// always wins over detection.
	if dockerHost := os.Getenv("DOCKER_HOST"); dockerHost != "" {
		return newClientWithHost(dockerHost)
	}

	host, err := detectDockerHost()
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker socket not found",
			err,
		)
	}

	return newClientWithHost(host)
}

// newClientWithHost builds the SDK client for a connection string such as
// "unix:///var/run/docker.sock" or "npipe:////./pipe/docker_engine".
func newClientWithHost(host string) (*Client, error) {
	// API version negotiation lets the same binary talk to older and newer
	// daemons; the SDK settles on the highest version both understand on
	// the first request.
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}

	return &Client{inner: c}, nil
}

// detectDockerHost returns the connection string of the first default
// Docker endpoint that exists on this platform.
//
// Only existence is checked here. Whether a daemon is listening behind the
// socket is Ping's job.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
		})

	case "darwin":
		// Docker Desktop normally symlinks /var/run/docker.sock; newer
		// releases may only create the per-user socket under ~/.docker.
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return detectUnixSocket([]string{
				"/var/run/docker.sock",
			})
		}
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
			homeDir + "/.docker/run/docker.sock",
		})

	case "windows":
		// Named pipes cannot be os.Stat'ed, so the pipe is checked with a
		// short dial that is closed right away.
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, 1*time.Second)
		if err != nil {
			return "", fmt.Errorf("Docker named pipe not found at %s: %w", pipePath, err)
		}
		_ = conn.Close()
		return "npipe://" + pipePath, nil

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket returns "unix://<path>" for the first entry of paths
// that exists. Callers list paths from most to least preferred.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		// A successful Stat proves the socket file is there, not that a
		// daemon is accepting connections on it.
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("no Docker socket at any of %v (is Docker running?)", paths)
}

// Ping checks that the daemon answers within defaultPingTimeout.
//
// Returns a model.CLIError with ExitDockerNotRunning if it does not.
func (c *Client) Ping(ctx context.Context) error {
	// The timeout is layered on the caller's context, so Ctrl-C during a
	// hung ping still aborts immediately.
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker daemon is not responding (is Docker running?)",
			err,
		)
	}
	return nil
}

// Close releases the client's HTTP transport. It is safe on a Client whose
// construction failed half-way and may be called more than once.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}
