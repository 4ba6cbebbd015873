// Package docker resolves scan targets from Docker containers.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Daemon reachability checks (Ping)
//   - Looking up the IP address of a container by name or ID, so that
//     `portsweep --container db` scans the container's own address
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
