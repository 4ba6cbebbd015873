package docker

import (
	"context"
	"fmt"
	"net/netip"
	"sort"

	"github.com/docker/docker/client"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// ContainerAddr returns the IP address of the container identified by
// nameOrID, suitable as a scan target.
//
// A container attached to several networks has several addresses; the one
// on the alphabetically first network name is chosen so repeated runs scan
// the same address. IPv4 is preferred on each network, falling back to the
// global IPv6 address.
//
// Errors are model.CLIError values:
//   - ExitContainerNotFound if the container does not exist or has no address
//     (for example because it is stopped)
//   - ExitDockerNotRunning if the daemon could not be queried
func (c *Client) ContainerAddr(ctx context.Context, nameOrID string) (netip.Addr, error) {
	resp, err := c.inner.ContainerInspect(ctx, nameOrID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return netip.Addr{}, model.WrapCLIError(
				model.ExitContainerNotFound,
				fmt.Sprintf("container %q not found", nameOrID),
				err,
			)
		}
		return netip.Addr{}, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to inspect container %q", nameOrID),
			err,
		)
	}

	networks := make(map[string]string)
	if resp.NetworkSettings != nil {
		for name, ep := range resp.NetworkSettings.Networks {
			if ep == nil {
				continue
			}
			ip := ep.IPAddress
			if ip == "" {
				ip = ep.GlobalIPv6Address
			}
			networks[name] = ip
		}
	}

	addr, ok := pickAddr(networks)
	if !ok {
		return netip.Addr{}, model.NewCLIError(
			model.ExitContainerNotFound,
			fmt.Sprintf("container %q has no IP address (is it running?)", nameOrID),
		)
	}
	return addr, nil
}

// pickAddr chooses the scan address from a network-name → IP map.
// Networks are visited in sorted order; empty or unparsable addresses are
// skipped. Returns false if no usable address exists.
func pickAddr(networks map[string]string) (netip.Addr, bool) {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		addr, err := model.ParseAddr(networks[name])
		if err != nil {
			continue
		}
		return addr, true
	}
	return netip.Addr{}, false
}
