package scan

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// fakeDialer answers from a fixed set of open ports without touching the
// network. Every dial is recorded so tests can check the partition.
type fakeDialer struct {
	// open and delay are read-only once the scan starts.
	open  map[uint16]bool
	delay map[uint16]time.Duration

	// hang lists ports that never answer; the dial waits for the context.
	hang map[uint16]bool

	mu       sync.Mutex
	dialed   map[uint16]int
	deadline map[uint16]bool
	closed   map[uint16]bool
}

func newFakeDialer(open ...uint16) *fakeDialer {
	d := &fakeDialer{
		open:     make(map[uint16]bool),
		delay:    make(map[uint16]time.Duration),
		hang:     make(map[uint16]bool),
		dialed:   make(map[uint16]int),
		deadline: make(map[uint16]bool),
		closed:   make(map[uint16]bool),
	}
	for _, p := range open {
		d.open[p] = true
	}
	return d
}

func (d *fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, err
	}
	port := ap.Port()

	_, hasDeadline := ctx.Deadline()
	d.mu.Lock()
	d.dialed[port]++
	d.deadline[port] = hasDeadline
	d.mu.Unlock()

	if d.hang[port] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay := d.delay[port]; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !d.open[port] {
		return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
	}

	client, server := net.Pipe()
	_ = server.Close()
	return &trackedConn{Conn: client, onClose: func() {
		d.mu.Lock()
		d.closed[port] = true
		d.mu.Unlock()
	}}, nil
}

// dialCounts returns a copy of the per-port dial counters.
func (d *fakeDialer) dialCounts() map[uint16]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[uint16]int, len(d.dialed))
	for k, v := range d.dialed {
		out[k] = v
	}
	return out
}

func (d *fakeDialer) wasClosed(port uint16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed[port]
}

// trackedConn records Close so tests can verify sockets are released.
type trackedConn struct {
	net.Conn
	onClose func()
}

func (c *trackedConn) Close() error {
	c.onClose()
	return c.Conn.Close()
}

// redirectDialer routes selected virtual ports to real loopback listeners
// and refuses everything else. This exercises a real TCP handshake for
// well-known port numbers without needing to bind them.
type redirectDialer struct {
	routes map[uint16]string
	inner  net.Dialer
}

func (d *redirectDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, err
	}
	dest, ok := d.routes[ap.Port()]
	if !ok {
		return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
	}
	return d.inner.DialContext(ctx, network, dest)
}

// listenLoopback starts a TCP listener on an OS-assigned loopback port and
// closes it when the test ends. The kernel completes handshakes from the
// backlog, so nothing needs to call Accept.
func listenLoopback(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to start test listener")
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func mustTarget(t *testing.T, workers uint16, timeout time.Duration) model.ScanTarget {
	t.Helper()
	target, err := model.NewScanTarget(netip.MustParseAddr("127.0.0.1"), workers, timeout)
	require.NoError(t, err)
	return target
}
