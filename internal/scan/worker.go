package scan

import (
	"context"
	"net"
	"net/netip"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// Dialer opens network connections. *net.Dialer satisfies it; tests inject
// fakes so that scans do not depend on what is listening on the host.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Candidates returns the ports worker offset probes when the port space is
// shared by workers workers. The sequence starts at offset+1 and advances
// by workers until it would pass model.MaxPort.
//
// Arithmetic is done in int so the last step cannot wrap around uint16.
// An offset outside [0, workers) or a zero worker count yields nil.
func Candidates(offset, workers uint16) []uint16 {
	if workers == 0 || offset >= workers {
		return nil
	}
	stride := int(workers)
	first := int(offset) + 1

	ports := make([]uint16, 0, (model.MaxPort-first)/stride+1)
	for p := first; p <= model.MaxPort; p += stride {
		ports = append(ports, uint16(p))
	}
	return ports
}

// probeStatus is the outcome of a single connection attempt.
type probeStatus int

const (
	// probeClosed covers refused, unreachable and timed-out attempts.
	probeClosed probeStatus = iota

	// probeOpen means the handshake completed.
	probeOpen

	// probeAborted means the scan was cancelled before the attempt could
	// finish. Nothing is known about the port.
	probeAborted
)

// worker probes its share of the port space and reports open ports on sink.
// It returns the number of connection attempts that reached a verdict; an
// attempt cut short by cancellation is not counted.
//
// Failures of any kind (refused, timed out, unreachable) mean "not open" and
// are dropped. The only shared state touched here is the sink and the
// optional events channel.
func worker(ctx context.Context, offset uint16, target model.ScanTarget, dialer Dialer, sink chan<- model.PortResult, events chan<- Event) int {
	attempted := 0

	for _, port := range Candidates(offset, target.Workers) {
		if ctx.Err() != nil {
			break
		}

		status := probe(ctx, dialer, target, port)
		if status == probeAborted {
			// The port's state is unknown, so it does not count as attempted.
			break
		}
		attempted++

		if status != probeOpen {
			continue
		}
		// The sink is buffered for the whole port space, so this never blocks.
		sink <- model.PortResult(port)
		emit(ctx, events, Event{Kind: EventPortOpen, Worker: offset, Port: port})
	}

	emit(ctx, events, Event{Kind: EventWorkerDone, Worker: offset, Attempted: attempted})
	return attempted
}

// probe makes one bounded connection attempt against port. The connection
// is closed before returning on every path.
//
// A failed dial is reported as probeAborted rather than probeClosed when the
// parent ctx is done, since the per-probe timeout did not decide it.
func probe(ctx context.Context, dialer Dialer, target model.ScanTarget, port uint16) probeStatus {
	dialCtx, cancel := context.WithTimeout(ctx, target.Timeout)
	defer cancel()

	address := netip.AddrPortFrom(target.Addr, port).String()
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		if ctx.Err() != nil {
			return probeAborted
		}
		return probeClosed
	}
	// No data is exchanged; accepting the handshake is all we need.
	_ = conn.Close()
	return probeOpen
}
