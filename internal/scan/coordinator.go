package scan

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// options holds the optional collaborators of Run.
type options struct {
	dialer Dialer
	events chan<- Event
}

// Option customizes a call to Run.
type Option func(*options)

// WithDialer replaces the default *net.Dialer. The per-probe timeout is
// still enforced through the context passed to DialContext.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithEvents makes workers publish progress on events. Run closes the
// channel after the last worker has finished, so the caller must drain it
// concurrently and may simply range over it.
func WithEvents(events chan<- Event) Option {
	return func(o *options) {
		o.events = events
	}
}

// Run scans every port of target.Addr with target.Workers workers and
// returns the open ports in ascending order.
//
// Algorithm:
//  1. Validate target; a zero worker count is rejected before any worker starts.
//  2. Create one result channel large enough for every port, so no send blocks.
//  3. Start one worker per offset 0..Workers-1 in an errgroup.
//  4. Wait for the group, then close the result (and event) channel.
//  5. Drain and sort into a model.ScanReport.
//
// Finding nothing open is a successful, empty report. If ctx is cancelled the
// partial report is returned together with ctx.Err().
func Run(ctx context.Context, target model.ScanTarget, opts ...Option) (model.ScanReport, error) {
	o := options{dialer: &net.Dialer{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.events != nil {
		defer close(o.events)
	}

	if err := target.Validate(); err != nil {
		return model.ScanReport{}, err
	}

	startedAt := time.Now()
	results := make(chan model.PortResult, model.MaxPort)
	// Each worker writes only its own slot.
	attempted := make([]int, target.Workers)

	var g errgroup.Group
	for i := uint16(0); i < target.Workers; i++ {
		offset := i
		g.Go(func() error {
			attempted[offset] = worker(ctx, offset, target, o.dialer, results, o.events)
			return nil
		})
	}

	// Workers never return errors; Wait is purely the completion barrier.
	_ = g.Wait()
	close(results)

	ports := make([]model.PortResult, 0, len(results))
	for p := range results {
		ports = append(ports, p)
	}

	total := 0
	for _, n := range attempted {
		total += n
	}

	report := model.NewScanReport(target, ports, total, startedAt, time.Since(startedAt))
	// Probes cut short by cancellation are not counted, so total falls short
	// of MaxPort exactly when some port's state is unknown. A cancellation
	// that arrived after the last verdict does not make the report partial.
	if err := ctx.Err(); err != nil && total < model.MaxPort {
		return report, err
	}
	return report, nil
}
