package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// reportJSON is the JSON output structure of a scan.
type reportJSON struct {
	Target      string   `json:"target"`
	Workers     uint16   `json:"workers"`
	TimeoutMs   int64    `json:"timeoutMs"`
	OpenPorts   []uint16 `json:"openPorts"`
	Attempted   int      `json:"attempted"`
	DurationMs  int64    `json:"durationMs"`
	Interrupted bool     `json:"interrupted,omitempty"`
}

// printReport writes the report in text or JSON format.
func printReport(w io.Writer, report model.ScanReport, asJSON, interrupted bool) error {
	if asJSON {
		return printReportJSON(w, report, interrupted)
	}
	return printReportText(w, report, interrupted)
}

// printReportJSON writes the report as a single indented JSON object.
// openPorts is always an array, never null.
func printReportJSON(w io.Writer, report model.ScanReport, interrupted bool) error {
	out := reportJSON{
		Target:      report.Target.Addr.String(),
		Workers:     report.Target.Workers,
		TimeoutMs:   report.Target.Timeout.Milliseconds(),
		OpenPorts:   report.Ports(),
		Attempted:   report.Attempted,
		DurationMs:  report.Duration.Milliseconds(),
		Interrupted: interrupted,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printReportText writes one line per open port, in ascending order:
//
//	port 22 is open!
//	port 443 is open!
func printReportText(w io.Writer, report model.ScanReport, interrupted bool) error {
	var b strings.Builder

	if interrupted {
		fmt.Fprintf(&b, "Scan interrupted after %d of %d ports; results are partial.\n", report.Attempted, model.MaxPort)
	}
	if report.Len() == 0 {
		b.WriteString("No open ports found.\n")
	}
	for _, p := range report.OpenPorts {
		fmt.Fprintf(&b, "port %d is open!\n", p)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// FormatPortsList converts open ports into a comma-separated string.
// Returns "-" if there are none.
//
// Example:
//
//	[22 80 443] → "22,80,443"
//	[]          → "-"
func FormatPortsList(ports []model.PortResult) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, strconv.Itoa(int(p)))
	}
	return strings.Join(parts, ",")
}
