// Package model defines the domain types and value objects for the
// portsweep scanner.
//
// This package contains pure data structures with no dependencies beyond
// the standard library. ScanTarget describes what to scan, PortResult is a
// single open port, and ScanReport is the ordered outcome of a scan.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
