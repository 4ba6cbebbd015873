// Package scan implements the concurrent TCP connect scan.
//
// The 16-bit port space is partitioned by stride: with N workers, worker i
// (0 <= i < N) probes ports i+1, i+1+N, i+1+2N, ... up to and including
// 65535. Every port is therefore attempted by exactly one worker and port 0
// is never attempted.
//
// Workers send open ports on a shared buffered channel. Run waits for all
// workers on an errgroup barrier, closes the channel, drains it and sorts
// the result into a model.ScanReport.
package scan
