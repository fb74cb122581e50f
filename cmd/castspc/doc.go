// Package main implements the castspc command-line interface.
//
// The CLI talks to a running daemon over its HTTP API for status, chart,
// sample, stats, update, reset and collect. The daemon command runs the
// engine in the foreground; export and config work offline.
package main
