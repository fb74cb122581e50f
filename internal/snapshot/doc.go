// Package snapshot writes rolling-buffer snapshots to disk and runs the
// scheduled exporter that produces them.
//
// Files are named buffer_YYYYMMDD_HHMMSS with a .json or .yaml extension and
// hold a Document listing the buffered records oldest first.
package snapshot
