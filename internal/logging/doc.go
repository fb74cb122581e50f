// Package logging assembles the slog loggers shared by the castspc daemon and
// CLI.
//
// It owns the console and JSON handlers, level parsing, and file fan-out, and
// defines the structured field names (component, event_type, mold_code, zone)
// the rest of the module attaches to log lines. WarnWithContext and
// ErrorWithContext enforce that warnings carry an event type, a hint for the
// operator, and the user-facing impact.
//
// Tests and wiring code that cannot fail should use NewNop.
package logging
