// Package preflight provides readiness checks for the filesystem paths,
// database and upstream prediction service that castspc depends on.
//
// These checks run in two contexts:
//   - The daemon runner calls RunAll at start-up and logs every failure
//     before the poll loop begins.
//   - The CLI "castspc status" command prints the same results when the
//     daemon is not reachable.
//
// The websocket check only runs when source.kind is websocket.
package preflight
