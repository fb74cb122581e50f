// Package measurement turns upstream die-casting measurements into Records.
//
// A Source produces at most one Record per FetchNext call. SimulatedSource
// generates plausible readings locally; WebSocketSource asks the prediction
// service for its latest result. Both funnel raw fields through Normalize so
// verdict parsing and reading coercion behave identically.
package measurement
