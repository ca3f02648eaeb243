package server

import "time"

// MetricsCollector receives server events for monitoring.
//
// The server never calls it concurrently for the same session, but calls
// from different sessions may overlap, so implementations must be safe for
// concurrent use. Methods should return quickly; they run inline with
// command handling.
//
// See internal/metrics for a Prometheus implementation.
type MetricsCollector interface {
	// RecordCommand is called once per command after its final reply.
	// cmd is the upper-cased verb ("UNKN" for unrecognized verbs) and
	// success is false when the final reply was a 4xx or 5xx.
	RecordCommand(cmd string, success bool, duration time.Duration)

	// RecordTransfer is called after a completed LIST, RETR or STOR with the
	// number of bytes moved over the data connection.
	RecordTransfer(operation string, bytes int64, duration time.Duration)

	// RecordConnection is called for every accepted control connection.
	// reason is "accepted" or the rejection cause, e.g. "global_limit_reached".
	RecordConnection(accepted bool, reason string)

	// RecordAuthentication is called for every USER/PASS outcome that
	// either logs the session in or rejects it.
	RecordAuthentication(success bool, user string)
}
