// Package server implements a small, sandboxed, passive-mode FTP server.
//
// # Overview
//
// Every client sees one local directory as its virtual root "/". Paths sent
// by clients are resolved against the session's working directory, then
// canonicalized against the real filesystem; anything that lands outside the
// root, whether through ".." or a symlink, is refused.
//
// Supported commands: USER, PASS, AUTH (always 502), SYST, NOOP, QUIT, PWD,
// CWD, CDUP, MKD, RMD, TYPE, PORT, PASV, LIST, RETR and STOR. Unknown
// commands are answered with 500 and the connection stays open.
//
// # Getting Started
//
//	package main
//
//	import (
//	    "github.com/rs/zerolog/log"
//
//	    "github.com/gonzalop/ftpd/server"
//	)
//
//	func main() {
//	    creds := server.NewCredentials(
//	        &server.Account{Name: "admin", Password: "secret"},
//	        []server.Account{{Name: "anonymous"}},
//	    )
//
//	    s, err := server.NewServer("127.0.0.1:1234",
//	        server.WithRoot("/srv/ftp"),
//	        server.WithCredentials(creds),
//	        server.WithLogger(log.Logger),
//	    )
//	    if err != nil {
//	        log.Fatal().Err(err).Send()
//	    }
//	    log.Fatal().Err(s.ListenAndServe()).Send()
//	}
//
// # Authentication
//
// Accounts come from a fixed list handed to WithCredentials. An account with
// an empty password is logged in by USER alone. A wrong PASS leaves the
// session waiting for another PASS; there is no lockout.
//
// The optional admin account is the only one allowed to see, read or
// overwrite the file registered with WithProtectedFile, normally the
// server's own configuration.
//
// # Data Connections
//
// Only passive mode is available. PASV opens a listener that accepts exactly
// one connection; the next LIST, RETR or STOR uses it and closes it. PORT
// records a port number that the following PASV listens on, it never dials
// the client.
//
//	PASV
//	227 Entering Passive Mode (127,0,0,1,195,80).
//	STOR foo.txt
//	125 Starting to receive file...
//	226 Transfer done
//
// Files are transferred whole: RETR reads the file into memory before
// sending it and STOR receives everything before writing.
//
// # Logging and Metrics
//
// The server logs through zerolog. Security relevant events are emitted at
// info or warn level with stable messages:
//   - session_started
//   - authentication_success, authentication_failed
//   - directory_created, directory_removed
//   - transfer_complete, transfer_aborted
//   - connection_rejected
//
// Each entry carries session_id and remote_ip; most also carry user.
// Passwords are never logged.
//
// WithMetrics accepts any MetricsCollector; internal/metrics provides one
// backed by Prometheus.
//
// # Limits
//
//   - WithMaxConnections rejects extra control connections with 421.
//   - WithBandwidthLimit caps the combined transfer rate of all sessions.
//   - WithMaxIdleTime closes idle control connections (default 5 minutes).
//   - WithDataTimeout bounds the wait for the passive connection (default 10s).
package server
