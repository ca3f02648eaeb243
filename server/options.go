package server

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/gonzalop/ftpd/internal/ratelimit"
)

// Option is a functional option for configuring an FTP server.
type Option func(*Server) error

// WithRoot sets the directory exposed to clients as "/".
// This option is required. The path must exist and is canonicalized once,
// so later symlink changes of the root itself have no effect.
//
// Example:
//
//	s, _ := server.NewServer(":2121",
//	    server.WithRoot("/srv/ftp"),
//	    server.WithCredentials(creds),
//	)
func WithRoot(rootPath string) Option {
	return func(s *Server) error {
		if s.rootPath != "" {
			return fmt.Errorf("root already set")
		}
		root, err := canonicalRoot(rootPath)
		if err != nil {
			return err
		}
		s.rootPath = root
		return nil
	}
}

// WithCredentials sets the accounts allowed to log in. This option is required.
func WithCredentials(creds *Credentials) Option {
	return func(s *Server) error {
		if creds == nil {
			return fmt.Errorf("credentials must not be nil")
		}
		s.credentials = creds
		return nil
	}
}

// WithLogger sets the logger for the server.
// If not specified, a disabled logger is used.
//
// Example with debug logging:
//
//	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
//	    Level(zerolog.DebugLevel).With().Timestamp().Logger()
//	s, _ := server.NewServer(":2121",
//	    server.WithRoot(root),
//	    server.WithCredentials(creds),
//	    server.WithLogger(logger),
//	)
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithProtectedFile hides a file (normally the server's own configuration)
// from every session that is not logged in as the admin account. The file is
// left out of LIST output and cannot be retrieved or overwritten.
func WithProtectedFile(path string) Option {
	return func(s *Server) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("invalid protected file: %w", err)
		}
		// Resolve the directory so the path compares equal to sandbox output.
		if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
			abs = filepath.Join(dir, filepath.Base(abs))
		}
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			abs = real
		}
		s.protectedFile = abs
		return nil
	}
}

// WithPassiveHost sets the local address passive listeners bind to.
// Defaults to "127.0.0.1".
func WithPassiveHost(host string) Option {
	return func(s *Server) error {
		if host == "" {
			return fmt.Errorf("passive host must not be empty")
		}
		s.passiveHost = host
		return nil
	}
}

// WithDataTimeout bounds how long a data command waits for the client to
// connect to the passive listener. Defaults to 10 seconds; 0 waits forever.
func WithDataTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.dataTimeout = d
		return nil
	}
}

// WithMaxIdleTime sets the maximum time a connection can be idle before being closed.
// If not specified, defaults to 5 minutes.
func WithMaxIdleTime(duration time.Duration) Option {
	return func(s *Server) error {
		s.maxIdleTime = duration
		return nil
	}
}

// WithMaxConnections sets the maximum number of simultaneous control connections.
// If 0, there is no limit. This is the default.
//
// When the limit is reached, new connections receive "421 Too many users, sorry."
func WithMaxConnections(max int) Option {
	return func(s *Server) error {
		if max < 0 {
			return fmt.Errorf("max connections must not be negative")
		}
		s.maxConnections = max
		return nil
	}
}

// WithBandwidthLimit caps the combined data transfer rate of all sessions,
// in bytes per second. 0 disables the limit.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Server) error {
		s.globalLimiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}

// WithMetrics installs a metrics collector.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *Server) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithWelcomeMessage sets the text of the 220 greeting.
// Defaults to "Welcome to this FTP server!".
func WithWelcomeMessage(msg string) Option {
	return func(s *Server) error {
		s.welcomeMessage = msg
		return nil
	}
}
