package server

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"github.com/gonzalop/ftpd/internal/ratelimit"
	"github.com/gonzalop/ftpd/internal/wire"
)

const (
	defaultWelcomeMessage = "Welcome to this FTP server!"
	defaultPassiveHost    = "127.0.0.1"
	defaultDataTimeout    = 10 * time.Second
	defaultMaxIdleTime    = 5 * time.Minute

	minAcceptRetry = 5 * time.Millisecond
	maxAcceptRetry = time.Second
)

// Server is the FTP server.
//
// It listens for control connections and serves each one in its own
// goroutine. Every session sees the directory given to WithRoot as "/" and
// authenticates against the Credentials given to WithCredentials.
//
// Lifecycle:
//  1. Create server with NewServer()
//  2. Start with ListenAndServe() or Serve()
//  3. Server runs until the listener fails or Shutdown is called
//
// Basic example:
//
//	creds := server.NewCredentials(nil, []server.Account{{Name: "anonymous"}})
//	s, err := server.NewServer("127.0.0.1:1234",
//	    server.WithRoot("/srv/ftp"),
//	    server.WithCredentials(creds),
//	)
//	if err != nil {
//	    log.Fatal().Err(err).Send()
//	}
//	log.Fatal().Err(s.ListenAndServe()).Send()
type Server struct {
	// addr is the TCP address to listen on (e.g., "127.0.0.1:1234").
	addr string

	// rootPath is the canonical directory mapped to the virtual root.
	rootPath string

	// credentials is the read-only account list.
	credentials *Credentials

	// protectedFile is hidden from non-admin sessions. Empty disables it.
	protectedFile string

	logger zerolog.Logger

	// welcomeMessage is the text of the 220 banner.
	welcomeMessage string

	// serverName is the system type returned by the SYST command.
	serverName string

	// passiveHost is the local address passive listeners bind to.
	passiveHost string

	// dataTimeout bounds the wait for a passive connection.
	dataTimeout time.Duration

	// maxIdleTime is the maximum time a connection can be idle before being closed.
	maxIdleTime time.Duration

	// maxConnections is the maximum number of simultaneous control connections.
	// If 0, there is no limit.
	maxConnections int

	// globalLimiter is shared by all data transfers. nil means unlimited.
	globalLimiter *ratelimit.Limiter

	metricsCollector MetricsCollector

	// activeConns tracks the number of currently active control connections.
	activeConns atomic.Int32

	// ctx is canceled by Shutdown to unblock sessions waiting on data
	// connections.
	ctx    context.Context
	cancel context.CancelFunc

	// Shutdown handling
	mu         sync.Mutex
	listener   net.Listener
	conns      map[net.Conn]struct{}
	inShutdown atomic.Bool
}

// ErrServerClosed is returned by Serve and ListenAndServe after a call to
// Shutdown.
var ErrServerClosed = errors.New("ftp: Server closed")

// NewServer creates a new FTP server with the given address and options.
// The address should be in the form ":port" or "host:port".
// WithRoot and WithCredentials are required.
//
// Default values:
//   - Logger: disabled
//   - PassiveHost: 127.0.0.1
//   - DataTimeout: 10 seconds
//   - MaxIdleTime: 5 minutes
//   - MaxConnections: 0 (unlimited)
//   - BandwidthLimit: 0 (unlimited)
func NewServer(addr string, options ...Option) (*Server, error) {
	s := &Server{
		addr:           addr,
		logger:         zerolog.Nop(),
		welcomeMessage: defaultWelcomeMessage,
		serverName:     "UNIX Type: L8",
		passiveHost:    defaultPassiveHost,
		dataTimeout:    defaultDataTimeout,
		maxIdleTime:    defaultMaxIdleTime,
		conns:          make(map[net.Conn]struct{}),
	}

	// Apply options
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	// Validate required fields
	if s.rootPath == "" {
		return nil, fmt.Errorf("root directory is required (use WithRoot option)")
	}
	if s.credentials == nil {
		return nil, fmt.Errorf("credentials are required (use WithCredentials option)")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Root returns the canonical directory served as "/".
func (s *Server) Root() string {
	return s.rootPath
}

// ListenAndServe starts the FTP server on the configured address.
// It blocks until the server stops or an error occurs.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Str("root", s.rootPath).Msg("FTP server listening")
	return s.Serve(ln)
}

// Shutdown stops the server.
//
// It closes the listener and immediately closes all active connections,
// control and data alike.
func (s *Server) Shutdown() error {
	s.inShutdown.Store(true)
	s.cancel()

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}

	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()

	for conn := range maps.Keys(conns) {
		conn.Close()
	}

	return err
}

// Serve accepts incoming connections on the listener l.
// It blocks until the listener is closed or Shutdown is called.
//
// Accept errors are retried with exponential backoff, so a burst of
// "too many open files" does not spin the loop.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		l.Close()
	}()

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = minAcceptRetry
	retry.MaxInterval = maxAcceptRetry
	retry.MaxElapsedTime = 0 // Never give up while the listener is open

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			wait := retry.NextBackOff()
			s.logger.Error().Err(err).Dur("retry_in", wait).Msg("accept error")
			time.Sleep(wait)
			continue
		}
		retry.Reset()

		go s.handleConnection(conn)
	}
}

// handleConnection handles a new client connection.
func (s *Server) handleConnection(conn net.Conn) {
	if !s.trackConnection(conn, true) {
		return
	}
	defer s.trackConnection(conn, false)

	s.handleSession(conn)
}

// trackConnection returns false if we're shutting down.
func (s *Server) trackConnection(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !add {
		delete(s.conns, conn)
		return true
	}
	if s.inShutdown.Load() {
		conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

// trackingConn wraps a data connection to track its lifetime in the server.
type trackingConn struct {
	net.Conn
	server *Server
}

func (c *trackingConn) Close() error {
	c.server.trackConnection(c.Conn, false)
	return c.Conn.Close()
}

// handleSession enforces the connection limit and runs the session.
func (s *Server) handleSession(conn net.Conn) {
	if s.maxConnections > 0 && s.activeConns.Load() >= int32(s.maxConnections) {
		// Security audit: connection limit reached
		s.logger.Warn().
			Str("remote_ip", remoteIP(conn)).
			Str("reason", "global_limit_reached").
			Int("limit", s.maxConnections).
			Msg("connection_rejected")
		if s.metricsCollector != nil {
			s.metricsCollector.RecordConnection(false, "global_limit_reached")
		}
		_, _ = conn.Write(wire.Encode(wire.NewResponse(wire.ServiceNotAvailable, "Too many users, sorry.")))
		conn.Close()
		return
	}

	s.activeConns.Add(1)
	defer s.activeConns.Add(-1)

	if s.metricsCollector != nil {
		s.metricsCollector.RecordConnection(true, "accepted")
	}

	sess, err := newSession(s, conn)
	if err != nil {
		s.logger.Error().Err(err).Str("remote_ip", remoteIP(conn)).Msg("failed to open session")
		_, _ = conn.Write(wire.Encode(wire.NewResponse(wire.ServiceNotAvailable, "Service not available.")))
		conn.Close()
		return
	}
	sess.serve()
}

// remoteIP returns the host part of the peer address.
func remoteIP(conn net.Conn) string {
	remoteAddr := conn.RemoteAddr().String()
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return ip
}
