package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gonzalop/ftpd/internal/ratelimit"
	"github.com/gonzalop/ftpd/internal/wire"
)

func (s *session) handleTYPE(cmd wire.Command) {
	s.transferType = cmd.Type
	s.reply(wire.Ok, "Transfer type changed successfully")
}

// handlePORT only records the port. The next PASV listens on it; there is
// no active mode.
func (s *session) handlePORT(cmd wire.Command) {
	s.dataPort = cmd.Port
	s.reply(wire.Ok, fmt.Sprintf("Data port is now %d", cmd.Port))
}

func (s *session) handlePASV(_ wire.Command) {
	if s.data != nil {
		s.reply(wire.DataConnectionAlreadyOpen, "Already listening...")
		return
	}

	dc, err := openPassive(s.server.passiveHost, s.dataPort)
	if err != nil {
		s.log.Warn().Str("user", s.user).Uint16("port", s.dataPort).Err(err).Msg("passive listen failed")
		s.reply(wire.CantOpenDataConnection, "Can't open passive connection.")
		return
	}
	s.data = dc

	var local net.IP
	if addr, ok := s.conn.LocalAddr().(*net.TCPAddr); ok {
		local = addr.IP
	}
	s.reply(wire.EnteringPassiveMode, dc.pasvReply(local))
}

// dataConn waits for the client to connect to the passive listener.
func (s *session) dataConn() (net.Conn, error) {
	conn, err := s.data.wait(s.server.ctx, s.server.dataTimeout)
	if err != nil {
		return nil, err
	}
	if _, ok := conn.(*trackingConn); ok {
		return conn, nil
	}
	if !s.server.trackConnection(conn, true) {
		return nil, ErrServerClosed
	}
	tc := &trackingConn{Conn: conn, server: s.server}
	s.data.conn = tc
	return tc, nil
}

// closeData closes and forgets the data channel, if any.
func (s *session) closeData() {
	if s.data != nil {
		s.data.close()
		s.data = nil
	}
}

// send writes payload over the data connection, framed by 125 and 226.
// The data connection is closed before the final reply.
func (s *session) send(operation, virtualPath, startMsg string, payload []byte) {
	conn, err := s.dataConn()
	if err != nil {
		s.log.Warn().Str("user", s.user).Str("operation", operation).Err(err).Msg("data connection failed")
		s.reply(wire.CantOpenDataConnection, "Can't open data connection.")
		return
	}

	s.reply(wire.DataConnectionAlreadyOpen, startMsg)

	start := time.Now()
	w := ratelimit.NewWriter(s.server.ctx, conn, s.server.globalLimiter)
	n, err := w.Write(payload)
	s.closeData()
	if err != nil {
		s.transferAborted(operation, err)
		return
	}
	s.transferComplete(operation, virtualPath, int64(n), time.Since(start))
	s.reply(wire.ClosingDataConnection, "Transfer done")
}

// handleLIST lists a directory, or a single file, over the data connection.
// Leading options such as "-la" are ignored.
func (s *session) handleLIST(cmd wire.Command) {
	if s.data == nil {
		s.reply(wire.ConnectionClosed, "No opened data connection")
		return
	}
	defer s.closeData()

	target := listTarget(cmd.Arg)

	real, err := s.sandbox.resolve(s.workingDir, target)
	if err != nil {
		s.log.Debug().Str("user", s.user).Str("path", target).Err(err).Msg("list failed")
		s.reply(wire.InvalidParameterOrArgument, "No such file or directory")
		return
	}

	listing, err := buildListing(real, s.hiddenFile())
	if err != nil {
		s.log.Debug().Str("user", s.user).Str("path", target).Err(err).Msg("list failed")
		s.reply(wire.LocalErrorInProcessing, "Couldn't read directory")
		return
	}

	s.send("LIST", joinVirtual(s.workingDir, target), "Starting to list directory...", listing)
}

// listTarget drops ls-style option tokens ("-la") in front of the path.
func listTarget(arg string) string {
	for strings.HasPrefix(arg, "-") {
		i := strings.IndexByte(arg, ' ')
		if i == -1 {
			return ""
		}
		arg = strings.TrimLeft(arg[i:], " ")
	}
	return arg
}

func (s *session) handleRETR(cmd wire.Command) {
	if s.data == nil {
		s.reply(wire.ConnectionClosed, "No opened data connection")
		return
	}
	defer s.closeData()

	content, err := s.readFile(cmd.Arg)
	if err != nil {
		s.log.Debug().Str("user", s.user).Str("path", cmd.Arg).Err(err).Msg("retrieve failed")
		s.reply(wire.LocalErrorInProcessing, fmt.Sprintf(`"%s" doesn't exist`, cmd.Arg))
		return
	}

	s.send("RETR", joinVirtual(s.workingDir, cmd.Arg), "Starting to send file...", content)
}

// readFile loads a regular file the session is allowed to read.
func (s *session) readFile(p string) ([]byte, error) {
	real, err := s.sandbox.resolve(s.workingDir, p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, os.ErrInvalid
	}
	if s.isProtected(real) {
		return nil, os.ErrPermission
	}
	rel, err := s.sandbox.rel(real)
	if err != nil {
		return nil, err
	}
	return s.sandbox.rootHandle.ReadFile(rel)
}

func (s *session) handleSTOR(cmd wire.Command) {
	// The target may not exist yet, so ".." cannot be checked by
	// canonicalization.
	if hasParentComponent(cmd.Arg) {
		s.log.Warn().Str("user", s.user).Str("path", cmd.Arg).Msg("store rejected: parent directory reference")
		s.closeData()
		s.reply(wire.FileNotFound, "Permission denied")
		return
	}
	if s.data == nil {
		s.reply(wire.ConnectionClosed, "No opened data connection")
		return
	}
	defer s.closeData()

	rel, err := s.storeTarget(cmd.Arg)
	if err != nil {
		s.log.Debug().Str("user", s.user).Str("path", cmd.Arg).Err(err).Msg("store failed")
		if errors.Is(err, os.ErrPermission) {
			s.reply(wire.FileNotFound, "Permission denied")
		} else {
			s.reply(wire.FileNotFound, "No such file or directory")
		}
		return
	}

	conn, err := s.dataConn()
	if err != nil {
		s.log.Warn().Str("user", s.user).Str("operation", "STOR").Err(err).Msg("data connection failed")
		s.reply(wire.CantOpenDataConnection, "Can't open data connection.")
		return
	}

	s.reply(wire.DataConnectionAlreadyOpen, "Starting to receive file...")

	start := time.Now()
	content, err := io.ReadAll(ratelimit.NewReader(s.server.ctx, conn, s.server.globalLimiter))
	s.closeData()
	if err != nil {
		s.transferAborted("STOR", err)
		return
	}

	if err := s.writeFile(rel, content); err != nil {
		s.log.Warn().Str("user", s.user).Str("path", cmd.Arg).Err(err).Msg("store failed")
		s.reply(wire.LocalErrorInProcessing, "Couldn't create file")
		return
	}

	s.transferComplete("STOR", joinVirtual(s.workingDir, cmd.Arg), int64(len(content)), time.Since(start))
	s.reply(wire.ClosingDataConnection, "Transfer done")
}

// storeTarget returns the root-relative path a STOR will write to.
func (s *session) storeTarget(p string) (string, error) {
	parent, name, err := s.sandbox.resolveNew(s.workingDir, p)
	if err != nil {
		return "", err
	}
	target := filepath.Join(parent, name)

	// An existing target may be a symlink; check what it points to.
	if info, err := os.Stat(target); err == nil {
		if info.IsDir() {
			return "", errIsDir
		}
		if real, err := filepath.EvalSymlinks(target); err == nil {
			target = real
		}
	}
	if s.isProtected(target) {
		return "", os.ErrPermission
	}
	return s.sandbox.rel(target)
}

func (s *session) writeFile(rel string, content []byte) error {
	f, err := s.sandbox.rootHandle.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// transferAborted reports a data connection failure. Such errors end the
// session.
func (s *session) transferAborted(operation string, err error) {
	s.log.Warn().Str("user", s.user).Str("operation", operation).Err(err).Msg("transfer_aborted")
	s.reply(wire.ConnectionClosed, "Connection closed; transfer aborted.")
	s.fail(fmt.Errorf("%s data transfer: %w", operation, err))
}

func (s *session) transferComplete(operation, virtualPath string, bytes int64, duration time.Duration) {
	// Calculate throughput in MB/s
	throughputMBps := float64(0)
	if duration.Seconds() > 0 {
		throughputMBps = float64(bytes) / duration.Seconds() / 1024 / 1024
	}

	// Transfer logging
	s.log.Info().
		Str("user", s.user).
		Str("operation", operation).
		Str("type", s.transferType.String()).
		Str("path", virtualPath).
		Int64("bytes", bytes).
		Int64("duration_ms", duration.Milliseconds()).
		Str("throughput_mbps", fmt.Sprintf("%.2f", throughputMBps)).
		Msg("transfer_complete")

	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordTransfer(operation, bytes, duration)
	}
}
