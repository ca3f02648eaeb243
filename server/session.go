package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gonzalop/ftpd/internal/wire"
)

// authPhase is the login state of a session.
type authPhase int

const (
	phaseUnauthenticated authPhase = iota
	phaseAwaitingPassword
	phaseAuthenticated
	phaseClosed
)

func (p authPhase) String() string {
	switch p {
	case phaseUnauthenticated:
		return "unauthenticated"
	case phaseAwaitingPassword:
		return "awaiting_password"
	case phaseAuthenticated:
		return "authenticated"
	case phaseClosed:
		return "closed"
	}
	return "unknown"
}

// session represents an FTP client session.
//
// All fields are owned by the goroutine running serve. The only other
// goroutine a session starts is the one-shot passive accept inside
// dataChannel, which never touches the session itself.
type session struct {
	server *Server
	conn   net.Conn
	reader *wire.Reader
	writer *bufio.Writer
	log    zerolog.Logger

	// Session tracking
	sessionID string
	remoteIP  string

	// Identity
	phase    authPhase
	user     string
	password string // of the account awaiting PASS
	isAdmin  bool

	// State
	workingDir   string // virtual, always starts with "/"
	transferType wire.TransferType
	dataPort     uint16 // from PORT; 0 means ephemeral
	data         *dataChannel
	sandbox      *sandbox

	lastCode wire.ReplyCode
	err      error // fatal control connection error
}

type handlerFunc func(*session, wire.Command)

// sessionHandlers are answered in every phase.
var sessionHandlers = map[wire.Verb]handlerFunc{
	wire.VerbUser:    (*session).handleUSER,
	wire.VerbPass:    (*session).handlePASS,
	wire.VerbAuth:    (*session).handleAUTH,
	wire.VerbSyst:    (*session).handleSYST,
	wire.VerbNoOp:    (*session).handleNOOP,
	wire.VerbQuit:    (*session).handleQUIT,
	wire.VerbUnknown: (*session).handleUnknown,
}

// authenticatedHandlers require a logged in session.
var authenticatedHandlers = map[wire.Verb]handlerFunc{
	// File Management
	wire.VerbCwd:  (*session).handleCWD,
	wire.VerbCdUp: (*session).handleCDUP,
	wire.VerbPwd:  (*session).handlePWD,
	wire.VerbList: (*session).handleLIST,
	wire.VerbMkd:  (*session).handleMKD,
	wire.VerbRmd:  (*session).handleRMD,

	// File Transfer
	wire.VerbRetr: (*session).handleRETR,
	wire.VerbStor: (*session).handleSTOR,

	// Transfer Parameters
	wire.VerbType: (*session).handleTYPE,
	wire.VerbPort: (*session).handlePORT,
	wire.VerbPasv: (*session).handlePASV,
}

// newSession creates a new session with its own handle on the server root.
func newSession(server *Server, conn net.Conn) (*session, error) {
	sb, err := openSandbox(server.rootPath)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	ip := remoteIP(conn)

	return &session{
		server:       server,
		conn:         conn,
		reader:       wire.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		log:          server.logger.With().Str("session_id", sessionID).Str("remote_ip", ip).Logger(),
		sessionID:    sessionID,
		remoteIP:     ip,
		workingDir:   "/",
		transferType: wire.TransferASCII,
		sandbox:      sb,
	}, nil
}

// serve runs the command loop until QUIT, a control connection error or
// server shutdown. Commands are handled one at a time, in order.
func (s *session) serve() {
	defer s.close()

	s.log.Info().Msg("session_started")
	s.reply(wire.ServiceReadyForNewUser, s.server.welcomeMessage)

	for s.err == nil && s.phase != phaseClosed {
		if s.server.maxIdleTime > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.server.maxIdleTime))
		}

		cmd, err := s.reader.ReadCommand()
		if err != nil {
			var pe *wire.ParseError
			if errors.As(err, &pe) {
				s.log.Debug().Str("user", s.user).Err(pe).Msg("malformed command")
				s.reply(pe.Code, pe.Msg)
				continue
			}
			s.readFailed(err)
			return
		}

		s.handleCommand(cmd)
	}
}

// readFailed reports why the control connection stopped delivering commands.
func (s *session) readFailed(err error) {
	var ne net.Error
	switch {
	case errors.Is(err, wire.ErrLineTooLong):
		s.reply(wire.UnknownCommand, "Command line too long.")
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case errors.As(err, &ne) && ne.Timeout():
		s.log.Info().Str("user", s.user).Msg("idle timeout")
		s.reply(wire.ServiceNotAvailable, "Timeout.")
	default:
		s.log.Warn().Str("user", s.user).Err(err).Msg("read error")
	}
}

// close closes the session and underlying connection.
func (s *session) close() {
	s.closeData()
	if err := s.sandbox.Close(); err != nil {
		s.log.Debug().Err(err).Msg("closing root handle")
	}
	s.conn.Close()

	s.log.Debug().Str("user", s.user).Msg("session closed")
}

// handleCommand logs, dispatches and measures a single command.
func (s *session) handleCommand(cmd wire.Command) {
	logArg := cmd.Arg
	if cmd.Verb == wire.VerbPass {
		logArg = "***"
	}
	s.log.Debug().
		Str("user", s.user).
		Str("cmd", strings.ToUpper(cmd.Name)).
		Str("arg", logArg).
		Msg("command received")

	start := time.Now()
	s.lastCode = 0
	s.dispatch(cmd)

	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordCommand(cmd.Verb.String(), !s.lastCode.IsError(), time.Since(start))
	}
}

func (s *session) dispatch(cmd wire.Command) {
	if handler, ok := sessionHandlers[cmd.Verb]; ok {
		handler(s, cmd)
		return
	}
	if s.phase != phaseAuthenticated {
		s.reply(wire.NotLoggedIn, "Please log first")
		return
	}
	if handler, ok := authenticatedHandlers[cmd.Verb]; ok {
		handler(s, cmd)
		return
	}
	s.reply(wire.CommandNotImplemented, "Not implemented")
}

// reply sends a response to the client. A write failure ends the session.
func (s *session) reply(code wire.ReplyCode, message string) {
	s.lastCode = code
	if s.err != nil {
		return
	}
	if _, err := s.writer.Write(wire.Encode(wire.NewResponse(code, message))); err != nil {
		s.fail(err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.fail(err)
	}
}

// fail records a fatal I/O error; serve stops after the current command.
func (s *session) fail(err error) {
	if s.err == nil {
		s.err = err
		if !errors.Is(err, net.ErrClosed) {
			s.log.Warn().Str("user", s.user).Err(err).Msg("connection error")
		}
	}
}
