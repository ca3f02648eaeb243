package server

import (
	"crypto/subtle"
	"fmt"

	"github.com/gonzalop/ftpd/internal/wire"
)

// handleUSER looks the name up and either logs in directly (empty password)
// or waits for PASS. A USER in any phase starts over.
func (s *session) handleUSER(cmd wire.Command) {
	s.phase = phaseUnauthenticated
	s.user = ""
	s.password = ""
	s.isAdmin = false

	acct, isAdmin, ok := s.server.credentials.Lookup(cmd.Arg)
	if !ok {
		s.authFailed(cmd.Arg, "unknown_user")
		s.reply(wire.NotLoggedIn, "Unknown user...")
		return
	}

	s.user = acct.Name
	s.isAdmin = isAdmin
	if acct.Password == "" {
		s.login()
		s.reply(wire.UserLoggedIn, fmt.Sprintf("Welcome %s!", acct.Name))
		return
	}

	s.password = acct.Password
	s.phase = phaseAwaitingPassword
	s.reply(wire.UserNameOkayNeedPassword, fmt.Sprintf("Login OK, password needed for %s", acct.Name))
}

func (s *session) handlePASS(cmd wire.Command) {
	switch s.phase {
	case phaseAwaitingPassword:
	case phaseAuthenticated:
		s.reply(wire.BadSequenceOfCommands, "Already logged in")
		return
	default:
		s.reply(wire.NotLoggedIn, "Please log first")
		return
	}

	if subtle.ConstantTimeCompare([]byte(cmd.Arg), []byte(s.password)) != 1 {
		// Stays in phaseAwaitingPassword; there is no retry limit.
		s.authFailed(s.user, "invalid_password")
		s.reply(wire.NotLoggedIn, "Invalid password")
		return
	}

	s.login()
	s.reply(wire.UserLoggedIn, fmt.Sprintf("Welcome %s", s.user))
}

func (s *session) login() {
	s.phase = phaseAuthenticated
	s.password = ""
	s.workingDir = "/"

	// Security audit: successful authentication
	s.log.Info().Str("user", s.user).Bool("admin", s.isAdmin).Msg("authentication_success")
	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordAuthentication(true, s.user)
	}
}

func (s *session) authFailed(user, reason string) {
	// Security audit: failed authentication
	s.log.Warn().Str("user", user).Str("reason", reason).Msg("authentication_failed")
	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordAuthentication(false, user)
	}
}

func (s *session) handleAUTH(_ wire.Command) {
	s.reply(wire.CommandNotImplemented, "Not implemented")
}

func (s *session) handleSYST(_ wire.Command) {
	s.reply(wire.SystemType, s.server.serverName)
}

func (s *session) handleNOOP(_ wire.Command) {
	s.reply(wire.Ok, "Doing nothing")
}

func (s *session) handleQUIT(_ wire.Command) {
	s.closeData()
	s.phase = phaseClosed
	s.reply(wire.ServiceClosingControlConnection, "Closing connection...")
}

func (s *session) handleUnknown(cmd wire.Command) {
	s.reply(wire.UnknownCommand, fmt.Sprintf("%q: Not implemented", cmd.Name))
}
