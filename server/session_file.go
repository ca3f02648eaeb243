package server

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gonzalop/ftpd/internal/wire"
)

var (
	errNotDir = errors.New("not a directory")
	errIsDir  = errors.New("is a directory")
)

// handlePWD quotes the directory per RFC 959: embedded quotes are doubled.
func (s *session) handlePWD(_ wire.Command) {
	dir := strings.ReplaceAll(s.workingDir, `"`, `""`)
	s.reply(wire.PathnameCreated, fmt.Sprintf(`"%s" `, dir))
}

func (s *session) handleCWD(cmd wire.Command) {
	dir, err := s.resolveDir(cmd.Arg)
	if err != nil {
		s.log.Debug().Str("user", s.user).Str("path", cmd.Arg).Err(err).Msg("change directory failed")
		s.reply(wire.FileNotFound, "No such file or directory")
		return
	}
	s.workingDir = dir
	s.reply(wire.RequestedFileActionOkay, fmt.Sprintf(`Directory changed to "%s"`, dir))
}

// resolveDir resolves p to an existing directory and returns its virtual path.
func (s *session) resolveDir(p string) (string, error) {
	real, err := s.sandbox.resolve(s.workingDir, p)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", errNotDir
	}
	return s.sandbox.virtual(real)
}

// handleCDUP moves to the parent directory; the parent of "/" is "/".
func (s *session) handleCDUP(_ wire.Command) {
	s.workingDir = path.Dir(s.workingDir)
	s.reply(wire.RequestedFileActionOkay, fmt.Sprintf(`Directory changed to "%s"`, s.workingDir))
}

func (s *session) handleMKD(cmd wire.Command) {
	err := s.makeDir(cmd.Arg)
	if err != nil {
		s.log.Debug().Str("user", s.user).Str("path", cmd.Arg).Err(err).Msg("make directory failed")
		s.reply(wire.FileNotFound, "Couldn't create folder")
		return
	}
	// Security audit: directory created
	s.log.Info().Str("user", s.user).Str("path", joinVirtual(s.workingDir, cmd.Arg)).Msg("directory_created")
	s.reply(wire.PathnameCreated, "Folder successfully created!")
}

func (s *session) makeDir(p string) error {
	parent, name, err := s.sandbox.resolveNew(s.workingDir, p)
	if err != nil {
		return err
	}
	rel, err := s.sandbox.rel(filepath.Join(parent, name))
	if err != nil {
		return err
	}
	return s.sandbox.rootHandle.Mkdir(rel, 0o755)
}

func (s *session) handleRMD(cmd wire.Command) {
	err := s.removeDir(cmd.Arg)
	if err != nil {
		s.log.Debug().Str("user", s.user).Str("path", cmd.Arg).Err(err).Msg("remove directory failed")
		s.reply(wire.FileNotFound, "Couldn't remove folder")
		return
	}
	// Security audit: directory removed
	s.log.Info().Str("user", s.user).Str("path", joinVirtual(s.workingDir, cmd.Arg)).Msg("directory_removed")
	s.reply(wire.RequestedFileActionOkay, "Folder successfully removed")
}

// removeDir removes a directory and everything below it. The root itself
// cannot be removed.
func (s *session) removeDir(p string) error {
	real, err := s.sandbox.resolve(s.workingDir, p)
	if err != nil {
		return err
	}
	if real == s.sandbox.rootPath {
		return os.ErrPermission
	}
	info, err := os.Stat(real)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errNotDir
	}
	if s.isProtectedIn(real) {
		return os.ErrPermission
	}
	rel, err := s.sandbox.rel(real)
	if err != nil {
		return err
	}
	return s.sandbox.rootHandle.RemoveAll(rel)
}

// isProtected reports whether real is the protected file and the session may
// not touch it.
func (s *session) isProtected(real string) bool {
	return !s.isAdmin && s.server.protectedFile != "" && real == s.server.protectedFile
}

// isProtectedIn reports whether removing dir would also remove the
// protected file.
func (s *session) isProtectedIn(dir string) bool {
	if s.isAdmin || s.server.protectedFile == "" {
		return false
	}
	return strings.HasPrefix(s.server.protectedFile, dir+string(filepath.Separator))
}

// hiddenFile is the path LIST leaves out for this session.
func (s *session) hiddenFile() string {
	if s.isAdmin {
		return ""
	}
	return s.server.protectedFile
}
