// Package wire implements the FTP control-connection framing: splitting the
// byte stream into CRLF-terminated command lines, parsing them into Command
// values, and encoding replies.
package wire

import (
	"bytes"
	"errors"
	"io"
)

// MaxCommandLength is the maximum length of a command line, CRLF excluded.
const MaxCommandLength = 4096

var (
	// ErrNeedMoreData is returned by Decode when the buffer does not yet hold
	// a complete line.
	ErrNeedMoreData = errors.New("wire: need more data")

	// ErrLineTooLong is returned by Reader when a line exceeds MaxCommandLength.
	ErrLineTooLong = errors.New("wire: command too long")
)

var crlf = []byte("\r\n")

// Decode extracts the first CRLF-terminated line from buf and parses it.
//
// n is the number of bytes consumed, including the CRLF. When no CRLF is
// present Decode returns ErrNeedMoreData and n == 0, so partial reads can be
// accumulated by the caller. A line that fails to parse is still consumed: n
// is set and err is a *ParseError.
func Decode(buf []byte) (cmd Command, n int, err error) {
	idx := bytes.Index(buf, crlf)
	if idx < 0 {
		return Command{}, 0, ErrNeedMoreData
	}
	line := buf[:idx]
	n = idx + len(crlf)

	if len(line) > 0 && line[0] == ' ' {
		line = line[1:]
	}
	cmd, err = ParseCommand(line)
	return cmd, n, err
}

// Reader decodes commands from a control connection.
type Reader struct {
	r   io.Reader
	buf []byte
	tmp []byte
}

// NewReader returns a Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:   r,
		tmp: make([]byte, 512),
	}
}

// ReadCommand blocks until a full line is available and returns the parsed
// command. A *ParseError means the offending line was discarded and the
// caller may keep reading. Any other error is fatal for the connection.
func (r *Reader) ReadCommand() (Command, error) {
	for {
		cmd, n, err := Decode(r.buf)
		if !errors.Is(err, ErrNeedMoreData) {
			r.buf = r.buf[n:]
			return cmd, err
		}
		if len(r.buf) > MaxCommandLength {
			r.buf = nil
			return Command{}, ErrLineTooLong
		}

		m, err := r.r.Read(r.tmp)
		if m > 0 {
			r.buf = append(r.buf, r.tmp[:m]...)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(r.buf) > 0 {
				return Command{}, io.ErrUnexpectedEOF
			}
			return Command{}, err
		}
	}
}

// Buffered returns the number of bytes read from the connection but not yet
// decoded.
func (r *Reader) Buffered() int {
	return len(r.buf)
}
