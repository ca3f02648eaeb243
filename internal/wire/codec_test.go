package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_NeedMoreData(t *testing.T) {
	buf := []byte("PWD")
	_, n, err := Decode(buf)
	assert.ErrorIs(t, err, ErrNeedMoreData)
	assert.Equal(t, 0, n)

	buf = append(buf, "\r\n"...)
	cmd, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, VerbPwd, cmd.Verb)
}

func TestDecode_ListWithPath(t *testing.T) {
	cmd, n, err := Decode([]byte("LIST /tmp\r\nNOOP\r\n"))
	require.NoError(t, err)
	assert.Equal(t, len("LIST /tmp\r\n"), n)
	assert.Equal(t, VerbList, cmd.Verb)
	assert.True(t, cmd.HasArg)
	assert.Equal(t, "/tmp", cmd.Arg)
}

func TestDecode_TrimsSingleLeadingSpace(t *testing.T) {
	cmd, _, err := Decode([]byte(" cwd src\r\n"))
	require.NoError(t, err)
	assert.Equal(t, VerbCwd, cmd.Verb)
	assert.Equal(t, "src", cmd.Arg)
}

func TestDecode_ParseErrorConsumesLine(t *testing.T) {
	buf := []byte("PORT 1,2,3\r\nNOOP\r\n")
	_, n, err := Decode(buf)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, InvalidParameterOrArgument, pe.Code)

	cmd, _, err := Decode(buf[n:])
	require.NoError(t, err)
	assert.Equal(t, VerbNoOp, cmd.Verb)
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "503 bad sequence of commands\r\n",
		string(Encode(NewResponse(BadSequenceOfCommands, "bad sequence of commands"))))
	assert.Equal(t, "425\r\n", string(Encode(NewResponse(CantOpenDataConnection, ""))))
}

func TestResponseRoundTrip(t *testing.T) {
	responses := []Response{
		NewResponse(ServiceReadyForNewUser, "Welcome to this FTP server!"),
		NewResponse(PathnameCreated, `"/" `),
		NewResponse(EnteringPassiveMode, "Entering Passive Mode (127,0,0,1,200,10)."),
		NewResponse(ClosingDataConnection, ""),
		NewResponse(NotLoggedIn, "Invalid password"),
	}
	for _, want := range responses {
		got, err := DecodeResponse(Encode(want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	for _, line := range []string{"", "12", "abc hello", "200-multi", "999 nope"} {
		_, err := DecodeResponse([]byte(line))
		assert.Error(t, err, "line %q", line)
	}
}

func TestReader_PartialReads(t *testing.T) {
	input := "USER anonymous\r\nPWD\r\nQUIT\r\n"
	r := NewReader(iotest.OneByteReader(strings.NewReader(input)))

	var verbs []Verb
	for {
		cmd, err := r.ReadCommand()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		verbs = append(verbs, cmd.Verb)
	}
	assert.Equal(t, []Verb{VerbUser, VerbPwd, VerbQuit}, verbs)
}

func TestReader_ParseErrorKeepsStream(t *testing.T) {
	r := NewReader(strings.NewReader("TYPE X\r\nTYPE I\r\n"))

	_, err := r.ReadCommand()
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CommandNotImplementedForThatParameter, pe.Code)

	cmd, err := r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, TransferImage, cmd.Type)
}

func TestReader_LineTooLong(t *testing.T) {
	long := bytes.Repeat([]byte("A"), MaxCommandLength+10)
	r := NewReader(bytes.NewReader(long))
	_, err := r.ReadCommand()
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.Zero(t, r.Buffered())
}

func TestReader_Pipelined(t *testing.T) {
	r := NewReader(strings.NewReader("NOOP\r\nPWD\r\nPW"))
	assert.Zero(t, r.Buffered())

	cmd, err := r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, VerbNoOp, cmd.Verb)
	assert.Equal(t, len("PWD\r\nPW"), r.Buffered())

	cmd, err = r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, VerbPwd, cmd.Verb)
	assert.Equal(t, len("PW"), r.Buffered())
}

func TestReader_TruncatedLine(t *testing.T) {
	r := NewReader(strings.NewReader("NOOP\r\nPW"))
	cmd, err := r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, VerbNoOp, cmd.Verb)

	_, err = r.ReadCommand()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
