package wire

import (
	"bytes"
	"fmt"
	"strconv"
)

// ReplyCode is a three-digit FTP reply code (RFC 959, section 4.2).
type ReplyCode int

// Reply codes used by the server.
const (
	RestartMarkerReply                         ReplyCode = 110
	ServiceReadyInMinutes                      ReplyCode = 120
	DataConnectionAlreadyOpen                  ReplyCode = 125
	FileStatusOk                               ReplyCode = 150
	Ok                                         ReplyCode = 200
	CommandNotImplementedSuperfluousAtThisSite ReplyCode = 202
	SystemStatus                               ReplyCode = 211
	DirectoryStatus                            ReplyCode = 212
	FileStatus                                 ReplyCode = 213
	HelpMessage                                ReplyCode = 214
	SystemType                                 ReplyCode = 215
	ServiceReadyForNewUser                     ReplyCode = 220
	ServiceClosingControlConnection            ReplyCode = 221
	DataConnectionOpen                         ReplyCode = 225
	ClosingDataConnection                      ReplyCode = 226
	EnteringPassiveMode                        ReplyCode = 227
	UserLoggedIn                               ReplyCode = 230
	RequestedFileActionOkay                    ReplyCode = 250
	PathnameCreated                            ReplyCode = 257
	UserNameOkayNeedPassword                   ReplyCode = 331
	NeedAccountForLogin                        ReplyCode = 332
	RequestedFileActionPending                 ReplyCode = 350
	ServiceNotAvailable                        ReplyCode = 421
	CantOpenDataConnection                     ReplyCode = 425
	ConnectionClosed                           ReplyCode = 426
	FileBusy                                   ReplyCode = 450
	LocalErrorInProcessing                     ReplyCode = 451
	InsufficientStorageSpace                   ReplyCode = 452
	UnknownCommand                             ReplyCode = 500
	InvalidParameterOrArgument                 ReplyCode = 501
	CommandNotImplemented                      ReplyCode = 502
	BadSequenceOfCommands                      ReplyCode = 503
	CommandNotImplementedForThatParameter      ReplyCode = 504
	NotLoggedIn                                ReplyCode = 530
	NeedAccountForStoringFiles                 ReplyCode = 532
	FileNotFound                               ReplyCode = 550
	PageTypeUnknown                            ReplyCode = 551
	ExceededStorageAllocation                  ReplyCode = 552
	FileNameNotAllowed                         ReplyCode = 553
)

// IsError reports whether the code is a transient or permanent negative reply.
func (c ReplyCode) IsError() bool {
	return c >= 400
}

// Response is a single reply sent on the control connection.
type Response struct {
	Code    ReplyCode
	Message string
}

// NewResponse returns a Response with the given code and message.
func NewResponse(code ReplyCode, message string) Response {
	return Response{Code: code, Message: message}
}

func (r Response) String() string {
	return string(bytes.TrimSuffix(Encode(r), crlf))
}

// Encode serializes a response into a CRLF-terminated frame.
// An empty message produces a bare "<code>\r\n".
func Encode(r Response) []byte {
	if r.Message == "" {
		return fmt.Appendf(nil, "%d\r\n", int(r.Code))
	}
	return fmt.Appendf(nil, "%d %s\r\n", int(r.Code), r.Message)
}

// DecodeResponse parses a single reply frame produced by Encode.
// The trailing CRLF is optional.
func DecodeResponse(line []byte) (Response, error) {
	line = bytes.TrimSuffix(line, crlf)
	if len(line) < 3 {
		return Response{}, fmt.Errorf("reply too short: %q", line)
	}
	code, err := strconv.Atoi(string(line[:3]))
	if err != nil || code < 100 || code > 599 {
		return Response{}, fmt.Errorf("invalid reply code: %q", line[:3])
	}
	rest := line[3:]
	if len(rest) == 0 {
		return Response{Code: ReplyCode(code)}, nil
	}
	if rest[0] != ' ' {
		return Response{}, fmt.Errorf("malformed reply: %q", line)
	}
	return Response{Code: ReplyCode(code), Message: string(rest[1:])}, nil
}
