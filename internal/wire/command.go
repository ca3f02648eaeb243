package wire

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Verb identifies a supported FTP command.
type Verb int

// Supported verbs. VerbUnknown covers every verb the server does not implement.
const (
	VerbUnknown Verb = iota
	VerbAuth
	VerbCwd
	VerbList
	VerbMkd
	VerbRmd
	VerbNoOp
	VerbPort
	VerbPass
	VerbPasv
	VerbPwd
	VerbQuit
	VerbRetr
	VerbStor
	VerbSyst
	VerbType
	VerbCdUp
	VerbUser
)

var verbNames = map[Verb]string{
	VerbAuth: "AUTH",
	VerbCwd:  "CWD",
	VerbList: "LIST",
	VerbMkd:  "MKD",
	VerbRmd:  "RMD",
	VerbNoOp: "NOOP",
	VerbPort: "PORT",
	VerbPass: "PASS",
	VerbPasv: "PASV",
	VerbPwd:  "PWD",
	VerbQuit: "QUIT",
	VerbRetr: "RETR",
	VerbStor: "STOR",
	VerbSyst: "SYST",
	VerbType: "TYPE",
	VerbCdUp: "CDUP",
	VerbUser: "USER",
}

var verbsByName = func() map[string]Verb {
	m := make(map[string]Verb, len(verbNames))
	for v, name := range verbNames {
		m[name] = v
	}
	return m
}()

func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return "UNKN"
}

// TransferType is the representation type selected with TYPE.
type TransferType int

const (
	TransferASCII TransferType = iota
	TransferImage
	TransferUnknown
)

// TransferTypeFromByte maps the first character of a TYPE argument.
func TransferTypeFromByte(c byte) TransferType {
	switch c {
	case 'A':
		return TransferASCII
	case 'I':
		return TransferImage
	default:
		return TransferUnknown
	}
}

func (t TransferType) String() string {
	switch t {
	case TransferASCII:
		return "A"
	case TransferImage:
		return "I"
	default:
		return "?"
	}
}

// Command is a parsed command line. It is never modified after parsing.
type Command struct {
	Verb Verb

	// Name is the verb token as sent by the client, before upper-casing.
	Name string

	// Arg is the raw remainder after the first space. HasArg is false when
	// the line had no remainder at all.
	Arg    string
	HasArg bool

	// Port is set for VerbPort.
	Port uint16

	// Type is set for VerbType.
	Type TransferType
}

// ParseError is returned for a line that cannot be turned into a Command.
// Code is the reply the server sends back; the connection stays open.
type ParseError struct {
	Code ReplyCode
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d %s", int(e.Code), e.Msg)
}

func parseErr(code ReplyCode, msg string) *ParseError {
	return &ParseError{Code: code, Msg: msg}
}

// argument rules per verb
const (
	argNone = iota
	argOptional
	argRequired
)

var argRules = map[Verb]int{
	VerbCwd:  argRequired,
	VerbList: argOptional,
	VerbMkd:  argRequired,
	VerbRmd:  argRequired,
	VerbPort: argRequired,
	VerbPass: argRequired,
	VerbRetr: argRequired,
	VerbStor: argRequired,
	VerbType: argRequired,
	VerbUser: argRequired,
}

// ParseCommand turns a single line, without its CRLF, into a Command.
// The verb is matched case-insensitively; unrecognized verbs produce a
// VerbUnknown command carrying the token as sent.
func ParseCommand(line []byte) (Command, error) {
	token, rest, hasArg := bytes.Cut(line, []byte{' '})
	if len(token) == 0 {
		return Command{}, parseErr(UnknownCommand, "Empty command")
	}

	verb, ok := verbsByName[string(bytes.ToUpper(token))]
	if !ok {
		return Command{Verb: VerbUnknown, Name: string(token), Arg: string(rest), HasArg: hasArg}, nil
	}
	cmd := Command{Verb: verb, Name: string(token)}

	switch argRules[verb] {
	case argRequired:
		// "TYPE " with an empty parameter is answered by the TYPE rule below.
		if !hasArg || (len(rest) == 0 && verb != VerbType) {
			return Command{}, parseErr(InvalidParameterOrArgument, "Missing parameter")
		}
	case argOptional:
		if len(rest) == 0 {
			hasArg = false
		}
	case argNone:
		// Trailing garbage on argument-less verbs is ignored.
		return cmd, nil
	}

	switch verb {
	case VerbPort:
		port, err := parsePort(rest)
		if err != nil {
			return Command{}, err
		}
		cmd.Port = port
	case VerbType:
		if len(rest) == 0 {
			return Command{}, parseErr(CommandNotImplementedForThatParameter, "Command not implemented for that parameter")
		}
		t := TransferTypeFromByte(rest[0])
		if t == TransferUnknown {
			return Command{}, parseErr(CommandNotImplementedForThatParameter, "Command not implemented for that parameter")
		}
		cmd.Type = t
	default:
		if !utf8.Valid(rest) {
			return Command{}, parseErr(InvalidParameterOrArgument, "Invalid UTF-8 in parameter")
		}
	}

	cmd.Arg = string(rest)
	cmd.HasArg = hasArg
	return cmd, nil
}

// parsePort decodes "h1,h2,h3,h4,p1,p2" and returns p1*256+p2.
// Privileged ports are refused.
func parsePort(arg []byte) (uint16, error) {
	fields := bytes.Split(arg, []byte{','})
	if len(fields) != 6 {
		return 0, parseErr(InvalidParameterOrArgument, "Invalid address/port")
	}
	var b [6]byte
	for i, f := range fields {
		n, err := strconv.ParseUint(string(bytes.TrimSpace(f)), 10, 8)
		if err != nil {
			return 0, parseErr(InvalidParameterOrArgument, "Invalid address/port")
		}
		b[i] = byte(n)
	}
	port := uint16(b[4])<<8 | uint16(b[5])
	if port <= 1024 {
		return 0, parseErr(InvalidParameterOrArgument, "Port can't be less than 1025")
	}
	return port, nil
}
