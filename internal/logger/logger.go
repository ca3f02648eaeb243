// Package logger configures the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls Init.
type Options struct {
	// Debug enables debug level logging and caller information.
	Debug bool
	// File, when set, additionally writes logs to a rotated file.
	File string
	// Console is the interactive output. Defaults to os.Stderr.
	Console io.Writer
}

// Init builds log.Logger from opts and sets the global level. The returned
// closer flushes the log file, if any.
func Init(opts Options) io.Closer {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	cw := PrettyWriter(console, opts.Debug)
	cw.NoColor = !isTerminal(console)
	writers := []io.Writer{cw}

	var logRotate *lumberjack.Logger
	if opts.File != "" {
		// Set up lumberjack logger for log rotation
		logRotate = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // Max size in MB before rotation
			MaxBackups: 5,  // Max number of backup files
			MaxAge:     30, // Max age in days
			Compress:   true,
		}
		writers = append(writers, PrettyWriter(logRotate, false))
	}

	if opts.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	if opts.Debug {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()

	if logRotate == nil {
		return nopCloser{}
	}
	return logRotate
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// PrettyWriter returns a zerolog.ConsoleWriter with or without caller info
func PrettyWriter(out io.Writer, showCaller bool) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{
		Out:          out,
		NoColor:      true,
		TimeFormat:   time.RFC3339,
		TimeLocation: time.Local,
		FormatLevel: func(i interface{}) string {
			return "[" + strings.ToUpper(fmt.Sprint(i)) + "]"
		},
		FormatFieldName: func(i interface{}) string {
			return "(" + fmt.Sprint(i) + ")"
		},
	}
	if showCaller {
		cw.FormatCaller = func(i interface{}) string {
			if i == nil || i == "" {
				return ""
			}
			callerStr := fmt.Sprint(i)
			if idx := strings.Index(callerStr, "/ftpd/"); idx != -1 {
				callerStr = callerStr[idx+len("/ftpd/"):]
			}
			return fmt.Sprintf("(%s)", callerStr)
		}
	} else {
		cw.FormatCaller = func(i interface{}) string { return "" }
	}
	return cw
}
