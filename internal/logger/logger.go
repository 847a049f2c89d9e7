// Package logger provides formatted CLI logging with color support and
// JSON-RPC message tracing for the bridge commands.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ANSI color codes used when color output is enabled.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Logger writes formatted log lines to a writer. The verbose flag gates
// Debug/InfoVerbose/WarningVerbose output, and jsonRPCMode gates full
// JSON-RPC request/response payload tracing.
type Logger struct {
	verbose     bool
	useColor    bool
	jsonRPCMode bool
	writer      io.Writer
}

// NewLogger creates a logger writing to stdout.
func NewLogger(verbose, useColor, jsonRPC bool) *Logger {
	return NewLoggerWithWriter(verbose, useColor, jsonRPC, os.Stdout)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(verbose, useColor, jsonRPC bool, w io.Writer) *Logger {
	return &Logger{
		verbose:     verbose,
		useColor:    useColor,
		jsonRPCMode: jsonRPC,
		writer:      w,
	}
}

// SetVerbose enables or disables verbose output at runtime.
func (l *Logger) SetVerbose(verbose bool) {
	l.verbose = verbose
}

// SetWriter redirects subsequent output to w.
func (l *Logger) SetWriter(w io.Writer) {
	l.writer = w
}

func (l *Logger) log(color, tag, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.useColor {
		fmt.Fprintf(l.writer, "%s%s%s %s\n", color, tag, colorReset, msg)
	} else {
		fmt.Fprintf(l.writer, "%s %s\n", tag, msg)
	}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(colorCyan, "[INFO]", format, args...)
}

// Success logs a success message.
func (l *Logger) Success(format string, args ...interface{}) {
	l.log(colorGreen, "[OK]", format, args...)
}

// Warning logs a warning message.
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(colorYellow, "[WARN]", format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(colorRed, "[ERROR]", format, args...)
}

// Debug logs a message only when verbose mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.log(colorGray, "[DEBUG]", format, args...)
}

// InfoVerbose logs an informational message only in verbose mode.
// Safe to call on a nil logger.
func (l *Logger) InfoVerbose(format string, args ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	l.Info(format, args...)
}

// WarningVerbose logs a warning only in verbose mode.
// Safe to call on a nil logger.
func (l *Logger) WarningVerbose(format string, args ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	l.Warning(format, args...)
}

// Request traces an outgoing JSON-RPC request when jsonRPC mode is enabled.
func (l *Logger) Request(method string, params interface{}) {
	if !l.jsonRPCMode {
		return
	}
	l.log(colorGray, "[->]", "%s\n%s", method, PrettyJSON(params))
}

// Response traces an incoming JSON-RPC response when jsonRPC mode is enabled.
func (l *Logger) Response(method string, result interface{}) {
	if !l.jsonRPCMode {
		return
	}
	l.log(colorGray, "[<-]", "%s\n%s", method, PrettyJSON(result))
}

// Notification logs an incoming server notification. The payload is included
// only in jsonRPC mode.
func (l *Logger) Notification(method string, params interface{}) {
	if l.jsonRPCMode {
		l.log(colorYellow, "[NOTIFY]", "%s\n%s", method, PrettyJSON(params))
		return
	}
	l.log(colorYellow, "[NOTIFY]", "%s", method)
}

// PrettyJSON renders v as indented JSON, falling back to fmt on error.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
