package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfoVerbose(t *testing.T) {
	tests := []struct {
		name           string
		verbose        bool
		format         string
		args           []interface{}
		expectOutput   bool
		expectedSubstr string
	}{
		{
			name:           "verbose enabled - should output",
			verbose:        true,
			format:         "test message: %s",
			args:           []interface{}{"hello"},
			expectOutput:   true,
			expectedSubstr: "test message: hello",
		},
		{
			name:         "verbose disabled - should not output",
			verbose:      false,
			format:       "test message: %s",
			args:         []interface{}{"hello"},
			expectOutput: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l := NewLoggerWithWriter(tt.verbose, false, false, buf)

			l.InfoVerbose(tt.format, tt.args...)

			output := buf.String()
			if tt.expectOutput {
				if !strings.Contains(output, tt.expectedSubstr) {
					t.Errorf("expected output to contain %q, got %q", tt.expectedSubstr, output)
				}
			} else {
				if output != "" {
					t.Errorf("expected no output, got %q", output)
				}
			}
		})
	}
}

func TestWarningVerbose(t *testing.T) {
	tests := []struct {
		name           string
		verbose        bool
		format         string
		args           []interface{}
		expectOutput   bool
		expectedSubstr string
	}{
		{
			name:           "verbose enabled - should output",
			verbose:        true,
			format:         "warning: %s",
			args:           []interface{}{"test warning"},
			expectOutput:   true,
			expectedSubstr: "warning: test warning",
		},
		{
			name:         "verbose disabled - should not output",
			verbose:      false,
			format:       "warning: %s",
			args:         []interface{}{"test warning"},
			expectOutput: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l := NewLoggerWithWriter(tt.verbose, false, false, buf)

			l.WarningVerbose(tt.format, tt.args...)

			output := buf.String()
			if tt.expectOutput {
				if !strings.Contains(output, tt.expectedSubstr) {
					t.Errorf("expected output to contain %q, got %q", tt.expectedSubstr, output)
				}
			} else {
				if output != "" {
					t.Errorf("expected no output, got %q", output)
				}
			}
		})
	}
}

func TestInfoVerboseNilLogger(t *testing.T) {
	// Should not panic with nil logger
	var l *Logger
	l.InfoVerbose("test message")
}

func TestWarningVerboseNilLogger(t *testing.T) {
	// Should not panic with nil logger
	var l *Logger
	l.WarningVerbose("test warning")
}

func TestLoggerBasicFunctions(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLoggerWithWriter(false, false, false, buf)

	t.Run("Info", func(t *testing.T) {
		buf.Reset()
		l.Info("info message")
		if !strings.Contains(buf.String(), "info message") {
			t.Errorf("expected Info to log message, got %q", buf.String())
		}
	})

	t.Run("Error", func(t *testing.T) {
		buf.Reset()
		l.Error("error message")
		if !strings.Contains(buf.String(), "error message") {
			t.Errorf("expected Error to log message, got %q", buf.String())
		}
	})

	t.Run("Success", func(t *testing.T) {
		buf.Reset()
		l.Success("success message")
		if !strings.Contains(buf.String(), "success message") {
			t.Errorf("expected Success to log message, got %q", buf.String())
		}
	})

	t.Run("Warning", func(t *testing.T) {
		buf.Reset()
		l.Warning("warning message")
		if !strings.Contains(buf.String(), "warning message") {
			t.Errorf("expected Warning to log message, got %q", buf.String())
		}
	})

	t.Run("Debug verbose enabled", func(t *testing.T) {
		buf.Reset()
		l.SetVerbose(true)
		l.Debug("debug message")
		if !strings.Contains(buf.String(), "debug message") {
			t.Errorf("expected Debug to log message in verbose mode, got %q", buf.String())
		}
	})

	t.Run("Debug verbose disabled", func(t *testing.T) {
		buf.Reset()
		l.SetVerbose(false)
		l.Debug("debug message")
		if buf.String() != "" {
			t.Errorf("expected Debug to not log message when verbose is disabled, got %q", buf.String())
		}
	})
}

func TestJSONRPCTracing(t *testing.T) {
	t.Run("Request suppressed without json-rpc mode", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewLoggerWithWriter(false, false, false, buf)
		l.Request("tools/list", map[string]string{"key": "value"})
		if buf.String() != "" {
			t.Errorf("expected no request trace, got %q", buf.String())
		}
	})

	t.Run("Request traced in json-rpc mode", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewLoggerWithWriter(false, false, true, buf)
		l.Request("tools/list", map[string]string{"key": "value"})
		output := buf.String()
		if !strings.Contains(output, "tools/list") {
			t.Errorf("expected request trace to contain method, got %q", output)
		}
		if !strings.Contains(output, `"key": "value"`) {
			t.Errorf("expected request trace to contain payload, got %q", output)
		}
	})

	t.Run("Response traced in json-rpc mode", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewLoggerWithWriter(false, false, true, buf)
		l.Response("tools/call", map[string]int{"count": 3})
		if !strings.Contains(buf.String(), "tools/call") {
			t.Errorf("expected response trace to contain method, got %q", buf.String())
		}
	})

	t.Run("Notification method always logged", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewLoggerWithWriter(false, false, false, buf)
		l.Notification("notifications/tools/list_changed", nil)
		output := buf.String()
		if !strings.Contains(output, "notifications/tools/list_changed") {
			t.Errorf("expected notification method in output, got %q", output)
		}
	})
}

func TestLoggerConstructors(t *testing.T) {
	t.Run("NewLogger", func(t *testing.T) {
		l := NewLogger(true, true, true)
		if l == nil {
			t.Fatal("expected NewLogger to return non-nil logger")
		}
		if !l.verbose {
			t.Error("expected verbose to be true")
		}
		if !l.useColor {
			t.Error("expected useColor to be true")
		}
		if !l.jsonRPCMode {
			t.Error("expected jsonRPCMode to be true")
		}
	})

	t.Run("NewLoggerWithWriter", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewLoggerWithWriter(false, false, false, buf)
		if l == nil {
			t.Fatal("expected NewLoggerWithWriter to return non-nil logger")
		}
		if l.writer != buf {
			t.Error("expected writer to be set to provided buffer")
		}
	})
}

func TestSetWriter(t *testing.T) {
	buf1 := &bytes.Buffer{}
	buf2 := &bytes.Buffer{}

	l := NewLoggerWithWriter(false, false, false, buf1)
	l.Info("message1")

	if !strings.Contains(buf1.String(), "message1") {
		t.Error("expected message to be written to buf1")
	}

	buf1.Reset()
	l.SetWriter(buf2)
	l.Info("message2")

	if buf1.String() != "" {
		t.Error("expected buf1 to be empty after changing writer")
	}

	if !strings.Contains(buf2.String(), "message2") {
		t.Error("expected message to be written to buf2")
	}
}
