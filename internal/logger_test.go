package internal

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(&buf, LogLevelInfo)

	lg.Debugf("hidden %d", 1)
	lg.Infof("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message should be filtered at info level, got: %q", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Errorf("info message missing, got: %q", out)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(&buf, LogLevelError)

	lg.Warnf("quiet")
	lg.SetLevel(LogLevelDebug)
	lg.Debugf("loud")

	if lg.Level() != LogLevelDebug {
		t.Errorf("Level() = %v, want LogLevelDebug", lg.Level())
	}
	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("warning should be filtered at error level, got: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("debug message missing after SetLevel, got: %q", out)
	}
}

func TestLogger_WithPrefix(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(&buf, LogLevelInfo).With("relay")
	lg.Infof("started")

	if !strings.Contains(buf.String(), "relay") {
		t.Errorf("prefix missing, got: %q", buf.String())
	}
}

func TestLogger_SetLevelReachesDerived(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(&buf, LogLevelInfo)
	child := root.With("monitor")

	child.Debugf("before")
	root.SetLevel(LogLevelDebug)
	child.Debugf("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Errorf("debug message should be filtered before SetLevel, got: %q", out)
	}
	if !strings.Contains(out, "after") {
		t.Errorf("derived logger ignored SetLevel on its root, got: %q", out)
	}

	child.SetLevel(LogLevelError)
	root.Infof("muted")
	if strings.Contains(buf.String(), "muted") {
		t.Errorf("root should follow SetLevel on a derived logger, got: %q", buf.String())
	}
}

func TestLogger_NilIsNoop(t *testing.T) {
	var lg *Logger
	// These must not panic
	lg.Errorf("x")
	lg.Warnf("x")
	lg.Infof("x")
	lg.Debugf("x")
	lg.SetLevel(LogLevelDebug)
	if lg.With("p") != nil {
		t.Error("With() on nil logger should return nil")
	}
}

func TestLogLevels(t *testing.T) {
	if LogLevelError >= LogLevelWarn {
		t.Error("LogLevelError should be less than LogLevelWarn")
	}
	if LogLevelWarn >= LogLevelInfo {
		t.Error("LogLevelWarn should be less than LogLevelInfo")
	}
	if LogLevelInfo >= LogLevelDebug {
		t.Error("LogLevelInfo should be less than LogLevelDebug")
	}
}
