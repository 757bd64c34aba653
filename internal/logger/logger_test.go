package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestOpenFormats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"hello"`},
		{"JSON", `"msg":"hello"`},
		{"text", "msg=hello"},
		{"pretty", "hello"},
		{"", "hello"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		log, err := Open(tt.format, "info", &buf)
		if err != nil {
			t.Fatalf("Open(%q): %v", tt.format, err)
		}
		log.Info("hello", "k", 1)
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("Open(%q) output %q, want substring %q", tt.format, buf.String(), tt.want)
		}
	}
}

func TestOpenUnknownFormat(t *testing.T) {
	t.Parallel()
	if _, err := Open("xml", "info", &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestOpenLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log, err := Open("text", "warn", &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("quiet")
	if buf.Len() > 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
	log.Warn("loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Fatalf("expected warn output, got: %s", buf.String())
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("hello", "key", "value")

	output := buf.String()
	if !strings.Contains(output, `"key":"value"`) {
		t.Fatalf("expected key in JSON output, got: %s", output)
	}
	if !strings.Contains(output, `"level":"INFO"`) {
		t.Fatalf("expected level INFO in output, got: %s", output)
	}
}

func TestPrettyAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug).With("job", "conv 1").WithGroup("stats")
	log.Debug("done", "elapsed", 1500*time.Microsecond, "accuracy", 0.875, "name", "plain")

	output := buf.String()
	for _, want := range []string{
		"done",
		`job="conv 1"`,
		"stats.elapsed=1.5ms",
		"stats.accuracy=0.875",
		"stats.name=plain",
		"DEBUG",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q missing %q", output, want)
		}
	}
	if strings.Count(output, "\n") != 1 {
		t.Errorf("expected one line, got %q", output)
	}
}

func TestPrettyGroupAttr(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo)
	log.Info("shape", slog.Group("in", "h", 4, "w", 5))

	if !strings.Contains(buf.String(), "in.h=4 in.w=5") {
		t.Fatalf("expected flattened group, got: %s", buf.String())
	}
}

func TestPrettyLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelError)
	log.Warn("dropped")
	if buf.Len() > 0 {
		t.Fatalf("expected nothing below error, got: %s", buf.String())
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want bool
	}{
		{"plain", false},
		{"has space", true},
		{`has"quote`, true},
		{"k=v", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := needsQuoting(tt.in); got != tt.want {
			t.Errorf("needsQuoting(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelInfo)
	ctx := WithContext(context.Background(), log)
	if FromContext(ctx) != log {
		t.Fatal("FromContext did not return the stored logger")
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without a logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
