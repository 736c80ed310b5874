package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		k    Kind
		want string
	}{
		{Info, "info"},
		{Success, "success"},
		{Warning, "warning"},
		{Error, "error"},
		{Kind(42), "info"},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.k, got, tt.want)
		}
	}
}

func TestConsole_WritesLabelAndMessage(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf).Notify(Warning, "push channel down")

	got := buf.String()
	if !strings.Contains(got, "[warning]") {
		t.Errorf("output %q missing kind label", got)
	}
	if !strings.Contains(got, "push channel down") {
		t.Errorf("output %q missing message", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Error("output must be a full line")
	}
}

func TestLogger_MapsKindsToLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	sink.Notify(Warning, "degraded")
	sink.Notify(Error, "stopped")
	sink.Notify(Success, "connected")

	got := buf.String()
	for _, want := range []string{"level=WARN", "level=ERROR", "level=INFO"} {
		if !strings.Contains(got, want) {
			t.Errorf("log output missing %s:\n%s", want, got)
		}
	}
}

func TestMulti_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := Multi{NewConsole(&a), NewConsole(&b)}

	m.Notify(Info, "hello")

	if !strings.Contains(a.String(), "hello") || !strings.Contains(b.String(), "hello") {
		t.Error("notification did not reach every sink")
	}
}
