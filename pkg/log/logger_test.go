package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, level Level, f Formatter) Logger {
	return NewLogger(WithLevel(level), WithFormatter(f), WithOutput(NewWriterOutput(buf)))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WarnLevel, &TextFormatter{})
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn missing: %q", out)
	}
}

func TestJSONFieldsAndWith(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, DebugLevel, &JSONFormatter{}).With(Component("buffer"))
	l.Info("inserted", Int("count", 3), Err(errors.New("boom")))

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "inserted" || rec["component"] != "buffer" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["count"].(float64) != 3 {
		t.Fatalf("count field: %v", rec["count"])
	}
	if rec["error"] != "boom" {
		t.Fatalf("error field: %v", rec["error"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"debug": DebugLevel, "INFO": InfoLevel, "warning": WarnLevel, "error": ErrorLevel}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestApplyConfigRedacts(t *testing.T) {
	l, err := ApplyConfig(&Config{Level: "info", Format: "json", Outputs: []string{"null"}, RedactKeys: []string{"token"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	var buf bytes.Buffer
	bl := l.(*BaseLogger)
	bl.outputs = append(bl.outputs, NewWriterOutput(&buf))
	l.Info("auth", Str("token", "secret"))
	if strings.Contains(buf.String(), "secret") {
		t.Fatalf("token not redacted: %q", buf.String())
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error")
	}
}
