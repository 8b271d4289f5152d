package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func feed(from, to int) string {
	var b strings.Builder
	for ts := from; ts <= to; ts++ {
		fmt.Fprintf(&b, `{"timestamp": %d, "streams": {"/vehicle_pose": {"pose": {"time": %d, "x": %d, "y": 0, "z": 0}}, "/speed": {"variable": {"values": [%d]}}}}`+"\n", ts, ts, ts, ts)
	}
	return b.String()
}

func baseArgs(dir string) []string {
	return []string{"--data-dir", dir, "--log-level", "error"}
}

func TestSessionLifecycle(t *testing.T) {
	dir := t.TempDir()
	args := func(extra ...string) []string { return append(baseArgs(dir), extra...) }

	out, err := execute(t, "", args("session", "create", "drive")...)
	if err != nil || !strings.Contains(out, "session: drive") {
		t.Fatalf("create: %q %v", out, err)
	}

	file := filepath.Join(t.TempDir(), "drive.jsonl")
	if err := os.WriteFile(file, []byte(feed(100, 104)), 0o644); err != nil {
		t.Fatalf("write feed: %v", err)
	}
	out, err = execute(t, "", args("session", "import", "drive", file)...)
	if err != nil || !strings.Contains(out, "imported: 5 timeslices") {
		t.Fatalf("import: %q %v", out, err)
	}
	out, err = execute(t, feed(105, 105), args("session", "import", "drive", "-")...)
	if err != nil || !strings.Contains(out, "imported: 1 timeslices") {
		t.Fatalf("stdin import: %q %v", out, err)
	}

	out, err = execute(t, "", args("session", "list")...)
	if err != nil || !strings.Contains(out, "drive") || !strings.Contains(out, "NAME") {
		t.Fatalf("list: %q %v", out, err)
	}

	out, err = execute(t, "", args("session", "trim", "drive", "--before", "102")...)
	if err != nil || !strings.Contains(out, "trimmed: 2 timeslices, 4 remaining") {
		t.Fatalf("trim: %q %v", out, err)
	}

	out, err = execute(t, "", args("session", "inspect", "drive")...)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var info inspectOutput
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("inspect output %q: %v", out, err)
	}
	if info.Records != 4 || info.First != 102 || info.Last != 105 || info.Session.Timeslices != 4 {
		t.Fatalf("inspect: %+v", info)
	}

	if _, err := execute(t, "", args("session", "delete", "drive")...); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := execute(t, "", args("session", "inspect", "drive")...); err == nil {
		t.Fatalf("expected error inspecting a deleted session")
	}
}

func TestReplayCommand(t *testing.T) {
	dir := t.TempDir()
	args := func(extra ...string) []string { return append(baseArgs(dir), extra...) }
	if _, err := execute(t, feed(100, 103), args("session", "import", "drive")...); err != nil {
		t.Fatalf("import: %v", err)
	}

	out, err := execute(t, "", args("replay", "drive", "--rate", "1", "--streams", "/vehicle_pose")...)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	var lines []map[string]interface{}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 4 {
		t.Fatalf("want 4 frames, got %d:\n%s", len(lines), out)
	}
	if _, ok := lines[0]["variables"]; ok {
		t.Fatalf("--streams should drop /speed: %v", lines[0])
	}

	out, err = execute(t, "", args("replay", "drive", "--rate", "1", "--mode", "buffer", "--start", "102", "--filter", `stream.startsWith("/vehicle")`)...)
	if err != nil {
		t.Fatalf("buffer replay: %v", err)
	}
	if n := strings.Count(out, "\n"); n != 2 {
		t.Fatalf("want 2 frames from 102, got %d:\n%s", n, out)
	}
}

func TestReplayCommandRejectsBadFlags(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, "", append(baseArgs(dir), "replay", "drive", "--streams", "/a", "--filter", "true")...); err == nil {
		t.Fatalf("expected error for --streams with --filter")
	}
	if _, err := execute(t, "", append(baseArgs(dir), "replay", "drive", "--filter", "stream +")...); err == nil {
		t.Fatalf("expected CEL compile error")
	}
	if _, err := execute(t, "", append(baseArgs(dir), "session", "trim", "drive")...); err == nil {
		t.Fatalf("expected error without --before or --max-bytes")
	}
}
