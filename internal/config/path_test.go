package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/vizsync" {
		t.Fatalf("expected /custom/data/vizsync, got %s", got)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("HOME", "")
	if got := DefaultDataDir(); got != "./data" {
		t.Fatalf("expected fallback to ./data, got %s", got)
	}
}

func TestDefaultDataDirShape(t *testing.T) {
	got := DefaultDataDir()
	if !filepath.IsAbs(got) && !strings.HasPrefix(got, "./") {
		t.Fatalf("expected absolute or ./ path, got %s", got)
	}
	if !strings.HasSuffix(strings.ToLower(got), "vizsync") && got != "./data" {
		t.Fatalf("expected a vizsync directory, got %s", got)
	}
	if DefaultDataDir() != got {
		t.Fatalf("DefaultDataDir should be stable")
	}
}

func TestIsDir(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"existing directory", ".", true},
		{"missing path", "/non/existent/vizsync/path", false},
		{"regular file", os.Args[0], false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDir(tt.path); got != tt.want {
				t.Fatalf("isDir(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	cases := map[string]string{
		"~":           "/home/tester",
		"~/sessions":  "/home/tester/sessions",
		"/abs/dir":    "/abs/dir",
		"./rel":       "./rel",
		"~other/path": "~other/path",
	}
	for in, want := range cases {
		got, err := ExpandPath(in)
		if err != nil || got != want {
			t.Fatalf("ExpandPath(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ExpandPath(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
