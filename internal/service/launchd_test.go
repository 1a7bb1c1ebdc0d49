package service

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderServesInForeground(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, LaunchdParams{
		Label:  DefaultLabel,
		Binary: "/usr/local/bin/lectern",
		Config: "/cfg/config.toml",
		Log:    "/state/lectern.log",
		Env:    map[string]string{"LECTERN_LOG_LEVEL": "debug"},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"<string>com.lectern.agent</string>",
		"<string>serve</string>",
		"<string>/cfg/config.toml</string>",
		"<key>LECTERN_LOG_LEVEL</key><string>debug</string>",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("plist missing %q:\n%s", want, out)
		}
	}
}

func TestWritePlistAndStatus(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, ok := Status(DefaultLabel); ok {
		t.Fatalf("plist should not exist yet")
	}
	path, err := WritePlist(LaunchdParams{Label: DefaultLabel, Binary: "/bin/lectern"})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "com.lectern.agent.plist" {
		t.Fatalf("path %s", path)
	}
	if got, ok := Status(DefaultLabel); !ok || got != path {
		t.Fatalf("status = %s, %v", got, ok)
	}
}

func TestRenderEscapesValues(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, LaunchdParams{Label: "a&b", Binary: "/x", Config: "/c<1>", Log: "/l"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "a&amp;b") || !strings.Contains(out, "/c&lt;1&gt;") {
		t.Fatalf("values not escaped:\n%s", out)
	}
}
