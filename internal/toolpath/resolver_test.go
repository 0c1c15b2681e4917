package toolpath

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestLookPathPrefersConfiguredDir verifies configured dirs win over PATH.
func TestLookPathPrefersConfiguredDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit semantics differ on windows")
	}
	dir := t.TempDir()
	tool := filepath.Join(dir, "ffprobe-fake")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write tool: %v", err)
	}

	r := New(dir)
	got, err := r.LookPath("ffprobe-fake")
	if err != nil {
		t.Fatalf("LookPath() error = %v", err)
	}
	if got != tool {
		t.Fatalf("path = %q, want %q", got, tool)
	}
}

// TestLookPathMissingTool returns an error for unknown executables.
func TestLookPathMissingTool(t *testing.T) {
	r := NewForTests(func() []string { return nil }, t.TempDir())
	if _, err := r.LookPath("definitely-not-a-real-tool-xyz"); err == nil {
		t.Fatal("expected lookup error")
	}
}

// TestEnvPrependsDirsWithoutDuplicates checks the child PATH value.
func TestEnvPrependsDirsWithoutDuplicates(t *testing.T) {
	sep := string(os.PathListSeparator)
	environ := func() []string {
		return []string{"HOME=/home/u", "PATH=/usr/bin" + sep + "/opt/ffmpeg"}
	}
	r := NewForTests(environ, "/opt/ffmpeg", " ", "/opt/ffmpeg")

	env := r.Env()
	if len(env) != 2 {
		t.Fatalf("env = %v", env)
	}
	want := "PATH=/opt/ffmpeg" + sep + "/usr/bin"
	if env[1] != want {
		t.Fatalf("path entry = %q, want %q", env[1], want)
	}
	if !strings.HasPrefix(env[0], "HOME=") {
		t.Fatalf("other variables should be kept: %v", env)
	}
}

// TestEnvKeepsWindowsPathKey preserves the original variable casing.
func TestEnvKeepsWindowsPathKey(t *testing.T) {
	r := NewForTests(func() []string { return []string{"Path=C:/bin"} }, "C:/ffmpeg/bin")
	env := r.Env()
	if len(env) != 1 || !strings.HasPrefix(env[0], "Path=") {
		t.Fatalf("env = %v", env)
	}
}

// TestSetDirsReplacesDirectories checks runtime reconfiguration.
func TestSetDirsReplacesDirectories(t *testing.T) {
	r := New("/a")
	r.SetDirs("/b", "")
	dirs := r.Dirs()
	if len(dirs) != 1 || dirs[0] != filepath.Clean("/b") {
		t.Fatalf("dirs = %v", dirs)
	}
}
