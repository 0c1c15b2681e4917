package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"scribe-desktop/internal/domain"
)

// TestConfigureWritesJSONToFile checks level, formatter and file sink.
func TestConfigureWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scribe.log")
	logger, err := Configure(domain.LogSettings{Level: "debug", Format: "json", Path: path})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %s, want debug", logger.GetLevel())
	}

	logger.WithField("job", "job-1").Debug("probe finished")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"job":"job-1"`) || !strings.Contains(line, `"msg":"probe finished"`) {
		t.Fatalf("unexpected log line: %s", line)
	}
}

// TestConfigureRejectsEmptyPath checks the missing-path guard.
func TestConfigureRejectsEmptyPath(t *testing.T) {
	if _, err := Configure(domain.LogSettings{Level: "info"}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// TestConfigureIgnoresUnknownLevel keeps logrus' default level.
func TestConfigureIgnoresUnknownLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.log")
	logger, err := Configure(domain.LogSettings{Level: "chatty", Path: path})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %s, want info", logger.GetLevel())
	}
}
