package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/config"
)

func TestSetupWritesToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tileworld.log")
	closer := Setup(config.LogConfig{Level: "debug", File: path, MaxSizeMB: 1})
	t.Cleanup(func() {
		_ = closer.Close()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	log.Debug().Str("module", "test").Msg("hello file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Fatalf("expected log line in file, got %q", data)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", zerolog.GlobalLevel())
	}
}

func TestSetupFallsBackToInfo(t *testing.T) {
	closer := Setup(config.LogConfig{Level: "chatty"})
	t.Cleanup(func() { _ = closer.Close() })
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", zerolog.GlobalLevel())
	}
}
