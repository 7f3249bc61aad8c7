package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"strings"
	"testing"

	"github.com/famish99/jackbridge/internal/config"
)

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, config.LoggingConfig{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("Session activated", "instance", 1)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not one JSON record: %q", buf.String())
	}
	if rec["msg"] != "Session activated" || rec["instance"] != float64(1) {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	logger, _ = New(&buf, config.LoggingConfig{Level: "debug", Format: "text"})
	logger.Debug("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, config.LoggingConfig{Level: "chatty"}); err == nil {
		t.Fatal("New accepted an unknown level")
	}
}

func TestSetupRoutesStdlibLog(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	if _, err := Setup(&buf, config.LoggingConfig{Level: "info"}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	log.Printf("Attached segment %s", "/JackBridge")
	if !strings.Contains(buf.String(), "Attached segment /JackBridge") {
		t.Errorf("stdlib log not routed: %q", buf.String())
	}
}
