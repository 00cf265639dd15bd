package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWritesJSONToStdoutAndFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var stdout bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "beanstalkd.log")
	logger := setup(&stdout, "beanstalkd", "test", file)
	logger.Info("sunrise", "season", 7)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &line); err != nil {
		t.Fatalf("stdout is not a json line: %v (%q)", err, stdout.String())
	}
	if line["message"] != "sunrise" || line["severity"] != "INFO" || line["service"] != "beanstalkd" || line["env"] != "test" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("timestamp missing: %v", line)
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), `"season":7`) {
		t.Fatalf("log file missing entry: %q", raw)
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("otel_headers", "x-key=secret"); got.Value.String() != RedactedValue {
		t.Fatalf("expected redaction, got %s", got.Value)
	}
	if got := MaskField("data_dir", "./data"); got.Value.String() != "./data" {
		t.Fatalf("allowlisted key redacted: %s", got.Value)
	}
	if got := MaskField("otel_headers", ""); got.Value.String() != "" {
		t.Fatalf("empty value should pass through, got %s", got.Value)
	}
}
