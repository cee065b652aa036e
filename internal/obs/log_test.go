package obs

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestLogEventShapesLine(t *testing.T) {
	var buf bytes.Buffer
	Logger().SetOutput(&buf)
	defer Logger().SetOutput(os.Stdout)

	LogEvent("audit", map[string]any{
		"event":   "medical.read",
		"subject": "u1",
	})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not a JSON line: %v (%q)", err, buf.String())
	}
	if line["type"] != "audit" || line["event"] != "medical.read" {
		t.Fatalf("unexpected line: %v", line)
	}
	if line["ts"] == "" || line["ts"] == nil {
		t.Fatalf("missing ts stamp: %v", line)
	}
}

func TestLogEventKeepsCallerTimestamp(t *testing.T) {
	var buf bytes.Buffer
	Logger().SetOutput(&buf)
	defer Logger().SetOutput(os.Stdout)

	LogEvent("request", map[string]any{"ts": "2026-01-02T03:04:05Z"})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not a JSON line: %v", err)
	}
	if line["ts"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("ts overwritten: %v", line["ts"])
	}
}
