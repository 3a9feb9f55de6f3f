package observe

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, closeFn := NewLogger(&buf, LogOptions{Level: slog.LevelWarn})
	defer closeFn()

	l.Info("hidden")
	l.Warn("dialogue: abandoned", "phase", "LISTENING_PRICE")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record emitted at warn level: %s", out)
	}
	if !strings.Contains(out, "phase=LISTENING_PRICE") {
		t.Errorf("missing warn record: %s", out)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, closeFn := NewLogger(&buf, LogOptions{JSON: true})
	defer closeFn()

	l.Info("item added", "name", "milk")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec["name"] != "milk" || rec["msg"] != "item added" {
		t.Errorf("record = %v", rec)
	}
}

func TestNewLogger_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "freshtrack.log")
	var buf bytes.Buffer
	l, closeFn := NewLogger(&buf, LogOptions{File: path})

	l.Info("server listening", "addr", ":8080")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "server listening") {
		t.Errorf("log file missing record: %s", data)
	}
	if !strings.Contains(buf.String(), "server listening") {
		t.Errorf("primary writer missing record: %s", buf.String())
	}
}
