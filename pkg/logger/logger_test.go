package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestInitWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn")
	Info("hidden_event")
	Warn("shown_event", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden_event") {
		t.Fatalf("info logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown_event") || !strings.Contains(out, "k=v") {
		t.Fatalf("missing warn line: %q", out)
	}
}

func TestAuditSink(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "info")
	Audit = nil
	AuditInfo("retention_audit_item", "id", "a")
	if !strings.Contains(buf.String(), "retention_audit_item") {
		t.Fatalf("audit should fall back to main log: %q", buf.String())
	}

	dir := filepath.Join(t.TempDir(), "audit")
	if err := AttachAuditFileSink(dir); err != nil {
		t.Fatalf("AttachAuditFileSink: %v", err)
	}
	t.Cleanup(func() { Audit = nil })
	AuditInfo("retention_audit_item", "id", "b")

	f, err := os.Open(filepath.Join(dir, "audit.log"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()
	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]any
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("audit line is not JSON: %q", sc.Text())
		}
		if id, ok := line["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("audit ids = %v", ids)
	}
}

func TestAttachAuditRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := AttachAuditFileSink(path); err == nil {
		t.Fatalf("expected error for non-directory audit path")
	}
	if err := AttachAuditFileSink(""); err == nil {
		t.Fatalf("expected error for empty audit path")
	}
}

func TestSafeHeadersFastMasksSecrets(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("X-API-Key", "supersecret")
	ctx.Request.Header.Set("Authorization", "ab")
	ctx.Request.Header.Set("Origin", "https://chat.example")
	got := SafeHeadersFast(&ctx)
	if strings.Contains(got, "supersecret") {
		t.Fatalf("api key leaked: %q", got)
	}
	for _, want := range []string{"s*****t", "<redacted>", "https://chat.example"} {
		if !strings.Contains(got, want) {
			t.Fatalf("SafeHeadersFast() = %q, missing %q", got, want)
		}
	}
}
