package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAuditFileRotatesAndPrunes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "session.log")
	w, err := newAuditFile(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("new audit file: %v", err)
	}
	defer w.Close()
	w.limit = 16
	clock := time.Now()
	w.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for _, chunk := range []string{"0123456789\n", "abcdefghij\n", "klmnopqrst\n", "uvwxyz0123\n"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if !bytes.Equal(current, []byte("uvwxyz0123\n")) {
		t.Fatalf("unexpected current file %q", current)
	}

	backups := w.backups()
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after pruning, got %v", backups)
	}
	if !strings.HasSuffix(backups[0], ".log") || !strings.Contains(filepath.Base(backups[0]), "session-") {
		t.Fatalf("unexpected backup name %s", backups[0])
	}
	oldest, err := os.ReadFile(backups[1])
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !bytes.Equal(oldest, []byte("abcdefghij\n")) {
		t.Fatalf("unexpected oldest backup %q", oldest)
	}
}

func TestInitWithAuditFile(t *testing.T) {
	dir := t.TempDir()
	err := Init(Config{
		Level:       "debug",
		Format:      "text",
		OutputPaths: []string{"discard"},
		Audit:       AuditConfig{Enabled: true, Path: filepath.Join(dir, "audit.log")},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = Sync() })

	Audit().Info("session initialized", "session_id", "abc")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if !bytes.Contains(content, []byte(`"session_id":"abc"`)) {
		t.Fatalf("audit entry missing: %s", content)
	}
}

func TestInitRejectsEmptyAuditPath(t *testing.T) {
	if err := Init(Config{OutputPaths: []string{"discard"}, Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatal("expected error for empty audit path")
	}
}
