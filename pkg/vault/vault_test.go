package vault

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestVault(tb testing.TB, files map[string]string) *Vault {
	tb.Helper()

	dir := tb.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			tb.Fatalf("failed to create dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			tb.Fatalf("failed to write %s: %v", rel, err)
		}
	}

	v, err := New(dir, testLogger())
	if err != nil {
		tb.Fatalf("New failed: %v", err)
	}
	return v
}

func TestNew_MissingRoot(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope"), testLogger()); err == nil {
		t.Fatal("expected an error for a missing root directory")
	}
}

func TestVault_ReadWriteNote(t *testing.T) {
	v := setupTestVault(t, map[string]string{"a/note.md": "original"})

	text, err := v.ReadNote("a/note.md")
	if err != nil {
		t.Fatalf("ReadNote failed: %v", err)
	}
	if text != "original" {
		t.Errorf("unexpected note text %q", text)
	}

	if err = v.WriteNote("a/note.md", "rewritten"); err != nil {
		t.Fatalf("WriteNote failed: %v", err)
	}
	text, _ = v.ReadNote("a/note.md")
	if text != "rewritten" {
		t.Errorf("write-back not visible, got %q", text)
	}
}

func TestVault_Notes(t *testing.T) {
	v := setupTestVault(t, map[string]string{
		"b.md":            "",
		"a.md":            "",
		"sub/c.md":        "",
		"sub/script.tmpl": "not a note",
	})

	notes, err := v.Notes()
	if err != nil {
		t.Fatalf("Notes failed: %v", err)
	}
	want := []string{"a.md", "b.md", "sub/c.md"}
	if !reflect.DeepEqual(notes, want) {
		t.Errorf("unexpected note enumeration %v, want %v", notes, want)
	}
}

func TestVault_Resolve(t *testing.T) {
	v := setupTestVault(t, map[string]string{
		"daily/note.md":    "",
		"daily/local.tmpl": "",
		"root.tmpl":        "",
	})

	if rel, ok := v.Resolve("daily/note.md", "local.tmpl"); !ok || rel != "daily/local.tmpl" {
		t.Errorf("relative resolution failed: %q %v", rel, ok)
	}
	if rel, ok := v.Resolve("daily/note.md", "root.tmpl"); !ok || rel != "root.tmpl" {
		t.Errorf("root fallback failed: %q %v", rel, ok)
	}
	if rel, ok := v.Resolve("daily/note.md", "/root.tmpl"); !ok || rel != "root.tmpl" {
		t.Errorf("absolute vault path failed: %q %v", rel, ok)
	}
	if _, ok := v.Resolve("daily/note.md", "missing.tmpl"); ok {
		t.Error("missing target must resolve with ok=false")
	}
	if _, ok := v.Resolve("daily/note.md", ""); ok {
		t.Error("empty script path must not resolve")
	}
}

func TestVault_DebugLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "root.tmpl"), nil, 0644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	v, err := New(dir, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err = v.WriteNote("note.md", "text"); err != nil {
		t.Fatalf("WriteNote failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Note written") {
		t.Error("WriteNote did not log the write")
	}

	buf.Reset()
	if _, ok := v.Resolve("daily/note.md", "root.tmpl"); !ok {
		t.Fatal("root fallback resolution failed")
	}
	if !strings.Contains(buf.String(), "Resolved script at vault root") {
		t.Error("root-fallback resolution did not log")
	}
}

func TestVault_EscapeRejected(t *testing.T) {
	v := setupTestVault(t, map[string]string{"note.md": ""})

	outside := filepath.Join(filepath.Dir(v.Root()), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0644); err != nil {
		t.Fatalf("failed to plant outside file: %v", err)
	}

	if _, ok := v.Resolve("note.md", "../secret.txt"); ok {
		t.Error("a path escaping the vault root must not resolve")
	}
}
