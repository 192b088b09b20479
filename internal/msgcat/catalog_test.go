package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("err.not_your_turn", nil); got == "" || got == "err.not_your_turn" {
		t.Fatalf("expected rendered text, got %q", got)
	}
	if got := c.Text("err.bad_name", map[string]any{"Max": 32}); got != "display name must be 1-32 characters" {
		t.Fatalf("unexpected template render: %q", got)
	}
}

func TestMissingKeyFallsBackToKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("err.nope", nil); got != "err.nope" {
		t.Fatalf("expected key fallback, got %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := []byte("notice:\n  opponent_left: \"opponent is gone\"\n")
	if err := os.WriteFile(filepath.Join(dir, "10-local.yaml"), override, 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("notice.opponent_left", nil); got != "opponent is gone" {
		t.Fatalf("override not applied: %q", got)
	}
	// untouched keys keep their defaults
	if got := c.Text("notice.server_shutdown", nil); got != "server is shutting down" {
		t.Fatalf("default lost after override: %q", got)
	}
}
