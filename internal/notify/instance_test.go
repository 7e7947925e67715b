package notify

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateInstanceID(t *testing.T) {
	dir := t.TempDir()

	id1, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if len(id1) != 36 {
		t.Errorf("id = %q, want UUID", id1)
	}

	id2, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if id1 != id2 {
		t.Errorf("id changed across calls: %q != %q", id1, id2)
	}
}

func TestLoadOrCreateInstanceIDExisting(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "instance_id"), []byte("  fixed-id\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatal(err)
	}
	if id != "fixed-id" {
		t.Errorf("id = %q, want fixed-id", id)
	}
}

func TestLoadOrCreateInstanceIDMissingDir(t *testing.T) {
	if _, err := LoadOrCreateInstanceID(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}
