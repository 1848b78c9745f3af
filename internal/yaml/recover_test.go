package yaml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestQuarantine(t *testing.T) {
	uriDir := t.TempDir()
	path := filepath.Join(uriDir, "role.yaml")
	if err := os.WriteFile(path, []byte("role: [\n"), 0644); err != nil {
		t.Fatal(err)
	}

	dest, err := Quarantine(uriDir, path)
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("original should be gone")
	}
	if filepath.Dir(dest) != filepath.Join(uriDir, "quarantine") {
		t.Errorf("dest dir = %s", filepath.Dir(dest))
	}
	if !strings.HasPrefix(filepath.Base(dest), "role.yaml.") || !strings.HasSuffix(dest, ".corrupt") {
		t.Errorf("dest name = %s", filepath.Base(dest))
	}
}

func TestRecover_RestoresBackup(t *testing.T) {
	uriDir := t.TempDir()
	path := filepath.Join(uriDir, "role.yaml")

	if err := AtomicWrite(path, roleFile{Role: "LEFT"}); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(path, roleFile{Role: "RIGHT"}); err != nil {
		t.Fatal(err)
	}
	// torn write from outside the atomic path
	if err := os.WriteFile(path, []byte("role: {RIGHT"), 0644); err != nil {
		t.Fatal(err)
	}

	restored, err := Recover(uriDir, path)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !restored {
		t.Fatal("expected backup to be restored")
	}
	if got := readRole(t, path); got != "LEFT" {
		t.Errorf("restored role = %q, want LEFT", got)
	}
}

func TestRecover_NoBackup(t *testing.T) {
	uriDir := t.TempDir()
	path := filepath.Join(uriDir, "role.yaml")
	if err := os.WriteFile(path, []byte("role: {"), 0644); err != nil {
		t.Fatal(err)
	}

	restored, err := Recover(uriDir, path)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if restored {
		t.Error("nothing to restore")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt file should have been moved away")
	}
}

func TestRestoreFromBackup_CorruptBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "role.yaml")
	if err := os.WriteFile(path+".bak", []byte("role: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if err := RestoreFromBackup(path); err == nil {
		t.Fatal("expected error for corrupt backup")
	}
}
