package yaml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"
)

// ErrCorrupt marks a file that exists but does not parse.
var ErrCorrupt = errors.New("corrupt yaml file")

// Read unmarshals path into out. A missing file returns an error satisfying
// os.IsNotExist; an unparsable one wraps ErrCorrupt.
func Read(path string, out any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yamlv3.Unmarshal(content, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return nil
}

// Quarantine moves a corrupt file aside into <uriDir>/quarantine and returns
// its new location.
func Quarantine(uriDir, filePath string) (string, error) {
	dir := filepath.Join(uriDir, "quarantine")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}
	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(filePath), time.Now().Format("20060102T150405"))
	dest := filepath.Join(dir, name)
	if err := os.Rename(filePath, dest); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return dest, nil
}

// RestoreFromBackup copies path.bak back over path when the backup parses.
func RestoreFromBackup(filePath string) error {
	content, err := os.ReadFile(filePath + ".bak")
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := validateYAML(content); err != nil {
		return fmt.Errorf("backup is also corrupt: %w", err)
	}
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

// Recover quarantines a corrupt file and puts its backup in place when one
// exists. It reports whether a backup was restored.
func Recover(uriDir, filePath string) (bool, error) {
	if _, err := Quarantine(uriDir, filePath); err != nil {
		return false, err
	}
	if err := RestoreFromBackup(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
