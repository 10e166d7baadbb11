package testfixtures

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteScriptDir materialises the given scripts as files in a fresh
// temporary directory and returns its path.
func WriteScriptDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, contents := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
			t.Fatalf("failed to write script %s: %v", name, err)
		}
	}
	return dir
}
