package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"sima/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTwoServices(t *testing.T) {
	dir := t.TempDir()
	aPath := writeFile(t, dir, "a.yml", "name: a\ncmdline: sleep 3600\n")
	bPath := writeFile(t, dir, "b.yml", "name: b\ndescription: the b service\ncmdline: sleep 3600\n")
	manifestPath := writeFile(t, dir, "sima.yml", "services:\n  - "+aPath+"\n  - "+bPath+"\n")

	configs, err := config.Load(manifestPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("got %d configs, want 2", len(configs))
	}
	if configs[0].Name != "a" || configs[0].Cmdline != "sleep 3600" {
		t.Errorf("configs[0] = %+v", configs[0])
	}
	if configs[1].Name != "b" || configs[1].Description != "the b service" {
		t.Errorf("configs[1] = %+v", configs[1])
	}
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	aPath := writeFile(t, dir, "a.yml", "name: dup\ncmdline: sleep 1\n")
	bPath := writeFile(t, dir, "b.yml", "name: dup\ncmdline: sleep 2\n")
	manifestPath := writeFile(t, dir, "sima.yml", "services:\n  - "+aPath+"\n  - "+bPath+"\n")

	_, err := config.Load(manifestPath)
	if err == nil {
		t.Fatal("Load succeeded, want duplicate-name error")
	}
}

func TestLoadRejectsMissingCmdline(t *testing.T) {
	dir := t.TempDir()
	aPath := writeFile(t, dir, "a.yml", "name: a\n")
	manifestPath := writeFile(t, dir, "sima.yml", "services:\n  - "+aPath+"\n")

	_, err := config.Load(manifestPath)
	if err == nil {
		t.Fatal("Load succeeded, want missing-cmdline error")
	}
}

func TestLoadRejectsMalformedCmdlineQuoting(t *testing.T) {
	dir := t.TempDir()
	aPath := writeFile(t, dir, "a.yml", "name: a\ncmdline: \"echo 'unterminated\"\n")
	manifestPath := writeFile(t, dir, "sima.yml", "services:\n  - "+aPath+"\n")

	_, err := config.Load(manifestPath)
	if err == nil {
		t.Fatal("Load succeeded, want cmdline syntax error")
	}
}

func TestLoadMissingManifest(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err == nil {
		t.Fatal("Load succeeded, want error for missing manifest")
	}
}
