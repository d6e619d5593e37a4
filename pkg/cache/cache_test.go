package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathFor(t *testing.T) {
	tests := []struct {
		config string
		want   string
	}{
		{"/etc/deploy/shop.json", "/etc/deploy/.deploy_cache_shop.json"},
		{"/etc/deploy/shop.prod.json", "/etc/deploy/.deploy_cache_shop.prod.json"},
		{"deploy.json", ".deploy_cache_deploy.json"},
	}

	for _, tt := range tests {
		if got := PathFor(tt.config); got != tt.want {
			t.Errorf("PathFor(%q) = %q, want %q", tt.config, got, tt.want)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "deploy.json")

	c, cerr := Load(configPath)
	if cerr != nil {
		t.Fatalf("missing cache should not report an error: %v", cerr)
	}
	if c.Exists() {
		t.Error("Exists() should be false for a missing cache")
	}
	if len(c.Files) != 0 {
		t.Error("missing cache should be empty")
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "deploy.json")

	c, _ := Load(configPath)
	c.SetFile("a/b.txt", 10, 1700000000)
	c.SetScript("/sql/setup/01.sql", 1650000000)
	c.FileMappings["conf/app.ini"] = 1600000000
	c.Prebuild["src/main.ts"] = 1610000000

	if err := c.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	again, cerr := Load(configPath)
	if cerr != nil {
		t.Fatalf("reload failed: %v", cerr)
	}
	if !again.Exists() {
		t.Error("Exists() should be true after save")
	}
	entry := again.Files["a/b.txt"]
	if entry.Size != 10 || entry.Mtime != 1700000000 {
		t.Errorf("file entry = %+v", entry)
	}
	if !again.ScriptUpToDate("/sql/setup/01.sql", 1650000000) {
		t.Error("script should be up to date")
	}
	if again.ScriptUpToDate("/sql/setup/01.sql", 1650000001) {
		t.Error("changed mtime should not be up to date")
	}
	if again.FileMappings["conf/app.ini"] != 1600000000 {
		t.Error("file mapping lost")
	}
	if again.Prebuild["src/main.ts"] != 1610000000 {
		t.Error("prebuild entry lost")
	}
	if again.LastDeployment == "" {
		t.Error("last_deployment should be set")
	}
}

func TestCorruptCacheDiscarded(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "deploy.json")
	if err := os.WriteFile(PathFor(configPath), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	c, cerr := Load(configPath)
	if cerr == nil {
		t.Error("corrupt cache should report an informational error")
	}
	if c.Exists() {
		t.Error("corrupt cache must not count as a prior cache")
	}
	if len(c.Files) != 0 {
		t.Error("corrupt cache should load empty")
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "deploy.json")

	c, _ := Load(configPath)
	c.SetFile("x", 1, 2)
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}

	// No temp sibling left behind.
	if _, err := os.Stat(c.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be renamed away")
	}

	before, err := os.ReadFile(c.Path())
	if err != nil {
		t.Fatal(err)
	}

	// A run that never calls Save leaves the bytes untouched.
	c2, _ := Load(configPath)
	c2.SetFile("y", 3, 4)

	after, err := os.ReadFile(c.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("cache on disk changed without Save")
	}
}

func TestDeleteFile(t *testing.T) {
	c, _ := Load(filepath.Join(t.TempDir(), "deploy.json"))
	c.SetFile("gone.txt", 1, 1)
	c.DeleteFile("gone.txt")
	if _, ok := c.Files["gone.txt"]; ok {
		t.Error("DeleteFile should remove the entry")
	}
}
