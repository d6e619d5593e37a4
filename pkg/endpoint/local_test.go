package endpoint

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rs/zerolog"

	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/types"
)

func newLocalForTest(t *testing.T) (*Local, string) {
	t.Helper()
	root := t.TempDir()
	ep, err := NewLocal(&config.EndpointConfig{Type: types.EndpointWindowsShare, Path: root}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	return ep, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestNewLocalMissingRoot(t *testing.T) {
	_, err := NewLocal(&config.EndpointConfig{Type: types.EndpointWindowsShare, Path: "/does/not/exist"}, zerolog.Nop())
	var eerr *types.EndpointError
	if !errors.As(err, &eerr) {
		t.Fatalf("error = %v, want EndpointError", err)
	}
}

func TestLocalList(t *testing.T) {
	ep, root := newLocalForTest(t)
	writeFile(t, root, "a/b.txt", "hello")
	writeFile(t, root, "a/c/d.txt", "world")
	writeFile(t, root, ".hidden", "x")
	writeFile(t, root, "skip/e.txt", "skipped")

	records, err := ep.List(context.Background(), func(rel string, isDir bool) bool {
		return rel == "skip"
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	var paths []string
	for _, r := range records {
		paths = append(paths, r.RelPath)
	}
	sort.Strings(paths)

	want := []string{".hidden", "a/b.txt", "a/c/d.txt"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}

	for _, r := range records {
		if r.RelPath == "a/b.txt" && r.Size != 5 {
			t.Errorf("size = %d, want 5", r.Size)
		}
		if r.Mtime == 0 {
			t.Errorf("%s has zero mtime", r.RelPath)
		}
	}
}

func TestLocalCreateMakesAncestors(t *testing.T) {
	ep, root := newLocalForTest(t)

	w, err := ep.Create(context.Background(), "deep/nested/dir/file.txt")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(root, "deep", "nested", "dir", "file.txt"))
	if err != nil {
		t.Fatalf("written file unreadable: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q", data)
	}
}

func TestLocalCreateIsAtomic(t *testing.T) {
	ep, root := newLocalForTest(t)
	writeFile(t, root, "f.txt", "old")

	w, err := ep.Create(context.Background(), "f.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("new")); err != nil {
		t.Fatal(err)
	}

	// Until Close, the target still holds the old content.
	data, _ := os.ReadFile(filepath.Join(root, "f.txt"))
	if string(data) != "old" {
		t.Errorf("target replaced before Close: %q", data)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(filepath.Join(root, "f.txt"))
	if string(data) != "new" {
		t.Errorf("content after Close = %q", data)
	}

	// No temp siblings left behind.
	entries, _ := os.ReadDir(root)
	if len(entries) != 1 {
		t.Errorf("unexpected leftover entries: %v", entries)
	}
}

func TestLocalOpenAndStat(t *testing.T) {
	ep, root := newLocalForTest(t)
	writeFile(t, root, "read.txt", "content")

	rec, err := ep.Stat(context.Background(), "read.txt")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Size != 7 || rec.IsDir {
		t.Errorf("record = %+v", rec)
	}

	r, err := ep.Open(context.Background(), "read.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "content" {
		t.Errorf("read %q", data)
	}
}

func TestLocalRemove(t *testing.T) {
	ep, root := newLocalForTest(t)
	writeFile(t, root, "dir/a.txt", "x")
	writeFile(t, root, "dir/b.txt", "y")

	if err := ep.Remove(context.Background(), "dir/a.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "dir", "a.txt")); !os.IsNotExist(err) {
		t.Error("a.txt should be gone")
	}

	if err := ep.RemoveAll(context.Background(), "dir"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "dir")); !os.IsNotExist(err) {
		t.Error("dir should be gone")
	}
}

func TestLocalExecUnsupported(t *testing.T) {
	ep, _ := newLocalForTest(t)
	_, err := ep.Exec(context.Background(), "ls")
	if !errors.Is(err, ErrExecUnsupported) {
		t.Errorf("err = %v, want ErrExecUnsupported", err)
	}
}
