package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()
	m.AddFile("/proj/src/foo.js", "foo")
	m.AddSymlink("/proj/link.js", "src/foo.js")
	m.AddSymlink("/proj/lib", "/proj/src")
	m.AddSymlink("/proj/loop", "/proj/loop")
	m.AddSymlink("/proj/dangling", "/nowhere")

	tests := []struct {
		path string
		kind Kind
	}{
		{"/proj", KindDir},
		{"/proj/src/foo.js", KindFile},
		{"/proj/link.js", KindFile | KindSymlink},
		{"/proj/lib", KindDir | KindSymlink},
		{"/proj/lib/foo.js", KindFile},
		{"/proj/loop", KindSymlink},
		{"/proj/dangling", KindSymlink},
		{"/proj/missing.js", 0},
		{"/proj/src/foo.js/bar", 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := m.Kind(tt.path); got != tt.kind {
				t.Errorf("Kind(%s) = %v, want %v", tt.path, got, tt.kind)
			}
		})
	}

	content, err := m.ReadFile("/proj/lib/foo.js")
	if err != nil || content != "foo" {
		t.Fatalf("ReadFile through symlinked dir = %q, %v", content, err)
	}

	_, err = m.ReadFile("/proj/missing.js")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing file should be ErrNotExist, got %v", err)
	}

	_, err = m.ReadFile("/proj/src")
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("reading a directory should fail with a non not-found error, got %v", err)
	}

	target, err := m.ReadLink("/proj/link.js")
	if err != nil || target != "src/foo.js" {
		t.Fatalf("ReadLink = %q, %v", target, err)
	}
	if _, err = m.ReadLink("/proj/src/foo.js"); err == nil {
		t.Fatal("ReadLink on a regular file should fail")
	}

	m.Remove("/proj/src")
	if m.Kind("/proj/src/foo.js") != 0 {
		t.Fatal("file should be removed with its directory")
	}
	if m.Kind("/proj/link.js") != KindSymlink {
		t.Fatal("link should now dangle")
	}
}

func TestOSFileSystem(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.js")
	if err := os.WriteFile(file, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "b.js")
	if err := os.Symlink(file, link); err != nil {
		t.Skip("symlinks not supported:", err)
	}

	var fsys OSFileSystem
	if k := fsys.Kind(file); k != KindFile {
		t.Fatalf("Kind(file) = %v", k)
	}
	if k := fsys.Kind(link); k != KindFile|KindSymlink {
		t.Fatalf("Kind(link) = %v", k)
	}
	if k := fsys.Kind(dir); k != KindDir {
		t.Fatalf("Kind(dir) = %v", k)
	}
	if k := fsys.Kind(filepath.Join(dir, "nope")); k != 0 {
		t.Fatalf("Kind(missing) = %v", k)
	}
	target, err := fsys.ReadLink(link)
	if err != nil || target != file {
		t.Fatalf("ReadLink = %q, %v", target, err)
	}
	if _, err = fsys.ReadFile(filepath.Join(dir, "nope")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing file should be ErrNotExist, got %v", err)
	}
}

func TestAferoFileSystem(t *testing.T) {
	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/proj/index.js", []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}
	fsys := NewAferoFileSystem(mem)
	if k := fsys.Kind("/proj/index.js"); !k.IsFile() || k.IsSymlink() {
		t.Fatalf("Kind(file) = %v", k)
	}
	if k := fsys.Kind("/proj"); !k.IsDir() {
		t.Fatalf("Kind(dir) = %v", k)
	}
	if k := fsys.Kind("/proj/nope.js"); k != 0 {
		t.Fatalf("Kind(missing) = %v", k)
	}
	content, err := fsys.ReadFile("/proj/index.js")
	if err != nil || content != "hi" {
		t.Fatalf("ReadFile = %q, %v", content, err)
	}
	if _, err = fsys.ReadFile("/proj/nope.js"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing file should be ErrNotExist, got %v", err)
	}
}
