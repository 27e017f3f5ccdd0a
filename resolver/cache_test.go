package resolver

import (
	"errors"
	"sync"
	"testing"

	"github.com/esm-dev/esm-resolver/vfs"
)

type countingFS struct {
	vfs.FileSystem
	lock  sync.Mutex
	kinds map[string]int
	reads map[string]int
}

func newCountingFS(fsys vfs.FileSystem) *countingFS {
	return &countingFS{FileSystem: fsys, kinds: map[string]int{}, reads: map[string]int{}}
}

func (c *countingFS) Kind(path string) vfs.Kind {
	c.lock.Lock()
	c.kinds[path]++
	c.lock.Unlock()
	return c.FileSystem.Kind(path)
}

func (c *countingFS) ReadFile(path string) (string, error) {
	c.lock.Lock()
	c.reads[path]++
	c.lock.Unlock()
	return c.FileSystem.ReadFile(path)
}

func TestPathCacheIntern(t *testing.T) {
	cache := NewPathCache(vfs.NewMemoryFileSystem())
	a := cache.Intern("/a/b/../b/c.js")
	b := cache.Intern("/a/b/c.js")
	if a != b || a.ID() != b.ID() {
		t.Fatal("the same normalized path must have the same identity")
	}
	if a.Path() != "/a/b/c.js" || a.Name() != "c.js" || a.Ext() != ".js" {
		t.Fatalf("unexpected path %q", a.Path())
	}
	parent, ok := a.Parent()
	if !ok || parent != cache.Intern("/a/b") {
		t.Fatal("unexpected parent")
	}
	root := cache.Intern("/")
	if _, ok := root.Parent(); ok {
		t.Fatal("the root has no parent")
	}
	if cache.Intern("/a").Join("b", "c.js") != a {
		t.Fatal("Join must intern")
	}
	if !cache.Intern("/x/node_modules/y").InNodeModules() || a.InNodeModules() {
		t.Fatal("unexpected InNodeModules")
	}
}

func TestPathCacheMemoizes(t *testing.T) {
	mem := vfs.NewMemoryFileSystem()
	mem.AddFile("/proj/package.json", `{"name": "app"}`)
	fsys := newCountingFS(mem)
	cache := NewPathCache(fsys)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := cache.Intern("/proj/package.json")
			if !p.IsFile() {
				t.Error("expected a file")
			}
			pkg, err := p.PackageJSON()
			if err != nil || pkg.Name != "app" {
				t.Errorf("unexpected package %v, %v", pkg, err)
			}
		}()
	}
	wg.Wait()

	if fsys.kinds["/proj/package.json"] != 1 || fsys.reads["/proj/package.json"] != 1 {
		t.Fatalf("kind computed %d times, read %d times", fsys.kinds["/proj/package.json"], fsys.reads["/proj/package.json"])
	}

	pkg, err := cache.PackageJSONOf(cache.Intern("/proj/src/deep"))
	if err != nil || pkg == nil || pkg.Path != "/proj/package.json" || pkg.Dir() != "/proj" {
		t.Fatalf("unexpected package %v, %v", pkg, err)
	}
	if pkg, _ := cache.PackageJSONOf(cache.Intern("/other")); pkg != nil {
		t.Fatal("expected no package.json")
	}
}

func TestPathCacheCanonicalize(t *testing.T) {
	fsys := vfs.NewMemoryFileSystem()
	fsys.AddFile("/real/dir/file.js", "")
	fsys.AddSymlink("/link", "/real")
	fsys.AddSymlink("/real/alias.js", "dir/file.js")
	fsys.AddSymlink("/chain", "/link")
	fsys.AddSymlink("/loop/a", "/loop/b")
	fsys.AddSymlink("/loop/b", "/loop/a")
	cache := NewPathCache(fsys)

	tests := []struct {
		path string
		want string
	}{
		{"/real/dir/file.js", "/real/dir/file.js"},
		{"/link/dir/file.js", "/real/dir/file.js"},
		{"/link/alias.js", "/real/dir/file.js"},
		{"/chain/alias.js", "/real/dir/file.js"},
		{"/link/missing.js", "/real/missing.js"},
	}
	for _, tt := range tests {
		got, err := cache.Intern(tt.path).Canonicalize()
		if err != nil {
			t.Fatalf("%s: %v", tt.path, err)
		}
		if got.Path() != tt.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", tt.path, got.Path(), tt.want)
		}
	}

	_, err := cache.Intern("/loop/a").Canonicalize()
	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Kind() != IOTooManyLinks {
		t.Fatalf("expected a symlink loop error, got %v", err)
	}

	target, err := cache.Intern("/real/alias.js").ReadLink()
	if err != nil || target.Path() != "/real/dir/file.js" {
		t.Fatalf("unexpected link target %v, %v", target, err)
	}
	if _, err := cache.Intern("/real/dir/file.js").ReadLink(); err == nil {
		t.Fatal("expected an error for a regular file")
	}
}

func TestIOErrorIs(t *testing.T) {
	fsys := vfs.NewMemoryFileSystem()
	_, err1 := fsys.ReadFile("/a")
	_, err2 := fsys.ReadFile("/b/c")
	if !errors.Is(&IOError{Err: err1}, &IOError{Err: err2}) {
		t.Fatal("IOErrors of the same kind are equal")
	}
	fsys.AddDir("/dir")
	_, err3 := fsys.ReadFile("/dir")
	if errors.Is(&IOError{Err: err1}, &IOError{Err: err3}) {
		t.Fatal("IOErrors of different kinds are not equal")
	}
}
