package resultcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/esm-dev/esm-resolver/resolver"
	"github.com/esm-dev/esm-resolver/vfs"
	"github.com/fsnotify/fsnotify"
)

func TestWatch(t *testing.T) {
	root := t.TempDir()
	entry := filepath.Join(root, "src", "entry.js")
	if err := os.MkdirAll(filepath.Dir(entry), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(entry, nil, 0644); err != nil {
		t.Fatal(err)
	}

	cache, err := New(resolver.New(vfs.OSFileSystem{}, resolver.Options{Extensions: []string{".js"}}), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := cache.Resolve("./foo", entry, resolver.ESM); err == nil {
		t.Fatal("expected an error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	invalidated := make(chan int, 8)
	ready := make(chan struct{})
	go func() {
		close(ready)
		err := cache.Watch(ctx, root, WatchOptions{
			Debounce: 20 * time.Millisecond,
			OnInvalidate: func(events []resolver.FileEvent, n int) {
				invalidated <- n
			},
		})
		if err != nil {
			t.Error(err)
		}
	}()
	<-ready

	// give the watcher time to register the directories
	time.Sleep(200 * time.Millisecond)
	foo := filepath.Join(root, "src", "foo.js")
	if err := os.WriteFile(foo, nil, 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for dropped := 0; dropped == 0; {
		select {
		case n := <-invalidated:
			dropped += n
		case <-deadline:
			t.Fatal("timed out waiting for the invalidation")
		}
	}

	m, _, err := cache.Resolve("./foo", entry, resolver.ESM)
	if err != nil {
		t.Fatal(err)
	}
	if m.Path != foo {
		t.Fatalf("got %q, want %q", m.Path, foo)
	}
}

func TestFileEventOf(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want resolver.EventType
		ok   bool
	}{
		{fsnotify.Create, resolver.EventCreate, true},
		{fsnotify.Write, resolver.EventUpdate, true},
		{fsnotify.Remove, resolver.EventDelete, true},
		{fsnotify.Rename, resolver.EventDelete, true},
		{fsnotify.Chmod, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			event, ok := fileEventOf(fsnotify.Event{Name: "/a.js", Op: tt.op})
			if ok != tt.ok || (ok && event.Type != tt.want) {
				t.Fatalf("fileEventOf(%v) = %v, %v", tt.op, event, ok)
			}
		})
	}
}
