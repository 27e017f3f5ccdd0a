package vfs

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
)

// maxSymlinkHops mirrors the kernel's MAXSYMLINKS.
const maxSymlinkHops = 40

type memNode struct {
	kind    Kind
	content string
	target  string
}

// MemoryFileSystem is an in-memory directory tree with symlink support,
// used as a deterministic fixture and for virtualised project snapshots.
type MemoryFileSystem struct {
	lock  sync.RWMutex
	nodes map[string]*memNode
}

// NewMemoryFileSystem creates an empty tree containing only the root directory.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		nodes: map[string]*memNode{
			string(filepath.Separator): {kind: KindDir},
		},
	}
}

// AddFile creates a file with the given content, creating parent directories as needed.
func (m *MemoryFileSystem) AddFile(path string, content string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	path = filepath.Clean(path)
	m.mkdirAll(filepath.Dir(path))
	m.nodes[path] = &memNode{kind: KindFile, content: content}
}

// AddDir creates a directory and its parents.
func (m *MemoryFileSystem) AddDir(path string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.mkdirAll(filepath.Clean(path))
}

// AddSymlink creates a symbolic link at path pointing to target. A relative
// target is resolved against the directory containing the link.
func (m *MemoryFileSystem) AddSymlink(path string, target string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	path = filepath.Clean(path)
	m.mkdirAll(filepath.Dir(path))
	m.nodes[path] = &memNode{kind: KindSymlink, target: target}
}

// Remove deletes the path and everything below it.
func (m *MemoryFileSystem) Remove(path string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	path = filepath.Clean(path)
	prefix := path + string(filepath.Separator)
	for p := range m.nodes {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(m.nodes, p)
		}
	}
}

// Paths returns all paths in the tree, sorted.
func (m *MemoryFileSystem) Paths() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	paths := make([]string, 0, len(m.nodes))
	for p := range m.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *MemoryFileSystem) mkdirAll(dir string) {
	for {
		if n, ok := m.nodes[dir]; ok && n.kind != KindSymlink {
			return
		}
		m.nodes[dir] = &memNode{kind: KindDir}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func (m *MemoryFileSystem) ReadFile(path string) (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, n, err := m.lookup(path, true)
	if err != nil {
		return "", &fs.PathError{Op: "open", Path: path, Err: err}
	}
	if n.kind == KindDir {
		return "", &fs.PathError{Op: "read", Path: path, Err: syscall.EISDIR}
	}
	return n.content, nil
}

func (m *MemoryFileSystem) Kind(path string) Kind {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, n, err := m.lookup(path, false)
	if err != nil {
		return 0
	}
	if n.kind != KindSymlink {
		return n.kind
	}
	k := KindSymlink
	if _, target, err := m.lookup(path, true); err == nil {
		k |= target.kind
	}
	return k
}

func (m *MemoryFileSystem) ReadLink(path string) (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, n, err := m.lookup(path, false)
	if err != nil {
		return "", &fs.PathError{Op: "readlink", Path: path, Err: err}
	}
	if n.kind != KindSymlink {
		return "", &fs.PathError{Op: "readlink", Path: path, Err: syscall.EINVAL}
	}
	return n.target, nil
}

// lookup walks the path component by component, following symlinks in
// intermediate components and, if followLast is set, in the last one.
func (m *MemoryFileSystem) lookup(path string, followLast bool) (string, *memNode, error) {
	if !filepath.IsAbs(path) {
		return "", nil, fs.ErrNotExist
	}
	parts := splitPath(path)
	cur := string(filepath.Separator)
	hops := 0
	for i := 0; i < len(parts); i++ {
		next := filepath.Join(cur, parts[i])
		n, ok := m.nodes[next]
		if !ok {
			return "", nil, fs.ErrNotExist
		}
		last := i == len(parts)-1
		if n.kind == KindSymlink && (!last || followLast) {
			hops++
			if hops > maxSymlinkHops {
				return "", nil, syscall.ELOOP
			}
			target := n.target
			if !filepath.IsAbs(target) {
				target = filepath.Join(cur, target)
			}
			parts = append(splitPath(target), parts[i+1:]...)
			cur = string(filepath.Separator)
			i = -1
			continue
		}
		if !last && n.kind != KindDir {
			return "", nil, syscall.ENOTDIR
		}
		cur = next
	}
	return cur, m.nodes[cur], nil
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
