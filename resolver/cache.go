package resolver

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/esm-dev/esm-resolver/internal/jsonc"
	"github.com/esm-dev/esm-resolver/internal/npm"
	"github.com/esm-dev/esm-resolver/vfs"
)

// maxSymlinkHops mirrors the kernel's MAXSYMLINKS.
const maxSymlinkHops = 40

// PathCache interns paths and memoizes what the filesystem says about them.
// Every fact is computed at most once per cache; a new build uses a new
// cache. PathCache is safe for concurrent use.
type PathCache struct {
	fs      vfs.FileSystem
	lock    sync.RWMutex
	ids     map[string]uint32
	entries []*pathEntry
}

// pathEntry is the arena record behind a CachedPath.
type pathEntry struct {
	path   string
	parent int32

	kindOnce sync.Once
	kind     vfs.Kind

	linkOnce sync.Once
	link     CachedPath
	linkErr  error

	canonical memoSlot[CachedPath]

	pkgOnce sync.Once
	pkg     *PackageJSON
	pkgErr  error

	tsOnce sync.Once
	ts     *TsConfig
	tsErr  error

	tsMerged memoSlot[*mergedTsConfig]
}

// memoSlot holds a lazily computed value for facts whose computation may
// recurse into other entries; the first stored value wins.
type memoSlot[T any] struct {
	lock  sync.Mutex
	done  bool
	value T
	err   error
}

func (s *memoSlot[T]) get() (value T, err error, ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.value, s.err, s.done
}

func (s *memoSlot[T]) set(value T, err error) (T, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.done {
		s.done = true
		s.value = value
		s.err = err
	}
	return s.value, s.err
}

// NewPathCache creates an empty cache reading from fsys.
func NewPathCache(fsys vfs.FileSystem) *PathCache {
	return &PathCache{
		fs:  fsys,
		ids: map[string]uint32{},
	}
}

// FS returns the filesystem the cache reads from.
func (c *PathCache) FS() vfs.FileSystem {
	return c.fs
}

// Len returns the number of interned paths.
func (c *PathCache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.entries)
}

// Intern returns the handle of the normalized path, creating it (and the
// handles of its ancestors) on first use.
func (c *PathCache) Intern(path string) CachedPath {
	path = filepath.Clean(path)

	c.lock.RLock()
	id, ok := c.ids[path]
	c.lock.RUnlock()
	if ok {
		return CachedPath{id: id, cache: c}
	}

	parent := int32(-1)
	if dir := filepath.Dir(path); dir != path {
		parent = int32(c.Intern(dir).id)
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if id, ok := c.ids[path]; ok {
		return CachedPath{id: id, cache: c}
	}
	id = uint32(len(c.entries))
	c.entries = append(c.entries, &pathEntry{path: path, parent: parent})
	c.ids[path] = id
	return CachedPath{id: id, cache: c}
}

func (c *PathCache) entry(id uint32) *pathEntry {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.entries[id]
}

// FindAncestorFile returns the first file called name found in dir or one
// of its ancestors.
func (c *PathCache) FindAncestorFile(dir CachedPath, name string) (CachedPath, bool) {
	for {
		if file := dir.Join(name); file.IsFile() {
			return file, true
		}
		parent, ok := dir.Parent()
		if !ok {
			return CachedPath{}, false
		}
		dir = parent
	}
}

// PackageJSONOf returns the nearest package.json of dir, nil if there is none.
func (c *PathCache) PackageJSONOf(dir CachedPath) (*PackageJSON, error) {
	file, ok := c.FindAncestorFile(dir, "package.json")
	if !ok {
		return nil, nil
	}
	return file.PackageJSON()
}

// TsConfigOf returns the nearest tsconfig.json of the given file without
// following its "extends" chain, nil if there is none.
func (c *PathCache) TsConfigOf(file CachedPath) (*TsConfig, error) {
	dir, ok := file.Parent()
	if !ok {
		return nil, nil
	}
	tsconfig, ok := c.FindAncestorFile(dir, "tsconfig.json")
	if !ok {
		return nil, nil
	}
	return tsconfig.TsConfig()
}

// CachedPath is an interned absolute path. Two handles of the same cache
// are equal if and only if they name the same normalized path.
type CachedPath struct {
	id    uint32
	cache *PathCache
}

// IsZero reports whether p is the zero handle.
func (p CachedPath) IsZero() bool {
	return p.cache == nil
}

// ID returns the identity of the path within its cache.
func (p CachedPath) ID() uint32 {
	return p.id
}

// Path returns the normalized path.
func (p CachedPath) Path() string {
	if p.cache == nil {
		return ""
	}
	return p.cache.entry(p.id).path
}

func (p CachedPath) String() string {
	return p.Path()
}

// Name returns the last element of the path.
func (p CachedPath) Name() string {
	return filepath.Base(p.Path())
}

// Ext returns the file extension, including the dot.
func (p CachedPath) Ext() string {
	return filepath.Ext(p.Path())
}

// Parent returns the handle of the parent directory, false for the root.
func (p CachedPath) Parent() (CachedPath, bool) {
	e := p.cache.entry(p.id)
	if e.parent < 0 {
		return CachedPath{}, false
	}
	return CachedPath{id: uint32(e.parent), cache: p.cache}, true
}

// Join interns the path joined with the given elements.
func (p CachedPath) Join(elem ...string) CachedPath {
	return p.cache.Intern(filepath.Join(append([]string{p.Path()}, elem...)...))
}

// Kind returns the kind of the path, following symlinks once.
func (p CachedPath) Kind() vfs.Kind {
	e := p.cache.entry(p.id)
	e.kindOnce.Do(func() {
		e.kind = p.cache.fs.Kind(e.path)
	})
	return e.kind
}

func (p CachedPath) IsFile() bool {
	return p.Kind().IsFile()
}

func (p CachedPath) IsDir() bool {
	return p.Kind().IsDir()
}

func (p CachedPath) IsSymlink() bool {
	return p.Kind().IsSymlink()
}

// InNodeModules reports whether any component of the path is node_modules.
func (p CachedPath) InNodeModules() bool {
	for _, part := range strings.Split(p.Path(), string(filepath.Separator)) {
		if part == "node_modules" {
			return true
		}
	}
	return false
}

// ReadLink returns the absolute destination of the symlink.
func (p CachedPath) ReadLink() (CachedPath, error) {
	e := p.cache.entry(p.id)
	e.linkOnce.Do(func() {
		target, err := p.cache.fs.ReadLink(e.path)
		if err != nil {
			e.linkErr = &IOError{Err: err}
			return
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(e.path), target)
		}
		e.link = p.cache.Intern(target)
	})
	return e.link, e.linkErr
}

// Canonicalize returns the realpath: every symlink in the path resolved.
func (p CachedPath) Canonicalize() (CachedPath, error) {
	return p.cache.canonicalize(p, 0)
}

func (c *PathCache) canonicalize(p CachedPath, hops int) (CachedPath, error) {
	e := c.entry(p.id)
	if value, err, ok := e.canonical.get(); ok {
		return value, err
	}
	value, err := c.computeCanonical(p, hops)
	return e.canonical.set(value, err)
}

func (c *PathCache) computeCanonical(p CachedPath, hops int) (CachedPath, error) {
	if hops > maxSymlinkHops {
		return CachedPath{}, &IOError{Err: &fs.PathError{Op: "realpath", Path: p.Path(), Err: syscall.ELOOP}}
	}
	parent, ok := p.Parent()
	if !ok {
		return p, nil
	}
	realParent, err := c.canonicalize(parent, hops)
	if err != nil {
		return CachedPath{}, err
	}
	candidate := p
	if realParent != parent {
		candidate = realParent.Join(p.Name())
	}
	if !candidate.IsSymlink() {
		return candidate, nil
	}
	target, err := candidate.ReadLink()
	if err != nil {
		return CachedPath{}, err
	}
	return c.canonicalize(target, hops+1)
}

// PackageJSON reads and parses the package.json file at p.
func (p CachedPath) PackageJSON() (*PackageJSON, error) {
	e := p.cache.entry(p.id)
	e.pkgOnce.Do(func() {
		e.pkg, e.pkgErr = p.cache.readPackageJSON(e.path)
	})
	return e.pkg, e.pkgErr
}

// TsConfig reads and parses the tsconfig.json file at p. The "extends"
// chain is not followed.
func (p CachedPath) TsConfig() (*TsConfig, error) {
	e := p.cache.entry(p.id)
	e.tsOnce.Do(func() {
		e.ts, e.tsErr = p.cache.readTsConfig(e.path)
	})
	return e.ts, e.tsErr
}

func (c *PathCache) readPackageJSON(path string) (*PackageJSON, error) {
	content, err := c.fs.ReadFile(path)
	if err != nil {
		return nil, &IOError{Err: err}
	}
	pkg, err := npm.ParsePackageJSON([]byte(content))
	if err != nil {
		return nil, newJSONError(path, []byte(content), err)
	}
	return &PackageJSON{Path: path, PackageJSON: pkg}, nil
}

func (c *PathCache) readTsConfig(path string) (*TsConfig, error) {
	content, err := c.fs.ReadFile(path)
	if err != nil {
		return nil, &IOError{Err: err}
	}
	return parseTsConfig(path, []byte(content))
}

func newJSONError(path string, content []byte, err error) *JSONError {
	line, column, _ := jsonc.ErrorPosition(content, err)
	return &JSONError{Path: path, Line: line, Column: column, Message: err.Error()}
}
