package resolver

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/esm-dev/esm-resolver/specifier"
	"github.com/esm-dev/esm-resolver/vfs"
)

// maxRedirects bounds the re-entrant resolutions caused by "imports"
// targets and "browser" module replacements.
const maxRedirects = 32

// errNotFound is returned by path probing when no candidate exists. It is
// always converted to a typed error before leaving the package.
var errNotFound = errors.New("not found")

// ResultKind is the kind of a resolved module.
type ResultKind uint8

const (
	// ResultPath is a file on disk.
	ResultPath ResultKind = iota + 1
	// ResultBuiltin is a Node.js core module.
	ResultBuiltin
	// ResultExternal is a URL that is not resolved on disk.
	ResultExternal
	// ResultEmpty is a module replaced with `false` in a "browser" field.
	ResultEmpty
)

func (k ResultKind) String() string {
	switch k {
	case ResultPath:
		return "path"
	case ResultBuiltin:
		return "builtin"
	case ResultExternal:
		return "external"
	case ResultEmpty:
		return "empty"
	}
	return "unknown"
}

func (k ResultKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// PackageInfo describes the package that owns a resolved file.
type PackageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	// Dir is the real path of the package directory.
	Dir string `json:"dir"`
	// SemVer is the parsed Version, nil if it is not a valid semver.
	SemVer *semver.Version `json:"-"`
}

// ResolvedModule is the result of a resolution.
type ResolvedModule struct {
	Kind ResultKind `json:"kind"`
	// Path is the real path of the file, set for ResultPath.
	Path string `json:"path,omitempty"`
	// Query is the `?query` suffix of an ESM specifier.
	Query string `json:"query,omitempty"`
	// Specifier is the builtin module name or the external URL.
	Specifier string `json:"specifier,omitempty"`
	// Package is the package that owns Path, nil outside of any named package.
	Package *PackageInfo `json:"package,omitempty"`
}

// Resolver resolves module specifiers. It is safe for concurrent use.
type Resolver struct {
	lock    sync.RWMutex
	cache   *PathCache
	options Options
}

// New creates a Resolver reading from fsys with a fresh cache.
func New(fsys vfs.FileSystem, options Options) *Resolver {
	return NewWithCache(NewPathCache(fsys), options)
}

// NewWithCache creates a Resolver sharing an existing cache.
func NewWithCache(cache *PathCache, options Options) *Resolver {
	return &Resolver{cache: cache, options: options}
}

// Cache returns the cache of the current epoch.
func (r *Resolver) Cache() *PathCache {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.cache
}

// Options returns the options of the resolver.
func (r *Resolver) Options() Options {
	return r.options
}

// Mode returns the resolution mode of the root context, used for
// requests that carry no import kind of their own such as entry points.
func (r *Resolver) Mode() Mode {
	return r.options.Mode
}

// Reset starts a new cache epoch. Resolutions in flight finish with the
// cache they started with.
func (r *Resolver) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	log.Debugf("resolver cache reset (%d paths)", r.cache.Len())
	r.cache = NewPathCache(r.cache.FS())
}

// Resolve resolves the specifier referenced by the file from. Every
// filesystem fact the result depends on is recorded into inv, which may be nil.
func (r *Resolver) Resolve(spec string, from string, mode Mode, inv *Invalidations) (*ResolvedModule, error) {
	if inv == nil {
		inv = NewInvalidations()
	}
	if !filepath.IsAbs(from) {
		abs, err := filepath.Abs(from)
		if err != nil {
			return nil, &IOError{Err: err}
		}
		from = abs
		inv.InvalidateOnStartup()
	}

	res := r.newResolution(mode, inv)
	fromPath := res.cache.Intern(from)
	switch fromPath.Ext() {
	case ".ts", ".tsx", ".mts", ".cts":
		res.fromTS = true
	}
	return res.resolve(spec, fromPath)
}

func (r *Resolver) newResolution(mode Mode, inv *Invalidations) *resolution {
	return &resolution{
		cache:      r.Cache(),
		options:    r.options,
		mode:       mode,
		conditions: r.options.conditions(mode),
		inv:        inv,
	}
}

// resolution carries the state of a single Resolve call.
type resolution struct {
	cache      *PathCache
	options    Options
	mode       Mode
	conditions conditionSet
	inv        *Invalidations
	fromTS     bool
	redirects  int
}

func (res *resolution) resolve(raw string, from CachedPath) (*ResolvedModule, error) {
	s, err := specifier.Parse(raw, res.mode)
	if err != nil {
		var specErr *specifier.Error
		if errors.As(err, &specErr) && specErr.Reason == specifier.InvalidPackageName && s.Kind == specifier.Package {
			// aliases such as "@/components" are not valid package names
			file, ok, tsErr := res.resolveTsConfigPaths(raw, from)
			if tsErr != nil {
				return nil, tsErr
			}
			if ok {
				return res.finish(file, "")
			}
		}
		return nil, fromSpecifierError(err)
	}

	switch s.Kind {
	case specifier.Relative, specifier.Absolute:
		return res.resolveRelative(s, from)
	case specifier.Hash:
		return res.resolveImports(s, from)
	case specifier.URL:
		return &ResolvedModule{Kind: ResultExternal, Specifier: s.Path}, nil
	case specifier.Builtin:
		if m, err := res.resolveBrowserModule(raw, from); m != nil || err != nil {
			return m, err
		}
		return &ResolvedModule{Kind: ResultBuiltin, Specifier: strings.TrimPrefix(s.Module, "node:")}, nil
	}
	return res.resolvePackage(s, from)
}

func (res *resolution) resolveRelative(s specifier.Specifier, from CachedPath) (*ResolvedModule, error) {
	p := s.Path
	if s.Kind == specifier.Relative {
		dir, _ := from.Parent()
		p = filepath.Join(dir.Path(), p)
	}
	strict := res.mode == ESM && res.options.EnforceESMExtensions
	file, err := res.loadPath(res.cache.Intern(p), strict)
	if err == errNotFound {
		return nil, &FileNotFoundError{Relative: s.Raw, From: from.Path()}
	}
	if err != nil {
		return nil, err
	}
	if res.options.Browser {
		dir, _ := file.Parent()
		pkg, pkgDir, err := res.nearestPackageJSON(dir)
		if err != nil {
			return nil, err
		}
		if m, err := res.applyBrowserFile(pkg, pkgDir, file, from); m != nil || err != nil {
			return m, err
		}
	}
	return res.finish(file, s.Query)
}

func (res *resolution) resolveImports(s specifier.Specifier, from CachedPath) (*ResolvedModule, error) {
	dir, _ := from.Parent()
	pkg, pkgDir, err := res.nearestPackageJSON(dir)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, &PackageJSONNotFoundError{From: from.Path()}
	}
	target, err := resolvePackageImports(pkg, s.Path, res.conditions)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(target, "./") {
		return res.redirect(target, from)
	}
	file := pkgDir.Join(target)
	if !res.probe(file) {
		return nil, &FileNotFoundError{Relative: target, From: pkg.Path}
	}
	return res.finish(file, "")
}

func (res *resolution) resolvePackage(s specifier.Specifier, from CachedPath) (*ResolvedModule, error) {
	if m, err := res.resolveBrowserModule(s.Raw, from); m != nil || err != nil {
		return m, err
	}

	if file, ok, err := res.resolveTsConfigPaths(s.Raw, from); err != nil {
		return nil, err
	} else if ok {
		return res.finish(file, "")
	}

	dir, _ := from.Parent()

	// a package may import itself by name when it has "exports"
	pkg, pkgDir, err := res.nearestPackageJSON(dir)
	if err != nil {
		return nil, err
	}
	if pkg != nil && pkg.Name == s.Module && pkg.Exports != nil {
		return res.resolvePackageEntry(pkgDir, s.Module, s.Subpath, from)
	}

	pkgDir, err = res.findPackageDir(s.Module, dir)
	if err != nil {
		return nil, err
	}
	return res.resolvePackageEntry(pkgDir, s.Module, s.Subpath, from)
}

// resolveBrowserModule applies the "browser" field of the importing
// package to a bare specifier.
func (res *resolution) resolveBrowserModule(raw string, from CachedPath) (*ResolvedModule, error) {
	remap, err := res.browserModule(raw, from)
	if err != nil || remap == nil {
		return nil, err
	}
	switch {
	case remap.empty:
		return &ResolvedModule{Kind: ResultEmpty, Specifier: raw}, nil
	case remap.module != "":
		return res.redirect(remap.module, from)
	}
	return res.finish(remap.file, "")
}

func (res *resolution) applyBrowserFile(pkg *PackageJSON, pkgDir CachedPath, file CachedPath, from CachedPath) (*ResolvedModule, error) {
	remap, err := res.browserFile(pkg, pkgDir, file)
	if err != nil || remap == nil {
		return nil, err
	}
	switch {
	case remap.empty:
		return &ResolvedModule{Kind: ResultEmpty, Specifier: file.Path()}, nil
	case remap.module != "":
		return res.redirect(remap.module, from)
	}
	return res.finish(remap.file, "")
}

// redirect resolves a replacement specifier in place of the original one.
func (res *resolution) redirect(spec string, from CachedPath) (*ResolvedModule, error) {
	if res.redirects >= maxRedirects {
		return nil, &ModuleNotFoundError{Module: spec}
	}
	res.redirects++
	defer func() { res.redirects-- }()
	return res.resolve(spec, from)
}

// findPackageDir walks node_modules directories from dir upward.
// Directories named node_modules are skipped as lookup roots.
func (res *resolution) findPackageDir(name string, dir CachedPath) (CachedPath, error) {
	for d := dir; ; {
		if d.Name() != "node_modules" {
			candidate := d.Join("node_modules", name)
			if candidate.IsDir() {
				return candidate, nil
			}
			res.inv.InvalidateOnFileCreate(candidate)
		}
		parent, ok := d.Parent()
		if !ok {
			return CachedPath{}, &ModuleNotFoundError{Module: name}
		}
		d = parent
	}
}

// resolvePackageEntry resolves the subpath ("" for the package entry)
// inside the package directory.
func (res *resolution) resolvePackageEntry(pkgDir CachedPath, name string, subpath string, from CachedPath) (*ResolvedModule, error) {
	pkgFile := pkgDir.Join("package.json")
	pkg, err := Read(res.inv, pkgFile, pkgFile.PackageJSON)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	if pkg != nil && pkg.Exports != nil {
		request := "."
		if subpath != "" {
			request = "./" + subpath
		}
		target, err := resolvePackageExports(pkg, request, res.conditions)
		if err != nil {
			return nil, err
		}
		file := pkgDir.Join(target)
		if !res.probe(file) {
			if subpath == "" {
				return nil, &ModuleEntryNotFoundError{Module: name, EntryPath: file.Path(), PackagePath: pkgFile.Path(), Field: "exports"}
			}
			return nil, &ModuleSubpathNotFoundError{Module: name, Path: file.Path(), PackagePath: pkgFile.Path()}
		}
		return res.finish(file, "")
	}

	var file CachedPath
	if subpath == "" {
		file, err = res.loadDirectory(pkgDir, false)
		if err == errNotFound {
			return nil, &ModuleEntryNotFoundError{Module: name, EntryPath: pkgDir.Join("index").Path(), PackagePath: pkgFile.Path(), Field: "main"}
		}
	} else {
		target := pkgDir.Join(subpath)
		file, err = res.loadPath(target, false)
		if err == errNotFound {
			return nil, &ModuleSubpathNotFoundError{Module: name, Path: target.Path(), PackagePath: pkgFile.Path()}
		}
	}
	if err != nil {
		return nil, err
	}
	if m, err := res.applyBrowserFile(pkg, pkgDir, file, from); m != nil || err != nil {
		return m, err
	}
	return res.finish(file, "")
}

// probe reports whether p is a file, recording the fact either way.
func (res *resolution) probe(p CachedPath) bool {
	if p.IsFile() {
		res.inv.InvalidateOnFileChange(p)
		return true
	}
	res.inv.InvalidateOnFileCreate(p)
	return false
}

// loadPath resolves p as a file, then with the extension probe list, then as
// a directory. In strict mode no extension or index file is guessed.
func (res *resolution) loadPath(p CachedPath, strict bool) (CachedPath, error) {
	if file, ok := res.loadFile(p, strict); ok {
		return file, nil
	}
	if p.IsDir() {
		return res.loadDirectory(p, strict)
	}
	return CachedPath{}, errNotFound
}

func (res *resolution) loadFile(p CachedPath, strict bool) (CachedPath, bool) {
	if res.probe(p) {
		return p, true
	}
	if res.fromTS {
		for _, alt := range typeScriptAlternatives(p.Path()) {
			if file := res.cache.Intern(alt); res.probe(file) {
				return file, true
			}
		}
	}
	if !strict {
		for _, ext := range res.options.extensions() {
			if file := res.cache.Intern(p.Path() + ext); res.probe(file) {
				return file, true
			}
		}
	}
	return CachedPath{}, false
}

// loadDirectory resolves the entry fields of the package.json in dir, then
// the index file.
func (res *resolution) loadDirectory(dir CachedPath, strict bool) (CachedPath, error) {
	pkgFile := dir.Join("package.json")
	pkg, err := Read(res.inv, pkgFile, pkgFile.PackageJSON)
	if err != nil && !isNotFound(err) {
		return CachedPath{}, err
	}

	var missing *ModuleEntryNotFoundError
	if pkg != nil {
		for _, field := range res.options.mainFields(res.mode) {
			entry := pkg.entryField(field)
			if entry == "" {
				continue
			}
			target := dir.Join(entry)
			if target == dir {
				continue
			}
			if file, ok := res.loadFile(target, false); ok {
				return file, nil
			}
			if target.IsDir() {
				if file, ok := res.loadIndex(target); ok {
					return file, nil
				}
			}
			if missing == nil {
				missing = &ModuleEntryNotFoundError{Module: pkg.Name, EntryPath: target.Path(), PackagePath: pkgFile.Path(), Field: field}
			}
		}
	}

	if !strict || missing != nil {
		if file, ok := res.loadIndex(dir); ok {
			return file, nil
		}
	}
	if missing != nil {
		return CachedPath{}, missing
	}
	return CachedPath{}, errNotFound
}

func (res *resolution) loadIndex(dir CachedPath) (CachedPath, bool) {
	for _, ext := range res.options.extensions() {
		if file := dir.Join("index" + ext); res.probe(file) {
			return file, true
		}
	}
	return CachedPath{}, false
}

// typeScriptAlternatives returns the TypeScript sources a JavaScript import
// may refer to when it appears in a TypeScript file.
func typeScriptAlternatives(p string) []string {
	base := strings.TrimSuffix(p, filepath.Ext(p))
	switch filepath.Ext(p) {
	case ".js":
		return []string{base + ".ts", base + ".tsx"}
	case ".jsx":
		return []string{base + ".tsx"}
	case ".mjs":
		return []string{base + ".mts"}
	case ".cjs":
		return []string{base + ".cts"}
	}
	return nil
}

// nearestPackageJSON reads the closest package.json of dir.
func (res *resolution) nearestPackageJSON(dir CachedPath) (*PackageJSON, CachedPath, error) {
	res.inv.InvalidateOnFileCreateAbove("package.json", dir)
	file, ok := res.cache.FindAncestorFile(dir, "package.json")
	if !ok {
		return nil, CachedPath{}, nil
	}
	pkg, err := Read(res.inv, file, file.PackageJSON)
	if err != nil {
		return nil, CachedPath{}, err
	}
	pkgDir, _ := file.Parent()
	return pkg, pkgDir, nil
}

// finish canonicalizes the file and attaches its package.
func (res *resolution) finish(file CachedPath, query string) (*ResolvedModule, error) {
	real, err := file.Canonicalize()
	if err != nil {
		return nil, err
	}
	if real != file {
		res.inv.InvalidateOnFileChange(real)
	}
	m := &ResolvedModule{Kind: ResultPath, Path: real.Path(), Query: query}

	dir, _ := real.Parent()
	pkg, pkgDir, err := res.nearestPackageJSON(dir)
	if err != nil {
		return nil, err
	}
	if pkg != nil && pkg.Name != "" {
		m.Package = &PackageInfo{Name: pkg.Name, Version: pkg.Version, Dir: pkgDir.Path()}
		if v, err := semver.NewVersion(pkg.Version); err == nil {
			m.Package.SemVer = v
		}
	}
	return m, nil
}
