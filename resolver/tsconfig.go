package resolver

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/esm-dev/esm-resolver/internal/jsonc"
	"github.com/esm-dev/esm-resolver/internal/npm"
)

// TsConfig holds the module resolution options of a tsconfig.json file.
type TsConfig struct {
	// Path is the path of the tsconfig.json file.
	Path string
	// BaseURL is the absolute "compilerOptions.baseUrl", "" if unset.
	BaseURL string
	// Paths maps a pattern to its ordered substitutions.
	Paths map[string][]string
	// PathsDir is the directory of the file that declared Paths.
	PathsDir string
	// Extends lists the "extends" references in order.
	Extends []string
}

type tsConfigRaw struct {
	Extends         json.RawMessage `json:"extends"`
	CompilerOptions struct {
		BaseURL *string             `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// mergedTsConfig is the memoized result of following an "extends" chain,
// together with the invalidations gathered while following it.
type mergedTsConfig struct {
	ts  *TsConfig
	inv *Invalidations
}

func parseTsConfig(path string, content []byte) (*TsConfig, error) {
	var raw tsConfigRaw
	if err := jsonc.Unmarshal(content, &raw); err != nil {
		return nil, newJSONError(path, content, err)
	}

	dir := filepath.Dir(path)
	ts := &TsConfig{Path: path}
	if raw.CompilerOptions.BaseURL != nil {
		ts.BaseURL = filepath.Join(dir, *raw.CompilerOptions.BaseURL)
	}
	if raw.CompilerOptions.Paths != nil {
		ts.Paths = raw.CompilerOptions.Paths
		ts.PathsDir = dir
	}

	if len(raw.Extends) > 0 && string(raw.Extends) != "null" {
		var one string
		var many []string
		if err := json.Unmarshal(raw.Extends, &one); err == nil {
			many = []string{one}
		} else if err := json.Unmarshal(raw.Extends, &many); err != nil {
			return nil, &JSONError{Path: path, Message: fmt.Sprintf("invalid \"extends\" field: %s", raw.Extends)}
		}
		for _, ext := range many {
			if ext != "" {
				ts.Extends = append(ts.Extends, ext)
			}
		}
	}
	return ts, nil
}

// extend returns a copy of t with the options set by child applied over it.
func (t *TsConfig) extend(child *TsConfig) *TsConfig {
	merged := *t
	merged.Path = child.Path
	merged.Extends = nil
	if child.BaseURL != "" {
		merged.BaseURL = child.BaseURL
	}
	if child.Paths != nil {
		merged.Paths = child.Paths
		merged.PathsDir = child.PathsDir
	}
	return &merged
}

// candidates returns the absolute paths a specifier maps to, in the order
// they must be tried.
func (t *TsConfig) candidates(spec string) []string {
	var list []string
	base := t.BaseURL
	if base == "" {
		base = t.PathsDir
	}

	if subs, ok := t.Paths[spec]; ok && !strings.Contains(spec, "*") {
		for _, sub := range subs {
			list = append(list, filepath.Join(base, sub))
		}
	} else if pattern, match, ok := t.matchPattern(spec); ok {
		for _, sub := range t.Paths[pattern] {
			list = append(list, filepath.Join(base, strings.Replace(sub, "*", match, 1)))
		}
	}

	if t.BaseURL != "" {
		list = append(list, filepath.Join(t.BaseURL, spec))
	}
	return list
}

// matchPattern finds the wildcard pattern with the longest prefix matching spec.
func (t *TsConfig) matchPattern(spec string) (pattern string, match string, ok bool) {
	keys := make([]string, 0, len(t.Paths))
	for key := range t.Paths {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	longest := -1
	for _, key := range keys {
		star := strings.IndexByte(key, '*')
		if star < 0 || strings.Count(key, "*") > 1 {
			continue
		}
		prefix, suffix := key[:star], key[star+1:]
		if len(spec) < len(prefix)+len(suffix) || !strings.HasPrefix(spec, prefix) || !strings.HasSuffix(spec, suffix) {
			continue
		}
		if len(prefix) > longest {
			longest = len(prefix)
			pattern = key
			match = spec[len(prefix) : len(spec)-len(suffix)]
			ok = true
		}
	}
	return
}

// tsConfigFor returns the merged tsconfig.json that applies to file, nil
// when there is none. Files inside node_modules never use one.
func (res *resolution) tsConfigFor(file CachedPath) (*TsConfig, error) {
	if file.InNodeModules() {
		return nil, nil
	}
	dir, ok := file.Parent()
	if !ok {
		return nil, nil
	}
	res.inv.InvalidateOnFileCreateAbove("tsconfig.json", dir)
	tsconfig, ok := res.cache.FindAncestorFile(dir, "tsconfig.json")
	if !ok {
		return nil, nil
	}
	return res.loadTsConfig(tsconfig, nil)
}

// loadTsConfig follows the "extends" chain of the tsconfig.json file. chain
// holds the files currently being loaded.
func (res *resolution) loadTsConfig(file CachedPath, chain []string) (*TsConfig, error) {
	for _, p := range chain {
		if p == file.Path() {
			return nil, &TsConfigExtendsCircularError{TsConfig: chain[len(chain)-1], Chain: append(append([]string{}, chain...), file.Path())}
		}
	}

	slot := &res.cache.entry(file.ID()).tsMerged
	if merged, err, ok := slot.get(); ok {
		res.inv.Extend(merged.inv)
		return merged.ts, err
	}

	sub := *res
	sub.inv = NewInvalidations()
	ts, err := sub.mergeTsConfig(file, append(chain, file.Path()))
	merged, err := slot.set(&mergedTsConfig{ts: ts, inv: sub.inv}, err)
	res.inv.Extend(merged.inv)
	if err == nil {
		log.Debugf("tsconfig %s loaded (baseUrl=%q, %d paths)", file.Path(), merged.ts.BaseURL, len(merged.ts.Paths))
	}
	return merged.ts, err
}

func (res *resolution) mergeTsConfig(file CachedPath, chain []string) (*TsConfig, error) {
	raw, err := Read(res.inv, file, file.TsConfig)
	if err != nil {
		return nil, err
	}

	merged := &TsConfig{}
	for _, ext := range raw.Extends {
		extFile, err := res.resolveTsConfigExtends(ext, file)
		if err != nil {
			return nil, &TsConfigExtendsNotFoundError{TsConfig: file.Path(), Err: err}
		}
		parent, err := res.loadTsConfig(extFile, chain)
		if err != nil {
			if isNotFound(err) {
				return nil, &TsConfigExtendsNotFoundError{TsConfig: file.Path(), Err: err}
			}
			return nil, err
		}
		merged = merged.extend(parent)
	}
	return merged.extend(raw), nil
}

// resolveTsConfigExtends finds the file an "extends" reference points to:
// a path relative to the tsconfig with an optional ".json" extension, or a
// package whose "tsconfig" field (or tsconfig.json) is used.
func (res *resolution) resolveTsConfigExtends(ext string, file CachedPath) (CachedPath, error) {
	dir, _ := file.Parent()
	if strings.HasPrefix(ext, ".") || filepath.IsAbs(ext) {
		p := ext
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir.Path(), p)
		}
		if target, ok := res.probeJSON(p); ok {
			return target, nil
		}
		return CachedPath{}, &FileNotFoundError{Relative: ext, From: file.Path()}
	}

	name, subpath := npm.SplitPackageName(ext)
	pkgDir, err := res.findPackageDir(name, dir)
	if err != nil {
		return CachedPath{}, err
	}
	pkgFile := pkgDir.Join("package.json")
	if subpath != "" {
		if target, ok := res.probeJSON(filepath.Join(pkgDir.Path(), subpath)); ok {
			return target, nil
		}
		return CachedPath{}, &ModuleSubpathNotFoundError{Module: name, Path: pkgDir.Join(subpath).Path(), PackagePath: pkgFile.Path()}
	}

	pkg, err := Read(res.inv, pkgFile, pkgFile.PackageJSON)
	if err != nil && !isNotFound(err) {
		return CachedPath{}, err
	}
	entry := "tsconfig.json"
	if pkg != nil && pkg.TsConfig != "" {
		entry = pkg.TsConfig
	}
	target := pkgDir.Join(entry)
	if res.probe(target) {
		return target, nil
	}
	return CachedPath{}, &ModuleEntryNotFoundError{Module: name, EntryPath: target.Path(), PackagePath: pkgFile.Path(), Field: "tsconfig"}
}

// probeJSON tries p, then p with ".json" appended.
func (res *resolution) probeJSON(p string) (CachedPath, bool) {
	target := res.cache.Intern(p)
	if res.probe(target) {
		return target, true
	}
	if filepath.Ext(p) != ".json" {
		target = res.cache.Intern(p + ".json")
		if res.probe(target) {
			return target, true
		}
	}
	return CachedPath{}, false
}

// resolveTsConfigPaths maps a bare specifier through the "paths" and
// "baseUrl" options of the tsconfig.json applying to from. ok is false
// when no candidate exists.
func (res *resolution) resolveTsConfigPaths(spec string, from CachedPath) (file CachedPath, ok bool, err error) {
	if !res.options.TsConfig {
		return CachedPath{}, false, nil
	}
	ts, err := res.tsConfigFor(from)
	if err != nil || ts == nil {
		return CachedPath{}, false, err
	}
	for _, candidate := range ts.candidates(spec) {
		file, err := res.loadPath(res.cache.Intern(candidate), false)
		if err == nil {
			return file, true, nil
		}
		if err != errNotFound {
			return CachedPath{}, false, err
		}
	}
	return CachedPath{}, false, nil
}
