package resolver

import (
	"net/url"
	"sort"
	"strings"

	"github.com/esm-dev/esm-resolver/internal/npm"
)

// targetState separates the three outcomes of a target lookup: no
// condition matched (undefined), the package excluded the path (null), or a
// target was found.
type targetState uint8

const (
	targetUndefined targetState = iota
	targetNull
	targetFound
)

// exportsMatcher implements the "exports" and "imports" lookups of the
// Node.js ESM resolution algorithm.
type exportsMatcher struct {
	pkg        *PackageJSON
	conditions conditionSet
	imports    bool
	request    string
}

func (m *exportsMatcher) error(reason PackageJSONReason) error {
	return &PackageJSONError{Module: m.pkg.Name, Path: m.request, Reason: reason}
}

// resolvePackageExports maps the subpath ("." or "./x") through the
// "exports" field of pkg and returns a "./" prefixed path relative to the
// package directory.
func resolvePackageExports(pkg *PackageJSON, subpath string, conditions conditionSet) (string, error) {
	m := &exportsMatcher{pkg: pkg, conditions: conditions, request: subpath}

	exports := pkg.Exports
	obj, isObj := exports.(npm.JSONObject)
	subpathKeys := false
	if isObj {
		dotKeys := 0
		for _, key := range obj.Keys() {
			if strings.HasPrefix(key, ".") {
				dotKeys++
			}
		}
		if dotKeys > 0 && dotKeys != obj.Len() {
			return "", m.error(InvalidPackageConfig)
		}
		subpathKeys = dotKeys > 0
	}

	if subpath == "." {
		mainExport, ok := exports, true
		if subpathKeys {
			mainExport, ok = obj.Get(".")
		}
		if ok {
			target, state, err := m.resolveTarget(mainExport, "")
			if err != nil {
				return "", err
			}
			if state == targetFound {
				return target, nil
			}
		}
	} else if subpathKeys {
		target, state, err := m.resolveMatch(subpath, obj)
		if err != nil {
			return "", err
		}
		if state == targetFound {
			return target, nil
		}
	}
	return "", m.error(PackagePathNotExported)
}

// resolvePackageImports maps a "#name" specifier through the "imports"
// field of pkg. The result is either a "./" prefixed path relative to the
// package directory or a bare specifier to resolve as a package.
func resolvePackageImports(pkg *PackageJSON, name string, conditions conditionSet) (string, error) {
	m := &exportsMatcher{pkg: pkg, conditions: conditions, imports: true, request: name}
	if pkg.Imports.Len() > 0 {
		target, state, err := m.resolveMatch(name, pkg.Imports)
		if err != nil {
			return "", err
		}
		if state == targetFound {
			return target, nil
		}
	}
	return "", m.error(ImportNotDefined)
}

func (m *exportsMatcher) resolveMatch(key string, obj npm.JSONObject) (string, targetState, error) {
	if !strings.Contains(key, "*") {
		if target, ok := obj.Get(key); ok {
			return m.resolveTarget(target, "")
		}
	}

	var patterns []string
	for _, k := range obj.Keys() {
		if strings.Count(k, "*") == 1 {
			patterns = append(patterns, k)
		}
	}
	sort.SliceStable(patterns, func(i, j int) bool {
		return comparePatternKeys(patterns[i], patterns[j]) < 0
	})

	for _, pattern := range patterns {
		star := strings.IndexByte(pattern, '*')
		base, trailer := pattern[:star], pattern[star+1:]
		if !strings.HasPrefix(key, base) || key == base {
			continue
		}
		if trailer == "" || (strings.HasSuffix(key, trailer) && len(key) >= len(pattern)) {
			target, _ := obj.Get(pattern)
			return m.resolveTarget(target, key[len(base):len(key)-len(trailer)])
		}
	}
	return "", targetNull, nil
}

// comparePatternKeys orders pattern keys by specificity: a longer prefix
// before the "*" first, then the longer key.
func comparePatternKeys(a, b string) int {
	baseA := strings.IndexByte(a, '*') + 1
	baseB := strings.IndexByte(b, '*') + 1
	switch {
	case baseA > baseB:
		return -1
	case baseB > baseA:
		return 1
	case len(a) > len(b):
		return -1
	case len(b) > len(a):
		return 1
	}
	return 0
}

func (m *exportsMatcher) resolveTarget(target any, patternMatch string) (string, targetState, error) {
	switch t := target.(type) {
	case nil:
		return "", targetNull, nil

	case string:
		if !strings.HasPrefix(t, "./") {
			if !m.imports || strings.HasPrefix(t, "../") || strings.HasPrefix(t, "/") || strings.HasPrefix(t, "#") || strings.Contains(t, "://") {
				return "", targetNull, m.error(InvalidPackageTarget)
			}
			if patternMatch != "" {
				t = strings.ReplaceAll(t, "*", patternMatch)
			}
			return t, targetFound, nil
		}
		if hasInvalidSegment(t, true) {
			return "", targetNull, m.error(InvalidPackageTarget)
		}
		if patternMatch == "" {
			return t, targetFound, nil
		}
		if hasInvalidSegment(patternMatch, false) {
			return "", targetNull, m.error(InvalidModuleSpecifier)
		}
		return strings.ReplaceAll(t, "*", patternMatch), targetFound, nil

	case []any:
		if len(t) == 0 {
			return "", targetNull, nil
		}
		// a null element is skipped like an undefined one, but it clears the
		// last invalid target error
		var lastErr error
		last := targetUndefined
		for _, item := range t {
			resolved, state, err := m.resolveTarget(item, patternMatch)
			if err != nil {
				if isInvalidTarget(err) {
					lastErr = err
					continue
				}
				return "", targetNull, err
			}
			switch state {
			case targetUndefined:
				continue
			case targetNull:
				lastErr, last = nil, targetNull
				continue
			}
			return resolved, state, nil
		}
		if lastErr != nil {
			return "", targetNull, lastErr
		}
		return "", last, nil

	case npm.JSONObject:
		for _, key := range t.Keys() {
			if key != "default" && !m.conditions.Has(key) {
				continue
			}
			value, _ := t.Get(key)
			resolved, state, err := m.resolveTarget(value, patternMatch)
			if err != nil {
				return "", targetNull, err
			}
			if state == targetUndefined {
				continue
			}
			return resolved, state, nil
		}
		return "", targetUndefined, nil
	}
	return "", targetNull, m.error(InvalidPackageTarget)
}

func isInvalidTarget(err error) bool {
	pe, ok := err.(*PackageJSONError)
	return ok && pe.Reason == InvalidPackageTarget
}

// hasInvalidSegment reports whether p has an empty, ".", ".." or
// node_modules segment, percent-encoded forms included.
func hasInvalidSegment(p string, skipFirst bool) bool {
	segments := strings.Split(strings.ReplaceAll(p, "\\", "/"), "/")
	for i, seg := range segments {
		if i == 0 && skipFirst {
			continue
		}
		if decoded, err := url.PathUnescape(seg); err == nil {
			seg = decoded
		}
		switch strings.ToLower(seg) {
		case "", ".", "..", "node_modules":
			return true
		}
	}
	return false
}
