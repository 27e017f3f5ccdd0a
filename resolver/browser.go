package resolver

import (
	"path/filepath"
	"sort"
	"strings"
)

// browserRemap is the outcome of a package.json "browser" lookup.
type browserRemap struct {
	// empty is set when the module is replaced by `false`.
	empty bool
	// file is set when the replacement is a file of the package.
	file CachedPath
	// module is set when the replacement is another bare module.
	module string
}

// browserModule looks up a bare specifier in the "browser" field of the
// package that contains from.
func (res *resolution) browserModule(spec string, from CachedPath) (*browserRemap, error) {
	if !res.options.Browser {
		return nil, nil
	}
	dir, ok := from.Parent()
	if !ok {
		return nil, nil
	}
	pkg, pkgDir, err := res.nearestPackageJSON(dir)
	if err != nil || pkg == nil || len(pkg.Browser) == 0 {
		return nil, err
	}
	replacement, ok := pkg.Browser[spec]
	if !ok {
		return nil, nil
	}
	return res.browserTarget(pkgDir, spec, replacement)
}

// browserFile looks up a resolved file in the "browser" field of pkg.
func (res *resolution) browserFile(pkg *PackageJSON, pkgDir CachedPath, file CachedPath) (*browserRemap, error) {
	if !res.options.Browser || pkg == nil || len(pkg.Browser) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(pkg.Browser))
	for key := range pkg.Browser {
		if strings.HasPrefix(key, "./") || strings.HasPrefix(key, "../") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	// an exact key wins over a key without the extension
	withoutExt := strings.TrimSuffix(file.Path(), file.Ext())
	match := ""
	for _, key := range keys {
		p := filepath.Join(pkgDir.Path(), key)
		if p == file.Path() {
			match = key
			break
		}
		if p == withoutExt && match == "" {
			match = key
		}
	}
	if match == "" {
		return nil, nil
	}
	return res.browserTarget(pkgDir, match, pkg.Browser[match])
}

func (res *resolution) browserTarget(pkgDir CachedPath, key string, replacement string) (*browserRemap, error) {
	if replacement == "" {
		return &browserRemap{empty: true}, nil
	}
	if replacement == key {
		return nil, nil
	}
	if strings.HasPrefix(replacement, "./") || strings.HasPrefix(replacement, "../") || filepath.IsAbs(replacement) {
		target := res.cache.Intern(replacement)
		if !filepath.IsAbs(replacement) {
			target = pkgDir.Join(replacement)
		}
		file, err := res.loadPath(target, false)
		if err == errNotFound {
			return nil, &FileNotFoundError{Relative: replacement, From: pkgDir.Join("package.json").Path()}
		}
		if err != nil {
			return nil, err
		}
		return &browserRemap{file: file}, nil
	}
	return &browserRemap{module: replacement}, nil
}
