package npm

import (
	"strings"

	"github.com/ije/gox/utils"
	"github.com/ije/gox/valid"
)

var (
	Naming = valid.Validator{valid.Range{'a', 'z'}, valid.Range{'A', 'Z'}, valid.Range{'0', '9'}, valid.Eq('_'), valid.Eq('.'), valid.Eq('-'), valid.Eq('+'), valid.Eq('$'), valid.Eq('!'), valid.Eq('~')}
)

// ValidatePackageName validates the package name.
// based on https://github.com/npm/validate-npm-package-name
func ValidatePackageName(pkgName string) bool {
	if l := len(pkgName); l == 0 || l > 214 {
		return false
	}
	if strings.HasPrefix(pkgName, "@") {
		scope, name := utils.SplitByFirstByte(pkgName, '/')
		return len(scope) > 1 && name != "" && Naming.Match(scope[1:]) && Naming.Match(name)
	}
	if strings.HasPrefix(pkgName, ".") || strings.HasPrefix(pkgName, "_") {
		return false
	}
	return Naming.Match(pkgName)
}

// SplitPackageName splits a bare specifier into the package name and the subpath.
// e.g. "@scope/name/sub/path" -> ("@scope/name", "sub/path")
func SplitPackageName(specifier string) (pkgName string, subpath string) {
	if strings.HasPrefix(specifier, "@") {
		scope, rest := utils.SplitByFirstByte(specifier, '/')
		name, subpath := utils.SplitByFirstByte(rest, '/')
		if name == "" {
			return scope, subpath
		}
		return scope + "/" + name, subpath
	}
	return utils.SplitByFirstByte(specifier, '/')
}

// SplitPackageVersion splits "name@version" into the name and the version.
func SplitPackageVersion(v string) (string, string) {
	if strings.HasPrefix(v, "@") {
		if i := strings.IndexByte(v[1:], '@'); i > 0 {
			return v[:i+1], v[i+2:]
		}
		return v, ""
	}
	if i := strings.IndexByte(v, '@'); i > 0 {
		return v[:i], v[i+1:]
	}
	return v, ""
}
