package resolver

import (
	"path/filepath"

	"github.com/esm-dev/esm-resolver/internal/npm"
)

// PackageJSON is a parsed package.json file.
type PackageJSON struct {
	// Path is the path of the package.json file.
	Path string
	*npm.PackageJSON
}

// Dir returns the package directory.
func (p *PackageJSON) Dir() string {
	return filepath.Dir(p.Path)
}

// IsModule reports whether the package sets "type": "module".
func (p *PackageJSON) IsModule() bool {
	return p.Type == "module"
}

// entryField returns the value of an entry field, "" if it is not set.
func (p *PackageJSON) entryField(field string) string {
	switch field {
	case "main":
		return p.Main
	case "module":
		return p.Module
	case "browser":
		return p.Browser["."]
	case "types", "typings":
		return p.Types
	}
	return ""
}
