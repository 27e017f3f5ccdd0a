package resolver

import (
	"strings"

	"github.com/esm-dev/esm-resolver/specifier"
	"github.com/ije/gox/set"
)

// Mode is the resolution context of a specifier: ESM for `import`, CJS for `require`.
type Mode = specifier.Type

const (
	ESM = specifier.ESM
	CJS = specifier.CJS
)

// DefaultExtensions is the extension probe order used when Options.Extensions is empty.
var DefaultExtensions = []string{".tsx", ".ts", ".jsx", ".js", ".mjs", ".cjs", ".mts", ".cts", ".json"}

// Options configures a Resolver.
type Options struct {
	// Mode is the default resolution mode of the root context.
	Mode Mode
	// Conditions are the custom "exports"/"imports" conditions matched in
	// addition to "default", "import"/"require" and "browser"/"node".
	Conditions []string
	// Extensions is the ordered extension probe list.
	Extensions []string
	// MainFields overrides the package entry fields. When empty ESM uses
	// "module" then "main", CJS uses "main", and a browser target puts
	// "browser" first.
	MainFields []string
	// Browser enables the "browser" condition and package.json browser remapping.
	Browser bool
	// TsConfig enables tsconfig.json "paths" and "baseUrl" mapping.
	TsConfig bool
	// EnforceESMExtensions disables extension probing for ESM specifiers.
	EnforceESMExtensions bool
}

func (o Options) extensions() []string {
	if len(o.Extensions) == 0 {
		return DefaultExtensions
	}
	exts := make([]string, 0, len(o.Extensions))
	for _, ext := range o.Extensions {
		if ext = strings.TrimSpace(ext); ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return exts
}

func (o Options) mainFields(mode Mode) []string {
	if len(o.MainFields) > 0 {
		return o.MainFields
	}
	var fields []string
	if o.Browser {
		fields = append(fields, "browser")
	}
	if mode == ESM {
		fields = append(fields, "module")
	}
	return append(fields, "main")
}

// conditionSet is the set of conditions an "exports" or "imports" target
// may match.
type conditionSet interface {
	Has(name string) bool
}

func (o Options) conditions(mode Mode) conditionSet {
	names := []string{"default"}
	if mode == CJS {
		names = append(names, "require")
	} else {
		names = append(names, "import")
	}
	if o.Browser {
		names = append(names, "browser")
	} else {
		names = append(names, "node")
	}
	names = append(names, o.Conditions...)
	return set.NewReadOnly(names...)
}
