// Package esbuildplugin resolves the imports of an esbuild build with a Resolver.
package esbuildplugin

import (
	"path/filepath"
	"sort"

	"github.com/esm-dev/esm-resolver/resolver"
	"github.com/esm-dev/esm-resolver/resultcache"
	"github.com/evanw/esbuild/pkg/api"
)

const emptyNamespace = "esm-resolver-empty"

// New returns an esbuild plugin that resolves every import with c.
func New(c *resultcache.Cache) api.Plugin {
	return api.Plugin{
		Name: "esm-resolver",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Namespace != "" && args.Namespace != "file" {
					return api.OnResolveResult{}, nil
				}
				from := args.Importer
				if from == "" {
					// entry points resolve against a file in the working directory
					from = filepath.Join(args.ResolveDir, "<entry>")
				}
				m, inv, err := c.Resolve(args.Path, from, modeOf(args.Kind, c.Resolver().Mode()))
				if err != nil {
					return api.OnResolveResult{WatchFiles: watchFiles(inv), WatchDirs: watchDirs(inv)}, err
				}

				result := api.OnResolveResult{
					WatchFiles: watchFiles(inv),
					WatchDirs:  watchDirs(inv),
				}
				switch m.Kind {
				case resolver.ResultBuiltin, resolver.ResultExternal:
					result.Path = args.Path
					result.External = true
				case resolver.ResultEmpty:
					result.Path = args.Path
					result.Namespace = emptyNamespace
				default:
					result.Path = m.Path
					result.Suffix = m.Query
				}
				return result, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: emptyNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				contents := ""
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}

// modeOf maps an esbuild import kind to a resolution mode. Entry points
// take the root mode.
func modeOf(kind api.ResolveKind, root resolver.Mode) resolver.Mode {
	switch kind {
	case api.ResolveJSRequireCall, api.ResolveJSRequireResolve:
		return resolver.CJS
	case api.ResolveEntryPoint:
		return root
	}
	return resolver.ESM
}

func watchFiles(inv *resolver.Invalidations) []string {
	if inv == nil {
		return nil
	}
	changed := inv.FileChange()
	files := make([]string, len(changed))
	for i, p := range changed {
		files[i] = p.Path()
	}
	return files
}

// watchDirs returns the directories in which a file creation would change
// the result. A file created above a directory may be in any ancestor.
func watchDirs(inv *resolver.Invalidations) []string {
	if inv == nil {
		return nil
	}
	seen := map[string]bool{}
	for _, c := range inv.FileCreate() {
		switch c.Kind {
		case resolver.CreatePath:
			if parent, ok := c.Path.Parent(); ok {
				seen[parent.Path()] = true
			}
		case resolver.CreateAbove:
			for dir, ok := c.Path, true; ok; dir, ok = dir.Parent() {
				seen[dir.Path()] = true
			}
		}
	}
	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}
