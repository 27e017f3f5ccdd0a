package resolver

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileCreateKind tells which form a file-create invalidation takes.
type FileCreateKind uint8

const (
	// CreatePath fires when exactly Path is created.
	CreatePath FileCreateKind = iota + 1
	// CreateAbove fires when a file called FileName is created in Path or
	// any of its ancestors.
	CreateAbove
	// CreateGlob fires when a path matching Glob is created.
	CreateGlob
)

// FileCreateInvalidation is an entry of the file-create set.
type FileCreateInvalidation struct {
	Kind     FileCreateKind
	Path     CachedPath
	FileName string
	Glob     string
}

func (f FileCreateInvalidation) String() string {
	switch f.Kind {
	case CreateAbove:
		return f.FileName + " above " + f.Path.Path()
	case CreateGlob:
		return f.Glob
	}
	return f.Path.Path()
}

type aboveKey struct {
	name  string
	above CachedPath
}

// Invalidations records the filesystem facts a resolution depended on. The
// zero value is not usable, use NewInvalidations. An Invalidations has a
// single owner and must not be shared between goroutines.
type Invalidations struct {
	createPaths map[CachedPath]struct{}
	createAbove map[aboveKey]struct{}
	createGlobs map[string]struct{}
	change      map[CachedPath]struct{}
	startup     bool
}

// NewInvalidations returns an empty set of invalidations.
func NewInvalidations() *Invalidations {
	return &Invalidations{
		createPaths: map[CachedPath]struct{}{},
		createAbove: map[aboveKey]struct{}{},
		createGlobs: map[string]struct{}{},
		change:      map[CachedPath]struct{}{},
	}
}

// InvalidateOnFileCreate records that creating path changes the result.
func (inv *Invalidations) InvalidateOnFileCreate(path CachedPath) {
	inv.createPaths[path] = struct{}{}
}

// InvalidateOnFileCreateAbove records that creating a file called name in
// above or any of its ancestors changes the result.
func (inv *Invalidations) InvalidateOnFileCreateAbove(name string, above CachedPath) {
	inv.createAbove[aboveKey{name, above}] = struct{}{}
}

// InvalidateOnGlobCreate records that creating any path matching glob
// changes the result.
func (inv *Invalidations) InvalidateOnGlobCreate(glob string) {
	inv.createGlobs[glob] = struct{}{}
}

// InvalidateOnFileChange records that modifying or deleting path changes the result.
func (inv *Invalidations) InvalidateOnFileChange(path CachedPath) {
	inv.change[path] = struct{}{}
}

// InvalidateOnStartup marks the result as not surviving a process restart.
func (inv *Invalidations) InvalidateOnStartup() {
	inv.startup = true
}

// Extend merges other into inv.
func (inv *Invalidations) Extend(other *Invalidations) {
	if other == nil || other == inv {
		return
	}
	for p := range other.createPaths {
		inv.createPaths[p] = struct{}{}
	}
	for k := range other.createAbove {
		inv.createAbove[k] = struct{}{}
	}
	for g := range other.createGlobs {
		inv.createGlobs[g] = struct{}{}
	}
	for p := range other.change {
		inv.change[p] = struct{}{}
	}
	inv.startup = inv.startup || other.startup
}

// FileCreate returns the file-create set, sorted.
func (inv *Invalidations) FileCreate() []FileCreateInvalidation {
	list := make([]FileCreateInvalidation, 0, len(inv.createPaths)+len(inv.createAbove)+len(inv.createGlobs))
	for p := range inv.createPaths {
		list = append(list, FileCreateInvalidation{Kind: CreatePath, Path: p})
	}
	for k := range inv.createAbove {
		list = append(list, FileCreateInvalidation{Kind: CreateAbove, Path: k.above, FileName: k.name})
	}
	for g := range inv.createGlobs {
		list = append(list, FileCreateInvalidation{Kind: CreateGlob, Glob: g})
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Path.Path() != b.Path.Path() {
			return a.Path.Path() < b.Path.Path()
		}
		if a.FileName != b.FileName {
			return a.FileName < b.FileName
		}
		return a.Glob < b.Glob
	})
	return list
}

// FileChange returns the file-change set, sorted by path.
func (inv *Invalidations) FileChange() []CachedPath {
	list := make([]CachedPath, 0, len(inv.change))
	for p := range inv.change {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Path() < list[j].Path()
	})
	return list
}

// Startup reports whether the result must be discarded on restart.
func (inv *Invalidations) Startup() bool {
	return inv.startup
}

// IsEmpty reports whether nothing has been recorded.
func (inv *Invalidations) IsEmpty() bool {
	return len(inv.createPaths) == 0 && len(inv.createAbove) == 0 && len(inv.createGlobs) == 0 && len(inv.change) == 0 && !inv.startup
}

// Read runs fn, the only way resolution code reads file content. A
// successful read invalidates on change of path, a not-found failure
// invalidates on creation of path. Other failures record nothing.
func Read[T any](inv *Invalidations, path CachedPath, fn func() (T, error)) (T, error) {
	value, err := fn()
	if err == nil {
		inv.InvalidateOnFileChange(path)
	} else if isNotFound(err) {
		inv.InvalidateOnFileCreate(path)
	}
	return value, err
}

// EventType is the type of a filesystem event.
type EventType uint8

const (
	EventCreate EventType = iota + 1
	EventUpdate
	EventDelete
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	}
	return "unknown"
}

// FileEvent is a filesystem change reported by a watcher.
type FileEvent struct {
	Type EventType
	Path string
}

// InvalidatedBy reports whether the event makes the recorded result stale.
// A create event also matches the file-change set, since an atomic save
// replaces a file by renaming another over it. A delete event matches
// everything recorded below the deleted path, which covers removing a
// directory or a symlink to one.
func (inv *Invalidations) InvalidatedBy(event FileEvent) bool {
	path := filepath.Clean(event.Path)
	switch event.Type {
	case EventUpdate:
		for p := range inv.change {
			if p.Path() == path {
				return true
			}
		}
		return false
	case EventDelete:
		for p := range inv.change {
			if isWithin(p.Path(), path) {
				return true
			}
		}
		for k := range inv.createAbove {
			if isWithin(k.above.Path(), path) {
				return true
			}
		}
		return false
	}

	for p := range inv.change {
		if p.Path() == path {
			return true
		}
	}
	for p := range inv.createPaths {
		if p.Path() == path {
			return true
		}
	}
	name := filepath.Base(path)
	for k := range inv.createAbove {
		if k.name != name {
			continue
		}
		dir := filepath.Dir(path)
		for above := k.above; ; {
			if above.Path() == dir {
				return true
			}
			parent, ok := above.Parent()
			if !ok {
				break
			}
			above = parent
		}
	}
	for g := range inv.createGlobs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

// isWithin reports whether p is dir or a path below it.
func isWithin(p, dir string) bool {
	if p == dir {
		return true
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(p, dir)
}
