package specifier

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/esm-dev/esm-resolver/internal/npm"
)

// Type is the context a specifier appears in.
type Type uint8

const (
	// ESM is an `import` statement or dynamic `import()` expression.
	ESM Type = iota
	// CJS is a `require()` call.
	CJS
)

func (t Type) String() string {
	if t == CJS {
		return "cjs"
	}
	return "esm"
}

// ParseType parses "esm"/"import" or "cjs"/"require".
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(s) {
	case "esm", "import", "module":
		return ESM, true
	case "cjs", "require", "commonjs":
		return CJS, true
	}
	return ESM, false
}

// Kind classifies a specifier.
type Kind uint8

const (
	// Relative is `./x` or `../x`.
	Relative Kind = iota + 1
	// Absolute is `/x` or a `file:` URL.
	Absolute
	// Package is a bare package name with an optional subpath.
	Package
	// Hash is a package "imports" specifier such as `#internal`.
	Hash
	// URL is an external URL that is never resolved on disk.
	URL
	// Builtin is a Node.js core module.
	Builtin
)

func (k Kind) String() string {
	switch k {
	case Relative:
		return "relative"
	case Absolute:
		return "absolute"
	case Package:
		return "package"
	case Hash:
		return "hash"
	case URL:
		return "url"
	case Builtin:
		return "builtin"
	}
	return "unknown"
}

// Specifier is the structural form of a raw specifier string.
type Specifier struct {
	Kind Kind
	Raw  string
	// Path is the file path of a Relative or Absolute specifier, the
	// `#name` of a Hash specifier or the URL of a URL specifier.
	Path string
	// Module is the package name of a Package specifier or the module
	// name of a Builtin.
	Module string
	// Subpath is the path inside the package without a leading slash.
	Subpath string
	// Query is the `?query` suffix of an ESM path specifier.
	Query string
}

// Reason tells why a specifier is invalid.
type Reason uint8

const (
	EmptySpecifier Reason = iota + 1
	InvalidPackageName
	InvalidFileURL
	InvalidEncoding
	InvalidHash
)

func (r Reason) String() string {
	switch r {
	case EmptySpecifier:
		return "empty specifier"
	case InvalidPackageName:
		return "invalid package name"
	case InvalidFileURL:
		return "invalid file URL"
	case InvalidEncoding:
		return "invalid percent-encoding"
	case InvalidHash:
		return "invalid hash specifier"
	}
	return "invalid specifier"
}

// Error is returned for a syntactically invalid specifier.
type Error struct {
	Specifier string
	Reason    Reason
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %q", e.Reason, e.Specifier)
}

// UnknownSchemeError is returned for a URL specifier with an unsupported scheme.
type UnknownSchemeError struct {
	Specifier string
	Scheme    string
}

func (e *UnknownSchemeError) Error() string {
	return fmt.Sprintf("unknown url scheme %q in %q", e.Scheme, e.Specifier)
}

// Parse classifies the raw specifier. It never touches the filesystem.
//
// A specifier that looks like a package but carries an invalid package name
// is returned together with an *Error of reason InvalidPackageName, so callers
// may still try aliases (e.g. tsconfig paths such as "@/components").
func Parse(raw string, typ Type) (Specifier, error) {
	if raw == "" {
		return Specifier{}, &Error{Specifier: raw, Reason: EmptySpecifier}
	}
	s := Specifier{Raw: raw}
	switch {
	case raw == "." || raw == ".." || strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../"):
		s.Kind = Relative
		return s, s.setPath(raw, typ)
	case strings.HasPrefix(raw, "//") && typ == ESM:
		s.Kind = URL
		s.Path = raw
		return s, nil
	case strings.HasPrefix(raw, "/"):
		s.Kind = Absolute
		return s, s.setPath(raw, typ)
	case strings.HasPrefix(raw, "#"):
		if raw == "#" || strings.HasPrefix(raw, "#/") {
			return s, &Error{Specifier: raw, Reason: InvalidHash}
		}
		s.Kind = Hash
		s.Path = raw
		return s, nil
	}

	if scheme, rest, ok := splitScheme(raw); ok {
		switch scheme {
		case "node":
			if rest == "" {
				return s, &Error{Specifier: raw, Reason: InvalidPackageName}
			}
			s.Kind = Builtin
			s.Module = rest
			return s, nil
		case "npm":
			name, subpath := npm.SplitPackageName(rest)
			name, _ = npm.SplitPackageVersion(name)
			return s.setPackage(name, subpath)
		case "file":
			u, err := url.Parse(raw)
			if err != nil || (u.Host != "" && u.Host != "localhost") || u.Path == "" {
				return s, &Error{Specifier: raw, Reason: InvalidFileURL}
			}
			s.Kind = Absolute
			s.Path = u.Path
			if u.RawQuery != "" {
				s.Query = "?" + u.RawQuery
			}
			return s, nil
		case "http", "https", "data", "blob":
			s.Kind = URL
			s.Path = raw
			return s, nil
		default:
			return s, &UnknownSchemeError{Specifier: raw, Scheme: scheme}
		}
	}

	// a trailing slash forces the package lookup, e.g. require("process/")
	if !strings.HasSuffix(raw, "/") && IsBuiltin(raw) {
		s.Kind = Builtin
		s.Module = raw
		return s, nil
	}

	name, subpath := npm.SplitPackageName(raw)
	return s.setPackage(name, strings.TrimSuffix(subpath, "/"))
}

func (s *Specifier) setPackage(name string, subpath string) (Specifier, error) {
	s.Kind = Package
	s.Module = name
	s.Subpath = subpath
	if !npm.ValidatePackageName(name) {
		return *s, &Error{Specifier: s.Raw, Reason: InvalidPackageName}
	}
	return *s, nil
}

func (s *Specifier) setPath(raw string, typ Type) error {
	if typ == CJS {
		s.Path = raw
		return nil
	}
	// ESM specifiers are URLs: strip the query and the fragment, then decode
	p := raw
	if i := strings.IndexByte(p, '#'); i >= 0 {
		p = p[:i]
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		s.Query = p[i:]
		p = p[:i]
	}
	decoded, err := url.PathUnescape(p)
	if err != nil {
		return &Error{Specifier: raw, Reason: InvalidEncoding}
	}
	s.Path = decoded
	return nil
}

// splitScheme returns the scheme of a URL-like specifier. Single letter
// schemes are not accepted since they look like Windows drive letters.
func splitScheme(raw string) (scheme string, rest string, ok bool) {
	i := strings.IndexByte(raw, ':')
	if i < 2 {
		return "", "", false
	}
	for j := 0; j < i; j++ {
		c := raw[j]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return "", "", false
		}
	}
	return strings.ToLower(raw[:i]), raw[i+1:], true
}
