package resolver

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"

	"github.com/esm-dev/esm-resolver/specifier"
)

// Error is implemented by every error returned from Resolve. The set of
// implementations is closed.
type Error interface {
	error
	resolverError()
}

// UnknownSchemeError is returned for a URL specifier with an unknown scheme.
type UnknownSchemeError struct {
	Scheme string
}

// FileNotFoundError is returned when a relative or absolute specifier does not exist.
type FileNotFoundError struct {
	Relative string
	From     string
}

// ModuleNotFoundError is returned when no node_modules directory contains the package.
type ModuleNotFoundError struct {
	Module string
}

// ModuleEntryNotFoundError is returned when a package.json entry field points to
// a non-existent file.
type ModuleEntryNotFoundError struct {
	Module      string
	EntryPath   string
	PackagePath string
	Field       string
}

// ModuleSubpathNotFoundError is returned when a subpath does not exist in a package.
type ModuleSubpathNotFoundError struct {
	Module      string
	Path        string
	PackagePath string
}

// JSONError is returned for a malformed package.json or tsconfig.json.
type JSONError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

// IOError wraps an I/O failure. Two IOErrors are equal under errors.Is when
// they have the same IOKind, whatever their messages.
type IOError struct {
	Err error
}

// PackageJSONReason tells why a package.json exports/imports lookup failed.
type PackageJSONReason uint8

const (
	// PackagePathNotExported means the "exports" field does not expose the subpath.
	PackagePathNotExported PackageJSONReason = iota + 1
	// ImportNotDefined means the "imports" field has no entry for the specifier.
	ImportNotDefined
	// InvalidPackageTarget means a target does not start with "./" or escapes the package.
	InvalidPackageTarget
	// InvalidPackageConfig means "exports" mixes subpath keys and condition keys.
	InvalidPackageConfig
	// InvalidModuleSpecifier means the pattern match contains invalid segments.
	InvalidModuleSpecifier
)

func (r PackageJSONReason) String() string {
	switch r {
	case PackagePathNotExported:
		return "package path not exported"
	case ImportNotDefined:
		return "import not defined"
	case InvalidPackageTarget:
		return "invalid package target"
	case InvalidPackageConfig:
		return "invalid package config"
	case InvalidModuleSpecifier:
		return "invalid module specifier"
	}
	return "unknown"
}

// PackageJSONError is returned when the "exports" or "imports" field of a
// package.json rejects the requested path.
type PackageJSONError struct {
	Module string
	Path   string
	Reason PackageJSONReason
}

// PackageJSONNotFoundError is returned when a package.json is required but
// none exists above From.
type PackageJSONNotFoundError struct {
	From string
}

// InvalidSpecifierError wraps a specifier syntax error.
type InvalidSpecifierError struct {
	Err *specifier.Error
}

// TsConfigExtendsNotFoundError is returned when the "extends" field of a
// tsconfig.json cannot be resolved. Err is the original resolution error.
type TsConfigExtendsNotFoundError struct {
	TsConfig string
	Err      error
}

// TsConfigExtendsCircularError is returned when tsconfig.json files extend
// each other in a cycle. Chain lists the files from the first to the repeated one.
type TsConfigExtendsCircularError struct {
	TsConfig string
	Chain    []string
}

func (*UnknownSchemeError) resolverError()           {}
func (*FileNotFoundError) resolverError()            {}
func (*ModuleNotFoundError) resolverError()          {}
func (*ModuleEntryNotFoundError) resolverError()     {}
func (*ModuleSubpathNotFoundError) resolverError()   {}
func (*JSONError) resolverError()                    {}
func (*IOError) resolverError()                      {}
func (*PackageJSONError) resolverError()             {}
func (*PackageJSONNotFoundError) resolverError()     {}
func (*InvalidSpecifierError) resolverError()        {}
func (*TsConfigExtendsNotFoundError) resolverError() {}
func (*TsConfigExtendsCircularError) resolverError() {}

func (e *UnknownSchemeError) Error() string {
	return fmt.Sprintf("unknown url scheme %q", e.Scheme)
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("cannot find %q from %q", e.Relative, e.From)
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("cannot find module %q", e.Module)
}

func (e *ModuleEntryNotFoundError) Error() string {
	return fmt.Sprintf("cannot find entry %q of module %q (field %q in %s)", e.EntryPath, e.Module, e.Field, e.PackagePath)
}

func (e *ModuleSubpathNotFoundError) Error() string {
	return fmt.Sprintf("cannot find %q in module %q (%s)", e.Path, e.Module, e.PackagePath)
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
}

func (e *IOError) Error() string {
	return "io error: " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is compares IOErrors by kind only.
func (e *IOError) Is(target error) bool {
	t, ok := target.(*IOError)
	return ok && e.Kind() == t.Kind()
}

// IOKind is the class of an I/O failure.
type IOKind uint8

const (
	IOOther IOKind = iota
	IONotFound
	IOPermissionDenied
	IOIsDirectory
	IOTooManyLinks
)

// Kind classifies the wrapped error.
func (e *IOError) Kind() IOKind {
	switch {
	case errors.Is(e.Err, fs.ErrNotExist):
		return IONotFound
	case errors.Is(e.Err, fs.ErrPermission):
		return IOPermissionDenied
	case errors.Is(e.Err, syscall.EISDIR):
		return IOIsDirectory
	case errors.Is(e.Err, syscall.ELOOP):
		return IOTooManyLinks
	}
	return IOOther
}

func (e *PackageJSONError) Error() string {
	return fmt.Sprintf("%s: %q in module %q", e.Reason, e.Path, e.Module)
}

func (e *PackageJSONNotFoundError) Error() string {
	return fmt.Sprintf("cannot find package.json above %q", e.From)
}

func (e *InvalidSpecifierError) Error() string {
	return e.Err.Error()
}

func (e *InvalidSpecifierError) Unwrap() error {
	return e.Err
}

func (e *TsConfigExtendsNotFoundError) Error() string {
	return fmt.Sprintf("cannot resolve \"extends\" of %s: %v", e.TsConfig, e.Err)
}

func (e *TsConfigExtendsNotFoundError) Unwrap() error {
	return e.Err
}

func (e *TsConfigExtendsCircularError) Error() string {
	return fmt.Sprintf("circular \"extends\" in %s: %s", e.TsConfig, strings.Join(e.Chain, " -> "))
}

// isNotFound reports whether err is an I/O not-found failure.
func isNotFound(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr) && ioErr.Kind() == IONotFound
}

// fromSpecifierError converts errors of the specifier parser.
func fromSpecifierError(err error) error {
	var schemeErr *specifier.UnknownSchemeError
	if errors.As(err, &schemeErr) {
		return &UnknownSchemeError{Scheme: schemeErr.Scheme}
	}
	var specErr *specifier.Error
	if errors.As(err, &specErr) {
		return &InvalidSpecifierError{Err: specErr}
	}
	return err
}
