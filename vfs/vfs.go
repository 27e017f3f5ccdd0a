package vfs

import (
	"os"
)

// Kind describes what a path points to.
type Kind uint8

const (
	// KindFile is set if the path (or the target of a symlink) is a regular file.
	KindFile Kind = 1 << iota
	// KindDir is set if the path (or the target of a symlink) is a directory.
	KindDir
	// KindSymlink is set if the path itself is a symbolic link.
	KindSymlink
)

func (k Kind) IsFile() bool {
	return k&KindFile != 0
}

func (k Kind) IsDir() bool {
	return k&KindDir != 0
}

func (k Kind) IsSymlink() bool {
	return k&KindSymlink != 0
}

// Exists reports whether the path points to a file or a directory.
func (k Kind) Exists() bool {
	return k&(KindFile|KindDir) != 0
}

func (k Kind) String() string {
	s := ""
	switch {
	case k.IsFile():
		s = "file"
	case k.IsDir():
		s = "dir"
	default:
		s = "none"
	}
	if k.IsSymlink() {
		s += "+symlink"
	}
	return s
}

// FileSystem provides the functions the resolver needs to read files and
// retrieve metadata. Implementations must be safe for concurrent use.
type FileSystem interface {
	// ReadFile reads the given path as a string.
	ReadFile(path string) (string, error)
	// Kind returns the kind of the given path, zero if it does not exist.
	Kind(path string) Kind
	// ReadLink returns the destination of the symbolic link.
	ReadLink(path string) (string, error)
}

// OSFileSystem is backed by the operating system.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (OSFileSystem) Kind(path string) Kind {
	// most paths are not symlinks, a single lstat tells both
	fi, err := os.Lstat(path)
	if err != nil {
		return 0
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return kindOf(fi)
	}
	k := KindSymlink
	if fi, err = os.Stat(path); err == nil {
		k |= kindOf(fi)
	}
	return k
}

func (OSFileSystem) ReadLink(path string) (string, error) {
	return os.Readlink(path)
}

func kindOf(fi os.FileInfo) Kind {
	if fi.IsDir() {
		return KindDir
	}
	if fi.Mode().IsRegular() {
		return KindFile
	}
	return 0
}
