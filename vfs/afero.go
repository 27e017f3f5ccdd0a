package vfs

import (
	"io/fs"
	"os"
	"syscall"

	"github.com/spf13/afero"
)

// AferoFileSystem adapts an afero.Fs. Symlinks are only reported when the
// underlying filesystem implements afero.Lstater and afero.LinkReader.
type AferoFileSystem struct {
	Fs afero.Fs
}

// NewAferoFileSystem wraps the given afero filesystem.
func NewAferoFileSystem(fsys afero.Fs) *AferoFileSystem {
	return &AferoFileSystem{Fs: fsys}
}

func (a *AferoFileSystem) ReadFile(path string) (string, error) {
	data, err := afero.ReadFile(a.Fs, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (a *AferoFileSystem) Kind(path string) Kind {
	if lstater, ok := a.Fs.(afero.Lstater); ok {
		fi, _, err := lstater.LstatIfPossible(path)
		if err != nil {
			return 0
		}
		if fi.Mode()&os.ModeSymlink == 0 {
			return kindOf(fi)
		}
		k := KindSymlink
		if fi, err = a.Fs.Stat(path); err == nil {
			k |= kindOf(fi)
		}
		return k
	}
	fi, err := a.Fs.Stat(path)
	if err != nil {
		return 0
	}
	return kindOf(fi)
}

func (a *AferoFileSystem) ReadLink(path string) (string, error) {
	if reader, ok := a.Fs.(afero.LinkReader); ok {
		return reader.ReadlinkIfPossible(path)
	}
	return "", &fs.PathError{Op: "readlink", Path: path, Err: syscall.EINVAL}
}
