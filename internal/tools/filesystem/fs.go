// Package filesystem provides the file access tools exposed to the model:
// read_file, write_file, list_files and delete_file. All paths are relative
// to a fixed workspace root and resolution refuses to escape it.
package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem abstracts the os package so the tools can be tested against a
// fake.
type FileSystem interface {
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Remove(name string) error
	ReadDir(name string) ([]os.DirEntry, error)
	WalkDir(root string, fn fs.WalkDirFunc) error
}

// OSFileSystem is the default implementation over the os package.
type OSFileSystem struct{}

func NewOSFileSystem() *OSFileSystem { return &OSFileSystem{} }

func (*OSFileSystem) Stat(name string) (os.FileInfo, error)  { return os.Stat(name) }
func (*OSFileSystem) ReadFile(name string) ([]byte, error)   { return os.ReadFile(name) }
func (*OSFileSystem) Remove(name string) error               { return os.Remove(name) }
func (*OSFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}
func (*OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}
func (*OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
func (*OSFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

// resolve joins rel onto root and rejects paths that escape the workspace.
func resolve(root, rel string) (string, error) {
	full := filepath.Clean(filepath.Join(root, rel))
	if full != filepath.Clean(root) && !strings.HasPrefix(full, filepath.Clean(root)+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the workspace root", rel)
	}
	return full, nil
}
