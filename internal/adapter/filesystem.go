package adapter

import (
	"os"
)

// FileSystem defines an interface for file system operations to enable mocking
type FileSystem interface {
	// WriteFile writes data to the named file, creating it if necessary
	WriteFile(name string, data []byte, perm os.FileMode) error

	// Exists reports whether the named file exists
	Exists(name string) bool

	// MkdirAll creates a directory along with any necessary parents
	MkdirAll(path string, perm os.FileMode) error

	// Remove removes the named file or directory
	Remove(name string) error
}

// RealFileSystem implements FileSystem using the standard os package
type RealFileSystem struct{}

// NewFileSystem creates a new real file system
func NewFileSystem() FileSystem {
	return &RealFileSystem{}
}

// WriteFile writes data to the named file, creating it if necessary
func (fs *RealFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm) //nolint:gosec,G306
}

// Exists reports whether the named file exists
func (fs *RealFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// MkdirAll creates a directory along with any necessary parents
func (fs *RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Remove removes the named file or directory
func (fs *RealFileSystem) Remove(name string) error {
	return os.Remove(name)
}
