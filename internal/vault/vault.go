// Package vault reads and writes the markdown documents under a root folder.
// Paths handed in and out are vault-relative and slash-separated.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

// ErrOutsideVault is returned for paths that escape the vault root.
var ErrOutsideVault = errors.New("path outside vault")

// FS is a vault on the local filesystem.
type FS struct {
	Root string
}

// New returns a vault rooted at root.
func New(root string) *FS {
	return &FS{Root: root}
}

func (v *FS) abs(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, path)
	}
	return filepath.Join(v.Root, clean), nil
}

// Read returns the content of a document.
func (v *FS) Read(path string) (string, error) {
	abs, err := v.abs(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces a document atomically.
func (v *FS) Write(path, content string) error {
	abs, err := v.abs(path)
	if err != nil {
		return err
	}
	return atomic.WriteFile(abs, strings.NewReader(content))
}

// Exists reports whether a document exists.
func (v *FS) Exists(path string) bool {
	abs, err := v.abs(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}

// Rel converts an absolute or working-directory path into a vault path.
func (v *FS) Rel(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs(v.Root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, path)
	}
	return filepath.ToSlash(rel), nil
}

// List returns every markdown document, skipping hidden directories.
func (v *FS) List() ([]string, error) {
	times, err := v.ModTimes()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(times))
	for p := range times {
		paths = append(paths, p)
	}
	return paths, nil
}

// ModTimes returns the modification time of every markdown document.
func (v *FS) ModTimes() (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	err := filepath.WalkDir(v.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != v.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(v.Root, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = info.ModTime()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault: %w", err)
	}
	return out, nil
}
