// Package workspace provides directory tree capture and materialization used
// by the cache manager, the artifact store and the checkout step.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// File is a single captured file with its path relative to the capture root.
type File struct {
	Path string      `json:"path"`
	Mode fs.FileMode `json:"mode"`
	Data []byte      `json:"data"`
}

// Capture collects the current contents of the given paths, resolved relative
// to dir. A path may name a file or a directory; directories are walked
// recursively. Captured paths are kept relative to dir so they can be
// materialized into a different workspace later.
func Capture(dir string, paths []string) ([]*File, error) {
	var files []*File

	for _, path := range paths {
		absolute := filepath.Join(dir, path)

		info, err := os.Stat(absolute)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if !info.IsDir() {
			file, err := captureFile(dir, absolute, info.Mode())
			if err != nil {
				return nil, err
			}

			files = append(files, file)

			continue
		}

		err = filepath.WalkDir(absolute, func(entryPath string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if entry.IsDir() {
				return nil
			}

			info, err := entry.Info()
			if err != nil {
				return err
			}

			file, err := captureFile(dir, entryPath, info.Mode())
			if err != nil {
				return err
			}

			files = append(files, file)

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return files, nil
}

// Materialize writes captured files under dir, creating parent directories as
// needed. Existing files are overwritten.
func Materialize(dir string, files []*File) error {
	for _, file := range files {
		target := filepath.Join(dir, file.Path)

		err := os.MkdirAll(filepath.Dir(target), 0o755)
		if err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", file.Path, err)
		}

		err = os.WriteFile(target, file.Data, file.Mode.Perm())
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// CopyTree copies the subtree rooted at src into dst.
func CopyTree(src, dst string) error {
	files, err := Capture(src, []string{"."})
	if err != nil {
		return err
	}

	return Materialize(dst, files)
}

func captureFile(dir, path string, mode fs.FileMode) (*File, error) {
	relative, err := filepath.Rel(dir, path)
	if err != nil {
		return nil, fmt.Errorf("failed to relativize %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", relative, err)
	}

	return &File{Path: relative, Mode: mode, Data: data}, nil
}
