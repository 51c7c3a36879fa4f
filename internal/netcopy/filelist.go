package netcopy

import (
	"fmt"
	"os"
	"path/filepath"
)

// fileEntry is one regular file a sender will transmit, with its path
// relative to the source root.
type fileEntry struct {
	relPath string
	absPath string
	size    int64
	mode    os.FileMode
}

// collectFiles walks srcPath, which may be a single regular file or a
// directory, and returns every regular file it contains with a path
// relative to srcPath's parent (single file) or srcPath itself (directory).
// Symlinks and other non-regular entries are skipped.
func collectFiles(srcPath string) ([]fileEntry, error) {
	info, err := os.Lstat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", srcPath, err)
	}

	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%s is not a regular file or directory", srcPath)
		}
		return []fileEntry{{
			relPath: filepath.Base(srcPath),
			absPath: srcPath,
			size:    info.Size(),
			mode:    info.Mode().Perm(),
		}}, nil
	}

	var files []fileEntry
	err = filepath.WalkDir(srcPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcPath, path)
		if err != nil {
			return err
		}
		files = append(files, fileEntry{
			relPath: rel,
			absPath: path,
			size:    fi.Size(),
			mode:    fi.Mode().Perm(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", srcPath, err)
	}
	return files, nil
}
