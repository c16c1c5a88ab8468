// Package scanner finds candidate source files under a directory.
package scanner

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

type FileInfo struct {
	Path string
	Size int64
}

// Scanner walks a tree and collects files with the wanted extensions.
// Hidden directories (".git", ".refine-cache") and excluded paths are
// skipped.
type Scanner struct {
	rootDir    string
	extensions []string
	excluded   map[string]bool
}

func New(rootDir string, extensions ...string) *Scanner {
	return &Scanner{
		rootDir:    rootDir,
		extensions: extensions,
		excluded:   make(map[string]bool),
	}
}

// Exclude skips the given files or directories, such as an output directory
// inside the scanned tree.
func (s *Scanner) Exclude(paths ...string) *Scanner {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			s.excluded[abs] = true
		}
	}
	return s
}

// Scan returns the matching files sorted by path.
func (s *Scanner) Scan() ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if s.isExcluded(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != s.rootDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.IsTarget(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{Path: path, Size: info.Size()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, err
}

// IsTarget reports whether path has one of the wanted extensions.
// An empty extension list accepts every file.
func (s *Scanner) IsTarget(path string) bool {
	if len(s.extensions) == 0 {
		return true
	}

	ext := filepath.Ext(path)
	for _, targetExt := range s.extensions {
		if ext == targetExt {
			return true
		}
	}
	return false
}

func (s *Scanner) isExcluded(path string) bool {
	if len(s.excluded) == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	return err == nil && s.excluded[abs]
}
