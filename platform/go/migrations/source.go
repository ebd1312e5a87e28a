package migrations

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// SourceOptions selects where migration files are read from.
// With no Paths the embedded central migrations are used.
type SourceOptions struct {
	Paths []string
	// RealPath treats Paths as given instead of resolving relative values against BasePath.
	RealPath bool
	BasePath string
}

// ResolvePaths returns the directories named by opts.
func (opts SourceOptions) ResolvePaths() []string {
	resolved := make([]string, 0, len(opts.Paths))
	for _, p := range opts.Paths {
		if p == "" {
			continue
		}
		if !opts.RealPath && !filepath.IsAbs(p) {
			p = filepath.Join(opts.BasePath, p)
		}
		resolved = append(resolved, filepath.Clean(p))
	}
	return resolved
}

func dirsFS(dirs []string) (fs.FS, error) {
	u := make(unionFS, 0, len(dirs))
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("migration path %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("migration path %s is not a directory", dir)
		}
		u = append(u, os.DirFS(dir))
	}
	return u, nil
}

// unionFS overlays several directories; the first one holding a name wins.
type unionFS []fs.FS

func (u unionFS) Open(name string) (fs.File, error) {
	for _, fsys := range u {
		f, err := fsys.Open(name)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

func (u unionFS) ReadDir(name string) ([]fs.DirEntry, error) {
	seen := make(map[string]struct{})
	var (
		entries []fs.DirEntry
		found   bool
	)
	for _, fsys := range u {
		list, err := fs.ReadDir(fsys, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		found = true
		for _, e := range list {
			if _, dup := seen[e.Name()]; dup {
				continue
			}
			seen[e.Name()] = struct{}{}
			entries = append(entries, e)
		}
	}
	if !found {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}
