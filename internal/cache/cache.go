// Package cache is the dependency cache a job may restore before its steps and
// save after a successful run. A Store is handed to one job; nothing here is
// process-global.
package cache

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"stepci/pkg/utils"
)

// Spec declares what a job caches and what invalidates it
type Spec struct {
	KeyPrefix string   `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
	KeyFiles  []string `yaml:"key_files,omitempty" json:"key_files,omitempty" jsonschema:"description=files whose content keys the cache e.g. Cargo.lock"`
	Paths     []string `yaml:"paths" json:"paths" jsonschema:"description=directories or files relative to the working directory"`
}

func (s *Spec) Validate() error {
	if len(s.Paths) == 0 {
		return errors.New("cache needs at least one path")
	}
	for _, p := range append(append([]string{}, s.Paths...), s.KeyFiles...) {
		if filepath.IsAbs(p) || strings.HasPrefix(filepath.Clean(p), "..") {
			return errors.Errorf("cache path %q must stay inside the working directory", p)
		}
	}
	return nil
}

// Key derives the cache key for spec from the key files under root
func Key(spec Spec, root string) (string, error) {
	files := make([]string, 0, len(spec.KeyFiles))
	for _, f := range spec.KeyFiles {
		files = append(files, filepath.Join(root, f))
	}
	sum, err := utils.HashFiles(files)
	if err != nil {
		return "", errors.Wrap(err, "hash cache key files")
	}
	prefix := spec.KeyPrefix
	if prefix == "" {
		prefix = "deps"
	}
	return prefix + "-" + sum[:16], nil
}

// Store keeps cached paths between job runs
type Store interface {
	Restore(ctx context.Context, key, root string, paths []string) (hit bool, err error)
	Save(ctx context.Context, key, root string, paths []string) error
}

// DirStore keeps each key as a directory tree under BaseDir
type DirStore struct {
	BaseDir string
}

func NewDirStore(baseDir string) *DirStore {
	return &DirStore{BaseDir: baseDir}
}

func (s *DirStore) entry(key string) string {
	return filepath.Join(s.BaseDir, key)
}

func (s *DirStore) Restore(ctx context.Context, key, root string, paths []string) (bool, error) {
	src := s.entry(key)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, errors.Wrap(err, "stat cache entry")
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		from := filepath.Join(src, p)
		if _, err := os.Lstat(from); os.IsNotExist(err) {
			continue
		}
		if err := copyTree(from, filepath.Join(root, p)); err != nil {
			return false, errors.Wrapf(err, "restore %s", p)
		}
	}
	return true, nil
}

// Save writes into a temporary directory and renames it into place, so a
// reader never sees a half-written entry. An existing key is left alone.
func (s *DirStore) Save(ctx context.Context, key, root string, paths []string) error {
	dst := s.entry(key)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	if err := os.MkdirAll(s.BaseDir, 0755); err != nil {
		return errors.Wrap(err, "create cache dir")
	}
	tmp, err := os.MkdirTemp(s.BaseDir, ".tmp-"+key+"-")
	if err != nil {
		return errors.Wrap(err, "create cache staging dir")
	}
	defer os.RemoveAll(tmp)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		from := filepath.Join(root, p)
		if _, err := os.Lstat(from); os.IsNotExist(err) {
			continue
		}
		if err := copyTree(from, filepath.Join(tmp, p)); err != nil {
			return errors.Wrapf(err, "save %s", p)
		}
	}
	if err := os.Rename(tmp, dst); err != nil && !os.IsExist(err) {
		return errors.Wrap(err, "commit cache entry")
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
