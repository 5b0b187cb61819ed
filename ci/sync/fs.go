package sync

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sidkik/linksync/pkg/errors"
)

type file struct {
	path     string
	contents string
	mode     os.FileMode
	modTime  time.Time
}

func (f file) WithContents(contents string) file {
	f.contents = contents
	return f
}

func (f file) WithMode(mode os.FileMode) file {
	f.mode = mode
	return f
}

func (f file) WithModTime(modTime time.Time) file {
	f.modTime = modTime
	return f
}

func randomFile(path string) file {
	randomTime := time.Date(2019, 11, 10, rand.Intn(23), rand.Intn(59), rand.Intn(59), 0, time.UTC)
	return file{
		path:     path,
		contents: strconv.Itoa(rand.Int()),
		mode:     os.FileMode(0640 | rand.Intn(8)),
		modTime:  randomTime,
	}
}

// mockFs contains helper methods for creating temporary project and external
// directories for testing.
type mockFs struct {
	root     string
	project  string
	local    string
	external string
	homeDir  string
}

type fsOp func(mockFs, string) error

func newMockFs() (mockFs, error) {
	root, err := os.MkdirTemp("", "linksync-ci")
	if err != nil {
		return mockFs{}, errors.WithContext(err, "make root dir")
	}

	fs := mockFs{
		root:     root,
		project:  filepath.Join(root, "project"),
		local:    filepath.Join(root, "project", "assets"),
		external: filepath.Join(root, "external"),
		homeDir:  filepath.Join(root, "home"),
	}
	for _, dir := range []string{fs.local, fs.external, fs.homeDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return mockFs{}, errors.WithContext(err, "make directory")
		}
	}
	return fs, nil
}

func (fs mockFs) cleanup() error {
	return os.RemoveAll(fs.root)
}

func createFile(toCreate file) fsOp {
	return func(fs mockFs, root string) error {
		path := filepath.Join(root, toCreate.path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.WithContext(err, "make parent")
		}

		if err := os.WriteFile(path, []byte(toCreate.contents), 0644); err != nil {
			return errors.WithContext(err, "write")
		}

		if err := os.Chmod(path, toCreate.mode); err != nil {
			return errors.WithContext(err, "chmod")
		}

		if err := os.Chtimes(path, time.Now(), toCreate.modTime); err != nil {
			return errors.WithContext(err, "chtimes")
		}
		return nil
	}
}

func removeFile(path string) fsOp {
	return func(fs mockFs, root string) error {
		return os.Remove(filepath.Join(root, path))
	}
}

func shouldExist(exp file) fsOp {
	return func(fs mockFs, root string) error {
		path := filepath.Join(root, exp.path)
		fi, err := os.Stat(path)
		if err != nil {
			return errors.WithContext(err, "stat")
		}

		contents, err := os.ReadFile(path)
		if err != nil {
			return errors.WithContext(err, "read")
		}

		switch {
		case string(contents) != exp.contents:
			return fmt.Errorf("%s: expected contents %q, got %q", exp.path, exp.contents, contents)
		case fi.Mode().Perm() != exp.mode:
			return fmt.Errorf("%s: expected mode %s, got %s", exp.path, exp.mode, fi.Mode().Perm())
		case !fi.ModTime().Equal(exp.modTime):
			return fmt.Errorf("%s: expected mod time %s, got %s", exp.path, exp.modTime, fi.ModTime())
		}
		return nil
	}
}

func shouldNotExist(path string) fsOp {
	return func(fs mockFs, root string) error {
		_, err := os.Stat(filepath.Join(root, path))
		if err == nil {
			return fmt.Errorf("%s: expected to not exist", path)
		}
		if !os.IsNotExist(err) {
			return errors.WithContext(err, "stat")
		}
		return nil
	}
}
