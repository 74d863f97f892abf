// Package osfs passes a directory of the host through as a
// backend.
//
// Every access goes through an os.Root, so that neither
// ".." nor symbolic links lead outside the directory.
package osfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
)

type option struct {
	caseInsensitive bool
	filePerm        fs.FileMode
	dirPerm         fs.FileMode
}

// Option configures a FileSystem.
type Option func(*option)

// WithCaseInsensitive declares whether the host directory
// resolves names regardless of case. It defaults to true on
// Windows and macOS.
func WithCaseInsensitive(value bool) Option {
	return func(o *option) {
		o.caseInsensitive = value
	}
}

// WithPerm sets the permissions of created files and
// directories, before the umask.
func WithPerm(file, dir fs.FileMode) Option {
	return func(o *option) {
		o.filePerm = file.Perm()
		o.dirPerm = dir.Perm()
	}
}

// FileSystem is a backend.FileSystem over a host directory.
type FileSystem struct {
	dir             string
	root            *os.Root
	caseInsensitive bool
	filePerm        fs.FileMode
	dirPerm         fs.FileMode
}

var (
	_ backend.FileSystem      = (*FileSystem)(nil)
	_ backend.SpaceReporter   = (*FileSystem)(nil)
	_ backend.Timer           = (*FileSystem)(nil)
	_ backend.Chmoder         = (*FileSystem)(nil)
	_ backend.CaseInsensitive = (*FileSystem)(nil)
)

// New opens dir, which must be an existing directory.
func New(dir string, opts ...Option) (*FileSystem, error) {
	option := &option{
		caseInsensitive: runtime.GOOS == "windows" || runtime.GOOS == "darwin",
		filePerm:        0o666,
		dirPerm:         0o777,
	}
	for _, opt := range opts {
		opt(option)
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %q", dir)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open root %q", dir)
	}
	return &FileSystem{
		dir:             dir,
		root:            root,
		caseInsensitive: option.caseInsensitive,
		filePerm:        option.filePerm,
		dirPerm:         option.dirPerm,
	}, nil
}

// Dir returns the absolute host path of the directory.
func (f *FileSystem) Dir() string {
	return f.dir
}

// Close releases the directory.
func (f *FileSystem) Close() error {
	return f.root.Close()
}

func (f *FileSystem) CaseInsensitive() bool {
	return f.caseInsensitive
}

// local converts a backend path into a path relative to
// the root.
func local(name string) string {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "."
	}
	return filepath.FromSlash(name)
}

func isRoot(name string) bool {
	return local(name) == "."
}

func (f *FileSystem) Open(name string, flag int) (backend.File, error) {
	const op = "open"
	if isRoot(name) {
		return nil, fserr.IsDir(op, name)
	}
	file, err := f.root.OpenFile(local(name), flag, f.filePerm)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fserr.IsDir(op, name)
	}
	return &osFile{File: file}, nil
}

func (f *FileSystem) Create(name string) (backend.File, error) {
	return f.Open(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
}

func (f *FileSystem) Mkdir(name string) error {
	return f.root.Mkdir(local(name), f.dirPerm)
}

func (f *FileSystem) Stat(name string) (backend.Stat, error) {
	info, err := f.root.Stat(local(name))
	if err != nil {
		return backend.Stat{}, err
	}
	stat := toStat(info)
	if isRoot(name) {
		stat.Name = "/"
	}
	return stat, nil
}

func (f *FileSystem) Exists(name string) (bool, error) {
	return backend.StatExists(f, name)
}

func (f *FileSystem) List(name string) ([]backend.Stat, error) {
	const op = "list"
	dir, err := f.root.Open(local(name))
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	info, err := dir.Stat()
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fserr.NotDir(op, name)
	}
	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	result := make([]backend.Stat, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// Removed while listing.
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, toStat(info))
	}
	return result, nil
}

func (f *FileSystem) remove(op, name string, wantDir bool) error {
	if isRoot(name) {
		return fserr.Permission(op, name)
	}
	info, err := f.root.Lstat(local(name))
	if err != nil {
		return err
	}
	switch {
	case wantDir && !info.IsDir():
		return fserr.NotDir(op, name)
	case !wantDir && info.IsDir():
		return fserr.IsDir(op, name)
	}
	return f.root.Remove(local(name))
}

func (f *FileSystem) Remove(name string) error {
	return f.remove("remove", name, false)
}

func (f *FileSystem) RemoveDir(name string) error {
	return f.remove("rmdir", name, true)
}

func (f *FileSystem) Rename(oldName, newName string) error {
	if isRoot(oldName) || isRoot(newName) {
		return fserr.Permission("rename", oldName)
	}
	return f.root.Rename(local(oldName), local(newName))
}

func (f *FileSystem) Chtimes(name string, atime, mtime time.Time) error {
	return f.root.Chtimes(local(name), atime, mtime)
}

func (f *FileSystem) Chmod(name string, mode fs.FileMode) error {
	return f.root.Chmod(local(name), mode.Perm())
}

func (f *FileSystem) DiskSpace() (backend.Space, error) {
	return diskSpace(f.dir)
}

// osFile is an open host file.
type osFile struct {
	*os.File
}

var _ backend.File = (*osFile)(nil)

func (f *osFile) Stat() (backend.Stat, error) {
	info, err := f.File.Stat()
	if err != nil {
		return backend.Stat{}, err
	}
	return toStat(info), nil
}

// toStat converts the host metadata, adding the times and
// identity the platform exposes.
func toStat(info fs.FileInfo) backend.Stat {
	stat := backend.Stat{
		Name:    info.Name(),
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}
	if info.IsDir() {
		stat.Size = 0
	}
	platformStat(info, &stat)
	return stat
}
