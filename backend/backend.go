// Package backend defines the storage capability set the
// dispatcher drives.
//
// Paths passed to a backend are always clean slash paths
// anchored at "/", as produced by pathkey. Backends report
// failures with the classified errors of fserr, the io/fs
// sentinels or syscall errnos; anything else is treated as
// an internal error by the dispatcher.
package backend

import (
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/godokan/go-dokan/fserr"
)

// Stat is the metadata of an entry.
type Stat struct {
	Name       string
	Size       int64
	Mode       fs.FileMode
	ModTime    time.Time
	AccessTime time.Time
	CreateTime time.Time
	Links      uint32
	Index      uint64
}

// IsDir reports whether the entry is a directory.
func (s Stat) IsDir() bool {
	return s.Mode.IsDir()
}

// File is an open backend file. Each File is exclusively
// owned by one handle of the dispatcher.
type File interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Stat() (Stat, error)
	Sync() error
	Close() error
}

// FileSystem is the capability set a backend must provide.
type FileSystem interface {
	// Open opens an existing file or creates one according
	// to the os.O_* flags. Opening a directory fails with an
	// IsDir error.
	Open(name string, flag int) (File, error)

	// Create creates or truncates a file, opened read-write.
	Create(name string) (File, error)

	Mkdir(name string) error
	Stat(name string) (Stat, error)

	// List returns the entries of a directory, in any order.
	List(name string) ([]Stat, error)

	// Remove removes a file. RemoveDir removes an empty
	// directory.
	Remove(name string) error
	RemoveDir(name string) error

	// Rename moves an entry, replacing a file at newName.
	Rename(oldName, newName string) error

	Exists(name string) (bool, error)
}

// SpaceReporter is implemented by backends that know their
// capacity.
type SpaceReporter interface {
	DiskSpace() (Space, error)
}

// Space is the capacity of a backend in bytes.
type Space struct {
	Total     uint64
	Free      uint64
	Available uint64
}

// Timer is implemented by backends that can store access
// and modification times. A zero time is left unchanged.
type Timer interface {
	Chtimes(name string, atime, mtime time.Time) error
}

// Chmoder is implemented by backends that can store the
// permission bits.
type Chmoder interface {
	Chmod(name string, mode fs.FileMode) error
}

// CaseInsensitive is implemented by backends that resolve
// names regardless of case.
type CaseInsensitive interface {
	CaseInsensitive() bool
}

// Appender is implemented by files that can append
// atomically at their current end.
type Appender interface {
	Append(p []byte) (int, error)
}

// ConstrainedWriter is implemented by files that can write
// without extending their size, as paging I/O requires.
type ConstrainedWriter interface {
	ConstrainedWriteAt(p []byte, off int64) (int, error)
}

// Shrinker is implemented by files that can truncate only
// when the new size is smaller.
type Shrinker interface {
	Shrink(size int64) error
}

// Split returns the parent directory and base name of a
// clean slash path.
func Split(name string) (dir, base string) {
	dir, base = path.Split(path.Clean("/" + name))
	return path.Clean(dir), base
}

// IsCaseInsensitive reports whether fs resolves names
// regardless of case.
func IsCaseInsensitive(fs FileSystem) bool {
	ci, ok := fs.(CaseInsensitive)
	return ok && ci.CaseInsensitive()
}

// StatExists implements Exists on top of Stat.
func StatExists(fs FileSystem, name string) (bool, error) {
	_, err := fs.Stat(name)
	if err == nil {
		return true, nil
	}
	if fserr.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Join returns the clean slash path of base inside dir.
func Join(dir, base string) string {
	return path.Join("/", dir, base)
}

// IsAncestor reports whether name lies strictly below dir.
func IsAncestor(dir, name string) bool {
	if dir == "/" {
		return name != "/"
	}
	return strings.HasPrefix(name, dir+"/")
}
