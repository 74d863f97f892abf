// Package memfs is a backend keeping the whole file system
// in memory. It is the reference backend of the bridge and
// is safe for concurrent use.
package memfs

import (
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
)

type memObject interface {
	size() int64
}

type memFile struct {
	dataMtx sync.Mutex
	// Must acquire dataMtx to modify.
	data []byte
}

func (m *memFile) size() int64 {
	m.dataMtx.Lock()
	defer m.dataMtx.Unlock()
	return int64(len(m.data))
}

var _ memObject = (*memFile)(nil)

type memDir struct {
	// Must acquire MemFS.mtx to modify.
	dentries map[string]*memItem
}

func (m *memDir) size() int64 {
	return 0
}

var _ memObject = (*memDir)(nil)

type memItem struct {
	metaMtx    sync.Mutex
	name       string
	mode       fs.FileMode
	index      uint64
	createTime time.Time
	accessTime time.Time
	modifyTime time.Time
	obj        memObject
}

func (m *MemFS) newMemItem(mode fs.FileMode, name string, obj memObject) *memItem {
	now := m.now()
	return &memItem{
		name:       name,
		mode:       mode,
		index:      m.nextIndex.Add(1),
		createTime: now,
		accessTime: now,
		modifyTime: now,
		obj:        obj,
	}
}

func (item *memItem) touch(now time.Time) {
	item.metaMtx.Lock()
	defer item.metaMtx.Unlock()
	item.accessTime = now
	item.modifyTime = now
}

func (item *memItem) access(now time.Time) {
	item.metaMtx.Lock()
	defer item.metaMtx.Unlock()
	item.accessTime = now
}

func (item *memItem) stat() backend.Stat {
	size := item.obj.size()
	item.metaMtx.Lock()
	defer item.metaMtx.Unlock()
	return backend.Stat{
		Name:       item.name,
		Size:       size,
		Mode:       item.mode,
		ModTime:    item.modifyTime,
		AccessTime: item.accessTime,
		CreateTime: item.createTime,
		Links:      1,
		Index:      item.index,
	}
}

type option struct {
	caseInsensitive bool
	capacity        uint64
	now             func() time.Time
}

// Option customizes a MemFS.
type Option func(*option)

// WithCaseInsensitive makes lookups ignore the case of
// names, while listings keep the case of creation.
func WithCaseInsensitive(value bool) Option {
	return func(o *option) {
		o.caseInsensitive = value
	}
}

// WithCapacity limits the total bytes stored. Writes that
// would exceed it fail with a NoSpace error. Zero means
// unlimited.
func WithCapacity(bytes uint64) Option {
	return func(o *option) {
		o.capacity = bytes
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *option) {
		o.now = now
	}
}

type MemFS struct {
	option
	mtx       sync.Mutex
	rootItem  *memItem
	rootDir   *memDir
	nextIndex atomic.Uint64
	used      atomic.Int64
}

func New(opts ...Option) *MemFS {
	result := &MemFS{
		option: option{
			now: time.Now,
		},
	}
	for _, opt := range opts {
		opt(&result.option)
	}
	result.rootDir = &memDir{
		dentries: make(map[string]*memItem),
	}
	result.rootItem = result.newMemItem(
		fs.FileMode(0o777)|fs.ModeDir, "/", result.rootDir,
	)
	return result
}

var (
	_ backend.FileSystem      = (*MemFS)(nil)
	_ backend.Timer           = (*MemFS)(nil)
	_ backend.Chmoder         = (*MemFS)(nil)
	_ backend.SpaceReporter   = (*MemFS)(nil)
	_ backend.CaseInsensitive = (*MemFS)(nil)
)

func (m *MemFS) CaseInsensitive() bool {
	return m.caseInsensitive
}

// entryKey is the key of a name in its directory.
func (m *MemFS) entryKey(name string) string {
	if m.caseInsensitive {
		return strings.ToUpper(name)
	}
	return name
}

func isRoot(name string) bool {
	return name == "" || name == "/"
}

func (m *MemFS) findDirLocked(op, name string) (*memItem, *memDir, error) {
	if isRoot(name) {
		return m.rootItem, m.rootDir, nil
	}
	parentPath, base := backend.Split(name)
	_, parentDir, err := m.findDirLocked(op, parentPath)
	if err != nil {
		return nil, nil, err
	}
	item, ok := parentDir.dentries[m.entryKey(base)]
	if !ok {
		return nil, nil, fserr.NotFound(op, name)
	}
	dir, isDir := item.obj.(*memDir)
	if !isDir {
		return nil, nil, fserr.NotDir(op, name)
	}
	return item, dir, nil
}

// findLocked resolves the parent directory and the entry
// itself, which is nil when it does not exist.
func (m *MemFS) findLocked(op, name string) (*memItem, *memDir, *memItem, error) {
	dirPath, base := backend.Split(name)
	dirItem, dir, err := m.findDirLocked(op, dirPath)
	if err != nil {
		return nil, nil, nil, err
	}
	return dirItem, dir, dir.dentries[m.entryKey(base)], nil
}

func (m *MemFS) Open(name string, flag int) (backend.File, error) {
	const op = "open"
	if isRoot(name) {
		return nil, fserr.IsDir(op, name)
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	dirItem, dir, item, err := m.findLocked(op, name)
	if err != nil {
		return nil, err
	}

	const createExclFlags = os.O_CREATE | os.O_EXCL
	if item != nil && flag&createExclFlags == createExclFlags {
		return nil, fserr.Exists(op, name)
	}
	if item == nil {
		if flag&os.O_CREATE == 0 {
			return nil, fserr.NotFound(op, name)
		}
		_, base := backend.Split(name)
		item = m.newMemItem(0o666, base, &memFile{})
		dir.dentries[m.entryKey(base)] = item
		dirItem.touch(m.now())
	}

	file, ok := item.obj.(*memFile)
	if !ok {
		return nil, fserr.IsDir(op, name)
	}
	result := &memOpenFile{
		fs:   m,
		item: item,
		flag: flag,
		file: file,
	}
	if flag&os.O_TRUNC != 0 {
		if err := result.Truncate(0); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (m *MemFS) Create(name string) (backend.File, error) {
	return m.Open(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
}

func (m *MemFS) Mkdir(name string) error {
	const op = "mkdir"
	if isRoot(name) {
		return fserr.Exists(op, name)
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	dirItem, dir, item, err := m.findLocked(op, name)
	if err != nil {
		return err
	}
	if item != nil {
		return fserr.Exists(op, name)
	}
	_, base := backend.Split(name)
	dir.dentries[m.entryKey(base)] = m.newMemItem(
		fs.FileMode(0o777)|fs.ModeDir, base,
		&memDir{dentries: make(map[string]*memItem)},
	)
	dirItem.touch(m.now())
	return nil
}

func (m *MemFS) Stat(name string) (backend.Stat, error) {
	if isRoot(name) {
		return m.rootItem.stat(), nil
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()

	_, _, item, err := m.findLocked("stat", name)
	if err != nil {
		return backend.Stat{}, err
	}
	if item == nil {
		return backend.Stat{}, fserr.NotFound("stat", name)
	}
	return item.stat(), nil
}

func (m *MemFS) Exists(name string) (bool, error) {
	return backend.StatExists(m, name)
}

func (m *MemFS) List(name string) ([]backend.Stat, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	item, dir, err := m.findDirLocked("list", name)
	if err != nil {
		return nil, err
	}
	result := make([]backend.Stat, 0, len(dir.dentries))
	for _, entry := range dir.dentries {
		result = append(result, entry.stat())
	}
	item.access(m.now())
	return result, nil
}

func (m *MemFS) remove(op, name string, wantDir bool) error {
	if isRoot(name) {
		// Cannot delete root directory.
		return fserr.Permission(op, name)
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	dirItem, dir, item, err := m.findLocked(op, name)
	if err != nil {
		return err
	}
	if item == nil {
		return fserr.NotFound(op, name)
	}

	switch obj := item.obj.(type) {
	case *memFile:
		if wantDir {
			return fserr.NotDir(op, name)
		}
		m.used.Add(-obj.size())
	case *memDir:
		if !wantDir {
			return fserr.IsDir(op, name)
		}
		if len(obj.dentries) > 0 {
			return fserr.NotEmpty(op, name)
		}
	}

	_, base := backend.Split(name)
	delete(dir.dentries, m.entryKey(base))
	dirItem.touch(m.now())
	return nil
}

func (m *MemFS) Remove(name string) error {
	return m.remove("remove", name, false)
}

func (m *MemFS) RemoveDir(name string) error {
	return m.remove("rmdir", name, true)
}

func (m *MemFS) Rename(src, tgt string) error {
	const op = "rename"
	if isRoot(src) || isRoot(tgt) {
		return fserr.Permission(op, src)
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	srcItem, srcDir, item, err := m.findLocked(op, src)
	if err != nil {
		return err
	}
	if item == nil {
		return fserr.NotFound(op, src)
	}
	tgtItem, tgtDir, existing, err := m.findLocked(op, tgt)
	if err != nil {
		return err
	}
	if (srcItem.mode.Perm()&0o200) == 0 || (tgtItem.mode.Perm()&0o200) == 0 {
		return fserr.Permission(op, src)
	}
	if existing == item {
		// Same entry, possibly a case-only rename.
		_, tgtBase := backend.Split(tgt)
		item.metaMtx.Lock()
		item.name = tgtBase
		item.metaMtx.Unlock()
		return nil
	}
	if dir, ok := item.obj.(*memDir); ok {
		if dir == tgtDir || m.containsLocked(dir, tgtDir) {
			return fserr.New(fserr.KindInvalid, op, tgt)
		}
	}
	if existing != nil {
		switch obj := existing.obj.(type) {
		case *memDir:
			return fserr.IsDir(op, tgt)
		case *memFile:
			if _, ok := item.obj.(*memDir); ok {
				return fserr.NotDir(op, tgt)
			}
			m.used.Add(-obj.size())
		}
	}

	// Now it's safe to modify the tree.
	_, srcBase := backend.Split(src)
	_, tgtBase := backend.Split(tgt)
	now := m.now()
	delete(srcDir.dentries, m.entryKey(srcBase))
	srcItem.touch(now)
	tgtDir.dentries[m.entryKey(tgtBase)] = item
	tgtItem.touch(now)
	item.metaMtx.Lock()
	item.name = tgtBase
	item.metaMtx.Unlock()
	return nil
}

// containsLocked reports whether target lies below dir.
func (m *MemFS) containsLocked(dir, target *memDir) bool {
	for _, entry := range dir.dentries {
		sub, ok := entry.obj.(*memDir)
		if !ok {
			continue
		}
		if sub == target || m.containsLocked(sub, target) {
			return true
		}
	}
	return false
}

func (m *MemFS) lookupItem(op, name string) (*memItem, error) {
	if isRoot(name) {
		return m.rootItem, nil
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	_, _, item, err := m.findLocked(op, name)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fserr.NotFound(op, name)
	}
	return item, nil
}

func (m *MemFS) Chtimes(name string, atime, mtime time.Time) error {
	item, err := m.lookupItem("chtimes", name)
	if err != nil {
		return err
	}
	item.metaMtx.Lock()
	defer item.metaMtx.Unlock()
	if !atime.IsZero() {
		item.accessTime = atime
	}
	if !mtime.IsZero() {
		item.modifyTime = mtime
	}
	return nil
}

func (m *MemFS) Chmod(name string, mode fs.FileMode) error {
	item, err := m.lookupItem("chmod", name)
	if err != nil {
		return err
	}
	item.metaMtx.Lock()
	defer item.metaMtx.Unlock()
	item.mode = item.mode.Type() | mode.Perm()
	return nil
}

// DiskSpace reports the configured capacity. A file system
// without capacity fails with an Unsupported error.
func (m *MemFS) DiskSpace() (backend.Space, error) {
	if m.capacity == 0 {
		return backend.Space{}, fserr.Unsupported("diskspace")
	}
	used := uint64(max(m.used.Load(), 0))
	free := uint64(0)
	if used < m.capacity {
		free = m.capacity - used
	}
	return backend.Space{
		Total:     m.capacity,
		Free:      free,
		Available: free,
	}, nil
}

// reserve accounts for growth of delta bytes.
func (m *MemFS) reserve(op, name string, delta int64) error {
	if delta <= 0 {
		m.used.Add(delta)
		return nil
	}
	if m.capacity == 0 {
		m.used.Add(delta)
		return nil
	}
	for {
		used := m.used.Load()
		if uint64(used+delta) > m.capacity {
			return fserr.NoSpace(op, name)
		}
		if m.used.CompareAndSwap(used, used+delta) {
			return nil
		}
	}
}

type memOpenFile struct {
	fs   *MemFS
	item *memItem
	flag int
	file *memFile
}

var (
	_ backend.File              = (*memOpenFile)(nil)
	_ backend.Appender          = (*memOpenFile)(nil)
	_ backend.ConstrainedWriter = (*memOpenFile)(nil)
	_ backend.Shrinker          = (*memOpenFile)(nil)
)

const (
	allModeFlags = os.O_RDONLY | os.O_WRONLY | os.O_RDWR
)

func (m *memOpenFile) name() string {
	m.item.metaMtx.Lock()
	defer m.item.metaMtx.Unlock()
	return m.item.name
}

func (m *memOpenFile) Close() error { return nil }

func (m *memOpenFile) Stat() (backend.Stat, error) {
	return m.item.stat(), nil
}

func (m *memOpenFile) Sync() error {
	return nil
}

func (m *memOpenFile) ReadAt(p []byte, off int64) (n int, err error) {
	if m.flag&allModeFlags == os.O_WRONLY {
		return 0, fserr.Permission("read", m.name())
	}
	if off < 0 {
		return 0, fserr.New(fserr.KindInvalid, "read", m.name())
	}

	defer m.item.access(m.fs.now())
	m.file.dataMtx.Lock()
	defer m.file.dataMtx.Unlock()
	sliceOff := min(off, int64(len(m.file.data)))
	numRead := copy(p, m.file.data[sliceOff:])
	if numRead < len(p) {
		return numRead, io.EOF
	}
	return numRead, nil
}

// resizeLocked grows or shrinks the data, zero filling.
func (m *memOpenFile) resizeLocked(op string, size int64) error {
	current := int64(len(m.file.data))
	if err := m.fs.reserve(op, m.name(), size-current); err != nil {
		return err
	}
	if size > current {
		m.file.data = append(m.file.data, make([]byte, int(size-current))...)
	} else {
		clear(m.file.data[size:])
		m.file.data = m.file.data[:size]
	}
	return nil
}

func (m *memOpenFile) writeWithDataLock(op string, f func() (int, error)) (int, error) {
	if m.flag&allModeFlags == os.O_RDONLY {
		return 0, fserr.Permission(op, m.name())
	}
	defer m.item.touch(m.fs.now())
	m.file.dataMtx.Lock()
	defer m.file.dataMtx.Unlock()
	return f()
}

func (m *memOpenFile) Truncate(size int64) error {
	if size < 0 {
		return fserr.New(fserr.KindInvalid, "truncate", m.name())
	}
	_, err := m.writeWithDataLock("truncate", func() (int, error) {
		return 0, m.resizeLocked("truncate", size)
	})
	return err
}

func (m *memOpenFile) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, fserr.New(fserr.KindInvalid, "write", m.name())
	}
	if len(p) == 0 {
		return 0, nil
	}
	return m.writeWithDataLock("write", func() (int, error) {
		end := off + int64(len(p))
		if end > int64(len(m.file.data)) {
			if err := m.resizeLocked("write", end); err != nil {
				return 0, err
			}
		}
		return copy(m.file.data[off:], p), nil
	})
}

func (m *memOpenFile) Append(p []byte) (int, error) {
	return m.writeWithDataLock("append", func() (int, error) {
		if err := m.fs.reserve("append", m.name(), int64(len(p))); err != nil {
			return 0, err
		}
		m.file.data = append(m.file.data, p...)
		return len(p), nil
	})
}

func (m *memOpenFile) ConstrainedWriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fserr.New(fserr.KindInvalid, "write", m.name())
	}
	return m.writeWithDataLock("write", func() (int, error) {
		sliceOff := min(off, int64(len(m.file.data)))
		return copy(m.file.data[sliceOff:], p), nil
	})
}

func (m *memOpenFile) Shrink(size int64) error {
	_, err := m.writeWithDataLock("truncate", func() (int, error) {
		if size < int64(len(m.file.data)) {
			return 0, m.resizeLocked("truncate", size)
		}
		return 0, nil
	})
	return err
}
