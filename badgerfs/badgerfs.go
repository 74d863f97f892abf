// Package badgerfs is a persistent backend storing entries
// in a badger key-value database.
//
// Every entry lives under its full path, so renaming a
// directory rewrites the keys of its whole subtree in one
// transaction. File content is stored as a single value and
// rewritten on each write, which suits small files.
package badgerfs

import (
	"encoding/json"
	"io/fs"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/pkg/errors"

	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
	"github.com/godokan/go-dokan/log"
)

// entry is the stored metadata of a file or directory.
type entry struct {
	Mode       fs.FileMode `json:"mode"`
	Size       int64       `json:"size"`
	ModTime    time.Time   `json:"mtime"`
	AccessTime time.Time   `json:"atime"`
	CreateTime time.Time   `json:"ctime"`
	Index      uint64      `json:"index"`
}

func (e *entry) stat(name string) backend.Stat {
	_, base := backend.Split(name)
	if name == "/" {
		base = "/"
	}
	return backend.Stat{
		Name:       base,
		Size:       e.Size,
		Mode:       e.Mode,
		ModTime:    e.ModTime,
		AccessTime: e.AccessTime,
		CreateTime: e.CreateTime,
		Links:      1,
		Index:      e.Index,
	}
}

// maxConflictRetries bounds the retries of a transaction
// losing a write conflict to a concurrent one.
const maxConflictRetries = 8

type option struct {
	inMemory   bool
	syncWrites bool
	capacity   uint64
	log        log.Log
	now        func() time.Time
}

// Option configures a FileSystem.
type Option func(*option)

// WithInMemory keeps the database in memory. The directory
// passed to Open is ignored.
func WithInMemory() Option {
	return func(o *option) {
		o.inMemory = true
	}
}

// WithSyncWrites syncs every committed transaction to disk.
func WithSyncWrites(value bool) Option {
	return func(o *option) {
		o.syncWrites = value
	}
}

// WithCapacity sets the capacity DiskSpace reports. Without
// it DiskSpace is unsupported.
func WithCapacity(bytes uint64) Option {
	return func(o *option) {
		o.capacity = bytes
	}
}

// WithLog forwards the messages of the database to l.
func WithLog(l log.Log) Option {
	return func(o *option) {
		if l == nil {
			l = log.NoLog{}
		}
		o.log = l
	}
}

// WithClock overrides the time source of the timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *option) {
		o.now = now
	}
}

// FileSystem is a backend.FileSystem over a badger database.
type FileSystem struct {
	db       *badger.DB
	seq      *badger.Sequence
	capacity uint64
	now      func() time.Time
}

var (
	_ backend.FileSystem    = (*FileSystem)(nil)
	_ backend.SpaceReporter = (*FileSystem)(nil)
	_ backend.Timer         = (*FileSystem)(nil)
	_ backend.Chmoder       = (*FileSystem)(nil)
)

// Open opens or creates the database in dir.
func Open(dir string, opts ...Option) (*FileSystem, error) {
	option := &option{
		log: log.NoLog{},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(option)
	}
	badgerOpts := badger.DefaultOptions(dir)
	if option.inMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	badgerOpts = badgerOpts.
		WithSyncWrites(option.syncWrites).
		WithCompression(options.None).
		WithLogger(logger{option.log})
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "open badger database at %q", dir)
	}
	seq, err := db.GetSequence([]byte(keyIndex), 64)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "open index sequence")
	}
	result := &FileSystem{
		db:       db,
		seq:      seq,
		capacity: option.capacity,
		now:      option.now,
	}
	if err := result.init(); err != nil {
		_ = seq.Release()
		_ = db.Close()
		return nil, err
	}
	return result, nil
}

// init creates the root directory of a fresh database.
func (f *FileSystem) init() error {
	return f.update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyMeta("/"))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return errors.Wrap(err, "init")
		}
		root, err := f.newEntry(fs.ModeDir | 0o777)
		if err != nil {
			return err
		}
		return putEntry(txn, "/", root)
	})
}

// Close releases the database.
func (f *FileSystem) Close() error {
	if err := f.seq.Release(); err != nil {
		_ = f.db.Close()
		return errors.Wrap(err, "release index sequence")
	}
	return errors.Wrap(f.db.Close(), "close badger database")
}

// update runs fn in a read-write transaction, retrying when
// a concurrent transaction wins a conflict.
func (f *FileSystem) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = f.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (f *FileSystem) newEntry(mode fs.FileMode) (*entry, error) {
	index, err := f.seq.Next()
	if err != nil {
		return nil, errors.Wrap(err, "next index")
	}
	now := f.now()
	return &entry{
		Mode:       mode,
		ModTime:    now,
		AccessTime: now,
		CreateTime: now,
		Index:      index + 1,
	}, nil
}

func getEntry(txn *badger.Txn, op, name string) (*entry, error) {
	item, err := txn.Get(keyMeta(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fserr.NotFound(op, name)
	}
	if err != nil {
		return nil, fserr.Backend(op, name, err)
	}
	var result entry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &result)
	})
	if err != nil {
		return nil, fserr.Backend(op, name, err)
	}
	return &result, nil
}

func putEntry(txn *badger.Txn, name string, e *entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "encode %q", name)
	}
	return txn.Set(keyMeta(name), data)
}

// getDir fetches an entry that must be a directory.
func getDir(txn *badger.Txn, op, name string) (*entry, error) {
	dir, err := getEntry(txn, op, name)
	if err != nil {
		return nil, err
	}
	if !dir.Mode.IsDir() {
		return nil, fserr.NotDir(op, name)
	}
	return dir, nil
}

func (f *FileSystem) touch(txn *badger.Txn, name string, e *entry) error {
	now := f.now()
	e.ModTime = now
	e.AccessTime = now
	return putEntry(txn, name, e)
}

// link adds a new entry under its parent directory.
func (f *FileSystem) link(txn *badger.Txn, op, name string, mode fs.FileMode) (*entry, error) {
	dirName, base := backend.Split(name)
	dir, err := getDir(txn, op, dirName)
	if err != nil {
		return nil, err
	}
	created, err := f.newEntry(mode)
	if err != nil {
		return nil, err
	}
	if err := putEntry(txn, name, created); err != nil {
		return nil, err
	}
	if err := txn.Set(keyChild(dirName, base), nil); err != nil {
		return nil, err
	}
	return created, f.touch(txn, dirName, dir)
}

// unlink drops an entry and its content from its parent.
func (f *FileSystem) unlink(txn *badger.Txn, op, name string) error {
	dirName, base := backend.Split(name)
	for _, key := range [][]byte{
		keyMeta(name), keyData(name), keyChild(dirName, base),
	} {
		if err := txn.Delete(key); err != nil {
			return fserr.Backend(op, name, err)
		}
	}
	dir, err := getEntry(txn, op, dirName)
	if err != nil {
		return err
	}
	return f.touch(txn, dirName, dir)
}

func (f *FileSystem) Open(name string, flag int) (backend.File, error) {
	const op = "open"
	if name == "/" {
		return nil, fserr.IsDir(op, name)
	}
	const createExclFlags = os.O_CREATE | os.O_EXCL
	err := f.update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, op, name)
		switch {
		case fserr.IsNotFound(err) && flag&os.O_CREATE != 0:
			_, err = f.link(txn, op, name, 0o666)
			return err
		case err != nil:
			return err
		case flag&createExclFlags == createExclFlags:
			return fserr.Exists(op, name)
		case e.Mode.IsDir():
			return fserr.IsDir(op, name)
		case flag&os.O_TRUNC != 0 && e.Size > 0:
			if err := txn.Delete(keyData(name)); err != nil {
				return err
			}
			e.Size = 0
			return f.touch(txn, name, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &file{fs: f, name: name, flag: flag}, nil
}

func (f *FileSystem) Create(name string) (backend.File, error) {
	return f.Open(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
}

func (f *FileSystem) Mkdir(name string) error {
	const op = "mkdir"
	return f.update(func(txn *badger.Txn) error {
		_, err := getEntry(txn, op, name)
		if err == nil {
			return fserr.Exists(op, name)
		}
		if !fserr.IsNotFound(err) {
			return err
		}
		_, err = f.link(txn, op, name, fs.ModeDir|0o777)
		return err
	})
}

func (f *FileSystem) Stat(name string) (backend.Stat, error) {
	var result backend.Stat
	err := f.db.View(func(txn *badger.Txn) error {
		e, err := getEntry(txn, "stat", name)
		if err != nil {
			return err
		}
		result = e.stat(name)
		return nil
	})
	return result, err
}

func (f *FileSystem) Exists(name string) (bool, error) {
	return backend.StatExists(f, name)
}

func (f *FileSystem) List(name string) ([]backend.Stat, error) {
	const op = "list"
	var result []backend.Stat
	err := f.db.View(func(txn *badger.Txn) error {
		if _, err := getDir(txn, op, name); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyChildPrefix(name)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			base := string(it.Item().Key()[len(opts.Prefix):])
			child := backend.Join(name, base)
			e, err := getEntry(txn, op, child)
			if err != nil {
				return err
			}
			result = append(result, e.stat(child))
		}
		return nil
	})
	return result, err
}

func (f *FileSystem) remove(op, name string, wantDir bool) error {
	if name == "/" {
		return fserr.Permission(op, name)
	}
	return f.update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, op, name)
		if err != nil {
			return err
		}
		if !wantDir && e.Mode.IsDir() {
			return fserr.IsDir(op, name)
		}
		if wantDir {
			if !e.Mode.IsDir() {
				return fserr.NotDir(op, name)
			}
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = keyChildPrefix(name)
			it := txn.NewIterator(opts)
			it.Rewind()
			nonEmpty := it.Valid()
			it.Close()
			if nonEmpty {
				return fserr.NotEmpty(op, name)
			}
		}
		return f.unlink(txn, op, name)
	})
}

func (f *FileSystem) Remove(name string) error {
	return f.remove("remove", name, false)
}

func (f *FileSystem) RemoveDir(name string) error {
	return f.remove("rmdir", name, true)
}

// moveKeys renames every key under prefix from to prefix to.
func moveKeys(txn *badger.Txn, from, to string) error {
	type pair struct{ key, value []byte }
	var moved []pair
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(from)
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return err
		}
		moved = append(moved, pair{key: item.KeyCopy(nil), value: value})
	}
	it.Close()
	for _, p := range moved {
		if err := txn.Delete(p.key); err != nil {
			return err
		}
		key := append([]byte(to), p.key[len(from):]...)
		if err := txn.Set(key, p.value); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileSystem) Rename(src, tgt string) error {
	const op = "rename"
	if src == "/" || tgt == "/" {
		return fserr.Permission(op, src)
	}
	if src == tgt {
		return nil
	}
	return f.update(func(txn *badger.Txn) error {
		item, err := getEntry(txn, op, src)
		if err != nil {
			return err
		}
		tgtDir, tgtBase := backend.Split(tgt)
		if _, err := getDir(txn, op, tgtDir); err != nil {
			return err
		}
		if item.Mode.IsDir() && backend.IsAncestor(src, tgt) {
			return fserr.New(fserr.KindInvalid, op, tgt)
		}
		existing, err := getEntry(txn, op, tgt)
		switch {
		case err == nil && existing.Mode.IsDir():
			return fserr.IsDir(op, tgt)
		case err == nil && item.Mode.IsDir():
			return fserr.NotDir(op, tgt)
		case err == nil:
			if err := f.unlink(txn, op, tgt); err != nil {
				return err
			}
		case !fserr.IsNotFound(err):
			return err
		}

		var data []byte
		if !item.Mode.IsDir() {
			if data, err = getData(txn, op, src); err != nil {
				return err
			}
		}
		srcDir, srcBase := backend.Split(src)
		for _, key := range [][]byte{keyMeta(src), keyData(src), keyChild(srcDir, srcBase)} {
			if err := txn.Delete(key); err != nil {
				return fserr.Backend(op, src, err)
			}
		}
		if err := putEntry(txn, tgt, item); err != nil {
			return err
		}
		if err := txn.Set(keyChild(tgtDir, tgtBase), nil); err != nil {
			return err
		}
		if item.Mode.IsDir() {
			for _, prefix := range []string{prefixMeta, prefixData, prefixChild} {
				err := moveKeys(txn, subtree(prefix, src), subtree(prefix, tgt))
				if err != nil {
					return fserr.Backend(op, src, err)
				}
			}
			err := moveKeys(txn, string(keyChildPrefix(src)), string(keyChildPrefix(tgt)))
			if err != nil {
				return fserr.Backend(op, src, err)
			}
		} else if len(data) > 0 {
			if err := txn.Set(keyData(tgt), data); err != nil {
				return fserr.Backend(op, tgt, err)
			}
		}
		for _, dirName := range []string{srcDir, tgtDir} {
			dir, err := getEntry(txn, op, dirName)
			if err != nil {
				return err
			}
			if err := f.touch(txn, dirName, dir); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *FileSystem) Chtimes(name string, atime, mtime time.Time) error {
	const op = "chtimes"
	return f.update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, op, name)
		if err != nil {
			return err
		}
		if !atime.IsZero() {
			e.AccessTime = atime
		}
		if !mtime.IsZero() {
			e.ModTime = mtime
		}
		return putEntry(txn, name, e)
	})
}

func (f *FileSystem) Chmod(name string, mode fs.FileMode) error {
	const op = "chmod"
	return f.update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, op, name)
		if err != nil {
			return err
		}
		e.Mode = e.Mode.Type() | mode.Perm()
		return putEntry(txn, name, e)
	})
}

// DiskSpace reports the configured capacity against the
// size of the database files.
func (f *FileSystem) DiskSpace() (backend.Space, error) {
	if f.capacity == 0 {
		return backend.Space{}, fserr.Unsupported("diskspace")
	}
	lsm, vlog := f.db.Size()
	used := uint64(max(lsm+vlog, 0))
	free := uint64(0)
	if used < f.capacity {
		free = f.capacity - used
	}
	return backend.Space{
		Total:     f.capacity,
		Free:      free,
		Available: free,
	}, nil
}
