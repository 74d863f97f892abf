package badgerfs

import (
	"io"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
)

const allModeFlags = os.O_RDONLY | os.O_WRONLY | os.O_RDWR

// file is an open file of the database. It holds no state
// besides its path, so it sees renames of other handles
// only through the path it was opened with.
type file struct {
	fs   *FileSystem
	name string
	flag int
}

var (
	_ backend.File              = (*file)(nil)
	_ backend.Appender          = (*file)(nil)
	_ backend.ConstrainedWriter = (*file)(nil)
)

// getData returns the content of a file, nil when empty.
func getData(txn *badger.Txn, op, name string) ([]byte, error) {
	item, err := txn.Get(keyData(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fserr.Backend(op, name, err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fserr.Backend(op, name, err)
	}
	return data, nil
}

func (f *file) Close() error { return nil }

func (f *file) Sync() error {
	if f.fs.db.Opts().InMemory {
		return nil
	}
	return errors.Wrap(f.fs.db.Sync(), "sync")
}

func (f *file) Stat() (backend.Stat, error) {
	return f.fs.Stat(f.name)
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	const op = "read"
	if f.flag&allModeFlags == os.O_WRONLY {
		return 0, fserr.Permission(op, f.name)
	}
	if off < 0 {
		return 0, fserr.New(fserr.KindInvalid, op, f.name)
	}
	var n int
	err := f.fs.db.View(func(txn *badger.Txn) error {
		if _, err := getEntry(txn, op, f.name); err != nil {
			return err
		}
		data, err := getData(txn, op, f.name)
		if err != nil {
			return err
		}
		n = copy(p, data[min(off, int64(len(data))):])
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// modify rewrites the content of the file in a single
// transaction. fn returns the new content and the count
// reported to the caller.
func (f *file) modify(op string, fn func(data []byte) ([]byte, int)) (int, error) {
	if f.flag&allModeFlags == os.O_RDONLY {
		return 0, fserr.Permission(op, f.name)
	}
	var n int
	err := f.fs.update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, op, f.name)
		if err != nil {
			return err
		}
		data, err := getData(txn, op, f.name)
		if err != nil {
			return err
		}
		data, n = fn(data)
		if int64(len(data)) != e.Size || n > 0 {
			if err := txn.Set(keyData(f.name), data); err != nil {
				return fserr.Backend(op, f.name, err)
			}
			e.Size = int64(len(data))
			return f.fs.touch(txn, f.name, e)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// resize grows data with zeros or cuts it to size.
func resize(data []byte, size int64) []byte {
	if size <= int64(len(data)) {
		return data[:size]
	}
	return append(data, make([]byte, int(size)-len(data))...)
}

func (f *file) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fserr.New(fserr.KindInvalid, "write", f.name)
	}
	if len(p) == 0 {
		return 0, nil
	}
	return f.modify("write", func(data []byte) ([]byte, int) {
		end := off + int64(len(p))
		if end > int64(len(data)) {
			data = resize(data, end)
		}
		return data, copy(data[off:], p)
	})
}

func (f *file) Append(p []byte) (int, error) {
	return f.modify("append", func(data []byte) ([]byte, int) {
		return append(data, p...), len(p)
	})
}

func (f *file) ConstrainedWriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fserr.New(fserr.KindInvalid, "write", f.name)
	}
	return f.modify("write", func(data []byte) ([]byte, int) {
		return data, copy(data[min(off, int64(len(data))):], p)
	})
}

func (f *file) Truncate(size int64) error {
	if size < 0 {
		return fserr.New(fserr.KindInvalid, "truncate", f.name)
	}
	_, err := f.modify("truncate", func(data []byte) ([]byte, int) {
		return resize(data, size), 0
	})
	return err
}
