package dokanfs

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/metrics"
	"github.com/godokan/go-dokan/pathtree"
)

// fileMimicWrite imitates the optional write capabilities
// of a backend file with Stat and WriteAt.
type fileMimicWrite struct {
	backend.File
}

func (f fileMimicWrite) Append(b []byte) (int, error) {
	// BUG: two concurrent appends through different
	// handles may overlap, since the size is fetched
	// before writing.
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return f.WriteAt(b, stat.Size)
}

func (f fileMimicWrite) ConstrainedWriteAt(b []byte, offset int64) (int, error) {
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := stat.Size
	if offset >= size {
		return 0, nil
	}
	if offset+int64(len(b)) > size {
		b = b[:size-offset]
	}
	return f.WriteAt(b, offset)
}

// fileMimicTruncate imitates backend.Shrinker.
type fileMimicTruncate struct {
	backend.File
}

func (f fileMimicTruncate) Shrink(size int64) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}
	if stat.Size > size {
		return f.Truncate(size)
	}
	return nil
}

// conflict turns a lock conflict into the status the
// driver expects.
func conflict(err error) error {
	if errors.Is(err, pathtree.ErrConflict) {
		return errors.Wrapf(dokan.AccessDenied, "%v", err)
	}
	return err
}

func invalidRange(op string, offset, length int64) error {
	if offset < 0 || length < 0 {
		return errors.Wrapf(dokan.InvalidParameter,
			"%s at %d length %d", op, offset, length)
	}
	return nil
}

// loadFile loads the handle of a regular file, holding it
// shared on success. Paging I/O is also served on a handle
// that was cleaned up.
func (fs *FileSystem) loadFile(ctx context.Context, op string, info *dokan.FileInfo) (*openFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, op)
	}
	handle, err := fs.load(info)
	if err != nil {
		return nil, err
	}
	if err := handle.lockChecked(op); err != nil {
		if !info.PagingIO {
			return nil, err
		}
		if err := fs.lockPaging(handle, op); err != nil {
			return nil, err
		}
	}
	if handle.isDir {
		handle.unlockChecked()
		return nil, fserr.IsDir(op, handle.node.Path())
	}
	return handle, nil
}

func (fs *FileSystem) ReadFile(
	ctx context.Context, name string,
	buf []byte, offset int64, info *dokan.FileInfo,
) (n int, status dokan.StatusCode) {
	end := fs.trace("ReadFile", func() log.M {
		return log.M{
			"name":   name,
			"length": len(buf),
			"offset": offset,
			"info":   dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() {
		end(status, func() log.M {
			return log.M{"n": n}
		})
	}()
	defer fs.keep(info)()
	n, err := fs.readFile(ctx, buf, offset, info)
	return n, fs.verdict("ReadFile", name, err)
}

func (fs *FileSystem) readFile(
	ctx context.Context, buf []byte, offset int64, info *dokan.FileInfo,
) (int, error) {
	const op = "read"
	handle, err := fs.loadFile(ctx, op, info)
	if err != nil {
		return 0, err
	}
	defer handle.unlockChecked()
	if err := invalidRange(op, offset, int64(len(buf))); err != nil {
		return 0, err
	}
	err = handle.node.Check(handle.id, uint64(offset), uint64(len(buf)))
	if err != nil {
		return 0, conflict(err)
	}
	n, err := handle.file.ReadAt(buf, offset)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	fs.metrics.RecordBytes(metrics.DirectionRead, n)
	return n, err
}

func (fs *FileSystem) WriteFile(
	ctx context.Context, name string,
	buf []byte, offset int64, info *dokan.FileInfo,
) (n int, status dokan.StatusCode) {
	end := fs.trace("WriteFile", func() log.M {
		return log.M{
			"name":   name,
			"length": len(buf),
			"offset": offset,
			"info":   dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() {
		end(status, func() log.M {
			return log.M{"n": n}
		})
	}()
	defer fs.keep(info)()
	n, err := fs.writeFile(ctx, buf, offset, info)
	return n, fs.verdict("WriteFile", name, err)
}

func (fs *FileSystem) writeFile(
	ctx context.Context, buf []byte, offset int64, info *dokan.FileInfo,
) (int, error) {
	const op = "write"
	handle, err := fs.loadFile(ctx, op, info)
	if err != nil {
		return 0, err
	}
	defer handle.unlockChecked()
	if handle.appendOnly() && !info.WriteToEndOfFile {
		// You may not write to an append-only file.
		return 0, errors.Wrap(dokan.AccessDenied, "positional write on append-only handle")
	}
	if err := invalidRange(op, offset, int64(len(buf))); err != nil {
		return 0, err
	}
	if !info.WriteToEndOfFile {
		err := handle.node.Check(handle.id, uint64(offset), uint64(len(buf)))
		if err != nil {
			return 0, conflict(err)
		}
	}
	var n int
	switch {
	case info.WriteToEndOfFile && info.PagingIO:
		// Paging I/O never extends the file.
	case info.WriteToEndOfFile:
		appender, ok := handle.file.(backend.Appender)
		if !ok {
			appender = fileMimicWrite{File: handle.file}
		}
		n, err = appender.Append(buf)
	case info.PagingIO:
		writer, ok := handle.file.(backend.ConstrainedWriter)
		if !ok {
			writer = fileMimicWrite{File: handle.file}
		}
		n, err = writer.ConstrainedWriteAt(buf, offset)
		handle.recordWrite(offset + int64(n))
	default:
		n, err = handle.file.WriteAt(buf, offset)
		handle.recordWrite(offset + int64(n))
	}
	fs.metrics.RecordBytes(metrics.DirectionWrite, n)
	return n, err
}

func (fs *FileSystem) FlushFileBuffers(
	ctx context.Context, name string, info *dokan.FileInfo,
) (status dokan.StatusCode) {
	end := fs.trace("FlushFileBuffers", func() log.M {
		return log.M{
			"name": name,
			"info": dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() { end(status, nil) }()
	defer fs.keep(info)()
	return fs.verdict("FlushFileBuffers", name, func() error {
		handle, err := fs.load(info)
		if err != nil {
			return err
		}
		if err := handle.lockChecked("flush"); err != nil {
			return err
		}
		defer handle.unlockChecked()
		if handle.file == nil {
			// Nothing to flush for a directory.
			return nil
		}
		return handle.file.Sync()
	}())
}

func (fs *FileSystem) SetEndOfFile(
	ctx context.Context, name string, length int64, info *dokan.FileInfo,
) (status dokan.StatusCode) {
	end := fs.trace("SetEndOfFile", func() log.M {
		return log.M{
			"name":   name,
			"length": length,
			"info":   dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() { end(status, nil) }()
	return fs.verdict("SetEndOfFile", name, func() error {
		const op = "truncate"
		handle, err := fs.loadFile(ctx, op, info)
		if err != nil {
			return err
		}
		defer handle.unlockChecked()
		if err := invalidRange(op, 0, length); err != nil {
			return err
		}
		if err := handle.file.Truncate(length); err != nil {
			return err
		}
		handle.sizeWritten.Store(length)
		return nil
	}())
}

// SetAllocationSize only ever shrinks the file. Extending
// the allocation is not observable through the backend.
func (fs *FileSystem) SetAllocationSize(
	ctx context.Context, name string, length int64, info *dokan.FileInfo,
) (status dokan.StatusCode) {
	end := fs.trace("SetAllocationSize", func() log.M {
		return log.M{
			"name":   name,
			"length": length,
			"info":   dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() { end(status, nil) }()
	return fs.verdict("SetAllocationSize", name, func() error {
		const op = "allocate"
		handle, err := fs.loadFile(ctx, op, info)
		if err != nil {
			return err
		}
		defer handle.unlockChecked()
		if err := invalidRange(op, 0, length); err != nil {
			return err
		}
		shrinker, ok := handle.file.(backend.Shrinker)
		if !ok {
			shrinker = fileMimicTruncate{File: handle.file}
		}
		if err := shrinker.Shrink(length); err != nil {
			return err
		}
		if handle.sizeWritten.Load() > length {
			handle.sizeWritten.Store(length)
		}
		return nil
	}())
}
