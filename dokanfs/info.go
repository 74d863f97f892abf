package dokanfs

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/metadata"
)

// statHandle fetches the stat of the handle, through the
// open file when there is one. Must hold the handle.
func (fs *FileSystem) statHandle(op string, handle *openFile) (string, backend.Stat, error) {
	name, err := handle.path(op)
	if err != nil {
		return "", backend.Stat{}, err
	}
	var stat backend.Stat
	if handle.file != nil {
		stat, err = handle.file.Stat()
	} else {
		stat, err = fs.inner.Stat(name)
	}
	return name, stat, err
}

func (fs *FileSystem) GetFileInformation(
	ctx context.Context, name string, info *dokan.FileInfo,
) (result dokan.FileInformation, status dokan.StatusCode) {
	end := fs.trace("GetFileInformation", func() log.M {
		return log.M{
			"name": name,
			"info": dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() {
		end(status, func() log.M {
			return log.M{"result": dokan.DebugFileInformation{FileInformation: &result}}
		})
	}()
	result, err := fs.getFileInformation(ctx, info)
	return result, fs.verdict("GetFileInformation", name, err)
}

func (fs *FileSystem) getFileInformation(
	ctx context.Context, info *dokan.FileInfo,
) (dokan.FileInformation, error) {
	const op = "stat"
	if err := ctx.Err(); err != nil {
		return dokan.FileInformation{}, errors.Wrap(err, op)
	}
	handle, err := fs.load(info)
	if err != nil {
		return dokan.FileInformation{}, err
	}
	if err := handle.lockChecked(op); err != nil {
		return dokan.FileInformation{}, err
	}
	defer handle.unlockChecked()
	name, stat, err := fs.statHandle(op, handle)
	if err != nil {
		return dokan.FileInformation{}, err
	}
	parent, err := fs.parentStat(name)
	if err != nil {
		return dokan.FileInformation{}, err
	}
	result := fs.mapper.ToDriver(stat, parent)
	if written := handle.sizeWritten.Load(); !handle.isDir &&
		written > 0 && uint64(written) > result.FileSize {
		result.FileSize = uint64(written)
	}
	return result, nil
}

// SetFileAttributes stores the read-only attribute as the
// permission bits, when the backend can. Other attributes
// have no backend counterpart and are ignored.
func (fs *FileSystem) SetFileAttributes(
	ctx context.Context, name string,
	attributes dokan.FileAttribute, info *dokan.FileInfo,
) (status dokan.StatusCode) {
	end := fs.trace("SetFileAttributes", func() log.M {
		return log.M{
			"name":       name,
			"attributes": dokan.DebugFileAttributes(attributes),
			"info":       dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() { end(status, nil) }()
	return fs.verdict("SetFileAttributes", name, func() error {
		const op = "chmod"
		if err := fs.denyReadOnly(op, name); err != nil {
			return err
		}
		handle, err := fs.load(info)
		if err != nil {
			return err
		}
		if err := handle.lockChecked(op); err != nil {
			return err
		}
		defer handle.unlockChecked()
		patch := metadata.AttributesPatch(attributes)
		chmoder, ok := fs.inner.(backend.Chmoder)
		if patch.Attributes == nil || !ok {
			return nil
		}
		path, stat, err := fs.statHandle(op, handle)
		if err != nil {
			return err
		}
		mode := patch.Mode(stat.Mode)
		if mode.Perm() == stat.Mode.Perm() {
			return nil
		}
		return ignoreUnsupported(chmoder.Chmod(path, mode.Perm()))
	}())
}

// SetFileTime stores the access and write times. The
// creation time cannot be changed in a backend.
func (fs *FileSystem) SetFileTime(
	ctx context.Context, name string,
	creation, lastAccess, lastWrite uint64, info *dokan.FileInfo,
) (status dokan.StatusCode) {
	end := fs.trace("SetFileTime", func() log.M {
		return log.M{
			"name":       name,
			"creation":   dokan.DebugFiletime(creation),
			"lastAccess": dokan.DebugFiletime(lastAccess),
			"lastWrite":  dokan.DebugFiletime(lastWrite),
			"info":       dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() { end(status, nil) }()
	return fs.verdict("SetFileTime", name, func() error {
		const op = "chtimes"
		if err := fs.denyReadOnly(op, name); err != nil {
			return err
		}
		handle, err := fs.load(info)
		if err != nil {
			return err
		}
		if err := handle.lockChecked(op); err != nil {
			return err
		}
		defer handle.unlockChecked()
		patch := metadata.TimesPatch(0, lastAccess, lastWrite)
		timer, ok := fs.inner.(backend.Timer)
		if !ok || (patch.LastAccessTime == nil && patch.LastWriteTime == nil) {
			// Some programs demand this succeed.
			return nil
		}
		path, err := handle.path(op)
		if err != nil {
			return err
		}
		var atime, mtime time.Time
		if patch.LastAccessTime != nil {
			atime = *patch.LastAccessTime
		}
		if patch.LastWriteTime != nil {
			mtime = *patch.LastWriteTime
		}
		return ignoreUnsupported(timer.Chtimes(path, atime, mtime))
	}())
}

func ignoreUnsupported(err error) error {
	if fserr.KindOf(err) == fserr.KindUnsupported {
		return nil
	}
	return err
}
