package dokanfs

import (
	"context"
	"path"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/fserr"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/pathkey"
)

// checkDirDeletable fails unless every child of the
// directory is itself pending delete.
func (fs *FileSystem) checkDirDeletable(key pathkey.Key) error {
	if key.IsRoot() {
		return errors.Wrap(dokan.AccessDenied, "delete root directory")
	}
	entries, err := fs.inner.List(key.Path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		child := fs.resolver.KeyOf(path.Join(key.Path, entry.Name))
		if !fs.tree.PendingDelete(child) {
			return fserr.NotEmpty("delete", key.Path)
		}
	}
	return nil
}

// markDelete runs check and marks the handle, so that new
// opens of the entry are refused until cleanup. The driver
// requests the deletion with info.DeleteOnClose set, and
// cancels it by calling again with the flag cleared, which
// drops the mark. A refused request restores the flag the
// handle had before.
func (fs *FileSystem) markDelete(
	ctx context.Context, op string, info *dokan.FileInfo,
	check func(key pathkey.Key, handle *openFile) error,
) (err error) {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, op)
	}
	handle, err := fs.load(info)
	if err != nil {
		return err
	}
	if err := handle.lockExclusive(op); err != nil {
		return err
	}
	defer handle.unlockExclusive()
	defer func() {
		if err != nil {
			info.DeleteOnClose = handle.marked
		}
	}()
	if !info.DeleteOnClose {
		if handle.marked && fs.log.Enabled(log.TopicVerdict) {
			fs.log.Logf(log.TopicVerdict, "handle %d cancels its deletion", handle.id)
		}
		handle.unmarkDelete()
		return nil
	}
	name, err := handle.path(op)
	if err != nil {
		return err
	}
	if err := fs.denyReadOnly(op, name); err != nil {
		return err
	}
	if err := check(fs.resolver.KeyOf(name), handle); err != nil {
		return err
	}
	handle.markDelete()
	return nil
}

// DeleteFile checks whether the file can be deleted and
// marks it. The file is removed when the handle is cleaned
// up with info.DeleteOnClose still set.
func (fs *FileSystem) DeleteFile(
	ctx context.Context, name string, info *dokan.FileInfo,
) (status dokan.StatusCode) {
	end := fs.trace("DeleteFile", func() log.M {
		return log.M{
			"name": name,
			"info": dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() { end(status, nil) }()
	const op = "delete"
	return fs.verdict("DeleteFile", name, fs.markDelete(ctx, op, info,
		func(key pathkey.Key, handle *openFile) error {
			stat, err := fs.inner.Stat(key.Path)
			if err != nil {
				return err
			}
			if stat.IsDir() {
				return errors.Wrapf(dokan.AccessDenied, "%q is a directory", key.Path)
			}
			return nil
		}))
}

// DeleteDirectory checks whether the directory is empty,
// apart from the entries pending delete, and marks it.
func (fs *FileSystem) DeleteDirectory(
	ctx context.Context, name string, info *dokan.FileInfo,
) (status dokan.StatusCode) {
	end := fs.trace("DeleteDirectory", func() log.M {
		return log.M{
			"name": name,
			"info": dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() { end(status, nil) }()
	const op = "rmdir"
	return fs.verdict("DeleteDirectory", name, fs.markDelete(ctx, op, info,
		func(key pathkey.Key, handle *openFile) error {
			stat, err := fs.inner.Stat(key.Path)
			if err != nil {
				return err
			}
			if !stat.IsDir() {
				return fserr.NotDir(op, key.Path)
			}
			return fs.checkDirDeletable(key)
		}))
}

// Cleanup commits the pending deletion of the handle and
// closes its backend file. The handle stays allocated until
// CloseFile.
func (fs *FileSystem) Cleanup(ctx context.Context, name string, info *dokan.FileInfo) {
	end := fs.trace("Cleanup", func() log.M {
		return log.M{
			"name": name,
			"info": dokan.DebugFileInfo{FileInfo: info},
		}
	})
	handle, err := fs.load(info)
	if err != nil {
		end(fs.verdict("Cleanup", name, err), nil)
		return
	}
	defer end(dokan.Success, nil)
	defer fs.keep(info)()
	handle.mtx.Lock()
	defer handle.mtx.Unlock()
	fs.cleanupLocked(handle, info.DeleteOnClose)
}

// CloseFile releases the handle. It cleans up first when
// the driver skipped Cleanup, and closing twice is a no-op.
func (fs *FileSystem) CloseFile(ctx context.Context, name string, info *dokan.FileInfo) {
	end := fs.trace("CloseFile", func() log.M {
		return log.M{
			"name": name,
			"info": dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer end(dokan.Success, nil)
	if info == nil {
		return
	}
	handle, ok := fs.handles.Release(info.Context)
	if !ok {
		return
	}
	fs.closeHandle(handle, info)
	fs.updateOpenHandles()
	info.Context = 0
}

// MoveFile renames the entry of the handle. Other handles
// open on the entry follow it to the new path.
func (fs *FileSystem) MoveFile(
	ctx context.Context, name, newName string,
	replaceIfExisting bool, info *dokan.FileInfo,
) (status dokan.StatusCode) {
	end := fs.trace("MoveFile", func() log.M {
		return log.M{
			"name":              name,
			"newName":           newName,
			"replaceIfExisting": replaceIfExisting,
			"info":              dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() { end(status, nil) }()
	return fs.verdict("MoveFile", name, fs.moveFile(ctx, newName, replaceIfExisting, info))
}

func (fs *FileSystem) moveFile(
	ctx context.Context, newName string,
	replaceIfExisting bool, info *dokan.FileInfo,
) error {
	const op = "rename"
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, op)
	}
	handle, err := fs.load(info)
	if err != nil {
		return err
	}
	if err := handle.lockExclusive(op); err != nil {
		return err
	}
	defer handle.unlockExclusive()
	source, err := handle.path(op)
	if err != nil {
		return err
	}
	if err := fs.denyReadOnly(op, source); err != nil {
		return err
	}
	from := fs.resolver.KeyOf(source)
	to, err := fs.resolver.Resolve(newName)
	if err != nil {
		return err
	}
	if from.Path == to.Path {
		return nil
	}
	if from.IsRoot() || to.IsRoot() {
		return errors.Wrap(dokan.AccessDenied, "rename root directory")
	}
	if fs.tree.PendingDelete(to) {
		return errors.Wrapf(dokan.AccessDenied, "%q is pending delete", to.Path)
	}

	// Check for the rename precondition so that we could
	// avoid performing sophisticated operations.
	if from.Fold != to.Fold {
		stat, err := fs.inner.Stat(to.Path)
		switch {
		case err == nil && !replaceIfExisting:
			return fserr.Exists(op, to.Path)
		case err == nil && stat.IsDir():
			return errors.Wrapf(dokan.AccessDenied, "replace directory %q", to.Path)
		case err != nil && !fserr.IsNotFound(err):
			return err
		case err != nil:
			dir := path.Dir(to.Path)
			parent, err := fs.inner.Stat(dir)
			if fserr.IsNotFound(err) || (err == nil && !parent.IsDir()) {
				return errors.Wrapf(dokan.PathNotFound, "parent of %q", to.Path)
			}
			if err != nil {
				return err
			}
		}
	}
	if err := fs.inner.Rename(from.Path, to.Path); err != nil {
		return err
	}
	fs.tree.Move(from, to)
	if fs.log.Enabled(log.TopicVerdict) {
		fs.log.Logf(log.TopicVerdict, "handle %d moved %q to %q", handle.id, from.Path, to.Path)
	}
	return nil
}
