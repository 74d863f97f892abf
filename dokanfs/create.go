package dokanfs

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/pathkey"
)

const (
	// bothDirectoryFlags are the flags of directory or-ing
	// the non directory flags. Setting both is invalid.
	bothDirectoryFlags = dokan.FILE_DIRECTORY_FILE |
		dokan.FILE_NON_DIRECTORY_FILE

	// dataWriteAccess are the access bits that require the
	// backend file to be opened writable.
	dataWriteAccess = dokan.FILE_WRITE_DATA |
		dokan.FILE_APPEND_DATA |
		dokan.GENERIC_WRITE |
		dokan.GENERIC_ALL

	// appendOnlyAccess grants appending without granting
	// writes at an offset.
	appendOnlyAccess = dokan.FILE_APPEND_DATA
)

// accessFlags maps the desired access onto os.O_* flags.
//
// Readers are never opened write-only, since the cache
// manager reads through any handle. O_APPEND is tracked
// by the handle alone and never reaches the backend, where
// it would forbid positional writes.
func accessFlags(access dokan.AccessMask, truncate bool) (open, handle int) {
	writes := access & dataWriteAccess
	switch {
	case writes == appendOnlyAccess:
		return os.O_RDWR, os.O_RDWR | os.O_APPEND
	case writes != 0 || truncate:
		return os.O_RDWR, os.O_RDWR
	default:
		return os.O_RDONLY, os.O_RDONLY
	}
}

// CreateFile opens or creates the entry, and allocates the
// handle stored into info.Context.
func (fs *FileSystem) CreateFile(
	ctx context.Context, name string,
	req *dokan.CreateRequest, info *dokan.FileInfo,
) (result dokan.CreateResult, status dokan.StatusCode) {
	end := fs.trace("CreateFile", func() log.M {
		return log.M{
			"name": name,
			"req":  dokan.DebugCreateRequest{CreateRequest: req},
			"info": dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() {
		end(status, func() log.M {
			return log.M{"result": result}
		})
	}()
	result, err := fs.createFile(ctx, name, req, info)
	return result, fs.verdict("CreateFile", name, err)
}

// checkCreate validates the request against the current
// state of the entry, before anything is modified.
func (fs *FileSystem) checkCreate(
	key pathkey.Key, req *dokan.CreateRequest,
	wantDir, exists bool, stat backend.Stat,
) error {
	const op = "create"
	disposition := req.CreateDisposition
	if exists {
		if disposition == dokan.FILE_CREATE {
			return fserr.Exists(op, key.Path)
		}
		if stat.IsDir() {
			if req.CreateOptions&dokan.FILE_NON_DIRECTORY_FILE != 0 {
				return fserr.IsDir(op, key.Path)
			}
			if disposition.Truncates() {
				return errors.Wrapf(dokan.InvalidParameter,
					"overwrite directory %q", key.Path)
			}
		} else if req.CreateOptions&dokan.FILE_DIRECTORY_FILE != 0 {
			return fserr.NotDir(op, key.Path)
		}
		if fs.readOnly && (disposition.Truncates() ||
			req.DesiredAccess&dataWriteAccess != 0 ||
			req.CreateOptions&dokan.FILE_DELETE_ON_CLOSE != 0) {
			return fs.denyReadOnly(op, key.Path)
		}
		return nil
	}
	if !disposition.MayCreate() {
		return fserr.NotFound(op, key.Path)
	}
	if wantDir && disposition.Truncates() {
		return errors.Wrapf(dokan.InvalidParameter,
			"overwrite directory %q", key.Path)
	}
	if err := fs.denyReadOnly(op, key.Path); err != nil {
		return err
	}
	dir, _ := backend.Split(key.Path)
	parent, err := fs.inner.Stat(dir)
	if fserr.IsNotFound(err) || (err == nil && !parent.IsDir()) {
		return errors.Wrapf(dokan.PathNotFound, "parent of %q", key.Path)
	}
	return err
}

func (fs *FileSystem) createFile(
	ctx context.Context, name string,
	req *dokan.CreateRequest, info *dokan.FileInfo,
) (dokan.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return dokan.CreateResult{}, errors.Wrap(err, "create")
	}
	if req == nil || info == nil {
		return dokan.CreateResult{}, errors.Wrap(dokan.InvalidParameter, "missing request")
	}
	key, err := fs.resolver.Resolve(name)
	if err != nil {
		return dokan.CreateResult{}, err
	}
	if !req.CreateDisposition.Valid() {
		return dokan.CreateResult{}, errors.Wrapf(dokan.InvalidParameter,
			"disposition %s", dokan.DebugCreateDisposition(req.CreateDisposition))
	}
	if req.CreateOptions&bothDirectoryFlags == bothDirectoryFlags {
		return dokan.CreateResult{}, errors.Wrap(dokan.InvalidParameter,
			"both directory and non directory file")
	}
	if fs.tree.PendingDelete(key) {
		return dokan.CreateResult{}, errors.Wrapf(dokan.AccessDenied,
			"%q is pending delete", key.Path)
	}

	stat, err := fs.inner.Stat(key.Path)
	exists := err == nil
	if err != nil && !fserr.IsNotFound(err) {
		return dokan.CreateResult{}, err
	}
	wantDir := req.CreateOptions&dokan.FILE_DIRECTORY_FILE != 0 || info.IsDirectory
	if err := fs.checkCreate(key, req, wantDir, exists, stat); err != nil {
		return dokan.CreateResult{}, err
	}
	isDir := (exists && stat.IsDir()) || (!exists && wantDir)
	deleteOnClose := req.CreateOptions&dokan.FILE_DELETE_ON_CLOSE != 0
	if deleteOnClose && isDir && exists {
		if err := fs.checkDirDeletable(key); err != nil {
			return dokan.CreateResult{}, err
		}
	}

	// Open or create the entry in the backend.
	truncate := exists && req.CreateDisposition.Truncates()
	openFlags, handleFlags := accessFlags(req.DesiredAccess, truncate)
	var file backend.File
	switch {
	case isDir && !exists:
		err = fs.inner.Mkdir(key.Path)
	case isDir:
	case exists:
		if truncate {
			openFlags |= os.O_TRUNC
		}
		file, err = fs.inner.Open(key.Path, openFlags)
	default:
		file, err = fs.inner.Open(key.Path, openFlags|os.O_CREATE|os.O_EXCL)
	}
	if err != nil {
		return dokan.CreateResult{}, err
	}
	handle := &openFile{
		file:  file,
		isDir: isDir,
		flags: handleFlags,
	}
	created := false
	defer func() {
		if !created && handle.file != nil {
			_ = handle.file.Close()
		}
	}()

	// Register the path and allocate the handle.
	handle.node = fs.tree.Acquire(key)
	id, err := fs.handles.Allocate(handle)
	if err != nil {
		handle.node.Free()
		return dokan.CreateResult{}, err
	}
	handle.id = id
	created = true
	if deleteOnClose {
		handle.markDelete()
	}
	if err := ctx.Err(); err != nil {
		fs.handles.Release(id)
		fs.closeHandle(handle, nil)
		return dokan.CreateResult{}, errors.Wrap(err, "create")
	}
	fs.updateOpenHandles()
	info.Context = id
	info.IsDirectory = isDir
	if deleteOnClose {
		info.DeleteOnClose = true
	}
	return dokan.CreateResult{
		Handle:      id,
		Created:     !exists,
		IsDirectory: isDir,
	}, nil
}
