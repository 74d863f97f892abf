package dokanfs

import (
	"context"
	"path"
	"sort"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/pathkey"
)

// dirEnum is the enumeration state of a directory handle.
//
// The entries are listed once, when the enumeration starts,
// and served from the cache until they run out. Entries
// created or removed in the meantime are not seen until the
// next enumeration, except that entries pending delete are
// always skipped.
type dirEnum struct {
	key     pathkey.Key
	parent  *backend.Stat
	entries []backend.Stat
	cursor  int
	pattern string
}

func (fs *FileSystem) FindFiles(
	ctx context.Context, name string,
	info *dokan.FileInfo, fill dokan.FillFindData,
) (status dokan.StatusCode) {
	return fs.FindFilesWithPattern(ctx, name, "*", info, fill)
}

func (fs *FileSystem) FindFilesWithPattern(
	ctx context.Context, name, pattern string,
	info *dokan.FileInfo, fill dokan.FillFindData,
) (status dokan.StatusCode) {
	end := fs.trace("FindFiles", func() log.M {
		return log.M{
			"name":    name,
			"pattern": pattern,
			"info":    dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() { end(status, nil) }()
	defer fs.keep(info)()
	return fs.verdict("FindFiles", name, fs.findFiles(ctx, pattern, info, fill))
}

// startEnum lists the directory of the handle.
func (fs *FileSystem) startEnum(handle *openFile) (*dirEnum, error) {
	const op = "list"
	name, err := handle.path(op)
	if err != nil {
		return nil, err
	}
	entries, err := fs.inner.List(name)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	var parent *backend.Stat
	if fs.mapper.ReadOnly.NeedParent() {
		stat, err := fs.inner.Stat(name)
		if err != nil {
			return nil, err
		}
		parent = &stat
	}
	return &dirEnum{
		key:     fs.resolver.KeyOf(name),
		parent:  parent,
		entries: entries,
	}, nil
}

func (fs *FileSystem) findFiles(
	ctx context.Context, pattern string,
	info *dokan.FileInfo, fill dokan.FillFindData,
) error {
	const op = "find"
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, op)
	}
	if fill == nil {
		return errors.Wrap(dokan.InvalidParameter, "missing fill function")
	}
	handle, err := fs.load(info)
	if err != nil {
		return err
	}
	if err := handle.lockChecked(op); err != nil {
		return err
	}
	defer handle.unlockChecked()
	if !handle.isDir {
		return fserr.NotDir(op, handle.node.Path())
	}
	handle.dirMtx.Lock()
	defer handle.dirMtx.Unlock()
	if handle.dir == nil {
		if handle.dir, err = fs.startEnum(handle); err != nil {
			return err
		}
		handle.dir.pattern = pattern
	}
	enum := handle.dir
	if pattern != enum.pattern {
		enum.cursor = 0
		enum.pattern = pattern
	}
	ignoreCase := !fs.resolver.CaseSensitive()
	inRoot := enum.key.IsRoot()
	for ; enum.cursor < len(enum.entries); enum.cursor++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, op)
		}
		entry := enum.entries[enum.cursor]
		display := fs.resolver.DecodeName(entry.Name, inRoot)
		if !pathkey.Match(pattern, display, ignoreCase) {
			continue
		}
		key := fs.resolver.KeyOf(path.Join(enum.key.Path, entry.Name))
		if fs.tree.PendingDelete(key) {
			continue
		}
		data := fs.mapper.ToFindData(entry, enum.parent)
		data.FileName = display
		if !fill(&data) {
			// The driver buffer is full, resume here.
			return nil
		}
	}
	// Run to completion, the next call lists again.
	handle.dir = nil
	return nil
}
