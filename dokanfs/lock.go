package dokanfs

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/pathtree"
)

func rangeOf(owner uint64, offset, length int64) pathtree.Range {
	end := uint64(offset) + uint64(length)
	if end < uint64(offset) {
		end = math.MaxUint64
	}
	return pathtree.Range{Owner: owner, Start: uint64(offset), End: end}
}

// unlock drops a range the handle holds with the same
// bounds, reporting whether it was held. Must hold the
// handle exclusively.
func (handle *openFile) unlock(offset, length int64) bool {
	want := rangeOf(handle.id, offset, length)
	for i, r := range handle.ranges {
		if r == want {
			handle.ranges = append(handle.ranges[:i], handle.ranges[i+1:]...)
			return handle.node.Unlock(handle.id, uint64(offset), uint64(length))
		}
	}
	return false
}

// LockFile locks [offset, offset+length) for the handle.
// A range overlapping one held by another handle of the
// same file is refused.
func (fs *FileSystem) LockFile(
	ctx context.Context, name string,
	offset, length int64, info *dokan.FileInfo,
) (status dokan.StatusCode) {
	end := fs.trace("LockFile", func() log.M {
		return log.M{
			"name":   name,
			"offset": offset,
			"length": length,
			"info":   dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() { end(status, nil) }()
	return fs.verdict("LockFile", name, func() error {
		const op = "lock"
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, op)
		}
		if err := invalidRange(op, offset, length); err != nil {
			return err
		}
		handle, err := fs.load(info)
		if err != nil {
			return err
		}
		if err := handle.lockExclusive(op); err != nil {
			return err
		}
		defer handle.unlockExclusive()
		err = handle.node.Lock(handle.id, uint64(offset), uint64(length))
		if err != nil {
			return conflict(err)
		}
		if length > 0 {
			handle.ranges = append(handle.ranges, rangeOf(handle.id, offset, length))
		}
		return nil
	}())
}

// UnlockFile drops a range locked by the handle with the
// same bounds. Unlocking a range that is not held succeeds.
func (fs *FileSystem) UnlockFile(
	ctx context.Context, name string,
	offset, length int64, info *dokan.FileInfo,
) (status dokan.StatusCode) {
	end := fs.trace("UnlockFile", func() log.M {
		return log.M{
			"name":   name,
			"offset": offset,
			"length": length,
			"info":   dokan.DebugFileInfo{FileInfo: info},
		}
	})
	defer func() { end(status, nil) }()
	return fs.verdict("UnlockFile", name, func() error {
		const op = "unlock"
		if err := invalidRange(op, offset, length); err != nil {
			return err
		}
		handle, err := fs.load(info)
		if err != nil {
			return err
		}
		if err := handle.lockExclusive(op); err != nil {
			return err
		}
		defer handle.unlockExclusive()
		held := handle.unlock(offset, length)
		if !held && fs.log.Enabled(log.TopicVerdict) {
			fs.log.Logf(log.TopicVerdict,
				"handle %d unlocks [%d, +%d) it does not hold", handle.id, offset, length)
		}
		return nil
	}())
}
