//go:build linux || darwin || freebsd

package fusehost

import (
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"

	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/filetime"
)

var errnoTable = map[dokan.StatusCode]syscall.Errno{
	dokan.NotFound:          syscall.ENOENT,
	dokan.PathNotFound:      syscall.ENOENT,
	dokan.AlreadyExists:     syscall.EEXIST,
	dokan.AccessDenied:      syscall.EACCES,
	dokan.InvalidHandle:     syscall.EBADF,
	dokan.DirectoryNotEmpty: syscall.ENOTEMPTY,
	dokan.NotADirectory:     syscall.ENOTDIR,
	dokan.IsADirectory:      syscall.EISDIR,
	dokan.DiskFull:          syscall.ENOSPC,
	dokan.Unsupported:       syscall.ENOTSUP,
	dokan.InternalError:     syscall.EIO,
	dokan.InvalidPath:       syscall.EINVAL,
	dokan.InvalidParameter:  syscall.EINVAL,
	dokan.SharingViolation:  syscall.EBUSY,
}

// statusError converts a callback status into the error
// answered to the kernel. Unknown codes become EIO.
func statusError(status dokan.StatusCode) error {
	if status == dokan.Success {
		return nil
	}
	if errno, ok := errnoTable[status]; ok {
		return fuse.Errno(errno)
	}
	return fuse.Errno(syscall.EIO)
}

const (
	blockSize = 4096

	dirMode  os.FileMode = os.ModeDir | 0o755
	fileMode os.FileMode = 0o644

	// writeBits are cleared from the mode of entries
	// carrying the read-only attribute.
	writeBits os.FileMode = 0o222
)

// fillAttr converts the information block of an entry.
func fillAttr(info *dokan.FileInformation, attr *fuse.Attr) {
	mode := fileMode
	if info.FileAttributes&dokan.FILE_ATTRIBUTE_DIRECTORY != 0 {
		mode = dirMode
	}
	if info.FileAttributes&dokan.FILE_ATTRIBUTE_READONLY != 0 {
		mode &^= writeBits
	}
	attr.Mode = mode
	attr.Size = info.FileSize
	attr.Blocks = (info.FileSize + 511) / 512
	attr.BlockSize = blockSize
	attr.Inode = info.FileIndex
	attr.Nlink = info.NumberOfLinks
	if attr.Nlink == 0 {
		attr.Nlink = 1
	}
	attr.Mtime = filetime.Time(info.LastWriteTime)
	attr.Atime = filetime.Time(info.LastAccessTime)
	attr.Crtime = filetime.Time(info.CreationTime)
	attr.Ctime = attr.Mtime
	attr.Uid = uint32(os.Getuid())
	attr.Gid = uint32(os.Getgid())
}

// direntType is the type reported by ReadDirAll.
func direntType(attributes dokan.FileAttribute) fuse.DirentType {
	if attributes&dokan.FILE_ATTRIBUTE_DIRECTORY != 0 {
		return fuse.DT_Dir
	}
	return fuse.DT_File
}

// readOnlyAttribute derives the read-only attribute from a
// mode change, keeping the other bits of current.
func readOnlyAttribute(current dokan.FileAttribute, mode os.FileMode) dokan.FileAttribute {
	attributes := current &^ dokan.FILE_ATTRIBUTE_DIRECTORY
	if mode&writeBits == 0 {
		attributes |= dokan.FILE_ATTRIBUTE_READONLY
	} else {
		attributes &^= dokan.FILE_ATTRIBUTE_READONLY
	}
	if attributes == 0 {
		attributes = dokan.FILE_ATTRIBUTE_NORMAL
	}
	return attributes
}

// fileTime converts a time set by the kernel, leaving the
// field untouched when the time is not valid.
func fileTime(valid bool, t time.Time) uint64 {
	if !valid {
		return 0
	}
	return filetime.Timestamp(t)
}
