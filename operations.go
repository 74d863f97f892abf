package dokan

import (
	"context"
)

// Operations is the set of callbacks issued by the driver.
//
// Every callback is synchronous: the driver blocks the
// requesting process until it returns. Callbacks may be
// invoked concurrently from many worker goroutines, but
// the callbacks for one handle are ordered by the driver.
//
// The name argument is the raw path as the driver sees it,
// using backslash separators.
type Operations interface {
	// CreateFile opens or creates a file or directory, and
	// stores the handle id into info.Context on success.
	CreateFile(
		ctx context.Context, name string,
		req *CreateRequest, info *FileInfo,
	) (CreateResult, StatusCode)

	// Cleanup is issued when the last user handle is closed.
	// Deferred deletions are committed here.
	Cleanup(ctx context.Context, name string, info *FileInfo)

	// CloseFile is issued when the driver drops the handle.
	// It cannot fail.
	CloseFile(ctx context.Context, name string, info *FileInfo)

	ReadFile(
		ctx context.Context, name string,
		buf []byte, offset int64, info *FileInfo,
	) (int, StatusCode)

	WriteFile(
		ctx context.Context, name string,
		buf []byte, offset int64, info *FileInfo,
	) (int, StatusCode)

	FlushFileBuffers(ctx context.Context, name string, info *FileInfo) StatusCode

	GetFileInformation(
		ctx context.Context, name string, info *FileInfo,
	) (FileInformation, StatusCode)

	FindFiles(
		ctx context.Context, name string,
		info *FileInfo, fill FillFindData,
	) StatusCode

	FindFilesWithPattern(
		ctx context.Context, name, pattern string,
		info *FileInfo, fill FillFindData,
	) StatusCode

	SetFileAttributes(
		ctx context.Context, name string,
		attributes FileAttribute, info *FileInfo,
	) StatusCode

	// SetFileTime receives FILETIME values, where zero
	// means the time should be left untouched.
	SetFileTime(
		ctx context.Context, name string,
		creation, lastAccess, lastWrite uint64, info *FileInfo,
	) StatusCode

	// DeleteFile and DeleteDirectory only check whether the
	// entry could be deleted. The deletion happens when the
	// handle is cleaned up.
	DeleteFile(ctx context.Context, name string, info *FileInfo) StatusCode
	DeleteDirectory(ctx context.Context, name string, info *FileInfo) StatusCode

	MoveFile(
		ctx context.Context, name, newName string,
		replaceIfExisting bool, info *FileInfo,
	) StatusCode

	SetEndOfFile(ctx context.Context, name string, length int64, info *FileInfo) StatusCode
	SetAllocationSize(ctx context.Context, name string, length int64, info *FileInfo) StatusCode

	LockFile(ctx context.Context, name string, offset, length int64, info *FileInfo) StatusCode
	UnlockFile(ctx context.Context, name string, offset, length int64, info *FileInfo) StatusCode

	GetDiskFreeSpace(ctx context.Context) (DiskSpace, StatusCode)
	GetVolumeInformation(ctx context.Context) (VolumeInformation, StatusCode)

	Mounted(ctx context.Context, mountPoint string) StatusCode
	Unmounted(ctx context.Context) StatusCode
}

// TimeoutResetter is implemented by hosts whose driver
// aborts callbacks running past a deadline. The bridge
// calls ResetTimeout periodically while a long callback is
// in progress.
type TimeoutResetter interface {
	ResetTimeout(info *FileInfo) bool
}
