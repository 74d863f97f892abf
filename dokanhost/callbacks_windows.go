//go:build windows && (amd64 || arm64)

package dokanhost

import (
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/log"
)

// ntStatusNoRef is returned when the volume of a callback
// is not registered, which is STATUS_DEVICE_OFF_LINE.
const ntStatusNoRef dokan.NTStatus = 0x80000010

var instances sync.Map

// fileInfoRef locates the native block behind the copy
// handed to the operations.
type fileInfoRef struct {
	native  *dokanFileInfo
	timeout uint32
}

var fileInfos sync.Map

func loadInstance(infoAddr uintptr) (*instance, *dokanFileInfo) {
	native := (*dokanFileInfo)(unsafe.Pointer(infoAddr))
	if native == nil || native.DokanOptions == nil {
		return nil, native
	}
	value, ok := instances.Load(native.DokanOptions.GlobalContext)
	if !ok {
		return nil, native
	}
	return value.(*instance), native
}

func utf16PtrToString(ptr uintptr) string {
	return windows.UTF16PtrToString((*uint16)(unsafe.Pointer(ptr)))
}

func enforceBytePtr(ptr uintptr, size uint32) []byte {
	if ptr == 0 || size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
}

func putUint32(ptr uintptr, value uint32) {
	if ptr != 0 {
		*(*uint32)(unsafe.Pointer(ptr)) = value
	}
}

func putUint64(ptr uintptr, value uint64) {
	if ptr != 0 {
		*(*uint64)(unsafe.Pointer(ptr)) = value
	}
}

// dispatch runs fn with a copy of the native file info,
// then stores back the fields the operations may change.
// A panic is reported as an internal error instead of
// unwinding into the library.
func dispatch(
	infoAddr uintptr,
	fn func(in *instance, info *dokan.FileInfo) dokan.NTStatus,
) (result uintptr) {
	in, native := loadInstance(infoAddr)
	if in == nil {
		return uintptr(ntStatusNoRef)
	}
	defer func() {
		if r := recover(); r != nil {
			in.log.Logf(log.TopicError, "callback panic: %v", r)
			result = uintptr(dokan.STATUS_INTERNAL_ERROR)
		}
	}()
	info := &dokan.FileInfo{
		Context:          native.Context,
		ProcessID:        native.ProcessID,
		IsDirectory:      native.IsDirectory != 0,
		DeleteOnClose:    native.DeleteOnClose != 0,
		PagingIO:         native.PagingIO != 0,
		SynchronousIO:    native.SynchronousIO != 0,
		Nocache:          native.Nocache != 0,
		WriteToEndOfFile: native.WriteToEndOfFile != 0,
	}
	fileInfos.Store(info, fileInfoRef{native: native, timeout: in.timeout})
	defer fileInfos.Delete(info)
	status := fn(in, info)
	native.Context = info.Context
	native.IsDirectory = boolByte(info.IsDirectory)
	native.DeleteOnClose = boolByte(info.DeleteOnClose)
	return uintptr(status)
}

var go_delegateZwCreateFile = syscall.NewCallback(func(
	fileName, securityContext, desiredAccess, fileAttributes,
	shareAccess, createDisposition, createOptions, infoAddr uintptr,
) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		req := &dokan.CreateRequest{
			DesiredAccess:     dokan.AccessMask(desiredAccess),
			FileAttributes:    dokan.FileAttribute(fileAttributes),
			ShareAccess:       uint32(shareAccess),
			CreateDisposition: dokan.CreateDisposition(createDisposition),
			CreateOptions:     dokan.CreateOptions(createOptions),
		}
		result, status := in.ops.CreateFile(in.ctx, utf16PtrToString(fileName), req, info)
		if status == dokan.Success {
			info.IsDirectory = result.IsDirectory
		}
		return createStatus(req.CreateDisposition, result, status)
	})
})

var go_delegateCleanup = syscall.NewCallback(func(fileName, infoAddr uintptr) uintptr {
	dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		in.ops.Cleanup(in.ctx, utf16PtrToString(fileName), info)
		return dokan.STATUS_SUCCESS
	})
	return 0
})

var go_delegateCloseFile = syscall.NewCallback(func(fileName, infoAddr uintptr) uintptr {
	dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		in.ops.CloseFile(in.ctx, utf16PtrToString(fileName), info)
		return dokan.STATUS_SUCCESS
	})
	return 0
})

var go_delegateReadFile = syscall.NewCallback(func(
	fileName, buffer, bufferLength, readLength, offset, infoAddr uintptr,
) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		n, status := in.ops.ReadFile(in.ctx, utf16PtrToString(fileName),
			enforceBytePtr(buffer, uint32(bufferLength)), int64(offset), info)
		putUint32(readLength, uint32(n))
		return status.NTStatus()
	})
})

var go_delegateWriteFile = syscall.NewCallback(func(
	fileName, buffer, length, written, offset, infoAddr uintptr,
) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		n, status := in.ops.WriteFile(in.ctx, utf16PtrToString(fileName),
			enforceBytePtr(buffer, uint32(length)), int64(offset), info)
		putUint32(written, uint32(n))
		return status.NTStatus()
	})
})

var go_delegateFlushFileBuffers = syscall.NewCallback(func(fileName, infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.FlushFileBuffers(in.ctx, utf16PtrToString(fileName), info).NTStatus()
	})
})

var go_delegateGetFileInformation = syscall.NewCallback(func(fileName, buffer, infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		result, status := in.ops.GetFileInformation(in.ctx, utf16PtrToString(fileName), info)
		if status == dokan.Success {
			encodeInformation(&result, (*byHandleInformation)(unsafe.Pointer(buffer)))
		}
		return status.NTStatus()
	})
})

// fillWith returns the FillFindData passing entries to the
// library function at fillFn. The function answers 1 when
// its buffer is full.
func fillWith(fillFn, infoAddr uintptr) dokan.FillFindData {
	return func(fd *dokan.FindData) bool {
		var native findData
		if !encodeFindData(fd, &native) {
			return true
		}
		full, _, _ := syscall.SyscallN(fillFn, uintptr(unsafe.Pointer(&native)), infoAddr)
		return full == 0
	}
}

var go_delegateFindFiles = syscall.NewCallback(func(pathName, fillFn, infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.FindFiles(in.ctx, utf16PtrToString(pathName),
			info, fillWith(fillFn, infoAddr)).NTStatus()
	})
})

var go_delegateFindFilesWithPattern = syscall.NewCallback(func(
	pathName, pattern, fillFn, infoAddr uintptr,
) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.FindFilesWithPattern(in.ctx, utf16PtrToString(pathName),
			utf16PtrToString(pattern), info, fillWith(fillFn, infoAddr)).NTStatus()
	})
})

var go_delegateSetFileAttributes = syscall.NewCallback(func(fileName, attributes, infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.SetFileAttributes(in.ctx, utf16PtrToString(fileName),
			dokan.FileAttribute(attributes), info).NTStatus()
	})
})

var go_delegateSetFileTime = syscall.NewCallback(func(
	fileName, creation, lastAccess, lastWrite, infoAddr uintptr,
) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.SetFileTime(in.ctx, utf16PtrToString(fileName),
			fromFiletime((*nativeFiletime)(unsafe.Pointer(creation))),
			fromFiletime((*nativeFiletime)(unsafe.Pointer(lastAccess))),
			fromFiletime((*nativeFiletime)(unsafe.Pointer(lastWrite))),
			info).NTStatus()
	})
})

var go_delegateDeleteFile = syscall.NewCallback(func(fileName, infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.DeleteFile(in.ctx, utf16PtrToString(fileName), info).NTStatus()
	})
})

var go_delegateDeleteDirectory = syscall.NewCallback(func(fileName, infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.DeleteDirectory(in.ctx, utf16PtrToString(fileName), info).NTStatus()
	})
})

var go_delegateMoveFile = syscall.NewCallback(func(
	fileName, newFileName, replaceIfExisting, infoAddr uintptr,
) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.MoveFile(in.ctx, utf16PtrToString(fileName),
			utf16PtrToString(newFileName), uint32(replaceIfExisting) != 0, info).NTStatus()
	})
})

var go_delegateSetEndOfFile = syscall.NewCallback(func(fileName, offset, infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.SetEndOfFile(in.ctx, utf16PtrToString(fileName),
			int64(offset), info).NTStatus()
	})
})

var go_delegateSetAllocationSize = syscall.NewCallback(func(fileName, size, infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.SetAllocationSize(in.ctx, utf16PtrToString(fileName),
			int64(size), info).NTStatus()
	})
})

var go_delegateLockFile = syscall.NewCallback(func(fileName, offset, length, infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.LockFile(in.ctx, utf16PtrToString(fileName),
			int64(offset), int64(length), info).NTStatus()
	})
})

var go_delegateUnlockFile = syscall.NewCallback(func(fileName, offset, length, infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.UnlockFile(in.ctx, utf16PtrToString(fileName),
			int64(offset), int64(length), info).NTStatus()
	})
})

var go_delegateGetDiskFreeSpace = syscall.NewCallback(func(
	freeBytesAvailable, totalBytes, totalFreeBytes, infoAddr uintptr,
) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		space, status := in.ops.GetDiskFreeSpace(in.ctx)
		if status == dokan.Success {
			putUint64(freeBytesAvailable, space.FreeBytesAvailable)
			putUint64(totalBytes, space.TotalNumberOfBytes)
			putUint64(totalFreeBytes, space.TotalNumberOfFreeBytes)
		}
		return status.NTStatus()
	})
})

var go_delegateGetVolumeInformation = syscall.NewCallback(func(
	volumeName, volumeNameSize, serialNumber, maxComponentLength,
	fileSystemFlags, fileSystemName, fileSystemNameSize, infoAddr uintptr,
) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		volume, status := in.ops.GetVolumeInformation(in.ctx)
		if status != dokan.Success {
			return status.NTStatus()
		}
		if volumeName != 0 {
			putUTF16(unsafe.Slice((*uint16)(unsafe.Pointer(volumeName)), uint32(volumeNameSize)),
				volume.VolumeName)
		}
		if fileSystemName != 0 {
			putUTF16(unsafe.Slice((*uint16)(unsafe.Pointer(fileSystemName)), uint32(fileSystemNameSize)),
				volume.FileSystemName)
		}
		putUint32(serialNumber, volume.SerialNumber)
		putUint32(maxComponentLength, volume.MaxComponentLength)
		putUint32(fileSystemFlags, uint32(volume.FileSystemFlags))
		return dokan.STATUS_SUCCESS
	})
})

var go_delegateMounted = syscall.NewCallback(func(mountPoint, infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.ops.Mounted(in.ctx, utf16PtrToString(mountPoint)).NTStatus()
	})
})

var go_delegateUnmounted = syscall.NewCallback(func(infoAddr uintptr) uintptr {
	return dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		return in.unmounted().NTStatus()
	})
})

func newOperations() *dokanOperations {
	return &dokanOperations{
		ZwCreateFile:         go_delegateZwCreateFile,
		Cleanup:              go_delegateCleanup,
		CloseFile:            go_delegateCloseFile,
		ReadFile:             go_delegateReadFile,
		WriteFile:            go_delegateWriteFile,
		FlushFileBuffers:     go_delegateFlushFileBuffers,
		GetFileInformation:   go_delegateGetFileInformation,
		FindFiles:            go_delegateFindFiles,
		FindFilesWithPattern: go_delegateFindFilesWithPattern,
		SetFileAttributes:    go_delegateSetFileAttributes,
		SetFileTime:          go_delegateSetFileTime,
		DeleteFile:           go_delegateDeleteFile,
		DeleteDirectory:      go_delegateDeleteDirectory,
		MoveFile:             go_delegateMoveFile,
		SetEndOfFile:         go_delegateSetEndOfFile,
		SetAllocationSize:    go_delegateSetAllocationSize,
		LockFile:             go_delegateLockFile,
		UnlockFile:           go_delegateUnlockFile,
		GetDiskFreeSpace:     go_delegateGetDiskFreeSpace,
		GetVolumeInformation: go_delegateGetVolumeInformation,
		Mounted:              go_delegateMounted,
		Unmounted:            go_delegateUnmounted,
	}
}
