package fserr

import (
	"io"
	"syscall"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan"
)

var errnoKinds = map[syscall.Errno]Kind{
	syscall.ENOENT:       KindNotFound,
	syscall.ENOTDIR:      KindNotDir,
	syscall.EISDIR:       KindIsDir,
	syscall.EEXIST:       KindExists,
	syscall.ENOTEMPTY:    KindNotEmpty,
	syscall.EACCES:       KindPermission,
	syscall.EPERM:        KindPermission,
	syscall.EROFS:        KindPermission,
	syscall.ENOSPC:       KindNoSpace,
	syscall.EDQUOT:       KindNoSpace,
	syscall.ENOSYS:       KindUnsupported,
	syscall.EOPNOTSUPP:   KindUnsupported,
	syscall.EBUSY:        KindBusy,
	syscall.ENAMETOOLONG: KindInvalid,
	syscall.EINVAL:       KindInvalid,
}

func kindFromErrno(err error) (Kind, bool) {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return KindUnknown, false
	}
	kind, ok := errnoKinds[errno]
	return kind, ok
}

var kindStatus = map[Kind]dokan.StatusCode{
	KindNotFound:    dokan.NotFound,
	KindExists:      dokan.AlreadyExists,
	KindPermission:  dokan.AccessDenied,
	KindNotEmpty:    dokan.DirectoryNotEmpty,
	KindIsDir:       dokan.IsADirectory,
	KindNotDir:      dokan.NotADirectory,
	KindNoSpace:     dokan.DiskFull,
	KindUnsupported: dokan.Unsupported,
	KindInvalid:     dokan.InvalidParameter,
	KindBusy:        dokan.SharingViolation,
}

// Translate maps err to the status reported to the driver.
//
// A nil error is the only way to obtain Success. An error
// that pins dokan.Success in its chain is a bug and is
// reported as InternalError.
func Translate(err error) dokan.StatusCode {
	if err == nil {
		return dokan.Success
	}
	var code dokan.StatusCode
	if errors.As(err, &code) {
		if code == dokan.Success || !code.Valid() {
			return dokan.InternalError
		}
		return code
	}
	var status dokan.NTStatus
	if errors.As(err, &status) {
		if status == dokan.STATUS_SUCCESS {
			return dokan.InternalError
		}
		return dokan.StatusCodeFromNTStatus(status)
	}
	var pathErr *PathError
	if errors.As(err, &pathErr) {
		return dokan.InvalidPath
	}
	var handleErr *HandleError
	if errors.As(err, &handleErr) {
		return dokan.InvalidHandle
	}
	var stateErr *StateError
	if errors.As(err, &stateErr) {
		return dokan.InternalError
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return dokan.InternalError
	}
	if code, ok := kindStatus[KindOf(err)]; ok {
		return code
	}
	return dokan.InternalError
}
